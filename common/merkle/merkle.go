// Package merkle builds binary SHA-256 Merkle trees over 32-byte leaves and
// produces inclusion paths into them.
package merkle

import (
	"errors"
	"fmt"

	"github.com/geanlabs/xchain/types"
)

var (
	ErrNoLeaves          = errors.New("merkle tree has no leaves")
	ErrLeafIndexOutRange = errors.New("leaf index out of range")
)

// Tree keeps every node, level by level from the leaves up to the root. A
// level of odd width is padded with a copy of its last node, and that copy is
// a real node of the tree.
type Tree struct {
	nodes      []types.Hash
	levelStart []int
	levelWidth []int
	leafCount  int
}

// Build constructs the tree over leaves.
func Build(leaves []types.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}

	t := &Tree{leafCount: len(leaves)}
	level := make([]types.Hash, len(leaves))
	copy(level, leaves)

	for {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		t.levelStart = append(t.levelStart, len(t.nodes))
		t.levelWidth = append(t.levelWidth, len(level))
		t.nodes = append(t.nodes, level...)

		next := make([]types.Hash, len(level)/2)
		for i := range next {
			next[i] = types.HashNodes(level[2*i], level[2*i+1])
		}
		if len(next) == 1 {
			t.levelStart = append(t.levelStart, len(t.nodes))
			t.levelWidth = append(t.levelWidth, 1)
			t.nodes = append(t.nodes, next[0])
			return t, nil
		}
		level = next
	}
}

// Root returns the root of a tree built over leaves.
func Root(leaves []types.Hash) (types.Hash, error) {
	t, err := Build(leaves)
	if err != nil {
		return types.Hash{}, err
	}
	return t.Root(), nil
}

func (t *Tree) Root() types.Hash { return t.nodes[len(t.nodes)-1] }

// Nodes returns all nodes, leaves first, root last.
func (t *Tree) Nodes() []types.Hash {
	out := make([]types.Hash, len(t.nodes))
	copy(out, t.nodes)
	return out
}

func (t *Tree) LeafCount() int { return t.leafCount }

// GenerateMerklePath returns the inclusion path of the leaf at index.
func (t *Tree) GenerateMerklePath(index int) (*types.MerklePath, error) {
	if index < 0 || index >= t.leafCount {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrLeafIndexOutRange, index, t.leafCount)
	}

	path := &types.MerklePath{Nodes: make([]types.MerklePathNode, 0, len(t.levelWidth)-1)}
	idx := index
	for lvl := 0; lvl < len(t.levelWidth)-1; lvl++ {
		sibling := idx + 1
		if idx%2 == 1 {
			sibling = idx - 1
		}
		path.Nodes = append(path.Nodes, types.MerklePathNode{
			Hash:          t.nodes[t.levelStart[lvl]+sibling],
			IsLeftSibling: sibling%2 == 0,
		})
		idx /= 2
	}
	return path, nil
}
