package types

// MerklePathNode is one step of an inclusion proof: the sibling needed to
// recompute the parent and the side that sibling sits on.
type MerklePathNode struct {
	Hash          Hash
	IsLeftSibling bool
}

// MerklePath is an inclusion proof ordered from leaf level to root.
type MerklePath struct {
	Nodes []MerklePathNode `ssz-max:"64"`
}

// ComputeRootWithLeafNode folds the path over leaf and returns the implied root.
func (p *MerklePath) ComputeRootWithLeafNode(leaf Hash) Hash {
	current := leaf
	for _, node := range p.Nodes {
		if node.IsLeftSibling {
			current = HashNodes(node.Hash, current)
		} else {
			current = HashNodes(current, node.Hash)
		}
	}
	return current
}

// Equal reports whether two paths contain the same nodes in the same order.
func (p *MerklePath) Equal(other *MerklePath) bool {
	if p == nil || other == nil {
		return p == other
	}
	if len(p.Nodes) != len(other.Nodes) {
		return false
	}
	for i := range p.Nodes {
		if p.Nodes[i] != other.Nodes[i] {
			return false
		}
	}
	return true
}
