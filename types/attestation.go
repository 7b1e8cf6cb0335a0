package types

import "fmt"

// AttestationKind tags the variant of a BlockAttestation.
type AttestationKind uint8

const (
	KindSideChain   AttestationKind = 1 // block data of a side chain indexed by this chain
	KindParentChain AttestationKind = 2 // block data of this chain's parent
)

func (k AttestationKind) String() string {
	switch k {
	case KindSideChain:
		return "SideChain"
	case KindParentChain:
		return "ParentChain"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Protocol limits for SSZ lists.
const (
	MaxMerklePathLength    = 64
	MaxIndexedMerklePaths  = 1024
	MaxBatchAttestations   = 1024
	MaxSnapshotSideChains  = 1024
	BlockAttestationFixed  = 113
	MerklePathNodeSize     = 33
	IndexedMerklePathFixed = 12
)

// IndexedMerklePath binds one of this chain's own block heights to a Merkle
// path inside the parent chain's tree.
type IndexedMerklePath struct {
	ChildHeight int64
	Path        MerklePath
}

// BlockAttestation is a chain's claim about one of its blocks, anchored by the
// transaction status Merkle root. The shared fields are common to both kinds;
// the parent-chain payload is empty for side-chain attestations.
type BlockAttestation struct {
	Kind            AttestationKind
	ChainID         ChainID
	Height          int64
	BlockHeaderHash Hash `ssz-size:"32"`
	MerkleRoot      Hash `ssz-size:"32"`

	// Parent-chain payload.
	CrossChainExtraRoot Hash                `ssz-size:"32"`
	IndexedMerklePaths  []IndexedMerklePath `ssz-max:"1024"`
}

// NewSideChainAttestation creates a side-chain attestation.
func NewSideChainAttestation(chainID ChainID, height int64, headerHash, merkleRoot Hash) *BlockAttestation {
	return &BlockAttestation{
		Kind:            KindSideChain,
		ChainID:         chainID,
		Height:          height,
		BlockHeaderHash: headerHash,
		MerkleRoot:      merkleRoot,
	}
}

// NewParentChainAttestation creates a parent-chain attestation.
func NewParentChainAttestation(chainID ChainID, height int64, headerHash, merkleRoot, extraRoot Hash, paths []IndexedMerklePath) *BlockAttestation {
	return &BlockAttestation{
		Kind:                KindParentChain,
		ChainID:             chainID,
		Height:              height,
		BlockHeaderHash:     headerHash,
		MerkleRoot:          merkleRoot,
		CrossChainExtraRoot: extraRoot,
		IndexedMerklePaths:  paths,
	}
}

// Equal reports full field-by-field equality.
func (a *BlockAttestation) Equal(other *BlockAttestation) bool {
	if a == nil || other == nil {
		return a == other
	}
	if a.Kind != other.Kind ||
		a.ChainID != other.ChainID ||
		a.Height != other.Height ||
		a.BlockHeaderHash != other.BlockHeaderHash ||
		a.MerkleRoot != other.MerkleRoot ||
		a.CrossChainExtraRoot != other.CrossChainExtraRoot ||
		len(a.IndexedMerklePaths) != len(other.IndexedMerklePaths) {
		return false
	}
	for i := range a.IndexedMerklePaths {
		p, q := &a.IndexedMerklePaths[i], &other.IndexedMerklePaths[i]
		if p.ChildHeight != q.ChildHeight || !p.Path.Equal(&q.Path) {
			return false
		}
	}
	return true
}

// CrossChainBlockData is a batch of attestations proposed for indexing.
type CrossChainBlockData struct {
	SideChain   []*BlockAttestation `ssz-max:"1024"`
	ParentChain []*BlockAttestation `ssz-max:"1024"`
}

// IsEmpty reports whether the batch carries no attestation at all.
func (d *CrossChainBlockData) IsEmpty() bool {
	return d == nil || (len(d.SideChain) == 0 && len(d.ParentChain) == 0)
}

// Equal reports whether both batches contain equal attestations in the same order.
func (d *CrossChainBlockData) Equal(other *CrossChainBlockData) bool {
	if d == nil || other == nil {
		return d == other
	}
	return attestationsEqual(d.SideChain, other.SideChain) &&
		attestationsEqual(d.ParentChain, other.ParentChain)
}

func attestationsEqual(a, b []*BlockAttestation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
