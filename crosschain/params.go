// Package crosschain holds the deployment constants shared by the indexing
// pipeline. Subpackages implement the cache, validation and contract layers.
package crosschain

import "time"

const (
	// Capacity bounds the active part of every chain buffer.
	Capacity = 256

	// DefaultBlockCacheEntityCount is how many attestations must be cached
	// at or beyond a height before a size-limited take releases it.
	DefaultBlockCacheEntityCount = 8

	// BannedBlockHeightInterval is how many local blocks a ban lasts.
	BannedBlockHeightInterval int64 = 86400

	IndexingProposalExpiry          = 120 * time.Second
	SideChainCreationProposalExpiry = 86400 * time.Second

	// MaxIndexingBatchPerChain caps attestations per chain in one proposal.
	MaxIndexingBatchPerChain = 32
)

// Policy selects which misbehaviour bans the proposer.
type Policy struct {
	// BanOnExpiry bans the proposer of a proposal cleared after expiry.
	BanOnExpiry bool
	// BanOnInvalidRecord bans the proposer of a batch that fails validation at record time.
	BanOnInvalidRecord bool
}

// DefaultPolicy returns the deployment default.
func DefaultPolicy() Policy {
	return Policy{BanOnExpiry: false, BanOnInvalidRecord: true}
}
