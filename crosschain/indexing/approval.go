package indexing

import (
	"sort"
	"sync"

	"github.com/geanlabs/xchain/types"
)

// ApprovalCache remembers indexing proposals this node still has to approve,
// with the local height they were seen at.
type ApprovalCache struct {
	mu        sync.Mutex
	proposals map[types.Hash]int64
}

func NewApprovalCache() *ApprovalCache {
	return &ApprovalCache{proposals: make(map[types.Hash]int64)}
}

// Cache adds id. It returns false if id is already cached.
func (c *ApprovalCache) Cache(id types.Hash, createdHeight int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.proposals[id]; ok {
		return false
	}
	c.proposals[id] = createdHeight
	return true
}

// Proposals returns the cached ids, oldest first.
func (c *ApprovalCache) Proposals() []types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]types.Hash, 0, len(c.proposals))
	for id := range c.proposals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		hi, hj := c.proposals[ids[i]], c.proposals[ids[j]]
		if hi != hj {
			return hi < hj
		}
		return string(ids[i][:]) < string(ids[j][:])
	})
	return ids
}

func (c *ApprovalCache) CreatedHeight(id types.Hash) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.proposals[id]
	return h, ok
}

// Remove drops id. It returns false if id was not cached.
func (c *ApprovalCache) Remove(id types.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.proposals[id]; !ok {
		return false
	}
	delete(c.proposals, id)
	return true
}
