package cache

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/geanlabs/xchain/types"
)

// Registry maps chain ids to their buffers. Buffers are created on first use,
// seeded with the chain's registered start height or the genesis height.
type Registry struct {
	mu             sync.RWMutex
	buffers        map[types.ChainID]*ChainBuffer
	initialHeights map[types.ChainID]int64
	logger         *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		buffers:        make(map[types.ChainID]*ChainBuffer),
		initialHeights: make(map[types.ChainID]int64),
		logger:         logger,
	}
}

// RegisterChain records the first height cached for chainID. It has no effect
// on a buffer that already exists.
func (r *Registry) RegisterChain(chainID types.ChainID, startHeight int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.buffers[chainID]; ok {
		return
	}
	r.initialHeights[chainID] = startHeight
}

func (r *Registry) buffer(chainID types.ChainID) *ChainBuffer {
	r.mu.RLock()
	b, ok := r.buffers[chainID]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buffers[chainID]; ok {
		return b
	}
	start, ok := r.initialHeights[chainID]
	if !ok {
		start = types.GenesisBlockHeight
	}
	b = NewChainBuffer(chainID, start)
	r.buffers[chainID] = b
	r.logger.Debug("chain buffer created", "chain_id", chainID, "start_height", start)
	return b
}

func (r *Registry) lookup(chainID types.ChainID) (*ChainBuffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buffers[chainID]
	return b, ok
}

// TryAdd routes a to its chain's buffer.
func (r *Registry) TryAdd(a *types.BlockAttestation) bool {
	if a == nil {
		return false
	}
	return r.buffer(a.ChainID).TryAdd(a)
}

// Submit is the feed entry point for attestations received on chainID's
// channel. An attestation claiming another chain is rejected.
func (r *Registry) Submit(chainID types.ChainID, a *types.BlockAttestation) bool {
	if a == nil || a.ChainID != chainID {
		return false
	}
	return r.TryAdd(a)
}

// TryTake takes height from chainID's buffer. Unknown chains have nothing to take.
func (r *Registry) TryTake(chainID types.ChainID, height int64, sizeLimited bool) (*types.BlockAttestation, bool) {
	b, ok := r.lookup(chainID)
	if !ok {
		return nil, false
	}
	return b.TryTake(height, sizeLimited)
}

// NextExpectedHeight returns the height chainID's buffer accepts next.
func (r *Registry) NextExpectedHeight(chainID types.ChainID) (int64, bool) {
	return r.buffer(chainID).NextExpectedHeight()
}

// Range reads up to count attestations of chainID from start without taking them.
func (r *Registry) Range(chainID types.ChainID, start int64, count int) []*types.BlockAttestation {
	b, ok := r.lookup(chainID)
	if !ok || count <= 0 {
		return nil
	}
	return b.Range(start, count)
}

// ClearOutOfDateCacheByHeight trims chainID's history at or below height.
func (r *Registry) ClearOutOfDateCacheByHeight(chainID types.ChainID, height int64) {
	if b, ok := r.lookup(chainID); ok {
		b.ClearOutOfDateCacheByHeight(height)
	}
}

// ChainIDs returns the chains with a buffer, in ascending order.
func (r *Registry) ChainIDs() []types.ChainID {
	r.mu.RLock()
	ids := make([]types.ChainID, 0, len(r.buffers))
	for id := range r.buffers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
