// Package cache buffers attestations received from other chains until the
// indexer consumes them.
package cache

import (
	"sync"

	"github.com/emirpasic/gods/queues/arrayqueue"
	"github.com/emirpasic/gods/queues/circularbuffer"

	"github.com/geanlabs/xchain/crosschain"
	"github.com/geanlabs/xchain/types"
)

// ChainBuffer caches the attestations of one chain. The active ring holds
// contiguous, strictly increasing heights that have not been taken yet; taken
// entries move to history, which only shrinks through ClearOutOfDateCacheByHeight.
type ChainBuffer struct {
	mu sync.Mutex

	chainID       types.ChainID
	initialHeight int64
	lookahead     int64

	active  *circularbuffer.Queue
	history *arrayqueue.Queue
}

// NewChainBuffer creates an empty buffer that first accepts initialHeight.
func NewChainBuffer(chainID types.ChainID, initialHeight int64) *ChainBuffer {
	return &ChainBuffer{
		chainID:       chainID,
		initialHeight: initialHeight,
		lookahead:     crosschain.DefaultBlockCacheEntityCount,
		active:        circularbuffer.New(crosschain.Capacity),
		history:       arrayqueue.New(),
	}
}

func (b *ChainBuffer) ChainID() types.ChainID { return b.chainID }

// NextExpectedHeight returns the only height TryAdd will accept. It reports
// false while the active ring is full.
func (b *ChainBuffer) NextExpectedHeight() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextExpectedLocked()
}

func (b *ChainBuffer) nextExpectedLocked() (int64, bool) {
	if b.active.Full() {
		return 0, false
	}
	if front, ok := peek(b.active); ok {
		return front.Height + int64(b.active.Size()), true
	}
	if v, ok := b.history.Peek(); ok {
		return v.(*types.BlockAttestation).Height + int64(b.history.Size()), true
	}
	return b.initialHeight, true
}

// TryAdd appends a if it is valid for this chain and carries the next
// expected height.
func (b *ChainBuffer) TryAdd(a *types.BlockAttestation) bool {
	if !b.valid(a) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next, ok := b.nextExpectedLocked()
	if !ok || a.Height != next {
		return false
	}
	b.active.Enqueue(a)
	return true
}

func (b *ChainBuffer) valid(a *types.BlockAttestation) bool {
	return a != nil &&
		a.Height >= types.GenesisBlockHeight &&
		a.ChainID == b.chainID &&
		!a.MerkleRoot.IsZero()
}

// TryTake returns the attestation at height. When height is in the active
// part, entries below it are moved to history first; otherwise nothing is
// moved. A size-limited take only releases a height once
// DefaultBlockCacheEntityCount attestations are cached at or beyond it.
func (b *ChainBuffer) TryTake(height int64, sizeLimited bool) (*types.BlockAttestation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if front, ok := peek(b.active); ok {
		last := front.Height + int64(b.active.Size()) - 1
		if front.Height <= height && height <= last {
			for front.Height < height {
				b.active.Dequeue()
				b.history.Enqueue(front)
				front, _ = peek(b.active)
			}
			if sizeLimited && last < height+b.lookahead {
				return nil, false
			}
			b.active.Dequeue()
			b.history.Enqueue(front)
			return front, true
		}
	}

	it := b.history.Iterator()
	for it.Next() {
		a := it.Value().(*types.BlockAttestation)
		if a.Height != height {
			continue
		}
		if sizeLimited {
			cached := int64(b.active.Size() + b.history.Size() - it.Index())
			if cached < b.lookahead {
				return nil, false
			}
		}
		return a, true
	}
	return nil, false
}

// ClearOutOfDateCacheByHeight drops history entries at or below height.
func (b *ChainBuffer) ClearOutOfDateCacheByHeight(height int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		v, ok := b.history.Peek()
		if !ok || v.(*types.BlockAttestation).Height > height {
			return
		}
		b.history.Dequeue()
	}
}

// Range returns up to count cached attestations from start upward without
// taking them.
func (b *ChainBuffer) Range(start int64, count int) []*types.BlockAttestation {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*types.BlockAttestation
	collect := func(v interface{}) bool {
		a := v.(*types.BlockAttestation)
		if a.Height >= start {
			out = append(out, a)
		}
		return len(out) < count
	}
	hit := b.history.Iterator()
	for hit.Next() {
		if !collect(hit.Value()) {
			return out
		}
	}
	ait := b.active.Iterator()
	for ait.Next() {
		if !collect(ait.Value()) {
			return out
		}
	}
	return out
}

// Len returns the number of active and history entries.
func (b *ChainBuffer) Len() (active, history int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active.Size(), b.history.Size()
}

func peek(q *circularbuffer.Queue) (*types.BlockAttestation, bool) {
	v, ok := q.Peek()
	if !ok {
		return nil, false
	}
	return v.(*types.BlockAttestation), true
}
