// Package state keeps the cross-chain contract state in a storage.Store.
// Writes are staged in a Tx and reach the store in one atomic batch.
package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/geanlabs/xchain/storage"
	"github.com/geanlabs/xchain/types"
)

// State is the committed contract state.
type State struct {
	store storage.Store
}

func New(store storage.Store) *State {
	return &State{store: store}
}

// Begin opens a transaction over the committed state.
func (s *State) Begin() *Tx {
	return &Tx{store: s.store, writes: make(map[string]entry)}
}

// StateAt returns the view recorded for the block (hash, height).
func (s *State) StateAt(hash types.Hash, height int64) (types.ChainStateView, error) {
	v, err := s.store.Get(hashKey(prefixSnapshotView, hash))
	if errors.Is(err, storage.ErrNotFound) {
		return types.ChainStateView{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, hash.Short())
	}
	if err != nil {
		return types.ChainStateView{}, fmt.Errorf("read snapshot: %w", err)
	}
	if len(v) < 8 {
		return types.ChainStateView{}, ErrCorrupt
	}
	recorded, _ := decodeInt64(v[:8])
	if recorded != height {
		return types.ChainStateView{}, fmt.Errorf("%w: block %s recorded at %d, asked %d",
			ErrSnapshotMismatch, hash.Short(), recorded, height)
	}
	var view types.ChainStateView
	if err := view.UnmarshalSSZ(v[8:]); err != nil {
		return types.ChainStateView{}, fmt.Errorf("%w: snapshot: %v", ErrCorrupt, err)
	}
	return view, nil
}

type entry struct {
	value   []byte
	deleted bool
}

// Tx stages writes over the committed state. Reads see staged writes first.
// A Tx is not safe for concurrent use.
type Tx struct {
	store  storage.Store
	writes map[string]entry
	closed bool
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	if e, ok := tx.writes[string(key)]; ok {
		if e.deleted {
			return nil, false, nil
		}
		return e.value, true, nil
	}
	v, err := tx.store.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (tx *Tx) put(key, value []byte) {
	tx.writes[string(key)] = entry{value: value}
}

func (tx *Tx) del(key []byte) {
	tx.writes[string(key)] = entry{deleted: true}
}

// Dirty returns the number of staged keys.
func (tx *Tx) Dirty() int { return len(tx.writes) }

// Commit applies every staged write in one batch.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if len(tx.writes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tx.writes))
	for k := range tx.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := tx.store.NewBatch()
	for _, k := range keys {
		if e := tx.writes[k]; e.deleted {
			b.Delete([]byte(k))
		} else {
			b.Put([]byte(k), e.value)
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

// Discard drops the staged writes.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.writes = make(map[string]entry)
}
