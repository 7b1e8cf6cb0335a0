package memory

import (
	"sync"

	"github.com/geanlabs/xchain/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (m *Store) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Store) NewBatch() storage.Batch {
	return &batch{store: m}
}

func (m *Store) Close() error { return nil }

// Len returns the number of keys held.
func (m *Store) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

type op struct {
	key    string
	value  []byte
	delete bool
}

type batch struct {
	store *Store
	ops   []op
}

func (b *batch) Put(key, value []byte) {
	b.ops = append(b.ops, op{key: string(key), value: append([]byte(nil), value...)})
}

func (b *batch) Delete(key []byte) {
	b.ops = append(b.ops, op{key: string(key), delete: true})
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Commit() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, o := range b.ops {
		if o.delete {
			delete(b.store.data, o.key)
		} else {
			b.store.data[o.key] = o.value
		}
	}
	b.ops = nil
	return nil
}
