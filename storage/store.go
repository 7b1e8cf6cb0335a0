// Package storage defines the key-value store the node state is kept in.
package storage

import "errors"

var ErrNotFound = errors.New("storage: key not found")

// Store is a key-value store whose writes are applied through atomic batches.
type Store interface {
	// Get returns a copy of the value at key, or ErrNotFound.
	Get(key []byte) ([]byte, error)
	NewBatch() Batch
	Close() error
}

// Batch collects writes that are applied together by Commit.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	// Len returns the number of staged operations.
	Len() int
	Commit() error
}
