// Package pebble implements storage.Store on a pebble LSM database.
package pebble

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/geanlabs/xchain/storage"
)

// Store is a pebble-backed storage.Store.
type Store struct {
	db     *pebble.DB
	logger *slog.Logger
}

// Open opens or creates the database at dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	return open(dir, &pebble.Options{}, logger)
}

// OpenInMemory opens a database on an in-memory filesystem.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()}, logger)
}

func open(dir string, opts *pebble.Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %q: %w", dir, err)
	}
	logger.Debug("pebble store opened", "dir", dir)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	return append([]byte(nil), value...), nil
}

func (s *Store) NewBatch() storage.Batch {
	return &batch{b: s.db.NewBatch()}
}

func (s *Store) Close() error {
	return s.db.Close()
}

type batch struct {
	b   *pebble.Batch
	n   int
	err error
}

func (b *batch) Put(key, value []byte) {
	b.n++
	if err := b.b.Set(key, value, nil); err != nil && b.err == nil {
		b.err = err
	}
}

func (b *batch) Delete(key []byte) {
	b.n++
	if err := b.b.Delete(key, nil); err != nil && b.err == nil {
		b.err = err
	}
}

func (b *batch) Len() int { return b.n }

func (b *batch) Commit() error {
	defer b.b.Close()
	if b.err != nil {
		return fmt.Errorf("pebble batch: %w", b.err)
	}
	if err := b.b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble commit: %w", err)
	}
	return nil
}
