package state

import "errors"

var (
	ErrCorrupt          = errors.New("corrupt state entry")
	ErrSnapshotNotFound = errors.New("no state snapshot for block")
	ErrSnapshotMismatch = errors.New("state snapshot height does not match block")
	ErrTxClosed         = errors.New("state transaction already committed or discarded")
)
