package types

import "time"

// CallContext identifies the caller and the block a state-changing call
// executes in.
type CallContext struct {
	Sender    Address
	Height    int64
	Time      time.Time
	BlockHash Hash
}
