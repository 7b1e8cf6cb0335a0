// Package clock maps wall-clock time to local block heights.
//
// The local chain produces one block every BlockInterval seconds starting at
// GenesisTime. The node derives the height and time of each local block from
// this clock so every indexing call sees the same block context.
package clock

import (
	"time"

	"github.com/geanlabs/xchain/types"
)

// BlockClock converts wall-clock time to local block heights.
// All time values are in seconds (Unix timestamps).
type BlockClock struct {
	GenesisTime   uint64 // Unix timestamp of the genesis block
	BlockInterval uint64
	timeFunc      func() time.Time
}

// New creates a BlockClock with the given genesis time and block interval.
func New(genesisTime, blockInterval uint64) *BlockClock {
	return NewWithTimeFunc(genesisTime, blockInterval, time.Now)
}

// NewWithTimeFunc creates a BlockClock with a custom time source (for testing).
func NewWithTimeFunc(genesisTime, blockInterval uint64, timeFunc func() time.Time) *BlockClock {
	if blockInterval == 0 {
		blockInterval = 1
	}
	return &BlockClock{
		GenesisTime:   genesisTime,
		BlockInterval: blockInterval,
		timeFunc:      timeFunc,
	}
}

// secondsSinceGenesis returns seconds elapsed since genesis (0 if before genesis).
func (c *BlockClock) secondsSinceGenesis() uint64 {
	now := uint64(c.timeFunc().Unix())
	if now < c.GenesisTime {
		return 0
	}
	return now - c.GenesisTime
}

// CurrentHeight returns the height of the current local block. The genesis
// block is returned before genesis.
func (c *BlockClock) CurrentHeight() int64 {
	return types.GenesisBlockHeight + int64(c.secondsSinceGenesis()/c.BlockInterval)
}

// HeightStartTime returns the Unix timestamp at which height begins.
func (c *BlockClock) HeightStartTime(height int64) uint64 {
	if height < types.GenesisBlockHeight {
		return c.GenesisTime
	}
	return c.GenesisTime + uint64(height-types.GenesisBlockHeight)*c.BlockInterval
}

// BlockTime returns the timestamp of the block at height.
func (c *BlockClock) BlockTime(height int64) time.Time {
	return time.Unix(int64(c.HeightStartTime(height)), 0)
}

// UntilNextBlock returns how long until the next block begins.
func (c *BlockClock) UntilNextBlock() time.Duration {
	next := time.Unix(int64(c.HeightStartTime(c.CurrentHeight()+1)), 0)
	return next.Sub(c.timeFunc())
}

// IsBeforeGenesis returns true if current time is before genesis.
func (c *BlockClock) IsBeforeGenesis() bool {
	return uint64(c.timeFunc().Unix()) < c.GenesisTime
}
