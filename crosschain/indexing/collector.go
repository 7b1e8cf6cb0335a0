package indexing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geanlabs/xchain/crosschain"
	"github.com/geanlabs/xchain/types"
)

// ChainDirectory lists the side chains currently open for indexing.
type ChainDirectory interface {
	ActiveSideChains() ([]types.ChainID, error)
}

// Collector assembles the next proposable batch from the chain cache.
type Collector struct {
	cache     CacheReader
	state     StateReader
	directory ChainDirectory
	maxPer    int
	logger    *slog.Logger
}

type CollectorConfig struct {
	Cache     CacheReader
	State     StateReader
	Directory ChainDirectory
	// MaxPerChain caps attestations per chain; 0 means MaxIndexingBatchPerChain.
	MaxPerChain int
	Logger      *slog.Logger
}

func NewCollector(cfg CollectorConfig) *Collector {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxPer := cfg.MaxPerChain
	if maxPer <= 0 {
		maxPer = crosschain.MaxIndexingBatchPerChain
	}
	return &Collector{
		cache:     cfg.Cache,
		state:     cfg.State,
		directory: cfg.Directory,
		maxPer:    maxPer,
		logger:    logger,
	}
}

// Next returns the attestations that follow the heights recorded at block
// (hash, height). Only attestations with enough cached successors are taken.
func (c *Collector) Next(ctx context.Context, hash types.Hash, height int64) (*types.CrossChainBlockData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	view, err := c.state.StateAt(hash, height)
	if err != nil {
		return nil, fmt.Errorf("read state at %d: %w", height, err)
	}
	chains, err := c.directory.ActiveSideChains()
	if err != nil {
		return nil, fmt.Errorf("list side chains: %w", err)
	}

	batch := &types.CrossChainBlockData{}
	for _, id := range chains {
		batch.SideChain = append(batch.SideChain, c.take(id, view.SideChainHeight(id))...)
	}
	if view.ParentChainID != 0 {
		batch.ParentChain = c.take(view.ParentChainID, view.ParentChainHeight)
	}

	if !batch.IsEmpty() {
		c.logger.Debug("collected indexing data",
			"height", height,
			"side_chain", len(batch.SideChain),
			"parent_chain", len(batch.ParentChain),
		)
	}
	return batch, nil
}

func (c *Collector) take(chainID types.ChainID, last int64) []*types.BlockAttestation {
	var out []*types.BlockAttestation
	for i := 1; i <= c.maxPer; i++ {
		a, ok := c.cache.TryTake(chainID, last+int64(i), true)
		if !ok {
			break
		}
		out = append(out, a)
	}
	return out
}
