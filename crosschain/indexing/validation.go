// Package indexing decides whether a cross-chain batch may be indexed and
// builds the next batch to propose.
package indexing

import (
	"context"
	"log/slog"
	"time"

	"github.com/geanlabs/xchain/observability/metrics"
	"github.com/geanlabs/xchain/types"
)

// StateReader serves the chain-state view as of a block.
type StateReader interface {
	StateAt(hash types.Hash, height int64) (types.ChainStateView, error)
}

// CacheReader takes cached attestations by chain and height.
type CacheReader interface {
	TryTake(chainID types.ChainID, height int64, sizeLimited bool) (*types.BlockAttestation, bool)
}

// ValidationService checks batches against the chain cache.
type ValidationService struct {
	cache  CacheReader
	state  StateReader
	logger *slog.Logger
}

type ValidationConfig struct {
	Cache  CacheReader
	State  StateReader
	Logger *slog.Logger
}

func NewValidationService(cfg ValidationConfig) *ValidationService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidationService{cache: cfg.Cache, state: cfg.State, logger: logger}
}

// ValidateBatch reports whether every attestation in batch is exactly the
// cached attestation at the next unindexed height of its chain, as recorded
// in the state of block (hash, height). A non-nil error means the state could
// not be read; the batch is rejected in that case as well.
func (s *ValidationService) ValidateBatch(ctx context.Context, batch *types.CrossChainBlockData, hash types.Hash, height int64) (bool, error) {
	start := time.Now()
	ok, err := s.validate(ctx, batch, hash, height)
	metrics.BatchValidationTime.Observe(time.Since(start).Seconds())

	result := "valid"
	switch {
	case err != nil:
		result = "error"
	case !ok:
		result = "invalid"
	}
	metrics.BatchValidations.WithLabelValues(result).Inc()
	return ok, err
}

func (s *ValidationService) validate(ctx context.Context, batch *types.CrossChainBlockData, hash types.Hash, height int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if batch == nil {
		return false, nil
	}

	var view *types.ChainStateView
	readView := func() (*types.ChainStateView, error) {
		if view == nil {
			v, err := s.state.StateAt(hash, height)
			if err != nil {
				return nil, err
			}
			view = &v
		}
		return view, nil
	}

	validated := make(map[types.ChainID]int64)
	for _, item := range batch.SideChain {
		if item == nil {
			return false, nil
		}
		last, seen := validated[item.ChainID]
		if !seen {
			v, err := readView()
			if err != nil {
				return false, err
			}
			last = v.SideChainHeight(item.ChainID)
		}

		target := last + 1
		if item.Height != target {
			s.logger.Debug("side chain attestation out of order",
				"chain_id", item.ChainID, "height", item.Height, "expected", target)
			return false, nil
		}
		cached, ok := s.cache.TryTake(item.ChainID, target, false)
		if !ok || !cached.Equal(item) {
			s.logger.Warn("side chain attestation not found in cache",
				"chain_id", item.ChainID, "height", target)
			return false, nil
		}
		validated[item.ChainID] = item.Height
	}
	for id, h := range validated {
		s.logger.Debug("validated side chain height", "chain_id", id, "height", h)
	}

	if len(batch.ParentChain) == 0 {
		return true, nil
	}
	v, err := readView()
	if err != nil {
		return false, err
	}
	if v.ParentChainID == 0 {
		s.logger.Warn("parent chain data without a parent chain")
		return false, nil
	}

	target := v.ParentChainHeight + 1
	for _, item := range batch.ParentChain {
		cached, ok := s.cache.TryTake(v.ParentChainID, target, false)
		if !ok {
			s.logger.Warn("parent chain attestation not found in cache",
				"chain_id", v.ParentChainID, "height", target)
			return false, nil
		}
		if !cached.Equal(item) {
			s.logger.Warn("incorrect parent chain attestation",
				"chain_id", v.ParentChainID, "height", target)
			return false, nil
		}
		target++
	}
	return true, nil
}
