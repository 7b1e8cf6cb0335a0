// Package contract implements the cross-chain contract: the single-slot
// indexing proposal state machine, side-chain registration and fees, and
// cross-chain transaction verification.
package contract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/geanlabs/xchain/crosschain"
	"github.com/geanlabs/xchain/crosschain/state"
	"github.com/geanlabs/xchain/governance"
	"github.com/geanlabs/xchain/types"
)

// Governance methods the coordinator executes on release.
const (
	MethodRecordCrossChainData = "RecordCrossChainData"
	MethodCreateSideChain      = "CreateSideChain"
	MethodDisposeSideChain     = "DisposeSideChain"
)

// BatchValidator checks a batch against the chain cache as of a block.
type BatchValidator interface {
	ValidateBatch(ctx context.Context, batch *types.CrossChainBlockData, hash types.Hash, height int64) (bool, error)
}

// Coordinator is the cross-chain contract. State-changing calls are
// serialized; each stages its writes and commits them only if it succeeds.
type Coordinator struct {
	mu sync.Mutex

	chainID      types.ChainID
	state        *state.State
	validator    BatchValidator
	gov          governance.Governance
	validators   governance.ValidatorSet
	organization types.Address
	policy       crosschain.Policy
	events       EventSink
	logger       *slog.Logger
}

type Config struct {
	// ChainID is the id of the chain this contract runs on.
	ChainID      types.ChainID
	State        *state.State
	Validator    BatchValidator
	Governance   governance.Governance
	Validators   governance.ValidatorSet
	Organization types.Address
	Policy       crosschain.Policy
	Events       EventSink
	Logger       *slog.Logger
}

func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := cfg.Events
	if events == nil {
		events = discardSink{}
	}
	return &Coordinator{
		chainID:      cfg.ChainID,
		state:        cfg.State,
		validator:    cfg.Validator,
		gov:          cfg.Governance,
		validators:   cfg.Validators,
		organization: cfg.Organization,
		policy:       cfg.Policy,
		events:       events,
		logger:       logger,
	}
}

// InitialState seeds an empty contract.
type InitialState struct {
	ParentChainID     types.ChainID
	ParentChainHeight int64
	SideChains        []InitialSideChain
}

type InitialSideChain struct {
	Info    types.SideChainInfo
	Balance int64
	Height  int64
}

// Initialize writes the initial state unless a parent chain or side chain is
// already recorded.
func (c *Coordinator) Initialize(init InitialState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.state.Begin()
	defer tx.Discard()

	parentID, err := tx.ParentChainID()
	if err != nil {
		return err
	}
	ids, err := tx.SideChainIDs()
	if err != nil {
		return err
	}
	if parentID != 0 || len(ids) > 0 {
		return nil
	}

	if init.ParentChainID != 0 {
		tx.PutParentChainID(init.ParentChainID)
		tx.PutParentChainHeight(init.ParentChainHeight)
	}
	for i := range init.SideChains {
		sc := init.SideChains[i]
		if err := tx.PutSideChainInfo(&sc.Info); err != nil {
			return err
		}
		tx.PutIndexingBalance(sc.Info.ChainID, sc.Balance)
		tx.PutSideChainHeight(sc.Info.ChainID, sc.Height)
	}
	if len(init.SideChains) > 0 {
		tx.PutSerial(int64(len(init.SideChains)))
	}
	return tx.Commit()
}

// Checkpoint records the state view of block (hash, height) if none is
// recorded yet. Validation reads views recorded here.
func (c *Coordinator) Checkpoint(call types.CallContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.state.Begin()
	defer tx.Discard()
	has, err := tx.HasSnapshot(call.BlockHash)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	if err := putSnapshot(tx, call); err != nil {
		return err
	}
	return tx.Commit()
}

func putSnapshot(tx *state.Tx, call types.CallContext) error {
	view, err := tx.View()
	if err != nil {
		return fmt.Errorf("build state view: %w", err)
	}
	return tx.PutSnapshot(call.BlockHash, call.Height, &view)
}

// Ban bars addr from proposing until height + BannedBlockHeightInterval.
func (c *Coordinator) Ban(addr types.Address, height int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.state.Begin()
	defer tx.Discard()
	tx.PutBan(addr, height)
	return tx.Commit()
}

// checkBan rejects a banned sender and lifts a ban that has run out.
func checkBan(tx *state.Tx, sender types.Address, height int64) error {
	bannedAt, ok, err := tx.BannedAt(sender)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if height < bannedAt+crosschain.BannedBlockHeightInterval {
		return fmt.Errorf("%w: banned at %d", ErrBanned, bannedAt)
	}
	tx.DeleteBan(sender)
	return nil
}

// read runs fn against the committed state.
func (c *Coordinator) read(fn func(tx *state.Tx) error) error {
	tx := c.state.Begin()
	defer tx.Discard()
	return fn(tx)
}

func (c *Coordinator) GetSideChainHeight(id types.ChainID) (int64, error) {
	var h int64
	err := c.read(func(tx *state.Tx) error {
		if _, ok, err := tx.SideChainInfo(id); err != nil {
			return err
		} else if !ok {
			return ErrChainNotFound
		}
		var err error
		h, err = tx.SideChainHeight(id)
		return err
	})
	return h, err
}

func (c *Coordinator) GetParentChainHeight() (int64, error) {
	var h int64
	err := c.read(func(tx *state.Tx) (err error) {
		h, err = tx.ParentChainHeight()
		return err
	})
	return h, err
}

func (c *Coordinator) GetParentChainID() (types.ChainID, error) {
	var id types.ChainID
	err := c.read(func(tx *state.Tx) (err error) {
		id, err = tx.ParentChainID()
		return err
	})
	return id, err
}

func (c *Coordinator) GetIndexingBalance(id types.ChainID) (int64, error) {
	var b int64
	err := c.read(func(tx *state.Tx) (err error) {
		b, err = tx.IndexingBalance(id)
		return err
	})
	return b, err
}

func (c *Coordinator) GetSideChainInfo(id types.ChainID) (*types.SideChainInfo, error) {
	var info *types.SideChainInfo
	err := c.read(func(tx *state.Tx) error {
		var ok bool
		var err error
		info, ok, err = tx.SideChainInfo(id)
		if err == nil && !ok {
			err = ErrChainNotFound
		}
		return err
	})
	return info, err
}

// GetProposal returns the indexing proposal slot.
func (c *Coordinator) GetProposal() (*types.IndexingProposal, error) {
	var p *types.IndexingProposal
	err := c.read(func(tx *state.Tx) (err error) {
		p, err = tx.Proposal()
		return err
	})
	return p, err
}

func (c *Coordinator) GetLedgerBalance(addr types.Address) (int64, error) {
	var b int64
	err := c.read(func(tx *state.Tx) (err error) {
		b, err = tx.LedgerBalance(addr)
		return err
	})
	return b, err
}

// GetMerkleRoot returns the root recorded for chainID at parentHeight: the
// parent's transaction root, the root over side-chain roots indexed at that
// local height, or the cousin root the parent recorded.
func (c *Coordinator) GetMerkleRoot(chainID types.ChainID, parentHeight int64) (types.Hash, bool, error) {
	var root types.Hash
	var found bool
	err := c.read(func(tx *state.Tx) (err error) {
		root, found, err = merkleRootFor(tx, chainID, parentHeight)
		return err
	})
	return root, found, err
}

// GetBoundParentChainHeightAndMerklePath returns where this chain's block at
// childHeight was bound into the parent chain.
func (c *Coordinator) GetBoundParentChainHeightAndMerklePath(childHeight int64) (*state.Binding, bool, error) {
	var b *state.Binding
	var ok bool
	err := c.read(func(tx *state.Tx) (err error) {
		b, ok, err = tx.Binding(childHeight)
		return err
	})
	return b, ok, err
}

// ActiveSideChains lists the side chains open for indexing.
func (c *Coordinator) ActiveSideChains() ([]types.ChainID, error) {
	var active []types.ChainID
	err := c.read(func(tx *state.Tx) error {
		ids, err := tx.SideChainIDs()
		if err != nil {
			return err
		}
		for _, id := range ids {
			info, ok, err := tx.SideChainInfo(id)
			if err != nil {
				return err
			}
			if ok && info.Status == types.SideChainActive {
				active = append(active, id)
			}
		}
		return nil
	})
	return active, err
}
