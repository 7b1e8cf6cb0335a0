package contract

import (
	"context"
	"errors"
	"fmt"

	"github.com/geanlabs/xchain/common/merkle"
	"github.com/geanlabs/xchain/crosschain"
	"github.com/geanlabs/xchain/crosschain/state"
	"github.com/geanlabs/xchain/governance"
	"github.com/geanlabs/xchain/observability/metrics"
	"github.com/geanlabs/xchain/types"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidationFailure, fmt.Sprintf(format, args...))
}

// Propose fills the free slot with batch and opens a governance proposal to
// record it.
func (c *Coordinator) Propose(ctx context.Context, call types.CallContext, batch *types.CrossChainBlockData) (types.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.validators.IsCurrentValidator(call.Sender) {
		return types.Hash{}, ErrNotValidator
	}

	tx := c.state.Begin()
	defer tx.Discard()

	if err := checkBan(tx, call.Sender, call.Height); err != nil {
		return types.Hash{}, err
	}
	slot, err := tx.Proposal()
	if err != nil {
		return types.Hash{}, err
	}
	if slot.Status != types.StatusNonProposed {
		return types.Hash{}, fmt.Errorf("%w: %s", ErrWrongStatus, slot.Status)
	}
	if batch.IsEmpty() {
		return types.Hash{}, invalid("empty batch")
	}
	if err := checkBatch(tx, batch); err != nil {
		return types.Hash{}, err
	}

	input := types.RecordInput{Proposer: call.Sender, Batch: *batch}
	payload, err := input.MarshalSSZ()
	if err != nil {
		return types.Hash{}, fmt.Errorf("encode record input: %w", err)
	}
	id, err := c.gov.CreateProposal(ctx, governance.ProposalRequest{
		Organization:      c.organization,
		Proposer:          call.Sender,
		Method:            MethodRecordCrossChainData,
		Payload:           payload,
		Expiry:            call.Time.Add(crosschain.IndexingProposalExpiry),
		NotifyOnThreshold: true,
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("create governance proposal: %w", err)
	}

	next := &types.IndexingProposal{
		Proposer:   call.Sender,
		ProposalID: id,
		Status:     types.StatusProposed,
		Version:    slot.Version + 1,
		Batch:      *batch,
	}
	if err := tx.PutProposal(next); err != nil {
		return types.Hash{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.Hash{}, err
	}

	metrics.ProposalTransitions.WithLabelValues("proposed").Inc()
	c.logger.Info("indexing data proposed",
		"proposal_id", id.Short(),
		"proposer", call.Sender,
		"side_chain", len(batch.SideChain),
		"parent_chain", len(batch.ParentChain),
	)
	c.events.Emit(ProposalCreated{ProposalID: id})
	c.events.Emit(IndexingDataProposed{Proposer: call.Sender, Batch: batch})
	return id, nil
}

// ReleaseApproved is called by governance once the proposal reached its
// threshold. The slot moves to ToBeReleased and governance is asked to
// release, which executes the record.
func (c *Coordinator) ReleaseApproved(ctx context.Context, call types.CallContext, id types.Hash, payload []byte) error {
	if err := c.markToBeReleased(call, id, payload); err != nil {
		return err
	}
	return c.gov.Release(ctx, call, id)
}

func (c *Coordinator) markToBeReleased(call types.CallContext, id types.Hash, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if call.Sender != c.organization {
		return ErrUnauthorized
	}
	tx := c.state.Begin()
	defer tx.Discard()

	slot, err := tx.Proposal()
	if err != nil {
		return err
	}
	if slot.Status != types.StatusProposed {
		return fmt.Errorf("%w: %s", ErrWrongStatus, slot.Status)
	}
	if slot.ProposalID != id {
		return fmt.Errorf("%w: id %s", ErrProposalMismatch, id.Short())
	}
	var input types.RecordInput
	if err := input.UnmarshalSSZ(payload); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrProposalMismatch, err)
	}
	if input.Proposer != slot.Proposer || !input.Batch.Equal(&slot.Batch) {
		return fmt.Errorf("%w: payload differs", ErrProposalMismatch)
	}

	slot.Status = types.StatusToBeReleased
	slot.Version++
	if err := tx.PutProposal(slot); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	metrics.ProposalTransitions.WithLabelValues("approved").Inc()
	c.logger.Debug("indexing proposal approved", "proposal_id", id.Short())
	return nil
}

// Record indexes the released batch. It must be executed by governance.
// A batch that no longer validates is dropped; the slot is freed and, under
// BanOnInvalidRecord, the proposer is banned. If chain state cannot be read
// the error is returned and ClearExpired frees the slot later.
func (c *Coordinator) Record(ctx context.Context, call types.CallContext, input *types.RecordInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if call.Sender != c.organization {
		return ErrUnauthorized
	}
	tx := c.state.Begin()
	defer tx.Discard()

	slot, err := tx.Proposal()
	if err != nil {
		return err
	}
	if slot.Status != types.StatusToBeReleased {
		return fmt.Errorf("%w: %s", ErrWrongStatus, slot.Status)
	}
	if input == nil || input.Proposer != slot.Proposer || !input.Batch.Equal(&slot.Batch) {
		return ErrProposalMismatch
	}
	batch := &slot.Batch

	// Read-port failures leave the slot ToBeReleased without a ban.
	ok, err := c.validator.ValidateBatch(ctx, batch, call.BlockHash, call.Height)
	if err != nil {
		return fmt.Errorf("validate batch: %w", err)
	}
	var verr error
	if !ok {
		verr = invalid("batch does not match cached data")
	} else {
		verr = checkBatch(tx, batch)
	}
	if verr != nil {
		if !errors.Is(verr, ErrValidationFailure) {
			return verr
		}
		return c.dropInvalid(tx, call, slot, verr)
	}

	if err := c.index(tx, call, slot.Proposer, batch); err != nil {
		return err
	}
	if err := tx.PutProposal(freeSlot(slot)); err != nil {
		return err
	}
	if err := putSnapshot(tx, call); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	metrics.ProposalTransitions.WithLabelValues("recorded").Inc()
	metrics.IndexedBlocks.WithLabelValues(types.KindSideChain.String()).Add(float64(len(batch.SideChain)))
	metrics.IndexedBlocks.WithLabelValues(types.KindParentChain.String()).Add(float64(len(batch.ParentChain)))
	c.logger.Info("cross chain data indexed",
		"height", call.Height,
		"proposal_id", slot.ProposalID.Short(),
		"side_chain", len(batch.SideChain),
		"parent_chain", len(batch.ParentChain),
	)
	c.events.Emit(CrossChainIndexed{
		Height:           call.Height,
		SideChainCount:   len(batch.SideChain),
		ParentChainCount: len(batch.ParentChain),
	})
	return nil
}

// dropInvalid discards everything staged by the record and commits only the
// slot reset and the optional ban.
func (c *Coordinator) dropInvalid(tx *state.Tx, call types.CallContext, slot *types.IndexingProposal, cause error) error {
	tx.Discard()
	tx = c.state.Begin()
	defer tx.Discard()

	banned := c.policy.BanOnInvalidRecord
	if banned {
		tx.PutBan(slot.Proposer, call.Height)
	}
	if err := tx.PutProposal(freeSlot(slot)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	metrics.ProposalTransitions.WithLabelValues("rejected").Inc()
	if banned {
		metrics.ProposerBans.Inc()
	}
	c.logger.Warn("recorded batch failed validation",
		"proposal_id", slot.ProposalID.Short(),
		"proposer", slot.Proposer,
		"banned", banned,
		"error", cause,
	)
	c.events.Emit(ProposalCleared{ProposalID: slot.ProposalID, Proposer: slot.Proposer, Banned: banned})
	return cause
}

// ClearExpired frees a slot whose governance proposal expired or is gone.
func (c *Coordinator) ClearExpired(ctx context.Context, call types.CallContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := c.state.Begin()
	defer tx.Discard()

	slot, err := tx.Proposal()
	if err != nil {
		return err
	}
	if slot.Status == types.StatusNonProposed {
		return ErrNoPendingProposal
	}
	if info, ok := c.gov.GetProposal(slot.ProposalID); ok && !info.Expired(call.Time) {
		return fmt.Errorf("%w: expires at %s", ErrNotExpired, info.Expiry)
	}

	banned := c.policy.BanOnExpiry
	if banned {
		tx.PutBan(slot.Proposer, call.Height)
	}
	if err := tx.PutProposal(freeSlot(slot)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	metrics.ProposalTransitions.WithLabelValues("cleared").Inc()
	if banned {
		metrics.ProposerBans.Inc()
	}
	c.logger.Info("expired indexing proposal cleared", "proposal_id", slot.ProposalID.Short(), "banned", banned)
	c.events.Emit(ProposalCleared{ProposalID: slot.ProposalID, Proposer: slot.Proposer, Banned: banned})
	return nil
}

func freeSlot(slot *types.IndexingProposal) *types.IndexingProposal {
	return &types.IndexingProposal{Status: types.StatusNonProposed, Version: slot.Version + 1}
}

// checkBatch applies the contract-level rules to batch against the recorded state.
func checkBatch(tx *state.Tx, batch *types.CrossChainBlockData) error {
	if err := checkSideChainData(tx, batch.SideChain); err != nil {
		return err
	}
	return checkParentChainData(tx, batch.ParentChain)
}

func checkSideChainData(tx *state.Tx, items []*types.BlockAttestation) error {
	next := make(map[types.ChainID]int64)
	counts := make(map[types.ChainID]int64)
	infos := make(map[types.ChainID]*types.SideChainInfo)
	var order []types.ChainID

	for _, a := range items {
		if a == nil || a.Kind != types.KindSideChain || a.MerkleRoot.IsZero() {
			return invalid("malformed side chain attestation")
		}
		h, seen := next[a.ChainID]
		if !seen {
			info, ok, err := tx.SideChainInfo(a.ChainID)
			if err != nil {
				return err
			}
			if !ok {
				return invalid("unknown side chain %s", a.ChainID)
			}
			if info.Status != types.SideChainActive {
				return invalid("side chain %s is %s", a.ChainID, info.Status)
			}
			recorded, err := tx.SideChainHeight(a.ChainID)
			if err != nil {
				return err
			}
			h = recorded + 1
			infos[a.ChainID] = info
			order = append(order, a.ChainID)
		}
		if a.Height != h {
			return invalid("side chain %s height %d, expected %d", a.ChainID, a.Height, h)
		}
		next[a.ChainID] = h + 1
		counts[a.ChainID]++
	}

	for _, id := range order {
		balance, err := tx.IndexingBalance(id)
		if err != nil {
			return err
		}
		if _, ok := indexingFee(infos[id].IndexingPrice, counts[id], balance); !ok {
			return invalid("side chain %s cannot pay %d blocks at price %d from balance %d",
				id, counts[id], infos[id].IndexingPrice, balance)
		}
	}
	return nil
}

func checkParentChainData(tx *state.Tx, items []*types.BlockAttestation) error {
	if len(items) == 0 {
		return nil
	}
	parentID, err := tx.ParentChainID()
	if err != nil {
		return err
	}
	if parentID == 0 {
		return invalid("no parent chain")
	}
	recorded, err := tx.ParentChainHeight()
	if err != nil {
		return err
	}

	h := recorded + 1
	bound := make(map[int64]struct{})
	for _, a := range items {
		if a == nil || a.Kind != types.KindParentChain || a.ChainID != parentID || a.MerkleRoot.IsZero() {
			return invalid("malformed parent chain attestation")
		}
		if a.Height != h {
			return invalid("parent chain height %d, expected %d", a.Height, h)
		}
		for _, p := range a.IndexedMerklePaths {
			if _, dup := bound[p.ChildHeight]; dup {
				return invalid("child height %d bound twice", p.ChildHeight)
			}
			_, exists, err := tx.Binding(p.ChildHeight)
			if err != nil {
				return err
			}
			if exists {
				return invalid("child height %d already bound", p.ChildHeight)
			}
			bound[p.ChildHeight] = struct{}{}
		}
		h++
	}
	return nil
}

// index applies a validated batch: heights, roots, bindings and fees.
func (c *Coordinator) index(tx *state.Tx, call types.CallContext, proposer types.Address, batch *types.CrossChainBlockData) error {
	if len(batch.SideChain) > 0 {
		counts := make(map[types.ChainID]int64)
		var order []types.ChainID
		roots := make([]types.Hash, 0, len(batch.SideChain))
		for _, a := range batch.SideChain {
			if _, ok := counts[a.ChainID]; !ok {
				order = append(order, a.ChainID)
			}
			counts[a.ChainID]++
			tx.PutSideChainHeight(a.ChainID, a.Height)
			roots = append(roots, a.MerkleRoot)
		}

		root, err := merkle.Root(roots)
		if err != nil {
			return err
		}
		tx.PutIndexedSideChainRoot(call.Height, root)

		if err := c.settleFees(tx, proposer, order, counts); err != nil {
			return err
		}
	}

	for _, a := range batch.ParentChain {
		tx.PutParentChainRoot(a.Height, a.MerkleRoot)
		if !a.CrossChainExtraRoot.IsZero() {
			tx.PutCousinRoot(a.Height, a.CrossChainExtraRoot)
		}
		for _, p := range a.IndexedMerklePaths {
			if err := tx.PutBinding(p.ChildHeight, &state.Binding{ParentHeight: a.Height, Path: p.Path}); err != nil {
				return err
			}
		}
		tx.PutParentChainHeight(a.Height)
	}
	return nil
}

// indexingFee returns price*count when balance covers it. The division
// keeps huge prices from overflowing.
func indexingFee(price, count, balance int64) (int64, bool) {
	if price <= 0 || count < 0 || count > balance/price {
		return 0, false
	}
	return price * count, true
}

// settleFees moves IndexingPrice per indexed block from each chain's balance
// to the proposer's ledger.
func (c *Coordinator) settleFees(tx *state.Tx, proposer types.Address, order []types.ChainID, counts map[types.ChainID]int64) error {
	var earned int64
	for _, id := range order {
		info, ok, err := tx.SideChainInfo(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrChainNotFound, id)
		}
		balance, err := tx.IndexingBalance(id)
		if err != nil {
			return err
		}

		fee, ok := indexingFee(info.IndexingPrice, counts[id], balance)
		if !ok {
			return invalid("side chain %s cannot pay %d blocks", id, counts[id])
		}
		balance -= fee
		earned += fee
		tx.PutIndexingBalance(id, balance)

		if balance < info.IndexingPrice {
			info.Status = types.SideChainInsufficientBalance
			if err := tx.PutSideChainInfo(info); err != nil {
				return err
			}
			c.logger.Warn("side chain indexing balance exhausted", "chain_id", id, "balance", balance)
		}
	}

	ledger, err := tx.LedgerBalance(proposer)
	if err != nil {
		return err
	}
	tx.PutLedgerBalance(proposer, ledger+earned)
	return nil
}
