package node

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geanlabs/xchain/crosschain/contract"
	"github.com/geanlabs/xchain/crosschain/indexing"
	"github.com/geanlabs/xchain/governance"
	"github.com/geanlabs/xchain/types"
)

// Approver approves governance proposals. Satisfied by parliament.Parliament.
type Approver interface {
	Approve(ctx context.Context, call types.CallContext, id types.Hash) error
}

// ValidatorDuties handles proposer and approver duties for the local validators.
type ValidatorDuties struct {
	Validators []types.Address
	Coord      *contract.Coordinator
	Gov        Approver
	Validation contract.BatchValidator
	Collector  *indexing.Collector
	Approvals  *indexing.ApprovalCache
	log        *slog.Logger
}

// HasValidators reports whether this node acts for any validator.
func (v *ValidatorDuties) HasValidators() bool {
	return len(v.Validators) > 0
}

// OnBlock executes validator duties for the block call describes. Pending
// proposals are approved before a new one is proposed, so a proposal made
// in this block is approved from the next one.
func (v *ValidatorDuties) OnBlock(ctx context.Context, call types.CallContext) {
	if !v.HasValidators() {
		return
	}
	v.tryApprove(ctx, call)
	v.tryPropose(ctx, call)
}

func (v *ValidatorDuties) tryApprove(ctx context.Context, call types.CallContext) {
	ids := v.Approvals.Proposals()
	if len(ids) == 0 {
		return
	}
	slot, err := v.Coord.GetProposal()
	if err != nil {
		v.log.Error("read indexing proposal failed", "height", call.Height, "err", err)
		return
	}

	for _, id := range ids {
		if slot.Status != types.StatusProposed || slot.ProposalID != id {
			v.Approvals.Remove(id)
			continue
		}
		ok, err := v.Validation.ValidateBatch(ctx, &slot.Batch, call.BlockHash, call.Height)
		if err != nil {
			// Left cached for the next block.
			v.log.Warn("indexing data validation failed",
				"proposal_id", id.Short(),
				"height", call.Height,
				"err", err,
			)
			continue
		}
		if !ok {
			v.log.Warn("refusing to approve invalid indexing data", "proposal_id", id.Short())
			v.Approvals.Remove(id)
			continue
		}
		v.approveAll(ctx, call, id)
		v.Approvals.Remove(id)
	}
}

// approveAll approves id as every local validator until governance releases
// or drops it.
func (v *ValidatorDuties) approveAll(ctx context.Context, call types.CallContext, id types.Hash) {
	for _, addr := range v.Validators {
		c := call
		c.Sender = addr
		err := v.Gov.Approve(ctx, c, id)
		switch {
		case err == nil:
			v.log.Debug("approved indexing proposal", "proposal_id", id.Short(), "validator", addr)
		case errors.Is(err, governance.ErrAlreadyApproved):
		case errors.Is(err, governance.ErrProposalNotFound),
			errors.Is(err, governance.ErrProposalExpired):
			return
		case errors.Is(err, contract.ErrValidationFailure):
			v.log.Warn("released indexing data failed validation",
				"proposal_id", id.Short(),
				"validator", addr,
				"err", err,
			)
			return
		default:
			v.log.Error("approve failed",
				"proposal_id", id.Short(),
				"validator", addr,
				"err", err,
			)
		}
	}
}

func (v *ValidatorDuties) tryPropose(ctx context.Context, call types.CallContext) {
	slot, err := v.Coord.GetProposal()
	if err != nil {
		v.log.Error("read indexing proposal failed", "height", call.Height, "err", err)
		return
	}
	if slot.Status != types.StatusNonProposed {
		return
	}
	batch, err := v.Collector.Next(ctx, call.BlockHash, call.Height)
	if err != nil {
		v.log.Error("collect indexing data failed", "height", call.Height, "err", err)
		return
	}
	if batch.IsEmpty() {
		return
	}

	// Rotate the proposer by height, skipping banned validators.
	n := len(v.Validators)
	start := int(call.Height % int64(n))
	for i := 0; i < n; i++ {
		c := call
		c.Sender = v.Validators[(start+i)%n]
		id, err := v.Coord.Propose(ctx, c, batch)
		if errors.Is(err, contract.ErrBanned) {
			v.log.Debug("proposer banned", "validator", c.Sender, "height", call.Height)
			continue
		}
		if err != nil {
			v.log.Error("indexing proposal failed",
				"height", call.Height,
				"proposer", c.Sender,
				"err", err,
			)
			return
		}
		v.log.Info("proposed indexing data",
			"height", call.Height,
			"proposer", c.Sender,
			"proposal_id", id.Short(),
		)
		return
	}
}
