package contract

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/geanlabs/xchain/crosschain"
	"github.com/geanlabs/xchain/crosschain/state"
	"github.com/geanlabs/xchain/governance"
	"github.com/geanlabs/xchain/types"
)

func checkCreationRequest(req *types.SideChainCreationRequest) error {
	if req.IndexingPrice <= 0 || req.LockedTokenAmount <= req.IndexingPrice {
		return fmt.Errorf("%w: price %d, locked %d", ErrInvalidRequest, req.IndexingPrice, req.LockedTokenAmount)
	}
	return nil
}

// RequestSideChainCreation opens a governance proposal to create a side
// chain for the sender. A sender has at most one live request.
func (c *Coordinator) RequestSideChainCreation(ctx context.Context, call types.CallContext, req types.SideChainCreationRequest) (types.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.Proposer = call.Sender
	if err := checkCreationRequest(&req); err != nil {
		return types.Hash{}, err
	}

	tx := c.state.Begin()
	defer tx.Discard()

	pending, ok, err := tx.PendingCreation(call.Sender)
	if err != nil {
		return types.Hash{}, err
	}
	if ok {
		if info, live := c.gov.GetProposal(pending.ProposalID); live && !info.Expired(call.Time) {
			return types.Hash{}, ErrCreationPending
		}
	}

	payload, err := req.MarshalSSZ()
	if err != nil {
		return types.Hash{}, fmt.Errorf("encode creation request: %w", err)
	}
	id, err := c.gov.CreateProposal(ctx, governance.ProposalRequest{
		Organization: c.organization,
		Proposer:     call.Sender,
		Method:       MethodCreateSideChain,
		Payload:      payload,
		Expiry:       call.Time.Add(crosschain.SideChainCreationProposalExpiry),
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("create governance proposal: %w", err)
	}
	if err := tx.PutPendingCreation(call.Sender, &state.PendingCreation{ProposalID: id, Request: req}); err != nil {
		return types.Hash{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.Hash{}, err
	}

	c.events.Emit(ProposalCreated{ProposalID: id})
	return id, nil
}

// ReleaseSideChainCreation asks governance to release the sender's approved
// creation request.
func (c *Coordinator) ReleaseSideChainCreation(ctx context.Context, call types.CallContext, id types.Hash) error {
	var pending *state.PendingCreation
	err := c.read(func(tx *state.Tx) error {
		p, ok, err := tx.PendingCreation(call.Sender)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoPendingCreation
		}
		pending = p
		return nil
	})
	if err != nil {
		return err
	}
	if pending.ProposalID != id {
		return fmt.Errorf("%w: id %s", ErrProposalMismatch, id.Short())
	}
	return c.gov.Release(ctx, call, id)
}

// CreateSideChain registers a side chain. It must be executed by governance.
func (c *Coordinator) CreateSideChain(call types.CallContext, req types.SideChainCreationRequest) (types.ChainID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if call.Sender != c.organization {
		return 0, ErrUnauthorized
	}
	if err := checkCreationRequest(&req); err != nil {
		return 0, err
	}

	tx := c.state.Begin()
	defer tx.Discard()

	serial, err := tx.Serial()
	if err != nil {
		return 0, err
	}
	var id types.ChainID
	for {
		serial++
		id = types.DeriveChainID(c.chainID, serial)
		_, taken, err := tx.SideChainInfo(id)
		if err != nil {
			return 0, err
		}
		if !taken && id != c.chainID {
			break
		}
	}
	tx.PutSerial(serial)

	info := &types.SideChainInfo{
		ChainID:        id,
		Proposer:       req.Proposer,
		Status:         types.SideChainActive,
		IndexingPrice:  req.IndexingPrice,
		CreationHeight: call.Height,
	}
	if err := tx.PutSideChainInfo(info); err != nil {
		return 0, err
	}
	tx.PutIndexingBalance(id, req.LockedTokenAmount)
	tx.PutSideChainHeight(id, 0)
	tx.DeletePendingCreation(req.Proposer)
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	c.logger.Info("side chain created", "chain_id", id, "proposer", req.Proposer, "price", req.IndexingPrice)
	c.events.Emit(ChainCreated{ChainID: id, Creator: req.Proposer})
	return id, nil
}

// Recharge adds amount to a side chain's indexing balance and reactivates a
// chain that ran out of balance once it covers one block again.
func (c *Coordinator) Recharge(call types.CallContext, id types.ChainID, amount int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if amount <= 0 {
		return fmt.Errorf("%w: recharge amount %d", ErrInvalidRequest, amount)
	}
	tx := c.state.Begin()
	defer tx.Discard()

	info, ok, err := tx.SideChainInfo(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrChainNotFound, id)
	}
	if info.Status == types.SideChainTerminated {
		return fmt.Errorf("%w: %s", ErrChainTerminated, id)
	}

	balance, err := tx.IndexingBalance(id)
	if err != nil {
		return err
	}
	if balance > math.MaxInt64-amount {
		return fmt.Errorf("%w: recharge of %d overflows balance %d", ErrInvalidRequest, amount, balance)
	}
	balance += amount
	tx.PutIndexingBalance(id, balance)
	if info.Status == types.SideChainInsufficientBalance && balance >= info.IndexingPrice {
		info.Status = types.SideChainActive
		if err := tx.PutSideChainInfo(info); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.logger.Info("side chain recharged", "chain_id", id, "sender", call.Sender, "balance", balance)
	return nil
}

// DisposeSideChain terminates a side chain and refunds its balance to the
// chain's proposer. It must be executed by governance.
func (c *Coordinator) DisposeSideChain(call types.CallContext, id types.ChainID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if call.Sender != c.organization {
		return ErrUnauthorized
	}
	tx := c.state.Begin()
	defer tx.Discard()

	info, ok, err := tx.SideChainInfo(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrChainNotFound, id)
	}
	if info.Status == types.SideChainTerminated {
		return fmt.Errorf("%w: %s", ErrChainTerminated, id)
	}

	balance, err := tx.IndexingBalance(id)
	if err != nil {
		return err
	}
	if balance > 0 {
		ledger, err := tx.LedgerBalance(info.Proposer)
		if err != nil {
			return err
		}
		tx.PutLedgerBalance(info.Proposer, ledger+balance)
	}
	tx.PutIndexingBalance(id, 0)
	info.Status = types.SideChainTerminated
	if err := tx.PutSideChainInfo(info); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.logger.Info("side chain disposed", "chain_id", id, "refund", balance)
	return nil
}

// EncodeChainID is the payload of a DisposeSideChain proposal.
func EncodeChainID(id types.ChainID) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(id))
}

// Execute runs a released governance proposal.
func (c *Coordinator) Execute(ctx context.Context, call types.CallContext, method string, payload []byte) error {
	switch method {
	case MethodRecordCrossChainData:
		var input types.RecordInput
		if err := input.UnmarshalSSZ(payload); err != nil {
			return fmt.Errorf("decode record input: %w", err)
		}
		return c.Record(ctx, call, &input)
	case MethodCreateSideChain:
		var req types.SideChainCreationRequest
		if err := req.UnmarshalSSZ(payload); err != nil {
			return fmt.Errorf("decode creation request: %w", err)
		}
		_, err := c.CreateSideChain(call, req)
		return err
	case MethodDisposeSideChain:
		if len(payload) != 4 {
			return fmt.Errorf("%w: dispose payload of %d bytes", ErrInvalidRequest, len(payload))
		}
		return c.DisposeSideChain(call, types.ChainID(int32(binary.BigEndian.Uint32(payload))))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}
