package contract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/geanlabs/xchain/common/merkle"
	"github.com/geanlabs/xchain/crosschain"
	"github.com/geanlabs/xchain/crosschain/cache"
	"github.com/geanlabs/xchain/crosschain/indexing"
	"github.com/geanlabs/xchain/crosschain/state"
	"github.com/geanlabs/xchain/governance"
	"github.com/geanlabs/xchain/governance/parliament"
	"github.com/geanlabs/xchain/storage/memory"
	"github.com/geanlabs/xchain/types"
)

const (
	selfChain   types.ChainID = 500
	parentChain types.ChainID = 400
	sideChain   types.ChainID = 600
	cousinChain types.ChainID = 700
)

var (
	genesisTime = time.Unix(1700000000, 0)
	creator     = types.Address{0xc0}
	outsider    = types.Address{0xee}
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventName()
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type env struct {
	t          *testing.T
	registry   *cache.Registry
	parliament *parliament.Parliament
	coord      *Coordinator
	events     *recorder
	validators governance.StaticValidators
	org        types.Address
}

func newEnv(t *testing.T, policy crosschain.Policy) *env {
	t.Helper()
	return newEnvWithChain(t, policy, InitialSideChain{
		Info: types.SideChainInfo{
			ChainID:       sideChain,
			Proposer:      creator,
			Status:        types.SideChainActive,
			IndexingPrice: 2,
		},
		Balance: 100,
	})
}

func newEnvWithChain(t *testing.T, policy crosschain.Policy, side InitialSideChain) *env {
	t.Helper()
	vs := governance.StaticValidators{{1}, {2}, {3}}
	st := state.New(memory.New())
	registry := cache.NewRegistry(nil)
	validator := indexing.NewValidationService(indexing.ValidationConfig{Cache: registry, State: st})
	parl := parliament.New(parliament.Config{Validators: vs})
	org, err := parl.CreateOrganization(5000)
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}

	e := &env{
		t:          t,
		registry:   registry,
		parliament: parl,
		events:     &recorder{},
		validators: vs,
		org:        org,
	}
	e.coord = New(Config{
		ChainID:      selfChain,
		State:        st,
		Validator:    validator,
		Governance:   parl,
		Validators:   vs,
		Organization: org,
		Policy:       policy,
		Events:       e.events,
	})
	parl.SetTarget(e.coord)

	err = e.coord.Initialize(InitialState{
		ParentChainID: parentChain,
		SideChains:    []InitialSideChain{side},
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return e
}

func (e *env) call(sender types.Address, height int64) types.CallContext {
	return types.CallContext{
		Sender:    sender,
		Height:    height,
		Time:      genesisTime.Add(time.Duration(height) * 4 * time.Second),
		BlockHash: types.HashFromString(fmt.Sprintf("block-%d", height)),
	}
}

// at checkpoints block height and returns a call from sender in it.
func (e *env) at(sender types.Address, height int64) types.CallContext {
	e.t.Helper()
	call := e.call(sender, height)
	if err := e.coord.Checkpoint(call); err != nil {
		e.t.Fatalf("Checkpoint(%d) error = %v", height, err)
	}
	return call
}

func sideAtt(h int64) *types.BlockAttestation {
	return types.NewSideChainAttestation(sideChain, h,
		types.HashFromString(fmt.Sprintf("sh-%d", h)), types.HashFromString(fmt.Sprintf("sr-%d", h)))
}

func parentAtt(h int64, paths ...types.IndexedMerklePath) *types.BlockAttestation {
	return types.NewParentChainAttestation(parentChain, h,
		types.HashFromString(fmt.Sprintf("ph-%d", h)), types.HashFromString(fmt.Sprintf("pr-%d", h)),
		types.HashFromString(fmt.Sprintf("px-%d", h)), paths)
}

func (e *env) cache(as ...*types.BlockAttestation) []*types.BlockAttestation {
	e.t.Helper()
	for _, a := range as {
		if !e.registry.TryAdd(a) {
			e.t.Fatalf("TryAdd(chain %d, height %d) rejected", a.ChainID, a.Height)
		}
	}
	return as
}

// approve collects enough approvals to reach the threshold at height.
func (e *env) approve(id types.Hash, height int64) error {
	e.t.Helper()
	if err := e.parliament.Approve(context.Background(), e.at(e.validators[0], height), id); err != nil {
		e.t.Fatalf("first Approve() error = %v", err)
	}
	return e.parliament.Approve(context.Background(), e.at(e.validators[1], height), id)
}

func (e *env) slot() *types.IndexingProposal {
	e.t.Helper()
	p, err := e.coord.GetProposal()
	if err != nil {
		e.t.Fatalf("GetProposal() error = %v", err)
	}
	return p
}

func TestIndexingCycle(t *testing.T) {
	e := newEnv(t, crosschain.DefaultPolicy())
	ctx := context.Background()
	proposer := e.validators[2]

	bindPath := types.MerklePath{Nodes: []types.MerklePathNode{{Hash: types.Hash{0xbb}, IsLeftSibling: true}}}
	batch := &types.CrossChainBlockData{
		SideChain:   e.cache(sideAtt(1), sideAtt(2), sideAtt(3)),
		ParentChain: e.cache(parentAtt(1, types.IndexedMerklePath{ChildHeight: 7, Path: bindPath}), parentAtt(2)),
	}

	id, err := e.coord.Propose(ctx, e.at(proposer, 10), batch)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if s := e.slot(); s.Status != types.StatusProposed || s.ProposalID != id || s.Proposer != proposer {
		t.Fatalf("slot after Propose = %+v", s)
	}
	if names := e.events.names(); len(names) != 2 || names[0] != "ProposalCreated" || names[1] != "IndexingDataProposed" {
		t.Fatalf("events after Propose = %v", names)
	}

	if err := e.approve(id, 11); err != nil {
		t.Fatalf("approve() error = %v", err)
	}

	slot := e.slot()
	if slot.Status != types.StatusNonProposed || !slot.Batch.IsEmpty() {
		t.Fatalf("slot after record = %+v", slot)
	}
	if slot.Version != 3 {
		t.Errorf("slot version = %d, want 3", slot.Version)
	}
	if ev, ok := e.events.last().(CrossChainIndexed); !ok || ev.Height != 11 || ev.SideChainCount != 3 || ev.ParentChainCount != 2 {
		t.Errorf("last event = %+v", e.events.last())
	}

	if h, _ := e.coord.GetSideChainHeight(sideChain); h != 3 {
		t.Errorf("side chain height = %d, want 3", h)
	}
	if h, _ := e.coord.GetParentChainHeight(); h != 2 {
		t.Errorf("parent chain height = %d, want 2", h)
	}
	if b, _ := e.coord.GetIndexingBalance(sideChain); b != 94 {
		t.Errorf("indexing balance = %d, want 94", b)
	}
	if l, _ := e.coord.GetLedgerBalance(proposer); l != 6 {
		t.Errorf("proposer ledger = %d, want 6", l)
	}

	binding, ok, err := e.coord.GetBoundParentChainHeightAndMerklePath(7)
	if err != nil || !ok || binding.ParentHeight != 1 || !binding.Path.Equal(&bindPath) {
		t.Errorf("binding for child 7 = %+v, %v, %v", binding, ok, err)
	}
	if root, ok, _ := e.coord.GetMerkleRoot(parentChain, 2); !ok || root != parentAtt(2).MerkleRoot {
		t.Errorf("parent root at 2 = %v, %v", root, ok)
	}

	// The snapshot of the recording block holds the new heights.
	view, err := e.coord.state.StateAt(e.call(types.Address{}, 11).BlockHash, 11)
	if err != nil {
		t.Fatalf("StateAt(11) error = %v", err)
	}
	if view.SideChainHeight(sideChain) != 3 || view.ParentChainHeight != 2 {
		t.Errorf("snapshot at 11 = %+v", view)
	}
}

func TestPropose_Rejections(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		sender  types.Address
		batch   func() *types.CrossChainBlockData
		wantErr error
	}{
		{
			name:    "not a validator",
			sender:  outsider,
			batch:   func() *types.CrossChainBlockData { return &types.CrossChainBlockData{SideChain: []*types.BlockAttestation{sideAtt(1)}} },
			wantErr: ErrNotValidator,
		},
		{
			name:    "empty batch",
			sender:  types.Address{1},
			batch:   func() *types.CrossChainBlockData { return &types.CrossChainBlockData{} },
			wantErr: ErrValidationFailure,
		},
		{
			name:    "side chain gap",
			sender:  types.Address{1},
			batch:   func() *types.CrossChainBlockData { return &types.CrossChainBlockData{SideChain: []*types.BlockAttestation{sideAtt(2)}} },
			wantErr: ErrValidationFailure,
		},
		{
			name:   "unknown side chain",
			sender: types.Address{1},
			batch: func() *types.CrossChainBlockData {
				a := types.NewSideChainAttestation(cousinChain, 1, types.Hash{1}, types.Hash{2})
				return &types.CrossChainBlockData{SideChain: []*types.BlockAttestation{a}}
			},
			wantErr: ErrValidationFailure,
		},
		{
			name:   "parent chain id mismatch",
			sender: types.Address{1},
			batch: func() *types.CrossChainBlockData {
				a := parentAtt(1)
				a.ChainID = cousinChain
				return &types.CrossChainBlockData{ParentChain: []*types.BlockAttestation{a}}
			},
			wantErr: ErrValidationFailure,
		},
		{
			name:   "child height bound twice",
			sender: types.Address{1},
			batch: func() *types.CrossChainBlockData {
				return &types.CrossChainBlockData{ParentChain: []*types.BlockAttestation{
					parentAtt(1, types.IndexedMerklePath{ChildHeight: 4}),
					parentAtt(2, types.IndexedMerklePath{ChildHeight: 4}),
				}}
			},
			wantErr: ErrValidationFailure,
		},
		{
			name:   "fee exceeds balance",
			sender: types.Address{1},
			batch: func() *types.CrossChainBlockData {
				var items []*types.BlockAttestation
				for h := int64(1); h <= 51; h++ {
					items = append(items, sideAtt(h))
				}
				return &types.CrossChainBlockData{SideChain: items}
			},
			wantErr: ErrValidationFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, crosschain.DefaultPolicy())
			_, err := e.coord.Propose(ctx, e.at(tt.sender, 10), tt.batch())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Propose() error = %v, want %v", err, tt.wantErr)
			}
			if s := e.slot(); s.Status != types.StatusNonProposed || s.Version != 0 {
				t.Errorf("rejected proposal changed the slot: %+v", s)
			}
		})
	}
}

func TestPropose_SlotOccupied(t *testing.T) {
	e := newEnv(t, crosschain.DefaultPolicy())
	ctx := context.Background()
	batch := &types.CrossChainBlockData{SideChain: []*types.BlockAttestation{sideAtt(1)}}

	if _, err := e.coord.Propose(ctx, e.at(types.Address{1}, 10), batch); err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if _, err := e.coord.Propose(ctx, e.at(types.Address{2}, 10), batch); !errors.Is(err, ErrWrongStatus) {
		t.Fatalf("second Propose() error = %v, want ErrWrongStatus", err)
	}
}

func TestRecord_InvalidBatchBansProposer(t *testing.T) {
	tests := []struct {
		name      string
		policy    crosschain.Policy
		wantBan   bool
		proposeAt int64
	}{
		{"ban on invalid record", crosschain.DefaultPolicy(), true, 12},
		{"no ban", crosschain.Policy{}, false, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.policy)
			ctx := context.Background()
			proposer := e.validators[2]

			// Nothing cached: the batch passes contract checks but not validation.
			batch := &types.CrossChainBlockData{SideChain: []*types.BlockAttestation{sideAtt(1)}}
			id, err := e.coord.Propose(ctx, e.at(proposer, 10), batch)
			if err != nil {
				t.Fatalf("Propose() error = %v", err)
			}
			if err := e.approve(id, 11); !errors.Is(err, ErrValidationFailure) {
				t.Fatalf("approve() error = %v, want ErrValidationFailure", err)
			}

			if s := e.slot(); s.Status != types.StatusNonProposed {
				t.Fatalf("slot after invalid record = %s", s.Status)
			}
			if h, _ := e.coord.GetSideChainHeight(sideChain); h != 0 {
				t.Errorf("side chain height = %d, nothing should be indexed", h)
			}
			if b, _ := e.coord.GetIndexingBalance(sideChain); b != 100 {
				t.Errorf("balance = %d, no fee should be charged", b)
			}
			if ev, ok := e.events.last().(ProposalCleared); !ok || ev.Banned != tt.wantBan {
				t.Errorf("last event = %+v", e.events.last())
			}

			_, err = e.coord.Propose(ctx, e.at(proposer, tt.proposeAt), batch)
			if tt.wantBan && !errors.Is(err, ErrBanned) {
				t.Fatalf("Propose() by banned proposer error = %v, want ErrBanned", err)
			}
			if !tt.wantBan && err != nil {
				t.Fatalf("Propose() error = %v", err)
			}
		})
	}
}

func TestRecord_ReadFailureDoesNotBan(t *testing.T) {
	e := newEnv(t, crosschain.DefaultPolicy())
	ctx := context.Background()
	proposer := e.validators[2]
	batch := &types.CrossChainBlockData{SideChain: e.cache(sideAtt(1))}

	id, err := e.coord.Propose(ctx, e.at(proposer, 10), batch)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if err := e.parliament.Approve(ctx, e.at(e.validators[0], 11), id); err != nil {
		t.Fatalf("first Approve() error = %v", err)
	}
	// Block 12 was never checkpointed, so its state cannot be read.
	err = e.parliament.Approve(ctx, e.call(e.validators[1], 12), id)
	if !errors.Is(err, state.ErrSnapshotNotFound) || errors.Is(err, ErrValidationFailure) {
		t.Fatalf("approve() error = %v, want ErrSnapshotNotFound", err)
	}

	if s := e.slot(); s.Status != types.StatusToBeReleased {
		t.Fatalf("slot after read failure = %s, want ToBeReleased", s.Status)
	}
	if h, _ := e.coord.GetSideChainHeight(sideChain); h != 0 {
		t.Errorf("side chain height = %d, nothing should be indexed", h)
	}

	// The released proposal is gone from governance, so the slot can be cleared.
	if err := e.coord.ClearExpired(ctx, e.at(outsider, 13)); err != nil {
		t.Fatalf("ClearExpired() error = %v", err)
	}
	if ev, ok := e.events.last().(ProposalCleared); !ok || ev.Banned {
		t.Errorf("last event = %+v, want unbanned ProposalCleared", e.events.last())
	}
	if _, err := e.coord.Propose(ctx, e.at(proposer, 14), batch); err != nil {
		t.Fatalf("Propose() after read failure error = %v", err)
	}
}

func TestRecord_NilInput(t *testing.T) {
	e := newEnv(t, crosschain.DefaultPolicy())
	ctx := context.Background()
	proposer := e.validators[2]
	batch := &types.CrossChainBlockData{SideChain: e.cache(sideAtt(1))}

	id, err := e.coord.Propose(ctx, e.at(proposer, 10), batch)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	payload, err := (&types.RecordInput{Proposer: proposer, Batch: *batch}).MarshalSSZ()
	if err != nil {
		t.Fatal(err)
	}
	orgCall := e.at(e.org, 11)
	if err := e.coord.markToBeReleased(orgCall, id, payload); err != nil {
		t.Fatalf("markToBeReleased() error = %v", err)
	}

	if err := e.coord.Record(ctx, orgCall, nil); !errors.Is(err, ErrProposalMismatch) {
		t.Fatalf("Record(nil) error = %v, want ErrProposalMismatch", err)
	}
	if s := e.slot(); s.Status != types.StatusToBeReleased {
		t.Errorf("slot after Record(nil) = %s, want ToBeReleased", s.Status)
	}
}

func TestIndexingFee(t *testing.T) {
	huge := int64(math.MaxInt64/2 + 1)
	tests := []struct {
		name                  string
		price, count, balance int64
		want                  int64
		ok                    bool
	}{
		{"covered", 2, 3, 100, 6, true},
		{"exact", 2, 50, 100, 100, true},
		{"short", 2, 51, 100, 0, false},
		{"overflowing product", huge, 2, math.MaxInt64, 0, false},
		{"zero price", 0, 1, 100, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := indexingFee(tt.price, tt.count, tt.balance)
			if got != tt.want || ok != tt.ok {
				t.Errorf("indexingFee(%d, %d, %d) = %d, %v; want %d, %v",
					tt.price, tt.count, tt.balance, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPropose_HugePriceCannotOverflowFee(t *testing.T) {
	huge := int64(math.MaxInt64/2 + 1)
	e := newEnvWithChain(t, crosschain.DefaultPolicy(), InitialSideChain{
		Info: types.SideChainInfo{
			ChainID:       sideChain,
			Proposer:      creator,
			Status:        types.SideChainActive,
			IndexingPrice: huge,
		},
		Balance: math.MaxInt64,
	})
	ctx := context.Background()
	proposer := e.validators[2]

	// huge*2 wraps negative; the balance only covers one block.
	batch := &types.CrossChainBlockData{SideChain: e.cache(sideAtt(1), sideAtt(2))}
	if _, err := e.coord.Propose(ctx, e.at(proposer, 10), batch); !errors.Is(err, ErrValidationFailure) {
		t.Fatalf("Propose() of two blocks error = %v, want ErrValidationFailure", err)
	}

	one := &types.CrossChainBlockData{SideChain: batch.SideChain[:1]}
	id, err := e.coord.Propose(ctx, e.at(proposer, 10), one)
	if err != nil {
		t.Fatalf("Propose() of one block error = %v", err)
	}
	if err := e.approve(id, 11); err != nil {
		t.Fatalf("approve() error = %v", err)
	}
	if b, _ := e.coord.GetIndexingBalance(sideChain); b != math.MaxInt64-huge {
		t.Errorf("indexing balance = %d, want %d", b, int64(math.MaxInt64)-huge)
	}
	if l, _ := e.coord.GetLedgerBalance(proposer); l != huge {
		t.Errorf("proposer ledger = %d, want %d", l, huge)
	}
}

func TestBan_LiftedAfterInterval(t *testing.T) {
	e := newEnv(t, crosschain.DefaultPolicy())
	ctx := context.Background()
	proposer := e.validators[0]
	batch := &types.CrossChainBlockData{SideChain: []*types.BlockAttestation{sideAtt(1)}}

	if err := e.coord.Ban(proposer, 100); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}
	lastBanned := 100 + crosschain.BannedBlockHeightInterval - 1
	if _, err := e.coord.Propose(ctx, e.at(proposer, lastBanned), batch); !errors.Is(err, ErrBanned) {
		t.Fatalf("Propose() at %d error = %v, want ErrBanned", lastBanned, err)
	}
	if _, err := e.coord.Propose(ctx, e.at(proposer, lastBanned+1), batch); err != nil {
		t.Fatalf("Propose() after ban interval error = %v", err)
	}

	err := e.coord.read(func(tx *state.Tx) error {
		if _, ok, err := tx.BannedAt(proposer); err != nil || ok {
			return fmt.Errorf("ban record still present: %v, %v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReleaseApproved_Checks(t *testing.T) {
	e := newEnv(t, crosschain.DefaultPolicy())
	ctx := context.Background()
	proposer := e.validators[2]
	batch := &types.CrossChainBlockData{SideChain: e.cache(sideAtt(1))}

	id, err := e.coord.Propose(ctx, e.at(proposer, 10), batch)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	good, _ := (&types.RecordInput{Proposer: proposer, Batch: *batch}).MarshalSSZ()
	forged, _ := (&types.RecordInput{Proposer: outsider, Batch: *batch}).MarshalSSZ()
	orgCall := e.at(e.org, 11)

	if err := e.coord.ReleaseApproved(ctx, e.at(proposer, 11), id, good); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-organization sender error = %v", err)
	}
	if err := e.coord.ReleaseApproved(ctx, orgCall, types.Hash{9}, good); !errors.Is(err, ErrProposalMismatch) {
		t.Errorf("wrong id error = %v", err)
	}
	if err := e.coord.ReleaseApproved(ctx, orgCall, id, forged); !errors.Is(err, ErrProposalMismatch) {
		t.Errorf("forged payload error = %v", err)
	}
	if err := e.coord.ReleaseApproved(ctx, orgCall, id, []byte{1, 2}); !errors.Is(err, ErrProposalMismatch) {
		t.Errorf("garbage payload error = %v", err)
	}
	if s := e.slot(); s.Status != types.StatusProposed {
		t.Fatalf("failed releases changed the slot: %s", s.Status)
	}

	// Record is only accepted from governance in ToBeReleased.
	input := &types.RecordInput{Proposer: proposer, Batch: *batch}
	if err := e.coord.Record(ctx, orgCall, input); !errors.Is(err, ErrWrongStatus) {
		t.Errorf("Record() in Proposed error = %v, want ErrWrongStatus", err)
	}
	if err := e.coord.Record(ctx, e.at(proposer, 11), input); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Record() from proposer error = %v, want ErrUnauthorized", err)
	}
}

func TestClearExpired(t *testing.T) {
	tests := []struct {
		name    string
		policy  crosschain.Policy
		wantBan bool
	}{
		{"default policy", crosschain.DefaultPolicy(), false},
		{"ban on expiry", crosschain.Policy{BanOnExpiry: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.policy)
			ctx := context.Background()
			proposer := e.validators[0]

			if err := e.coord.ClearExpired(ctx, e.call(outsider, 10)); !errors.Is(err, ErrNoPendingProposal) {
				t.Fatalf("ClearExpired() on free slot error = %v", err)
			}

			batch := &types.CrossChainBlockData{SideChain: []*types.BlockAttestation{sideAtt(1)}}
			id, err := e.coord.Propose(ctx, e.at(proposer, 10), batch)
			if err != nil {
				t.Fatalf("Propose() error = %v", err)
			}
			if err := e.coord.ClearExpired(ctx, e.call(outsider, 20)); !errors.Is(err, ErrNotExpired) {
				t.Fatalf("ClearExpired() before expiry error = %v", err)
			}

			// Proposed at t=40s, expires 120s later.
			if err := e.coord.ClearExpired(ctx, e.call(outsider, 40)); err != nil {
				t.Fatalf("ClearExpired() error = %v", err)
			}
			if s := e.slot(); s.Status != types.StatusNonProposed {
				t.Fatalf("slot = %s, want NonProposed", s.Status)
			}
			ev, ok := e.events.last().(ProposalCleared)
			if !ok || ev.ProposalID != id || ev.Banned != tt.wantBan {
				t.Errorf("last event = %+v", e.events.last())
			}

			_, err = e.coord.Propose(ctx, e.at(proposer, 41), batch)
			if tt.wantBan != errors.Is(err, ErrBanned) {
				t.Errorf("Propose() after clear error = %v, banned = %v", err, tt.wantBan)
			}
		})
	}
}

func TestFees_InsufficientBalanceAndRecharge(t *testing.T) {
	e := newEnv(t, crosschain.DefaultPolicy())
	ctx := context.Background()

	// Three blocks at price 2 leave 1 of 7.
	tx := e.coord.state.Begin()
	tx.PutIndexingBalance(sideChain, 7)
	if err := tx.Commit(); err != nil {
		t.Fatalf("set balance: %v", err)
	}

	batch := &types.CrossChainBlockData{SideChain: e.cache(sideAtt(1), sideAtt(2), sideAtt(3))}
	id, err := e.coord.Propose(ctx, e.at(e.validators[0], 10), batch)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if err := e.approve(id, 11); err != nil {
		t.Fatalf("approve() error = %v", err)
	}

	info, err := e.coord.GetSideChainInfo(sideChain)
	if err != nil {
		t.Fatalf("GetSideChainInfo() error = %v", err)
	}
	if info.Status != types.SideChainInsufficientBalance {
		t.Fatalf("status = %s, want InsufficientBalance", info.Status)
	}
	if active, _ := e.coord.ActiveSideChains(); len(active) != 0 {
		t.Fatalf("ActiveSideChains() = %v, want none", active)
	}
	if _, err := e.coord.Propose(ctx, e.at(e.validators[0], 12), &types.CrossChainBlockData{SideChain: []*types.BlockAttestation{sideAtt(4)}}); !errors.Is(err, ErrValidationFailure) {
		t.Fatalf("Propose() for exhausted chain error = %v", err)
	}

	if err := e.coord.Recharge(e.call(outsider, 13), sideChain, 5); err != nil {
		t.Fatalf("Recharge() error = %v", err)
	}
	if info, _ := e.coord.GetSideChainInfo(sideChain); info.Status != types.SideChainActive {
		t.Fatalf("status after recharge = %s, want Active", info.Status)
	}
	if b, _ := e.coord.GetIndexingBalance(sideChain); b != 6 {
		t.Fatalf("balance after recharge = %d, want 6", b)
	}
}

func TestSideChainLifecycle(t *testing.T) {
	e := newEnv(t, crosschain.DefaultPolicy())
	ctx := context.Background()
	requester := types.Address{0xaa}
	req := types.SideChainCreationRequest{IndexingPrice: 3, LockedTokenAmount: 30}

	if _, err := e.coord.RequestSideChainCreation(ctx, e.call(requester, 5), types.SideChainCreationRequest{IndexingPrice: 0, LockedTokenAmount: 10}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("invalid request error = %v", err)
	}
	id, err := e.coord.RequestSideChainCreation(ctx, e.call(requester, 5), req)
	if err != nil {
		t.Fatalf("RequestSideChainCreation() error = %v", err)
	}
	if _, err := e.coord.RequestSideChainCreation(ctx, e.call(requester, 6), req); !errors.Is(err, ErrCreationPending) {
		t.Fatalf("duplicate request error = %v", err)
	}
	if err := e.coord.ReleaseSideChainCreation(ctx, e.call(requester, 6), id); !errors.Is(err, governance.ErrNotApproved) {
		t.Fatalf("release before approval error = %v", err)
	}

	if err := e.approve(id, 7); err != nil {
		t.Fatalf("approve() error = %v", err)
	}
	if err := e.coord.ReleaseSideChainCreation(ctx, e.call(outsider, 8), id); !errors.Is(err, ErrNoPendingCreation) {
		t.Fatalf("release by another sender error = %v", err)
	}
	if err := e.coord.ReleaseSideChainCreation(ctx, e.call(requester, 8), id); err != nil {
		t.Fatalf("ReleaseSideChainCreation() error = %v", err)
	}

	created, ok := e.events.last().(ChainCreated)
	if !ok || created.Creator != requester {
		t.Fatalf("last event = %+v", e.events.last())
	}
	info, err := e.coord.GetSideChainInfo(created.ChainID)
	if err != nil {
		t.Fatalf("GetSideChainInfo() error = %v", err)
	}
	if info.Status != types.SideChainActive || info.IndexingPrice != 3 || info.CreationHeight != 8 {
		t.Errorf("created chain = %+v", info)
	}
	if b, _ := e.coord.GetIndexingBalance(created.ChainID); b != 30 {
		t.Errorf("balance = %d, want 30", b)
	}
	if active, _ := e.coord.ActiveSideChains(); len(active) != 2 {
		t.Errorf("ActiveSideChains() = %v, want 2 chains", active)
	}

	if _, err := e.coord.CreateSideChain(e.call(requester, 9), req); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("direct CreateSideChain() error = %v", err)
	}

	if err := e.coord.Execute(ctx, e.call(e.org, 9), MethodDisposeSideChain, EncodeChainID(created.ChainID)); err != nil {
		t.Fatalf("dispose error = %v", err)
	}
	if info, _ := e.coord.GetSideChainInfo(created.ChainID); info.Status != types.SideChainTerminated {
		t.Errorf("status after dispose = %s", info.Status)
	}
	if l, _ := e.coord.GetLedgerBalance(requester); l != 30 {
		t.Errorf("refund = %d, want 30", l)
	}
	if err := e.coord.Recharge(e.call(requester, 10), created.ChainID, 5); !errors.Is(err, ErrChainTerminated) {
		t.Errorf("recharge terminated chain error = %v", err)
	}
	if err := e.coord.Execute(ctx, e.call(e.org, 10), "Nope", nil); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("unknown method error = %v", err)
	}
}

func leaves(prefix string, n int) []types.Hash {
	out := make([]types.Hash, n)
	for i := range out {
		out[i] = TransactionLeaf(types.HashFromString(fmt.Sprintf("%s-%d", prefix, i)))
	}
	return out
}

func mustTree(t *testing.T, hs []types.Hash) *merkle.Tree {
	t.Helper()
	tree, err := merkle.Build(hs)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return tree
}

func mustPath(t *testing.T, tree *merkle.Tree, i int) *types.MerklePath {
	t.Helper()
	p, err := tree.GenerateMerklePath(i)
	if err != nil {
		t.Fatalf("GenerateMerklePath(%d) error = %v", i, err)
	}
	return p
}

func TestVerifyTransaction(t *testing.T) {
	e := newEnv(t, crosschain.DefaultPolicy())
	ctx := context.Background()

	parentTree := mustTree(t, leaves("ptx", 4))
	cousinTree := mustTree(t, leaves("ctx", 3))
	sideTree := mustTree(t, leaves("stx", 5))

	pa := types.NewParentChainAttestation(parentChain, 1, types.Hash{1}, parentTree.Root(), cousinTree.Root(), nil)
	sa1 := types.NewSideChainAttestation(sideChain, 1, types.Hash{2}, sideTree.Root())
	sa2 := sideAtt(2)
	batch := &types.CrossChainBlockData{
		SideChain:   e.cache(sa1, sa2),
		ParentChain: e.cache(pa),
	}

	id, err := e.coord.Propose(ctx, e.at(e.validators[0], 10), batch)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if err := e.approve(id, 11); err != nil {
		t.Fatalf("approve() error = %v", err)
	}

	// Side-chain proof: transaction into its block root, block root into the
	// tree of side-chain roots indexed at height 11.
	indexedTree := mustTree(t, []types.Hash{sa1.MerkleRoot, sa2.MerkleRoot})
	sidePath := &types.MerklePath{Nodes: append(mustPath(t, sideTree, 3).Nodes, mustPath(t, indexedTree, 0).Nodes...)}

	tests := []struct {
		name    string
		txID    types.Hash
		path    *types.MerklePath
		height  int64
		chainID types.ChainID
		want    bool
	}{
		{"parent chain", types.HashFromString("ptx-2"), mustPath(t, parentTree, 2), 1, parentChain, true},
		{"parent chain wrong tx", types.HashFromString("ptx-1"), mustPath(t, parentTree, 2), 1, parentChain, false},
		{"parent chain unknown height", types.HashFromString("ptx-2"), mustPath(t, parentTree, 2), 2, parentChain, false},
		{"cousin chain", types.HashFromString("ctx-0"), mustPath(t, cousinTree, 0), 1, cousinChain, true},
		{"side chain", types.HashFromString("stx-3"), sidePath, 11, sideChain, true},
		{"side chain wrong height", types.HashFromString("stx-3"), sidePath, 10, sideChain, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.coord.VerifyTransaction(tt.txID, tt.path, tt.height, tt.chainID)
			if err != nil {
				t.Fatalf("VerifyTransaction() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifyTransaction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitialize_OnlyOnce(t *testing.T) {
	e := newEnv(t, crosschain.DefaultPolicy())
	if err := e.coord.Initialize(InitialState{ParentChainID: cousinChain}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if id, _ := e.coord.GetParentChainID(); id != parentChain {
		t.Fatalf("parent chain id = %d, want %d", id, parentChain)
	}
}
