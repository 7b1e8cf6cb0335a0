package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/geanlabs/xchain/clock"
	"github.com/geanlabs/xchain/common/merkle"
	"github.com/geanlabs/xchain/crosschain"
	"github.com/geanlabs/xchain/crosschain/contract"
	"github.com/geanlabs/xchain/governance"
	"github.com/geanlabs/xchain/internal/genesis"
	"github.com/geanlabs/xchain/storage/memory"
	"github.com/geanlabs/xchain/types"
)

const (
	selfChain   types.ChainID = 500
	parentChain types.ChainID = 400
	sideChain   types.ChainID = 600
	genesisTime               = 1700000000

	// unanimous is a release threshold every validator must approve.
	unanimous = 10000
)

var (
	validatorA = types.AddressFromHash(types.HashFromString("validator-a"))
	validatorB = types.AddressFromHash(types.HashFromString("validator-b"))
	creator    = types.AddressFromHash(types.HashFromString("creator"))
)

func testGenesis(threshold int64, validators ...types.Address) *genesis.GenesisConfig {
	return &genesis.GenesisConfig{
		GenesisTime:      genesisTime,
		BlockInterval:    4,
		ChainID:          selfChain,
		ParentChainID:    parentChain,
		ReleaseThreshold: threshold,
		Validators:       governance.StaticValidators(validators),
		SideChains: []genesis.SideChain{{
			ChainID:           sideChain,
			Proposer:          creator,
			IndexingPrice:     2,
			LockedTokenAmount: 100,
		}},
		Policy: crosschain.DefaultPolicy(),
	}
}

// newTestNode builds a node without networking whose clock sits at genesis.
func newTestNode(t *testing.T, gen *genesis.GenesisConfig, local ...types.Address) *Node {
	t.Helper()
	clk := clock.NewWithTimeFunc(gen.GenesisTime, gen.BlockInterval, func() time.Time {
		return time.Unix(int64(gen.GenesisTime), 0)
	})
	n, err := newNode(context.Background(), &Config{
		Genesis:    gen,
		Validators: local,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, memory.New(), clk)
	if err != nil {
		t.Fatalf("newNode() error = %v", err)
	}
	t.Cleanup(n.cancel)
	return n
}

// feedChains submits side chain and parent chain attestations for heights [1, to].
func feedChains(t *testing.T, n *Node, to int64) {
	t.Helper()
	for h := int64(1); h <= to; h++ {
		side := types.NewSideChainAttestation(sideChain, h,
			types.HashFromString(fmt.Sprintf("side-header-%d", h)),
			types.HashFromString(fmt.Sprintf("side-root-%d", h)))
		if !n.feed.Submit(sideChain, side) {
			t.Fatalf("side chain attestation %d rejected", h)
		}
		parent := types.NewParentChainAttestation(parentChain, h,
			types.HashFromString(fmt.Sprintf("parent-header-%d", h)),
			types.HashFromString(fmt.Sprintf("parent-root-%d", h)),
			types.Hash{}, nil)
		if !n.feed.Submit(parentChain, parent) {
			t.Fatalf("parent chain attestation %d rejected", h)
		}
	}
}

func proposal(t *testing.T, n *Node) *types.IndexingProposal {
	t.Helper()
	p, err := n.Coordinator().GetProposal()
	if err != nil {
		t.Fatalf("GetProposal() error = %v", err)
	}
	return p
}

func TestNode_ProposesThenRecords(t *testing.T) {
	n := newTestNode(t, testGenesis(5000, validatorA), validatorA)
	feedChains(t, n, 12)
	ctx := context.Background()

	n.OnBlock(ctx, 1)
	p := proposal(t, n)
	if p.Status != types.StatusProposed {
		t.Fatalf("status after block 1 = %s, want Proposed", p.Status)
	}
	// Heights 1..4 have DefaultBlockCacheEntityCount successors cached.
	if len(p.Batch.SideChain) != 4 || len(p.Batch.ParentChain) != 4 {
		t.Fatalf("batch = %d side, %d parent; want 4, 4", len(p.Batch.SideChain), len(p.Batch.ParentChain))
	}
	if p.Proposer != validatorA {
		t.Errorf("proposer = %s, want %s", p.Proposer, validatorA)
	}

	n.OnBlock(ctx, 2)
	if p := proposal(t, n); p.Status != types.StatusNonProposed {
		t.Fatalf("status after block 2 = %s, want NonProposed", p.Status)
	}
	coord := n.Coordinator()
	if h, err := coord.GetSideChainHeight(sideChain); err != nil || h != 4 {
		t.Errorf("side chain height = %d, %v; want 4", h, err)
	}
	if h, err := coord.GetParentChainHeight(); err != nil || h != 4 {
		t.Errorf("parent chain height = %d, %v; want 4", h, err)
	}
	if b, _ := coord.GetIndexingBalance(sideChain); b != 92 {
		t.Errorf("indexing balance = %d, want 92", b)
	}
	if b, _ := coord.GetLedgerBalance(validatorA); b != 8 {
		t.Errorf("proposer ledger = %d, want 8", b)
	}

	// Recorded heights are trimmed from the cache.
	if got := n.Cache().Range(sideChain, 1, 64); len(got) != 8 || got[0].Height != 5 {
		t.Errorf("side chain cache after record = %d entries", len(got))
	}
}

func TestNode_PublishesLocalAttestations(t *testing.T) {
	n := newTestNode(t, testGenesis(5000, validatorA))
	ctx := context.Background()
	for h := int64(1); h <= 3; h++ {
		n.OnBlock(ctx, h)
	}

	got := n.Cache().Range(selfChain, 1, 64)
	if len(got) != 3 {
		t.Fatalf("local attestations = %d, want 3", len(got))
	}
	for i, a := range got {
		want := int64(i + 1)
		if a.Height != want || a.BlockHeaderHash != LocalBlockHash(selfChain, want) {
			t.Errorf("attestation %d = height %d header %s", i, a.Height, a.BlockHeaderHash.Short())
		}
	}
	if n.lastHeight != 3 {
		t.Errorf("lastHeight = %d, want 3", n.lastHeight)
	}
}

func TestNode_ObserverDoesNotPropose(t *testing.T) {
	n := newTestNode(t, testGenesis(5000, validatorA))
	feedChains(t, n, 12)

	n.OnBlock(context.Background(), 1)
	if p := proposal(t, n); p.Status != types.StatusNonProposed {
		t.Fatalf("observer proposed: status = %s", p.Status)
	}
}

func TestNode_ExpiredProposalClearedAndReproposed(t *testing.T) {
	// Both validators must approve; this node only acts for one.
	n := newTestNode(t, testGenesis(unanimous, validatorA, validatorB), validatorA)
	feedChains(t, n, 12)
	ctx := context.Background()

	n.OnBlock(ctx, 1)
	first := proposal(t, n)
	if first.Status != types.StatusProposed {
		t.Fatalf("status after block 1 = %s, want Proposed", first.Status)
	}

	n.OnBlock(ctx, 2)
	if p := proposal(t, n); p.Status != types.StatusProposed || p.ProposalID != first.ProposalID {
		t.Fatalf("below threshold proposal changed: %s %s", p.Status, p.ProposalID.Short())
	}
	if ids := n.duties.Approvals.Proposals(); len(ids) != 0 {
		t.Errorf("approval cache = %d entries, want 0 after approving", len(ids))
	}

	// Block 31 is the first at or after the 120s expiry of a block 1 proposal.
	expiredAt := int64(crosschain.IndexingProposalExpiry/(4*time.Second)) + 1
	n.OnBlock(ctx, expiredAt)
	p := proposal(t, n)
	if p.Status != types.StatusProposed || p.ProposalID == first.ProposalID {
		t.Fatalf("after expiry: status %s, id %s; want a new proposal", p.Status, p.ProposalID.Short())
	}
	if p.Version != first.Version+2 {
		t.Errorf("version = %d, want %d", p.Version, first.Version+2)
	}
}

func TestFeed_ChecksKindPerChain(t *testing.T) {
	n := newTestNode(t, testGenesis(5000, validatorA))
	header, root := types.HashFromString("h"), types.HashFromString("r")

	tests := []struct {
		name    string
		chainID types.ChainID
		a       *types.BlockAttestation
		want    bool
	}{
		{"nil", sideChain, nil, false},
		{"side kind from parent", parentChain, types.NewSideChainAttestation(parentChain, 1, header, root), false},
		{"parent kind from side chain", sideChain, types.NewParentChainAttestation(sideChain, 1, header, root, types.Hash{}, nil), false},
		{"parent kind from parent", parentChain, types.NewParentChainAttestation(parentChain, 1, header, root, types.Hash{}, nil), true},
		{"side kind from side chain", sideChain, types.NewSideChainAttestation(sideChain, 1, header, root), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.feed.Submit(tt.chainID, tt.a); got != tt.want {
				t.Errorf("Submit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalAttestation_ProvesBlockTransaction(t *testing.T) {
	hash := LocalBlockHash(selfChain, 7)
	a, err := LocalAttestation(selfChain, 7, hash)
	if err != nil {
		t.Fatalf("LocalAttestation() error = %v", err)
	}
	if a.Kind != types.KindSideChain || a.ChainID != selfChain || a.Height != 7 {
		t.Fatalf("attestation = %+v", a)
	}

	tree, err := merkle.Build([]types.Hash{contract.TransactionLeaf(hash)})
	if err != nil {
		t.Fatal(err)
	}
	path, err := tree.GenerateMerklePath(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := path.ComputeRootWithLeafNode(contract.TransactionLeaf(hash)); got != a.MerkleRoot {
		t.Errorf("path root = %s, want %s", got.Short(), a.MerkleRoot.Short())
	}
	if LocalBlockHash(selfChain, 7) == LocalBlockHash(selfChain+1, 7) {
		t.Error("block hash must depend on the chain id")
	}
}

func TestNew_RequiresGenesis(t *testing.T) {
	if _, err := New(context.Background(), &Config{InMemory: true}); !errors.Is(err, ErrNoGenesis) {
		t.Fatalf("New() error = %v, want ErrNoGenesis", err)
	}
}

func TestNew_StartStopInMemory(t *testing.T) {
	n, err := New(context.Background(), &Config{
		Genesis:     testGenesis(5000, validatorA),
		Validators:  []types.Address{validatorA},
		InMemory:    true,
		ListenAddrs: []string{"/ip4/127.0.0.1/tcp/0"},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	n.Start()
	if n.PeerCount() != 0 {
		t.Errorf("PeerCount() = %d, want 0", n.PeerCount())
	}
	n.Stop()
}
