// Package node wires the cross-chain indexer: contract state, attestation
// cache, governance, networking and the per-block indexing loop.
package node

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"

	"github.com/geanlabs/xchain/clock"
	"github.com/geanlabs/xchain/common/merkle"
	"github.com/geanlabs/xchain/config"
	"github.com/geanlabs/xchain/crosschain"
	"github.com/geanlabs/xchain/crosschain/cache"
	"github.com/geanlabs/xchain/crosschain/contract"
	"github.com/geanlabs/xchain/crosschain/indexing"
	"github.com/geanlabs/xchain/crosschain/state"
	"github.com/geanlabs/xchain/governance/parliament"
	"github.com/geanlabs/xchain/internal/genesis"
	"github.com/geanlabs/xchain/networking"
	"github.com/geanlabs/xchain/networking/chainsync"
	"github.com/geanlabs/xchain/networking/reqresp"
	"github.com/geanlabs/xchain/observability/metrics"
	"github.com/geanlabs/xchain/storage"
	"github.com/geanlabs/xchain/storage/memory"
	"github.com/geanlabs/xchain/storage/pebble"
	"github.com/geanlabs/xchain/types"
)

// Node errors
var ErrNoGenesis = errors.New("genesis config is required")

type Node struct {
	config *Config
	clock  *clock.BlockClock
	store  storage.Store
	state  *state.State
	cache  *cache.Registry
	feed   *feed
	gov    *parliament.Parliament
	coord  *contract.Coordinator
	duties *ValidatorDuties
	host   host.Host
	net    *networking.Service
	syncer *chainsync.Syncer
	logger *slog.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	height     atomic.Int64 // block being processed
	lastHeight int64
}

type Config struct {
	Genesis *genesis.GenesisConfig
	// Validators are the addresses this node proposes and approves as.
	Validators   []types.Address
	Network      string
	DataDir      string
	InMemory     bool
	ListenAddrs  []string
	NodeKeyPath  string
	Bootnodes    []string
	MetricsAddr  string
	SyncInterval time.Duration
	Logger       *slog.Logger
}

// New creates a node with storage, contract and networking ready to start.
func New(ctx context.Context, cfg *Config) (*Node, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	n, err := newNode(ctx, cfg, store, clock.New(cfg.Genesis.GenesisTime, cfg.Genesis.BlockInterval))
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := n.setupNetworking(); err != nil {
		n.cancel()
		store.Close()
		return nil, err
	}
	return n, nil
}

func openStore(cfg *Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Genesis == nil {
		return nil, ErrNoGenesis
	}
	if cfg.InMemory {
		return memory.New(), nil
	}
	store, err := pebble.Open(filepath.Join(cfg.DataDir, "state"), logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// newNode builds everything except networking.
func newNode(ctx context.Context, cfg *Config, store storage.Store, clk *clock.BlockClock) (*Node, error) {
	if cfg.Genesis == nil {
		return nil, ErrNoGenesis
	}
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gen := cfg.Genesis

	st := state.New(store)
	registry := cache.NewRegistry(logger)
	validation := indexing.NewValidationService(indexing.ValidationConfig{
		Cache:  registry,
		State:  st,
		Logger: logger,
	})
	parl := parliament.New(parliament.Config{
		Validators: gen.Validators,
		Logger:     logger,
	})
	org, err := parl.CreateOrganization(gen.ReleaseThreshold)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create organization: %w", err)
	}

	node := &Node{
		config: cfg,
		clock:  clk,
		store:  store,
		state:  st,
		cache:  registry,
		gov:    parl,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	approvals := indexing.NewApprovalCache()
	coord := contract.New(contract.Config{
		ChainID:      gen.ChainID,
		State:        st,
		Validator:    validation,
		Governance:   parl,
		Validators:   gen.Validators,
		Organization: org,
		Policy:       gen.Policy,
		Events: &nodeEvents{
			log:       contract.LogSink{Logger: logger},
			approvals: approvals,
			height:    &node.height,
		},
		Logger: logger,
	})
	parl.SetTarget(coord)
	if err := coord.Initialize(gen.InitialState()); err != nil {
		cancel()
		return nil, fmt.Errorf("initialize contract: %w", err)
	}
	node.coord = coord

	parent, err := coord.GetParentChainID()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("read parent chain id: %w", err)
	}
	node.feed = &feed{Registry: registry, parent: parent}

	node.duties = &ValidatorDuties{
		Validators: cfg.Validators,
		Coord:      coord,
		Gov:        parl,
		Validation: validation,
		Collector: indexing.NewCollector(indexing.CollectorConfig{
			Cache:     registry,
			State:     st,
			Directory: coord,
			Logger:    logger,
		}),
		Approvals: approvals,
		log:       logger,
	}

	// Buffers start right after the recorded heights.
	followed, err := node.followedChains()
	if err != nil {
		cancel()
		return nil, err
	}
	for _, id := range followed {
		h, err := node.recordedHeight(id)
		if err != nil {
			cancel()
			return nil, err
		}
		registry.RegisterChain(id, h+1)
	}
	start := clk.CurrentHeight()
	registry.RegisterChain(gen.ChainID, start)
	node.lastHeight = start - 1

	return node, nil
}

func (n *Node) setupNetworking() error {
	cfg := n.config

	var key crypto.PrivKey
	keyPath := cfg.NodeKeyPath
	if keyPath == "" && !cfg.InMemory {
		keyPath = filepath.Join(cfg.DataDir, config.DefaultNodeKeyFileName)
	}
	if keyPath != "" {
		var err error
		if key, err = networking.LoadOrCreateKey(keyPath); err != nil {
			return fmt.Errorf("node key: %w", err)
		}
	}

	h, err := networking.NewHost(n.ctx, networking.HostConfig{
		PrivateKey:  key,
		ListenAddrs: cfg.ListenAddrs,
	})
	if err != nil {
		return fmt.Errorf("create host: %w", err)
	}

	bootnodes, err := networking.ParseBootnodes(cfg.Bootnodes)
	if err != nil {
		h.Close()
		return fmt.Errorf("parse bootnodes: %w", err)
	}
	followed, err := n.followedChains()
	if err != nil {
		h.Close()
		return err
	}

	netSvc, err := networking.NewService(n.ctx, networking.ServiceConfig{
		Host:      h,
		Handlers:  &networking.MessageHandlers{Sink: n.feed, Logger: n.logger},
		Network:   cfg.Network,
		Follow:    followed,
		Publish:   []types.ChainID{cfg.Genesis.ChainID},
		Bootnodes: bootnodes,
		Logger:    n.logger,
	})
	if err != nil {
		h.Close()
		return fmt.Errorf("create networking service: %w", err)
	}

	streamHandler := reqresp.NewStreamHandler(h, reqresp.NewHandler(n.cache), n.logger)
	streamHandler.RegisterProtocols()

	n.syncer = chainsync.NewSyncer(n.ctx, chainsync.Config{
		Host:      h,
		Cache:     n.feed,
		Requester: streamHandler,
		Peers:     netSvc,
		Chains:    n.syncChains,
		Interval:  cfg.SyncInterval,
		Logger:    n.logger,
	})
	n.host = h
	n.net = netSvc
	return nil
}

// Start begins node operation.
func (n *Node) Start() {
	if n.net != nil {
		n.net.Start()
	}
	if n.syncer != nil {
		n.syncer.Start()
	}
	if addr := n.config.MetricsAddr; addr != "" {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := metrics.Serve(n.ctx, addr, n.logger); err != nil {
				n.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	n.wg.Add(1)
	go n.blockTicker()

	n.logRecord()
	n.logger.Info("node started",
		"chain_id", n.config.Genesis.ChainID,
		"height", n.lastHeight+1,
		"validators", len(n.config.Validators),
	)
}

// logRecord logs the ENR peers can use to bootstrap from this node.
func (n *Node) logRecord() {
	if n.host == nil {
		return
	}
	ep, ok := networking.ListenEndpoint(n.host.Addrs())
	if !ok {
		return
	}
	record, err := networking.LocalENR(n.host.Peerstore().PrivKey(n.host.ID()), ep)
	if err != nil {
		n.logger.Warn("build node record failed", "error", err)
		return
	}
	n.logger.Info("node record", "peer_id", n.host.ID(), "enr", record)
}

// Stop gracefully shuts down the node.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()
	if n.syncer != nil {
		n.syncer.Stop()
	}
	if n.net != nil {
		n.net.Stop()
	}
	if n.host != nil {
		n.host.Close()
	}
	if err := n.store.Close(); err != nil {
		n.logger.Error("close store failed", "error", err)
	}
	n.logger.Info("node stopped")
}

func (n *Node) blockTicker() {
	defer n.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.onTick()
		}
	}
}

func (n *Node) onTick() {
	// Don't do anything before genesis
	if n.clock.IsBeforeGenesis() {
		return
	}
	current := n.clock.CurrentHeight()
	for h := n.lastHeight + 1; h <= current; h++ {
		if n.ctx.Err() != nil {
			return
		}
		n.OnBlock(n.ctx, h)
	}
}

// OnBlock runs the indexing duties of local block height.
func (n *Node) OnBlock(ctx context.Context, height int64) {
	n.height.Store(height)
	call := n.blockCall(height)

	if err := n.coord.Checkpoint(call); err != nil {
		n.logger.Error("checkpoint failed", "height", height, "error", err)
		return
	}
	n.publishLocal(ctx, call)

	err := n.coord.ClearExpired(ctx, call)
	if err != nil && !errors.Is(err, contract.ErrNoPendingProposal) && !errors.Is(err, contract.ErrNotExpired) {
		n.logger.Warn("clear expired proposal failed", "height", height, "error", err)
	}

	n.duties.OnBlock(ctx, call)
	n.trimCache()

	n.lastHeight = height
	metrics.LocalHeight.Set(float64(height))
	if height%64 == 0 {
		n.logger.Debug("block", "height", height, "peers", n.PeerCount())
	}
}

func (n *Node) blockCall(height int64) types.CallContext {
	return types.CallContext{
		Height:    height,
		Time:      n.clock.BlockTime(height),
		BlockHash: LocalBlockHash(n.config.Genesis.ChainID, height),
	}
}

// LocalBlockHash is the hash of local block height on chainID.
func LocalBlockHash(chainID types.ChainID, height int64) types.Hash {
	var buf [20]byte
	copy(buf[:8], "xchainbk")
	binary.BigEndian.PutUint32(buf[8:12], uint32(chainID))
	binary.BigEndian.PutUint64(buf[12:], uint64(height))
	return types.HashOf(buf[:])
}

// LocalAttestation attests local block (height, hash). The block's
// transaction root covers a single transaction whose id is the block hash.
func LocalAttestation(chainID types.ChainID, height int64, hash types.Hash) (*types.BlockAttestation, error) {
	root, err := merkle.Root([]types.Hash{contract.TransactionLeaf(hash)})
	if err != nil {
		return nil, err
	}
	return types.NewSideChainAttestation(chainID, height, hash, root), nil
}

// publishLocal caches and gossips the attestation of the local block. The
// local buffer keeps about Capacity blocks servable to range requests.
func (n *Node) publishLocal(ctx context.Context, call types.CallContext) {
	self := n.config.Genesis.ChainID
	a, err := LocalAttestation(self, call.Height, call.BlockHash)
	if err != nil {
		n.logger.Error("local attestation failed", "height", call.Height, "error", err)
		return
	}
	if !n.cache.TryAdd(a) {
		n.logger.Debug("local attestation not cached", "height", call.Height)
	}
	if keep := int64(crosschain.Capacity / 2); call.Height > keep {
		n.cache.TryTake(self, call.Height-keep, false)
		n.cache.ClearOutOfDateCacheByHeight(self, call.Height-crosschain.Capacity)
	}

	if n.net == nil {
		return
	}
	if err := n.net.PublishAttestation(ctx, a); err != nil {
		n.logger.Warn("failed to publish attestation", "height", call.Height, "error", err)
	}
}

// trimCache drops cached attestations at or below the recorded heights.
func (n *Node) trimCache() {
	followed, err := n.followedChains()
	if err != nil {
		n.logger.Error("list followed chains failed", "error", err)
		return
	}
	for _, id := range followed {
		h, err := n.recordedHeight(id)
		if err != nil {
			n.logger.Error("read recorded height failed", "chain_id", id, "error", err)
			continue
		}
		n.cache.ClearOutOfDateCacheByHeight(id, h)
	}
}

// followedChains lists the active side chains and the parent chain.
func (n *Node) followedChains() ([]types.ChainID, error) {
	ids, err := n.coord.ActiveSideChains()
	if err != nil {
		return nil, fmt.Errorf("list side chains: %w", err)
	}
	parent, err := n.coord.GetParentChainID()
	if err != nil {
		return nil, fmt.Errorf("read parent chain id: %w", err)
	}
	if parent != 0 {
		ids = append(ids, parent)
	}
	return ids, nil
}

func (n *Node) syncChains() []types.ChainID {
	ids, err := n.followedChains()
	if err != nil {
		n.logger.Error("list followed chains failed", "error", err)
		return nil
	}
	return ids
}

func (n *Node) recordedHeight(id types.ChainID) (int64, error) {
	parent, err := n.coord.GetParentChainID()
	if err != nil {
		return 0, err
	}
	if id == parent {
		return n.coord.GetParentChainHeight()
	}
	return n.coord.GetSideChainHeight(id)
}

// feed admits attestations from the network into the cache. The parent
// chain only supplies parent-chain attestations; every other chain supplies
// side-chain attestations.
type feed struct {
	*cache.Registry
	parent types.ChainID
}

func (f *feed) Submit(chainID types.ChainID, a *types.BlockAttestation) bool {
	if a == nil {
		return false
	}
	want := types.KindSideChain
	if f.parent != 0 && chainID == f.parent {
		want = types.KindParentChain
	}
	if a.Kind != want {
		return false
	}
	return f.Registry.Submit(chainID, a)
}

// Coordinator returns the cross-chain contract.
func (n *Node) Coordinator() *contract.Coordinator {
	return n.coord
}

// Cache returns the attestation cache.
func (n *Node) Cache() *cache.Registry {
	return n.cache
}

// CurrentHeight returns the current local block height.
func (n *Node) CurrentHeight() int64 {
	return n.clock.CurrentHeight()
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	if n.net == nil {
		return 0
	}
	return n.net.PeerCount()
}

// nodeEvents logs coordinator events and tracks proposals awaiting approval.
// Events are emitted while the coordinator holds its lock, so it must not
// call back into the coordinator.
type nodeEvents struct {
	log       contract.LogSink
	approvals *indexing.ApprovalCache
	height    *atomic.Int64
}

func (s *nodeEvents) Emit(e contract.Event) {
	s.log.Emit(e)
	switch ev := e.(type) {
	case contract.ProposalCreated:
		s.approvals.Cache(ev.ProposalID, s.height.Load())
	case contract.ProposalCleared:
		s.approvals.Remove(ev.ProposalID)
	}
}
