package networking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/geanlabs/xchain/observability/metrics"
	"github.com/geanlabs/xchain/types"
)

// maintenanceInterval is how often bootnode links and the peer gauge are refreshed.
const maintenanceInterval = 10 * time.Second

type subscription struct {
	chainID types.ChainID
	sub     *pubsub.Subscription
}

// Service joins one attestation topic per followed chain plus the local
// chain's topic for publishing.
type Service struct {
	host     host.Host
	pubsub   *pubsub.PubSub
	handlers *MessageHandlers
	network  string
	logger   *slog.Logger

	topicsMu sync.Mutex
	topics   map[types.ChainID]*pubsub.Topic
	subs     []subscription

	bootnodes []peer.AddrInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServiceConfig holds configuration for the networking service.
type ServiceConfig struct {
	Host     host.Host
	Handlers *MessageHandlers
	// Network is the network name in topic strings.
	Network string
	// Follow lists the chains whose attestations are subscribed to.
	Follow []types.ChainID
	// Publish lists the chains this node publishes attestations for.
	Publish   []types.ChainID
	Bootnodes []peer.AddrInfo
	Logger    *slog.Logger
}

// NewService creates the gossip router, joins the topics and dials the bootnodes.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Network
	if name == "" {
		name = DefaultNetwork
	}

	ps, err := NewGossipSub(ctx, cfg.Host)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	svc := &Service{
		host:      cfg.Host,
		pubsub:    ps,
		handlers:  cfg.Handlers,
		network:   name,
		logger:    logger,
		topics:    make(map[types.ChainID]*pubsub.Topic),
		bootnodes: cfg.Bootnodes,
		ctx:       ctx,
		cancel:    cancel,
	}

	for _, id := range cfg.Follow {
		topic, err := svc.join(id)
		if err != nil {
			svc.closeSubs()
			cancel()
			return nil, err
		}
		sub, err := topic.Subscribe()
		if err != nil {
			svc.closeSubs()
			cancel()
			return nil, fmt.Errorf("subscribe chain %s: %w", id, err)
		}
		svc.subs = append(svc.subs, subscription{chainID: id, sub: sub})
	}
	for _, id := range cfg.Publish {
		if _, err := svc.join(id); err != nil {
			svc.closeSubs()
			cancel()
			return nil, err
		}
	}

	if missing := svc.dialBootnodes(); missing > 0 {
		logger.Warn("some bootnodes unreachable", "missing", missing, "total", len(cfg.Bootnodes))
	}
	return svc, nil
}

func (s *Service) join(chainID types.ChainID) (*pubsub.Topic, error) {
	s.topicsMu.Lock()
	defer s.topicsMu.Unlock()

	if t, ok := s.topics[chainID]; ok {
		return t, nil
	}
	t, err := s.pubsub.Join(AttestationTopic(s.network, chainID))
	if err != nil {
		return nil, fmt.Errorf("join chain %s topic: %w", chainID, err)
	}
	s.topics[chainID] = t
	return t, nil
}

func (s *Service) closeSubs() {
	for _, sub := range s.subs {
		sub.sub.Cancel()
	}
}

func (s *Service) Start() {
	for _, sub := range s.subs {
		s.wg.Add(1)
		go s.readAttestations(sub)
	}
	s.wg.Add(1)
	go s.maintain()

	s.logger.Info("networking service started",
		"peer_id", s.host.ID(),
		"addrs", s.host.Addrs(),
		"network", s.network,
		"followed_chains", len(s.subs),
	)
}

// Stop shuts down the networking service and closes the host.
func (s *Service) Stop() {
	s.cancel()
	s.closeSubs()
	s.wg.Wait()
	s.host.Close()
	s.logger.Info("networking service stopped")
}

// PublishAttestation gossips a on its chain's topic.
func (s *Service) PublishAttestation(ctx context.Context, a *types.BlockAttestation) error {
	data, err := EncodeAttestation(a)
	if err != nil {
		return err
	}
	topic, err := s.join(a.ChainID)
	if err != nil {
		return err
	}
	return topic.Publish(ctx, data)
}

// PeerCount returns the number of connected peers.
func (s *Service) PeerCount() int {
	return len(s.host.Network().Peers())
}

// Peers returns the connected peers.
func (s *Service) Peers() []peer.ID {
	return s.host.Network().Peers()
}

// dialBootnodes connects to every bootnode not currently connected and
// returns how many stay unreachable.
func (s *Service) dialBootnodes() int {
	missing := 0
	for _, pi := range s.bootnodes {
		if s.host.Network().Connectedness(pi.ID) == network.Connected {
			continue
		}
		if err := s.host.Connect(s.ctx, pi); err != nil {
			s.logger.Debug("bootnode dial failed", "peer", pi.ID, "error", err)
			missing++
			continue
		}
		s.logger.Info("connected to bootnode", "peer", pi.ID)
	}
	return missing
}

// maintain redials dropped bootnodes and refreshes the peer gauge.
func (s *Service) maintain() {
	defer s.wg.Done()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		metrics.ConnectedPeers.Set(float64(s.PeerCount()))
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dialBootnodes()
		}
	}
}

// readAttestations feeds one chain's gossip into the handlers.
func (s *Service) readAttestations(sub subscription) {
	defer s.wg.Done()

	for {
		msg, err := sub.sub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("attestation subscription error", "chain_id", sub.chainID, "error", err)
			continue
		}

		// Skip self-published messages
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}

		if s.handlers != nil {
			if err := s.handlers.HandleAttestationMessage(s.ctx, sub.chainID, msg.Data, msg.ReceivedFrom); err != nil {
				s.logger.Warn("handle attestation error", "chain_id", sub.chainID, "error", err)
			}
		}
	}
}
