// Package chainsync fills the attestation cache from peers.
//
// Every interval, and whenever a new outbound peer connects, the syncer asks
// each followed chain's buffer for its next expected height and requests the
// range from there via the attestations-by-range protocol. Peers are tried in
// turn; each request is retried with exponential backoff (1s, 2s, 4s).
package chainsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/geanlabs/xchain/networking/reqresp"
	"github.com/geanlabs/xchain/observability/metrics"
	"github.com/geanlabs/xchain/types"
)

// AttestationCache is the buffer side the syncer fills. Satisfied by cache.Registry.
type AttestationCache interface {
	NextExpectedHeight(chainID types.ChainID) (int64, bool)
	Submit(chainID types.ChainID, a *types.BlockAttestation) bool
}

// Requester fetches ranges from a peer. Satisfied by reqresp.StreamHandler.
type Requester interface {
	RequestAttestationsByRange(ctx context.Context, peerID peer.ID, req *reqresp.AttestationsByRangeRequest) ([]*types.BlockAttestation, error)
}

// PeerSource lists the peers to sync from. Satisfied by networking.Service.
type PeerSource interface {
	Peers() []peer.ID
}

const (
	reqrespTimeout    = 30 * time.Second
	maxSyncRetries    = 3
	defaultRetryDelay = 1 * time.Second
	defaultInterval   = 4 * time.Second
	maxRoundsPerChain = 16
)

type Syncer struct {
	host      host.Host
	cache     AttestationCache
	requester Requester
	peers     PeerSource
	chains    func() []types.ChainID
	interval  time.Duration
	retry     time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	nextPeer int

	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Config holds syncer configuration.
type Config struct {
	// Host, if set, triggers a sync round when an outbound peer connects.
	Host      host.Host
	Cache     AttestationCache
	Requester Requester
	Peers     PeerSource
	// Chains returns the chains to keep filled.
	Chains     func() []types.ChainID
	Interval   time.Duration
	RetryDelay time.Duration
	Logger     *slog.Logger
}

func NewSyncer(ctx context.Context, cfg Config) *Syncer {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	retry := cfg.RetryDelay
	if retry <= 0 {
		retry = defaultRetryDelay
	}

	return &Syncer{
		host:      cfg.Host,
		cache:     cfg.Cache,
		requester: cfg.Requester,
		peers:     cfg.Peers,
		chains:    cfg.Chains,
		interval:  interval,
		retry:     retry,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the sync loop.
func (s *Syncer) Start() {
	if s.host != nil {
		s.host.Network().Notify(&connectionNotifier{syncer: s, logger: s.logger})
	}
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("syncer started", "interval", s.interval)
}

// Stop shuts down the syncer and waits for the running round.
func (s *Syncer) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("syncer stopped")
}

// Trigger schedules a sync round without waiting for the interval.
func (s *Syncer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Syncer) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		case <-s.trigger:
		}
		s.SyncAll(s.ctx)
	}
}

// SyncAll runs one sync round over every followed chain.
func (s *Syncer) SyncAll(ctx context.Context) {
	if s.chains == nil {
		return
	}
	for _, id := range s.chains() {
		if ctx.Err() != nil {
			return
		}
		added, err := s.SyncChain(ctx, id)
		if err != nil {
			s.logger.Debug("chain sync incomplete", "chain_id", id, "added", added, "error", err)
		} else if added > 0 {
			s.logger.Info("synced attestations", "chain_id", id, "added", added)
		}
	}
}

// SyncChain requests chainID's missing attestations until a peer runs out,
// the buffer fills, or a submission is refused. It returns how many were added.
func (s *Syncer) SyncChain(ctx context.Context, chainID types.ChainID) (int, error) {
	added := 0
	for round := 0; round < maxRoundsPerChain; round++ {
		next, ok := s.cache.NextExpectedHeight(chainID)
		if !ok {
			return added, nil
		}
		metrics.NextExpectedHeight.WithLabelValues(chainID.String()).Set(float64(next))

		req := &reqresp.AttestationsByRangeRequest{
			ChainID:     chainID,
			StartHeight: next,
			Count:       reqresp.MaxRequestAttestations,
		}
		attestations, err := s.request(ctx, req)
		if err != nil {
			return added, err
		}
		for _, a := range attestations {
			if !s.cache.Submit(chainID, a) {
				return added, nil
			}
			metrics.AttestationsReceived.WithLabelValues("sync", "accepted").Inc()
			added++
		}
		if uint64(len(attestations)) < req.Count {
			return added, nil
		}
	}
	return added, nil
}

// request asks peers in turn until one answers with at least one attestation.
func (s *Syncer) request(ctx context.Context, req *reqresp.AttestationsByRangeRequest) ([]*types.BlockAttestation, error) {
	if s.peers == nil {
		return nil, nil
	}
	peers := s.peers.Peers()
	if len(peers) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	start := s.nextPeer % len(peers)
	s.nextPeer++
	s.mu.Unlock()

	var lastErr error
	for i := range peers {
		pid := peers[(start+i)%len(peers)]
		attestations, err := s.requestWithRetry(ctx, pid, req)
		if err != nil {
			lastErr = err
			continue
		}
		if len(attestations) > 0 {
			return attestations, nil
		}
	}
	return nil, lastErr
}

// requestWithRetry wraps RequestAttestationsByRange with exponential backoff.
func (s *Syncer) requestWithRetry(ctx context.Context, peerID peer.ID, req *reqresp.AttestationsByRangeRequest) ([]*types.BlockAttestation, error) {
	var lastErr error
	for attempt := 0; attempt <= maxSyncRetries; attempt++ {
		if attempt > 0 {
			delay := s.retry * time.Duration(1<<(attempt-1))
			s.logger.Debug("retrying range request",
				"peer", peerID,
				"chain_id", req.ChainID,
				"attempt", attempt+1,
				"delay", delay,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		rctx, cancel := context.WithTimeout(ctx, reqrespTimeout)
		attestations, err := s.requester.RequestAttestationsByRange(rctx, peerID, req)
		cancel()
		if err == nil {
			return attestations, nil
		}
		lastErr = err
		s.logger.Debug("range request failed",
			"peer", peerID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return nil, fmt.Errorf("after %d retries: %w", maxSyncRetries, lastErr)
}

// connectionNotifier triggers a sync round when we dial a new peer.
type connectionNotifier struct {
	syncer *Syncer
	logger *slog.Logger
}

func (n *connectionNotifier) Listen(network.Network, multiaddr.Multiaddr)      {}
func (n *connectionNotifier) ListenClose(network.Network, multiaddr.Multiaddr) {}

func (n *connectionNotifier) Connected(_ network.Network, conn network.Conn) {
	if conn.Stat().Direction == network.DirOutbound {
		n.logger.Debug("new outbound connection, scheduling sync", "peer", conn.RemotePeer())
		n.syncer.Trigger()
	}
}

func (n *connectionNotifier) Disconnected(_ network.Network, conn network.Conn) {
	n.logger.Debug("peer disconnected", "peer", conn.RemotePeer())
}

var _ network.Notifiee = (*connectionNotifier)(nil)
