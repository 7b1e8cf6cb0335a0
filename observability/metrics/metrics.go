// Package metrics holds the prometheus collectors of the indexing node.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AttestationsReceived counts attestations offered to the chain cache, by source and result.
	AttestationsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xchain_attestations_received_total",
		Help: "Attestations offered to the chain cache.",
	}, []string{"source", "result"})

	// NextExpectedHeight is the next height each chain buffer accepts, -1 when full.
	NextExpectedHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xchain_cache_next_expected_height",
		Help: "Next height accepted by the chain buffer, -1 when full.",
	}, []string{"chain_id"})

	BatchValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xchain_batch_validations_total",
		Help: "Batch validations by result.",
	}, []string{"result"})

	BatchValidationTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xchain_batch_validation_seconds",
		Help:    "Time spent validating a batch.",
		Buckets: prometheus.DefBuckets,
	})

	// ProposalTransitions counts indexing proposal slot changes by event.
	ProposalTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xchain_proposal_transitions_total",
		Help: "Indexing proposal slot transitions.",
	}, []string{"event"})

	IndexedBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xchain_indexed_blocks_total",
		Help: "Attestations indexed, by kind.",
	}, []string{"kind"})

	ProposerBans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xchain_proposer_bans_total",
		Help: "Proposers banned.",
	})

	LocalHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xchain_local_height",
		Help: "Local block height seen by the indexer.",
	})

	ConnectedPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xchain_connected_peers",
		Help: "Connected libp2p peers.",
	})

	RangeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xchain_range_requests_total",
		Help: "Attestation range requests sent, by result.",
	}, []string{"result"})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
