package networking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/geanlabs/xchain/observability/metrics"
	"github.com/geanlabs/xchain/types"
)

// AttestationSink accepts attestations received for a chain. Satisfied by
// cache.Registry.
type AttestationSink interface {
	Submit(chainID types.ChainID, a *types.BlockAttestation) bool
}

// MessageHandlers decodes gossip messages and hands them to the sink.
type MessageHandlers struct {
	Sink   AttestationSink
	Logger *slog.Logger
}

// HandleAttestationMessage decodes data received on chainID's topic and
// submits it. A rejected attestation is counted, not returned as an error.
func (h *MessageHandlers) HandleAttestationMessage(ctx context.Context, chainID types.ChainID, data []byte, from peer.ID) error {
	a, err := DecodeAttestation(data)
	if err != nil {
		metrics.AttestationsReceived.WithLabelValues("gossip", "malformed").Inc()
		return fmt.Errorf("attestation from %s: %w", from, err)
	}
	if h.Sink == nil {
		return nil
	}

	if h.Sink.Submit(chainID, a) {
		metrics.AttestationsReceived.WithLabelValues("gossip", "accepted").Inc()
		return nil
	}
	metrics.AttestationsReceived.WithLabelValues("gossip", "rejected").Inc()
	if h.Logger != nil {
		h.Logger.Debug("attestation not accepted",
			"chain_id", chainID,
			"height", a.Height,
			"peer", from,
		)
	}
	return nil
}
