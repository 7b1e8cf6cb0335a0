// Package reqresp implements the attestations-by-range request/response protocol.
package reqresp

import (
	"errors"
	"fmt"

	"github.com/geanlabs/xchain/types"
)

const (
	AttestationsByRangeProtocolV1 = "/xchain/req/attestations_by_range/1/"
	MaxRequestAttestations        = 64
)

var (
	ErrInvalidRequest  = errors.New("invalid range request")
	ErrInvalidResponse = errors.New("invalid range response")
)

// AttestationReader serves cached attestations without consuming them.
// Satisfied by cache.Registry.
type AttestationReader interface {
	Range(chainID types.ChainID, start int64, count int) []*types.BlockAttestation
}

// Handler answers range requests from the local cache.
type Handler struct {
	source AttestationReader
}

func NewHandler(source AttestationReader) *Handler {
	return &Handler{source: source}
}

func checkRequest(req *AttestationsByRangeRequest) error {
	if req.StartHeight < types.GenesisBlockHeight {
		return fmt.Errorf("%w: start height %d", ErrInvalidRequest, req.StartHeight)
	}
	if req.Count == 0 || req.Count > MaxRequestAttestations {
		return fmt.Errorf("%w: count %d", ErrInvalidRequest, req.Count)
	}
	return nil
}

// HandleAttestationsByRange returns the contiguous run of cached attestations
// starting at req.StartHeight, at most req.Count long.
func (h *Handler) HandleAttestationsByRange(req *AttestationsByRangeRequest) ([]*types.BlockAttestation, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	found := h.source.Range(req.ChainID, req.StartHeight, int(req.Count))
	for i, a := range found {
		if a.Height != req.StartHeight+int64(i) {
			return found[:i], nil
		}
	}
	return found, nil
}

// CheckResponse verifies that attestations answer req: the requested chain,
// consecutive heights from StartHeight, no more than Count.
func CheckResponse(req *AttestationsByRangeRequest, attestations []*types.BlockAttestation) error {
	if uint64(len(attestations)) > req.Count {
		return fmt.Errorf("%w: %d attestations for count %d", ErrInvalidResponse, len(attestations), req.Count)
	}
	for i, a := range attestations {
		if a.ChainID != req.ChainID {
			return fmt.Errorf("%w: chain %s, requested %s", ErrInvalidResponse, a.ChainID, req.ChainID)
		}
		if want := req.StartHeight + int64(i); a.Height != want {
			return fmt.Errorf("%w: height %d, expected %d", ErrInvalidResponse, a.Height, want)
		}
	}
	return nil
}
