package reqresp

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/golang/snappy"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/geanlabs/xchain/observability/metrics"
	"github.com/geanlabs/xchain/types"
)

const (
	ReadTimeout  = 10 * time.Second
	WriteTimeout = 10 * time.Second
	MaxMsgSize   = 1 << 20
)

// Response codes
const (
	RespCodeSuccess     byte = 0x00
	RespCodeInvalidReq  byte = 0x01
	RespCodeServerError byte = 0x02
)

// StreamHandler serves and sends range requests over libp2p streams.
type StreamHandler struct {
	host    host.Host
	handler *Handler
	logger  *slog.Logger
}

func NewStreamHandler(h host.Host, handler *Handler, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{host: h, handler: handler, logger: logger}
}

// RegisterProtocols registers the request/response protocol handlers.
func (s *StreamHandler) RegisterProtocols() {
	s.host.SetStreamHandler(protocol.ID(AttestationsByRangeProtocolV1), s.handleAttestationsByRangeStream)
}

func (s *StreamHandler) handleAttestationsByRangeStream(stream network.Stream) {
	defer stream.Close()

	_ = stream.SetReadDeadline(time.Now().Add(ReadTimeout))
	data, err := readMessage(bufio.NewReader(stream))
	if err != nil {
		s.logger.Debug("range request: read failed", "peer", stream.Conn().RemotePeer(), "error", err)
		metrics.RangeRequests.WithLabelValues("invalid").Inc()
		writeErrorResponse(stream, RespCodeInvalidReq)
		return
	}

	var req AttestationsByRangeRequest
	if err := req.UnmarshalSSZ(data); err != nil {
		metrics.RangeRequests.WithLabelValues("invalid").Inc()
		writeErrorResponse(stream, RespCodeInvalidReq)
		return
	}
	attestations, err := s.handler.HandleAttestationsByRange(&req)
	if err != nil {
		s.logger.Debug("range request rejected", "peer", stream.Conn().RemotePeer(), "error", err)
		metrics.RangeRequests.WithLabelValues("invalid").Inc()
		writeErrorResponse(stream, RespCodeInvalidReq)
		return
	}

	_ = stream.SetWriteDeadline(time.Now().Add(WriteTimeout))
	for _, a := range attestations {
		chunk, err := a.MarshalSSZ()
		if err != nil {
			metrics.RangeRequests.WithLabelValues("error").Inc()
			writeErrorResponse(stream, RespCodeServerError)
			return
		}
		if err := writeSuccessResponse(stream, chunk); err != nil {
			s.logger.Debug("range response: write failed", "peer", stream.Conn().RemotePeer(), "error", err)
			return
		}
	}
	metrics.RangeRequests.WithLabelValues("served").Inc()
	s.logger.Debug("served range request",
		"chain_id", req.ChainID,
		"start_height", req.StartHeight,
		"count", len(attestations),
	)
}

// RequestAttestationsByRange asks peerID for a range and checks the answer.
func (s *StreamHandler) RequestAttestationsByRange(ctx context.Context, peerID peer.ID, req *AttestationsByRangeRequest) ([]*types.BlockAttestation, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	stream, err := s.host.NewStream(ctx, peerID, protocol.ID(AttestationsByRangeProtocolV1))
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	data, err := req.MarshalSSZ()
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	_ = stream.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := writeMessage(stream, data); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		return nil, fmt.Errorf("close write: %w", err)
	}

	_ = stream.SetReadDeadline(time.Now().Add(ReadTimeout))
	r := bufio.NewReader(stream)
	var attestations []*types.BlockAttestation
	for {
		code, chunk, err := readResponse(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if code != RespCodeSuccess {
			return nil, fmt.Errorf("peer returned error code %d", code)
		}
		var a types.BlockAttestation
		if err := a.UnmarshalSSZ(chunk); err != nil {
			return nil, fmt.Errorf("unmarshal attestation: %w", err)
		}
		attestations = append(attestations, &a)
	}

	if err := CheckResponse(req, attestations); err != nil {
		return nil, err
	}
	return attestations, nil
}

// Each message is a varint of the uncompressed size followed by a snappy
// framed stream of the SSZ bytes.

func readMessage(r *bufio.Reader) ([]byte, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if size > MaxMsgSize {
		return nil, fmt.Errorf("message too large: %d", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(snappy.NewReader(r), buf); err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return buf, nil
}

func writeMessage(w io.Writer, data []byte) error {
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(data)))
	if _, err := w.Write(prefix[:n]); err != nil {
		return err
	}
	sw := snappy.NewBufferedWriter(w)
	if _, err := sw.Write(data); err != nil {
		return err
	}
	return sw.Close()
}

// readResponse reads a response code and, on success, the message after it.
func readResponse(r *bufio.Reader) (byte, []byte, error) {
	code, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	if code != RespCodeSuccess {
		return code, nil, nil
	}
	data, err := readMessage(r)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return code, data, err
}

func writeSuccessResponse(w io.Writer, data []byte) error {
	if _, err := w.Write([]byte{RespCodeSuccess}); err != nil {
		return err
	}
	return writeMessage(w, data)
}

func writeErrorResponse(w io.Writer, code byte) error {
	_, err := w.Write([]byte{code})
	return err
}
