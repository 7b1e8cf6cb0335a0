package networking

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/golang/snappy"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/host"

	"github.com/geanlabs/xchain/crosschain"
	"github.com/geanlabs/xchain/types"
)

// DefaultNetwork is the network name used in topic strings when none is configured.
const DefaultNetwork = "devnet"

// AttestationTopic returns the gossip topic carrying chainID's attestations:
// /xchain/<network>/attestation/<chainID>/ssz_snappy
func AttestationTopic(network string, chainID types.ChainID) string {
	return "/xchain/" + network + "/attestation/" + chainID.String() + "/ssz_snappy"
}

// Message domains for gossipsub message ID computation.
var (
	messageDomainInvalidSnappy = [4]byte{0x00, 0x00, 0x00, 0x00}
	messageDomainValidSnappy   = [4]byte{0x01, 0x00, 0x00, 0x00}
)

// NewGossipSub creates a gossipsub router tuned for attestation traffic.
func NewGossipSub(ctx context.Context, h host.Host) (*pubsub.PubSub, error) {
	params := pubsub.DefaultGossipSubParams()
	params.D = 8
	params.Dlo = 6
	params.Dhi = 12
	params.Dlazy = 6
	params.HeartbeatInterval = 700 * time.Millisecond
	params.FanoutTTL = 60 * time.Second
	params.HistoryLength = 6
	params.HistoryGossip = 3

	return pubsub.NewGossipSub(ctx, h,
		pubsub.WithMessageIdFn(messageID),
		pubsub.WithGossipSubParams(params),
		pubsub.WithSeenMessagesTTL(2*crosschain.IndexingProposalExpiry),
		pubsub.WithMessageSignaturePolicy(pubsub.StrictNoSign),
		pubsub.WithFloodPublish(false),
	)
}

// messageID is SHA256(domain ++ len(topic) ++ topic ++ payload)[:20], where
// payload is the decompressed data when it is valid snappy.
func messageID(msg *pb.Message) string {
	domain, payload := messageDomainInvalidSnappy, msg.Data
	if decoded, err := snappy.Decode(nil, msg.Data); err == nil {
		domain, payload = messageDomainValidSnappy, decoded
	}

	topic := msg.GetTopic()
	var topicLen [8]byte
	binary.LittleEndian.PutUint64(topicLen[:], uint64(len(topic)))

	h := sha256.New()
	h.Write(domain[:])
	h.Write(topicLen[:])
	h.Write([]byte(topic))
	h.Write(payload)
	return string(h.Sum(nil)[:20])
}

// EncodeAttestation returns the gossip payload of a: snappy(SSZ(a)).
func EncodeAttestation(a *types.BlockAttestation) ([]byte, error) {
	data, err := a.MarshalSSZ()
	if err != nil {
		return nil, fmt.Errorf("marshal attestation: %w", err)
	}
	return snappy.Encode(nil, data), nil
}

// DecodeAttestation reverses EncodeAttestation.
func DecodeAttestation(data []byte) (*types.BlockAttestation, error) {
	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decompress attestation: %w", err)
	}
	var a types.BlockAttestation
	if err := a.UnmarshalSSZ(decoded); err != nil {
		return nil, fmt.Errorf("unmarshal attestation: %w", err)
	}
	return &a, nil
}
