package networking

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// DefaultListenAddr is QUIC on UDP port 9000.
const DefaultListenAddr = "/ip4/0.0.0.0/udp/9000/quic-v1"

// HostConfig holds configuration for creating a libp2p host.
type HostConfig struct {
	PrivateKey  crypto.PrivKey
	ListenAddrs []string
}

// NewHost creates a libp2p host. Without a private key a fresh secp256k1
// key is generated.
func NewHost(ctx context.Context, cfg HostConfig) (host.Host, error) {
	privKey := cfg.PrivateKey
	if privKey == nil {
		var err error
		privKey, _, err = crypto.GenerateKeyPairWithReader(crypto.Secp256k1, 256, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
	}

	listenAddrs := cfg.ListenAddrs
	if len(listenAddrs) == 0 {
		listenAddrs = []string{DefaultListenAddr}
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrStrings(listenAddrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("create host: %w", err)
	}
	return h, nil
}

// LoadOrCreateKey reads the node key stored at path, generating and
// writing a new secp256k1 key if the file does not exist.
func LoadOrCreateKey(path string) (crypto.PrivKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := crypto.UnmarshalPrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("decode node key %s: %w", path, err)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read node key: %w", err)
	}

	key, _, err := crypto.GenerateKeyPairWithReader(crypto.Secp256k1, 256, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	data, err = crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encode node key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write node key: %w", err)
	}
	return key, nil
}

// ParseBootnodes parses ENR records and multiaddr strings carrying a /p2p/
// peer id.
func ParseBootnodes(addrs []string) ([]peer.AddrInfo, error) {
	var peers []peer.AddrInfo
	for _, addr := range addrs {
		if strings.HasPrefix(addr, "enr:") {
			pi, err := ENRToAddrInfo(addr)
			if err != nil {
				return nil, fmt.Errorf("bootnode %q: %w", addr, err)
			}
			peers = append(peers, *pi)
			continue
		}
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("bootnode %q: %w", addr, err)
		}
		pi, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			return nil, fmt.Errorf("bootnode %q: %w", addr, err)
		}
		peers = append(peers, *pi)
	}
	return peers, nil
}
