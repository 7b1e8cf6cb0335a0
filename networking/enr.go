package networking

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/enr"
	libp2p_crypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

var errNoTransport = errors.New("enr has neither quic nor tcp port")

// Endpoint is a reachable address advertised in a node record.
type Endpoint struct {
	IP   net.IP
	QUIC int // UDP port, 0 if unset
	TCP  int // 0 if unset
}

// ENRToAddrInfo parses an ENR into the peer it names. The QUIC port is
// preferred; records that only carry TCP are dialled over TCP.
func ENRToAddrInfo(record string) (*peer.AddrInfo, error) {
	node, err := enode.Parse(enode.ValidSchemes, record)
	if err != nil {
		return nil, fmt.Errorf("parse enr: %w", err)
	}
	return nodeAddrInfo(node)
}

func nodeAddrInfo(node *enode.Node) (*peer.AddrInfo, error) {
	ip := node.IP()
	if ip == nil {
		return nil, errors.New("enr has no ip")
	}
	pub := node.Pubkey()
	if pub == nil {
		return nil, errors.New("enr has no secp256k1 key")
	}
	key, err := libp2p_crypto.UnmarshalSecp256k1PublicKey(crypto.CompressPubkey(pub))
	if err != nil {
		return nil, fmt.Errorf("convert enr key: %w", err)
	}
	id, err := peer.IDFromPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("peer id: %w", err)
	}

	family := "ip4"
	if ip.To4() == nil {
		family = "ip6"
	}
	var (
		quic enr.QUIC
		tcp  enr.TCP
		addr string
	)
	switch {
	case node.Load(&quic) == nil:
		addr = fmt.Sprintf("/%s/%s/udp/%d/quic-v1", family, ip, quic)
	case node.Load(&tcp) == nil:
		addr = fmt.Sprintf("/%s/%s/tcp/%d", family, ip, tcp)
	default:
		return nil, errNoTransport
	}
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil, fmt.Errorf("enr multiaddr: %w", err)
	}
	return &peer.AddrInfo{ID: id, Addrs: []ma.Multiaddr{m}}, nil
}

// LocalENR signs a node record for key advertising ep. key must be
// secp256k1, as produced by LoadOrCreateKey.
func LocalENR(key libp2p_crypto.PrivKey, ep Endpoint) (string, error) {
	if ep.QUIC == 0 && ep.TCP == 0 {
		return "", errNoTransport
	}
	raw, err := key.Raw()
	if err != nil {
		return "", fmt.Errorf("raw node key: %w", err)
	}
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return "", fmt.Errorf("node key is not secp256k1: %w", err)
	}

	// An empty path keeps the node database in memory.
	db, err := enode.OpenDB("")
	if err != nil {
		return "", fmt.Errorf("open node db: %w", err)
	}
	defer db.Close()

	local := enode.NewLocalNode(db, priv)
	local.SetStaticIP(ep.IP)
	if ep.QUIC != 0 {
		local.Set(enr.QUIC(ep.QUIC))
	}
	if ep.TCP != 0 {
		local.Set(enr.TCP(ep.TCP))
	}
	return local.Node().String(), nil
}

// ListenEndpoint collects the first IP with its QUIC and TCP ports from
// addrs. ok is false when addrs has no IP transport.
func ListenEndpoint(addrs []ma.Multiaddr) (ep Endpoint, ok bool) {
	for _, addr := range addrs {
		ip, err := addr.ValueForProtocol(ma.P_IP4)
		if err != nil {
			if ip, err = addr.ValueForProtocol(ma.P_IP6); err != nil {
				continue
			}
		}
		parsed := net.ParseIP(ip)
		if ep.IP != nil && !ep.IP.Equal(parsed) {
			continue
		}

		if _, err := addr.ValueForProtocol(ma.P_QUIC_V1); err == nil && ep.QUIC == 0 {
			ep.QUIC = portOf(addr, ma.P_UDP)
		} else if ep.TCP == 0 {
			ep.TCP = portOf(addr, ma.P_TCP)
		}
		if ep.QUIC != 0 || ep.TCP != 0 {
			ep.IP = parsed
		}
	}
	return ep, ep.IP != nil
}

func portOf(addr ma.Multiaddr, code int) int {
	v, err := addr.ValueForProtocol(code)
	if err != nil {
		return 0
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return p
}
