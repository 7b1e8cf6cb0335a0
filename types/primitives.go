// Package types defines the primitive and composite types of the cross-chain indexing pipeline.
package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// Primitive types.
type Hash [32]byte
type Address [20]byte
type ChainID int32

// GenesisBlockHeight is the height of the first block of every chain.
const GenesisBlockHeight int64 = 1

var ZeroHash = Hash{}

func (h Hash) IsZero() bool { return h == Hash{} }

// Short returns a short hex representation of the hash (first 4 bytes).
func (h Hash) Short() string {
	return fmt.Sprintf("%x", h[:4])
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Concat returns Hash(h ++ other), the parent of two Merkle nodes.
func (h Hash) Concat(other Hash) Hash {
	return HashNodes(h, other)
}

// HashOf returns the SHA-256 digest of data.
func HashOf(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// HashFromString hashes the UTF-8 bytes of s.
func HashFromString(s string) Hash {
	return HashOf([]byte(s))
}

// HashNodes hashes the concatenation of two nodes.
func HashNodes(a, b Hash) Hash {
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	var result Hash
	copy(result[:], h.Sum(nil))
	return result
}

// HashFromHex parses a 64-character hex string, with or without 0x prefix.
func HashFromHex(s string) (Hash, error) {
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	if len(s) != 64 {
		return Hash{}, fmt.Errorf("invalid hash length: got %d hex chars, want 64", len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("decoding hex: %w", err)
	}
	var h Hash
	copy(h[:], decoded)
	return h, nil
}

func (a Address) IsZero() bool { return a == Address{} }

// String renders the address in base58.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// AddressFromString parses a base58 address.
func AddressFromString(s string) (Address, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decoding base58 address: %w", err)
	}
	if len(decoded) != len(Address{}) {
		return Address{}, fmt.Errorf("invalid address length: got %d bytes, want %d", len(decoded), len(Address{}))
	}
	var a Address
	copy(a[:], decoded)
	return a, nil
}

// AddressFromHash derives an address from the first 20 bytes of a hash.
func AddressFromHash(h Hash) Address {
	var a Address
	copy(a[:], h[:len(a)])
	return a
}

// String renders the chain id as base58 over its low three little-endian bytes.
func (c ChainID) String() string {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(c))
	return base58.Encode(buf[:3])
}

// ChainIDFromString is the inverse of ChainID.String.
func ChainIDFromString(s string) (ChainID, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return 0, fmt.Errorf("decoding base58 chain id: %w", err)
	}
	if len(decoded) == 0 || len(decoded) > 4 {
		return 0, fmt.Errorf("invalid chain id length: %d bytes", len(decoded))
	}
	var buf [4]byte
	copy(buf[:], decoded)
	return ChainID(binary.LittleEndian.Uint32(buf[:])), nil
}

// DeriveChainID derives the id of the serial-th chain created by parent. The
// result always fits the three bytes rendered by ChainID.String.
func DeriveChainID(parent ChainID, serial int64) ChainID {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[:4], uint32(parent))
	binary.BigEndian.PutUint64(buf[4:], uint64(serial))
	h := HashOf(buf[:])
	id := ChainID(uint32(h[0]) | uint32(h[1])<<8 | uint32(h[2])<<16)
	if id == 0 {
		id = 1
	}
	return id
}
