package state

import (
	"encoding/binary"

	"github.com/geanlabs/xchain/types"
)

var (
	keyProposal        = []byte("proposal")
	keySideChainIDs    = []byte("sc/ids")
	keySerial          = []byte("sc/serial")
	keyParentChainID   = []byte("pc/id")
	keyParentHeight    = []byte("pc/height")
	prefixSideInfo     = []byte("sc/info/")
	prefixSideHeight   = []byte("sc/height/")
	prefixSideBalance  = []byte("sc/balance/")
	prefixParentRoot   = []byte("pc/root/")
	prefixCousinRoot   = []byte("pc/extra/")
	prefixIndexedRoot  = []byte("idx/side/")
	prefixBinding      = []byte("bind/")
	prefixBan          = []byte("ban/")
	prefixLedger       = []byte("ledger/")
	prefixSnapshotView = []byte("view/")

	prefixPendingCreation = []byte("sc/request/")
)

func chainKey(prefix []byte, id types.ChainID) []byte {
	k := make([]byte, len(prefix)+4)
	copy(k, prefix)
	binary.BigEndian.PutUint32(k[len(prefix):], uint32(id))
	return k
}

func heightKey(prefix []byte, height int64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], uint64(height))
	return k
}

func addressKey(prefix []byte, a types.Address) []byte {
	return append(append([]byte(nil), prefix...), a[:]...)
}

func hashKey(prefix []byte, h types.Hash) []byte {
	return append(append([]byte(nil), prefix...), h[:]...)
}

func encodeInt64(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

func decodeInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, ErrCorrupt
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
