package reqresp

import (
	ssz "github.com/ferranbt/fastssz"

	"github.com/geanlabs/xchain/types"
)

const attestationsByRangeSize = 20

// AttestationsByRangeRequest asks for Count attestations of ChainID starting
// at StartHeight.
type AttestationsByRangeRequest struct {
	ChainID     types.ChainID
	StartHeight int64
	Count       uint64
}

func (r *AttestationsByRangeRequest) SizeSSZ() int { return attestationsByRangeSize }

func (r *AttestationsByRangeRequest) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(r) }

func (r *AttestationsByRangeRequest) MarshalSSZTo(buf []byte) ([]byte, error) {
	dst := ssz.MarshalUint32(buf, uint32(r.ChainID))
	dst = ssz.MarshalUint64(dst, uint64(r.StartHeight))
	dst = ssz.MarshalUint64(dst, r.Count)
	return dst, nil
}

func (r *AttestationsByRangeRequest) UnmarshalSSZ(buf []byte) error {
	if len(buf) != attestationsByRangeSize {
		return ssz.ErrSize
	}
	r.ChainID = types.ChainID(int32(ssz.UnmarshallUint32(buf[0:4])))
	r.StartHeight = int64(ssz.UnmarshallUint64(buf[4:12]))
	r.Count = ssz.UnmarshallUint64(buf[12:20])
	return nil
}

func (r *AttestationsByRangeRequest) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(r)
}

func (r *AttestationsByRangeRequest) GetTree() (*ssz.Node, error) {
	return ssz.ProofTree(r)
}

func (r *AttestationsByRangeRequest) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	hh.PutUint32(uint32(r.ChainID))
	hh.PutUint64(uint64(r.StartHeight))
	hh.PutUint64(r.Count)
	hh.Merkleize(indx)
	return nil
}
