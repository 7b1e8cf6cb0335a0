package types

import (
	"fmt"

	ssz "github.com/ferranbt/fastssz"
)

// SSZ encoding of the cross-chain containers, laid out the way sszgen emits
// them: fixed part first, 4-byte offsets for variable fields, variable parts
// appended in field order.

const (
	chainHeightSize       = 12
	chainStateViewFixed   = 16
	sideChainInfoSize     = 41
	recordInputFixed      = 24
	indexingProposalFixed = 65
	blockDataFixed        = 8
)

// splitDynamicList splits an SSZ list of variable-size elements into the
// encoded elements.
func splitDynamicList(buf []byte, limit int) ([][]byte, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf) < 4 {
		return nil, ssz.ErrSize
	}
	first := ssz.ReadOffset(buf[0:4])
	if first == 0 || first%4 != 0 || first > uint64(len(buf)) {
		return nil, ssz.ErrOffset
	}
	num := int(first / 4)
	if num > limit {
		return nil, ssz.ErrListTooBigFn("dynamic list", num, limit)
	}
	offsets := make([]uint64, num+1)
	for i := 0; i < num; i++ {
		offsets[i] = ssz.ReadOffset(buf[i*4 : i*4+4])
	}
	offsets[num] = uint64(len(buf))
	items := make([][]byte, num)
	for i := 0; i < num; i++ {
		if offsets[i] > offsets[i+1] {
			return nil, ssz.ErrOffset
		}
		items[i] = buf[offsets[i]:offsets[i+1]]
	}
	return items, nil
}

// MerklePathNode

func (n *MerklePathNode) SizeSSZ() int { return MerklePathNodeSize }

func (n *MerklePathNode) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(n) }

func (n *MerklePathNode) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf
	dst = append(dst, n.Hash[:]...)
	dst = ssz.MarshalBool(dst, n.IsLeftSibling)
	return
}

func (n *MerklePathNode) UnmarshalSSZ(buf []byte) error {
	if len(buf) != MerklePathNodeSize {
		return ssz.ErrSize
	}
	copy(n.Hash[:], buf[0:32])
	n.IsLeftSibling = ssz.UnmarshalBool(buf[32:33])
	return nil
}

func (n *MerklePathNode) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(n) }

func (n *MerklePathNode) GetTree() (*ssz.Node, error) { return ssz.ProofTree(n) }

func (n *MerklePathNode) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	hh.PutBytes(n.Hash[:])
	hh.PutBool(n.IsLeftSibling)
	hh.Merkleize(indx)
	return nil
}

// MerklePath

func (p *MerklePath) SizeSSZ() int { return 4 + len(p.Nodes)*MerklePathNodeSize }

func (p *MerklePath) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(p) }

func (p *MerklePath) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf
	dst = ssz.WriteOffset(dst, 4)

	if size := len(p.Nodes); size > MaxMerklePathLength {
		err = ssz.ErrListTooBigFn("MerklePath.Nodes", size, MaxMerklePathLength)
		return
	}
	for ii := range p.Nodes {
		if dst, err = p.Nodes[ii].MarshalSSZTo(dst); err != nil {
			return
		}
	}
	return
}

func (p *MerklePath) UnmarshalSSZ(buf []byte) error {
	size := uint64(len(buf))
	if size < 4 {
		return ssz.ErrSize
	}
	o0 := ssz.ReadOffset(buf[0:4])
	if o0 > size {
		return ssz.ErrOffset
	}
	if o0 != 4 {
		return ssz.ErrInvalidVariableOffset
	}

	tail := buf[o0:]
	num, err := ssz.DivideInt2(len(tail), MerklePathNodeSize, MaxMerklePathLength)
	if err != nil {
		return err
	}
	p.Nodes = make([]MerklePathNode, num)
	for ii := 0; ii < num; ii++ {
		if err := p.Nodes[ii].UnmarshalSSZ(tail[ii*MerklePathNodeSize : (ii+1)*MerklePathNodeSize]); err != nil {
			return err
		}
	}
	return nil
}

func (p *MerklePath) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(p) }

func (p *MerklePath) GetTree() (*ssz.Node, error) { return ssz.ProofTree(p) }

func (p *MerklePath) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	{
		subIndx := hh.Index()
		num := uint64(len(p.Nodes))
		if num > MaxMerklePathLength {
			return ssz.ErrIncorrectListSize
		}
		for ii := range p.Nodes {
			if err := p.Nodes[ii].HashTreeRootWith(hh); err != nil {
				return err
			}
		}
		hh.MerkleizeWithMixin(subIndx, num, MaxMerklePathLength)
	}
	hh.Merkleize(indx)
	return nil
}

// IndexedMerklePath

func (p *IndexedMerklePath) SizeSSZ() int { return IndexedMerklePathFixed + p.Path.SizeSSZ() }

func (p *IndexedMerklePath) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(p) }

func (p *IndexedMerklePath) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf
	dst = ssz.MarshalUint64(dst, uint64(p.ChildHeight))
	dst = ssz.WriteOffset(dst, IndexedMerklePathFixed)
	return p.Path.MarshalSSZTo(dst)
}

func (p *IndexedMerklePath) UnmarshalSSZ(buf []byte) error {
	size := uint64(len(buf))
	if size < IndexedMerklePathFixed {
		return ssz.ErrSize
	}
	p.ChildHeight = int64(ssz.UnmarshallUint64(buf[0:8]))
	o1 := ssz.ReadOffset(buf[8:12])
	if o1 > size {
		return ssz.ErrOffset
	}
	if o1 != IndexedMerklePathFixed {
		return ssz.ErrInvalidVariableOffset
	}
	return p.Path.UnmarshalSSZ(buf[o1:])
}

func (p *IndexedMerklePath) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(p) }

func (p *IndexedMerklePath) GetTree() (*ssz.Node, error) { return ssz.ProofTree(p) }

func (p *IndexedMerklePath) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	hh.PutUint64(uint64(p.ChildHeight))
	if err := p.Path.HashTreeRootWith(hh); err != nil {
		return err
	}
	hh.Merkleize(indx)
	return nil
}

// BlockAttestation

func (a *BlockAttestation) SizeSSZ() int {
	size := BlockAttestationFixed
	for ii := range a.IndexedMerklePaths {
		size += 4 + a.IndexedMerklePaths[ii].SizeSSZ()
	}
	return size
}

func (a *BlockAttestation) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(a) }

func (a *BlockAttestation) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf
	dst = ssz.MarshalUint8(dst, uint8(a.Kind))
	dst = ssz.MarshalUint32(dst, uint32(a.ChainID))
	dst = ssz.MarshalUint64(dst, uint64(a.Height))
	dst = append(dst, a.BlockHeaderHash[:]...)
	dst = append(dst, a.MerkleRoot[:]...)
	dst = append(dst, a.CrossChainExtraRoot[:]...)
	dst = ssz.WriteOffset(dst, BlockAttestationFixed)

	if size := len(a.IndexedMerklePaths); size > MaxIndexedMerklePaths {
		err = ssz.ErrListTooBigFn("BlockAttestation.IndexedMerklePaths", size, MaxIndexedMerklePaths)
		return
	}
	offset := 4 * len(a.IndexedMerklePaths)
	for ii := range a.IndexedMerklePaths {
		dst = ssz.WriteOffset(dst, offset)
		offset += a.IndexedMerklePaths[ii].SizeSSZ()
	}
	for ii := range a.IndexedMerklePaths {
		if dst, err = a.IndexedMerklePaths[ii].MarshalSSZTo(dst); err != nil {
			return
		}
	}
	return
}

func (a *BlockAttestation) UnmarshalSSZ(buf []byte) error {
	size := uint64(len(buf))
	if size < BlockAttestationFixed {
		return ssz.ErrSize
	}
	a.Kind = AttestationKind(ssz.UnmarshallUint8(buf[0:1]))
	a.ChainID = ChainID(int32(ssz.UnmarshallUint32(buf[1:5])))
	a.Height = int64(ssz.UnmarshallUint64(buf[5:13]))
	copy(a.BlockHeaderHash[:], buf[13:45])
	copy(a.MerkleRoot[:], buf[45:77])
	copy(a.CrossChainExtraRoot[:], buf[77:109])

	o6 := ssz.ReadOffset(buf[109:113])
	if o6 > size {
		return ssz.ErrOffset
	}
	if o6 != BlockAttestationFixed {
		return ssz.ErrInvalidVariableOffset
	}

	items, err := splitDynamicList(buf[o6:], MaxIndexedMerklePaths)
	if err != nil {
		return err
	}
	a.IndexedMerklePaths = nil
	if len(items) > 0 {
		a.IndexedMerklePaths = make([]IndexedMerklePath, len(items))
	}
	for ii, item := range items {
		if err := a.IndexedMerklePaths[ii].UnmarshalSSZ(item); err != nil {
			return err
		}
	}
	return nil
}

func (a *BlockAttestation) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(a) }

func (a *BlockAttestation) GetTree() (*ssz.Node, error) { return ssz.ProofTree(a) }

func (a *BlockAttestation) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	hh.PutUint8(uint8(a.Kind))
	hh.PutUint32(uint32(a.ChainID))
	hh.PutUint64(uint64(a.Height))
	hh.PutBytes(a.BlockHeaderHash[:])
	hh.PutBytes(a.MerkleRoot[:])
	hh.PutBytes(a.CrossChainExtraRoot[:])
	{
		subIndx := hh.Index()
		num := uint64(len(a.IndexedMerklePaths))
		if num > MaxIndexedMerklePaths {
			return ssz.ErrIncorrectListSize
		}
		for ii := range a.IndexedMerklePaths {
			if err := a.IndexedMerklePaths[ii].HashTreeRootWith(hh); err != nil {
				return err
			}
		}
		hh.MerkleizeWithMixin(subIndx, num, MaxIndexedMerklePaths)
	}
	hh.Merkleize(indx)
	return nil
}

// CrossChainBlockData

func attestationListSize(list []*BlockAttestation) int {
	size := 0
	for _, a := range list {
		size += 4 + a.SizeSSZ()
	}
	return size
}

func marshalAttestationList(dst []byte, list []*BlockAttestation, name string) ([]byte, error) {
	if size := len(list); size > MaxBatchAttestations {
		return dst, ssz.ErrListTooBigFn(name, size, MaxBatchAttestations)
	}
	offset := 4 * len(list)
	for ii, a := range list {
		if a == nil {
			return dst, fmt.Errorf("%s[%d]: nil attestation", name, ii)
		}
		dst = ssz.WriteOffset(dst, offset)
		offset += a.SizeSSZ()
	}
	var err error
	for _, a := range list {
		if dst, err = a.MarshalSSZTo(dst); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

func unmarshalAttestationList(buf []byte) ([]*BlockAttestation, error) {
	items, err := splitDynamicList(buf, MaxBatchAttestations)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	list := make([]*BlockAttestation, len(items))
	for ii, item := range items {
		list[ii] = new(BlockAttestation)
		if err := list[ii].UnmarshalSSZ(item); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func hashAttestationList(hh ssz.HashWalker, list []*BlockAttestation) error {
	subIndx := hh.Index()
	num := uint64(len(list))
	if num > MaxBatchAttestations {
		return ssz.ErrIncorrectListSize
	}
	for _, a := range list {
		if err := a.HashTreeRootWith(hh); err != nil {
			return err
		}
	}
	hh.MerkleizeWithMixin(subIndx, num, MaxBatchAttestations)
	return nil
}

func (d *CrossChainBlockData) SizeSSZ() int {
	return blockDataFixed + attestationListSize(d.SideChain) + attestationListSize(d.ParentChain)
}

func (d *CrossChainBlockData) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(d) }

func (d *CrossChainBlockData) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf
	offset := blockDataFixed
	dst = ssz.WriteOffset(dst, offset)
	offset += attestationListSize(d.SideChain)
	dst = ssz.WriteOffset(dst, offset)

	if dst, err = marshalAttestationList(dst, d.SideChain, "CrossChainBlockData.SideChain"); err != nil {
		return
	}
	return marshalAttestationList(dst, d.ParentChain, "CrossChainBlockData.ParentChain")
}

func (d *CrossChainBlockData) UnmarshalSSZ(buf []byte) error {
	size := uint64(len(buf))
	if size < blockDataFixed {
		return ssz.ErrSize
	}
	o0 := ssz.ReadOffset(buf[0:4])
	if o0 > size {
		return ssz.ErrOffset
	}
	if o0 != blockDataFixed {
		return ssz.ErrInvalidVariableOffset
	}
	o1 := ssz.ReadOffset(buf[4:8])
	if o1 > size || o0 > o1 {
		return ssz.ErrOffset
	}

	var err error
	if d.SideChain, err = unmarshalAttestationList(buf[o0:o1]); err != nil {
		return err
	}
	if d.ParentChain, err = unmarshalAttestationList(buf[o1:]); err != nil {
		return err
	}
	return nil
}

func (d *CrossChainBlockData) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(d) }

func (d *CrossChainBlockData) GetTree() (*ssz.Node, error) { return ssz.ProofTree(d) }

func (d *CrossChainBlockData) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	if err := hashAttestationList(hh, d.SideChain); err != nil {
		return err
	}
	if err := hashAttestationList(hh, d.ParentChain); err != nil {
		return err
	}
	hh.Merkleize(indx)
	return nil
}

// RecordInput

func (r *RecordInput) SizeSSZ() int { return recordInputFixed + r.Batch.SizeSSZ() }

func (r *RecordInput) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(r) }

func (r *RecordInput) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf
	dst = append(dst, r.Proposer[:]...)
	dst = ssz.WriteOffset(dst, recordInputFixed)
	return r.Batch.MarshalSSZTo(dst)
}

func (r *RecordInput) UnmarshalSSZ(buf []byte) error {
	size := uint64(len(buf))
	if size < recordInputFixed {
		return ssz.ErrSize
	}
	copy(r.Proposer[:], buf[0:20])
	o1 := ssz.ReadOffset(buf[20:24])
	if o1 > size {
		return ssz.ErrOffset
	}
	if o1 != recordInputFixed {
		return ssz.ErrInvalidVariableOffset
	}
	return r.Batch.UnmarshalSSZ(buf[o1:])
}

func (r *RecordInput) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(r) }

func (r *RecordInput) GetTree() (*ssz.Node, error) { return ssz.ProofTree(r) }

func (r *RecordInput) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	hh.PutBytes(r.Proposer[:])
	if err := r.Batch.HashTreeRootWith(hh); err != nil {
		return err
	}
	hh.Merkleize(indx)
	return nil
}

// IndexingProposal

func (p *IndexingProposal) SizeSSZ() int { return indexingProposalFixed + p.Batch.SizeSSZ() }

func (p *IndexingProposal) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(p) }

func (p *IndexingProposal) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf
	dst = append(dst, p.Proposer[:]...)
	dst = append(dst, p.ProposalID[:]...)
	dst = ssz.MarshalUint8(dst, uint8(p.Status))
	dst = ssz.MarshalUint64(dst, p.Version)
	dst = ssz.WriteOffset(dst, indexingProposalFixed)
	return p.Batch.MarshalSSZTo(dst)
}

func (p *IndexingProposal) UnmarshalSSZ(buf []byte) error {
	size := uint64(len(buf))
	if size < indexingProposalFixed {
		return ssz.ErrSize
	}
	copy(p.Proposer[:], buf[0:20])
	copy(p.ProposalID[:], buf[20:52])
	p.Status = ProposalStatus(ssz.UnmarshallUint8(buf[52:53]))
	p.Version = ssz.UnmarshallUint64(buf[53:61])
	o4 := ssz.ReadOffset(buf[61:65])
	if o4 > size {
		return ssz.ErrOffset
	}
	if o4 != indexingProposalFixed {
		return ssz.ErrInvalidVariableOffset
	}
	return p.Batch.UnmarshalSSZ(buf[o4:])
}

func (p *IndexingProposal) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(p) }

func (p *IndexingProposal) GetTree() (*ssz.Node, error) { return ssz.ProofTree(p) }

func (p *IndexingProposal) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	hh.PutBytes(p.Proposer[:])
	hh.PutBytes(p.ProposalID[:])
	hh.PutUint8(uint8(p.Status))
	hh.PutUint64(p.Version)
	if err := p.Batch.HashTreeRootWith(hh); err != nil {
		return err
	}
	hh.Merkleize(indx)
	return nil
}

// SideChainInfo

func (s *SideChainInfo) SizeSSZ() int { return sideChainInfoSize }

func (s *SideChainInfo) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(s) }

func (s *SideChainInfo) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf
	dst = ssz.MarshalUint32(dst, uint32(s.ChainID))
	dst = append(dst, s.Proposer[:]...)
	dst = ssz.MarshalUint8(dst, uint8(s.Status))
	dst = ssz.MarshalUint64(dst, uint64(s.IndexingPrice))
	dst = ssz.MarshalUint64(dst, uint64(s.CreationHeight))
	return
}

func (s *SideChainInfo) UnmarshalSSZ(buf []byte) error {
	if len(buf) != sideChainInfoSize {
		return ssz.ErrSize
	}
	s.ChainID = ChainID(int32(ssz.UnmarshallUint32(buf[0:4])))
	copy(s.Proposer[:], buf[4:24])
	s.Status = SideChainStatus(ssz.UnmarshallUint8(buf[24:25]))
	s.IndexingPrice = int64(ssz.UnmarshallUint64(buf[25:33]))
	s.CreationHeight = int64(ssz.UnmarshallUint64(buf[33:41]))
	return nil
}

func (s *SideChainInfo) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(s) }

func (s *SideChainInfo) GetTree() (*ssz.Node, error) { return ssz.ProofTree(s) }

func (s *SideChainInfo) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	hh.PutUint32(uint32(s.ChainID))
	hh.PutBytes(s.Proposer[:])
	hh.PutUint8(uint8(s.Status))
	hh.PutUint64(uint64(s.IndexingPrice))
	hh.PutUint64(uint64(s.CreationHeight))
	hh.Merkleize(indx)
	return nil
}

// ChainStateView

func (v *ChainStateView) SizeSSZ() int {
	return chainStateViewFixed + len(v.SideChainHeights)*chainHeightSize
}

func (v *ChainStateView) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(v) }

func (v *ChainStateView) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf
	dst = ssz.MarshalUint32(dst, uint32(v.ParentChainID))
	dst = ssz.MarshalUint64(dst, uint64(v.ParentChainHeight))
	dst = ssz.WriteOffset(dst, chainStateViewFixed)

	if size := len(v.SideChainHeights); size > MaxSnapshotSideChains {
		err = ssz.ErrListTooBigFn("ChainStateView.SideChainHeights", size, MaxSnapshotSideChains)
		return
	}
	for _, ch := range v.SideChainHeights {
		dst = ssz.MarshalUint32(dst, uint32(ch.ChainID))
		dst = ssz.MarshalUint64(dst, uint64(ch.Height))
	}
	return
}

func (v *ChainStateView) UnmarshalSSZ(buf []byte) error {
	size := uint64(len(buf))
	if size < chainStateViewFixed {
		return ssz.ErrSize
	}
	v.ParentChainID = ChainID(int32(ssz.UnmarshallUint32(buf[0:4])))
	v.ParentChainHeight = int64(ssz.UnmarshallUint64(buf[4:12]))
	o2 := ssz.ReadOffset(buf[12:16])
	if o2 > size {
		return ssz.ErrOffset
	}
	if o2 != chainStateViewFixed {
		return ssz.ErrInvalidVariableOffset
	}

	tail := buf[o2:]
	num, err := ssz.DivideInt2(len(tail), chainHeightSize, MaxSnapshotSideChains)
	if err != nil {
		return err
	}
	v.SideChainHeights = make([]ChainHeight, num)
	for ii := 0; ii < num; ii++ {
		item := tail[ii*chainHeightSize : (ii+1)*chainHeightSize]
		v.SideChainHeights[ii] = ChainHeight{
			ChainID: ChainID(int32(ssz.UnmarshallUint32(item[0:4]))),
			Height:  int64(ssz.UnmarshallUint64(item[4:12])),
		}
	}
	return nil
}

func (v *ChainStateView) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(v) }

func (v *ChainStateView) GetTree() (*ssz.Node, error) { return ssz.ProofTree(v) }

func (v *ChainStateView) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	hh.PutUint32(uint32(v.ParentChainID))
	hh.PutUint64(uint64(v.ParentChainHeight))
	{
		subIndx := hh.Index()
		num := uint64(len(v.SideChainHeights))
		if num > MaxSnapshotSideChains {
			return ssz.ErrIncorrectListSize
		}
		for _, ch := range v.SideChainHeights {
			elemIndx := hh.Index()
			hh.PutUint32(uint32(ch.ChainID))
			hh.PutUint64(uint64(ch.Height))
			hh.Merkleize(elemIndx)
		}
		hh.MerkleizeWithMixin(subIndx, num, MaxSnapshotSideChains)
	}
	hh.Merkleize(indx)
	return nil
}

// SideChainCreationRequest

const sideChainCreationRequestSize = 36

func (r *SideChainCreationRequest) SizeSSZ() int { return sideChainCreationRequestSize }

func (r *SideChainCreationRequest) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(r) }

func (r *SideChainCreationRequest) MarshalSSZTo(buf []byte) (dst []byte, err error) {
	dst = buf
	dst = append(dst, r.Proposer[:]...)
	dst = ssz.MarshalUint64(dst, uint64(r.IndexingPrice))
	dst = ssz.MarshalUint64(dst, uint64(r.LockedTokenAmount))
	return
}

func (r *SideChainCreationRequest) UnmarshalSSZ(buf []byte) error {
	if len(buf) != sideChainCreationRequestSize {
		return ssz.ErrSize
	}
	copy(r.Proposer[:], buf[0:20])
	r.IndexingPrice = int64(ssz.UnmarshallUint64(buf[20:28]))
	r.LockedTokenAmount = int64(ssz.UnmarshallUint64(buf[28:36]))
	return nil
}

func (r *SideChainCreationRequest) HashTreeRoot() ([32]byte, error) { return ssz.HashWithDefaultHasher(r) }

func (r *SideChainCreationRequest) GetTree() (*ssz.Node, error) { return ssz.ProofTree(r) }

func (r *SideChainCreationRequest) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	hh.PutBytes(r.Proposer[:])
	hh.PutUint64(uint64(r.IndexingPrice))
	hh.PutUint64(uint64(r.LockedTokenAmount))
	hh.Merkleize(indx)
	return nil
}
