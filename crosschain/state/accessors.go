package state

import (
	"encoding/binary"
	"fmt"

	"github.com/geanlabs/xchain/types"
)

// Binding records where one of this chain's blocks sits in the parent chain.
type Binding struct {
	ParentHeight int64
	Path         types.MerklePath
}

func (tx *Tx) getInt64(key []byte) (int64, bool, error) {
	v, ok, err := tx.get(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := decodeInt64(v)
	return n, true, err
}

func (tx *Tx) getHash(key []byte) (types.Hash, bool, error) {
	v, ok, err := tx.get(key)
	if err != nil || !ok {
		return types.Hash{}, ok, err
	}
	if len(v) != 32 {
		return types.Hash{}, false, ErrCorrupt
	}
	var h types.Hash
	copy(h[:], v)
	return h, true, nil
}

// Proposal returns the indexing proposal slot. An unset slot is NonProposed.
func (tx *Tx) Proposal() (*types.IndexingProposal, error) {
	v, ok, err := tx.get(keyProposal)
	if err != nil {
		return nil, fmt.Errorf("read proposal: %w", err)
	}
	p := new(types.IndexingProposal)
	if !ok {
		return p, nil
	}
	if err := p.UnmarshalSSZ(v); err != nil {
		return nil, fmt.Errorf("%w: proposal: %v", ErrCorrupt, err)
	}
	return p, nil
}

func (tx *Tx) PutProposal(p *types.IndexingProposal) error {
	data, err := p.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("encode proposal: %w", err)
	}
	tx.put(keyProposal, data)
	return nil
}

// SideChainIDs returns the registered side chains in creation order.
func (tx *Tx) SideChainIDs() ([]types.ChainID, error) {
	v, _, err := tx.get(keySideChainIDs)
	if err != nil {
		return nil, fmt.Errorf("read side chain ids: %w", err)
	}
	if len(v)%4 != 0 {
		return nil, ErrCorrupt
	}
	ids := make([]types.ChainID, len(v)/4)
	for i := range ids {
		ids[i] = types.ChainID(int32(binary.BigEndian.Uint32(v[i*4:])))
	}
	return ids, nil
}

func (tx *Tx) SideChainInfo(id types.ChainID) (*types.SideChainInfo, bool, error) {
	v, ok, err := tx.get(chainKey(prefixSideInfo, id))
	if err != nil || !ok {
		return nil, false, err
	}
	info := new(types.SideChainInfo)
	if err := info.UnmarshalSSZ(v); err != nil {
		return nil, false, fmt.Errorf("%w: side chain %s: %v", ErrCorrupt, id, err)
	}
	return info, true, nil
}

// PutSideChainInfo stores info, registering the chain id on first write.
func (tx *Tx) PutSideChainInfo(info *types.SideChainInfo) error {
	_, exists, err := tx.SideChainInfo(info.ChainID)
	if err != nil {
		return err
	}
	if !exists {
		ids, _, err := tx.get(keySideChainIDs)
		if err != nil {
			return err
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(info.ChainID))
		tx.put(keySideChainIDs, append(append([]byte(nil), ids...), buf[:]...))
	}
	data, err := info.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("encode side chain info: %w", err)
	}
	tx.put(chainKey(prefixSideInfo, info.ChainID), data)
	return nil
}

// SideChainHeight returns the last indexed height of a side chain, 0 if none.
func (tx *Tx) SideChainHeight(id types.ChainID) (int64, error) {
	h, _, err := tx.getInt64(chainKey(prefixSideHeight, id))
	return h, err
}

func (tx *Tx) PutSideChainHeight(id types.ChainID, height int64) {
	tx.put(chainKey(prefixSideHeight, id), encodeInt64(height))
}

func (tx *Tx) IndexingBalance(id types.ChainID) (int64, error) {
	b, _, err := tx.getInt64(chainKey(prefixSideBalance, id))
	return b, err
}

func (tx *Tx) PutIndexingBalance(id types.ChainID, balance int64) {
	tx.put(chainKey(prefixSideBalance, id), encodeInt64(balance))
}

// ParentChainID returns the parent chain, 0 when this chain has none.
func (tx *Tx) ParentChainID() (types.ChainID, error) {
	v, ok, err := tx.get(keyParentChainID)
	if err != nil || !ok {
		return 0, err
	}
	if len(v) != 4 {
		return 0, ErrCorrupt
	}
	return types.ChainID(int32(binary.BigEndian.Uint32(v))), nil
}

func (tx *Tx) PutParentChainID(id types.ChainID) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(id))
	tx.put(keyParentChainID, buf[:])
}

func (tx *Tx) ParentChainHeight() (int64, error) {
	h, _, err := tx.getInt64(keyParentHeight)
	return h, err
}

func (tx *Tx) PutParentChainHeight(height int64) {
	tx.put(keyParentHeight, encodeInt64(height))
}

// ParentChainRoot returns the transaction status root of the parent block at height.
func (tx *Tx) ParentChainRoot(height int64) (types.Hash, bool, error) {
	return tx.getHash(heightKey(prefixParentRoot, height))
}

func (tx *Tx) PutParentChainRoot(height int64, root types.Hash) {
	tx.put(heightKey(prefixParentRoot, height), root[:])
}

// CousinRoot returns the side-chain root the parent recorded at height.
func (tx *Tx) CousinRoot(parentHeight int64) (types.Hash, bool, error) {
	return tx.getHash(heightKey(prefixCousinRoot, parentHeight))
}

func (tx *Tx) PutCousinRoot(parentHeight int64, root types.Hash) {
	tx.put(heightKey(prefixCousinRoot, parentHeight), root[:])
}

// IndexedSideChainRoot returns the root over the side-chain roots indexed at localHeight.
func (tx *Tx) IndexedSideChainRoot(localHeight int64) (types.Hash, bool, error) {
	return tx.getHash(heightKey(prefixIndexedRoot, localHeight))
}

func (tx *Tx) PutIndexedSideChainRoot(localHeight int64, root types.Hash) {
	tx.put(heightKey(prefixIndexedRoot, localHeight), root[:])
}

func (tx *Tx) Binding(childHeight int64) (*Binding, bool, error) {
	v, ok, err := tx.get(heightKey(prefixBinding, childHeight))
	if err != nil || !ok {
		return nil, false, err
	}
	if len(v) < 8 {
		return nil, false, ErrCorrupt
	}
	b := &Binding{}
	b.ParentHeight, _ = decodeInt64(v[:8])
	if err := b.Path.UnmarshalSSZ(v[8:]); err != nil {
		return nil, false, fmt.Errorf("%w: binding %d: %v", ErrCorrupt, childHeight, err)
	}
	return b, true, nil
}

func (tx *Tx) PutBinding(childHeight int64, b *Binding) error {
	path, err := b.Path.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("encode binding path: %w", err)
	}
	tx.put(heightKey(prefixBinding, childHeight), append(encodeInt64(b.ParentHeight), path...))
	return nil
}

// BannedAt returns the height addr was banned at.
func (tx *Tx) BannedAt(addr types.Address) (int64, bool, error) {
	return tx.getInt64(addressKey(prefixBan, addr))
}

func (tx *Tx) PutBan(addr types.Address, height int64) {
	tx.put(addressKey(prefixBan, addr), encodeInt64(height))
}

func (tx *Tx) DeleteBan(addr types.Address) {
	tx.del(addressKey(prefixBan, addr))
}

func (tx *Tx) LedgerBalance(addr types.Address) (int64, error) {
	b, _, err := tx.getInt64(addressKey(prefixLedger, addr))
	return b, err
}

func (tx *Tx) PutLedgerBalance(addr types.Address, balance int64) {
	tx.put(addressKey(prefixLedger, addr), encodeInt64(balance))
}

// Serial returns the side-chain serial number last assigned.
func (tx *Tx) Serial() (int64, error) {
	n, _, err := tx.getInt64(keySerial)
	return n, err
}

func (tx *Tx) PutSerial(n int64) {
	tx.put(keySerial, encodeInt64(n))
}

// View captures the recorded heights as a ChainStateView.
func (tx *Tx) View() (types.ChainStateView, error) {
	var view types.ChainStateView
	var err error
	if view.ParentChainID, err = tx.ParentChainID(); err != nil {
		return view, err
	}
	if view.ParentChainHeight, err = tx.ParentChainHeight(); err != nil {
		return view, err
	}
	ids, err := tx.SideChainIDs()
	if err != nil {
		return view, err
	}
	for _, id := range ids {
		h, err := tx.SideChainHeight(id)
		if err != nil {
			return view, err
		}
		view.SideChainHeights = append(view.SideChainHeights, types.ChainHeight{ChainID: id, Height: h})
	}
	return view, nil
}

// PutSnapshot records view as the state of block (hash, height).
func (tx *Tx) PutSnapshot(hash types.Hash, height int64, view *types.ChainStateView) error {
	data, err := view.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tx.put(hashKey(prefixSnapshotView, hash), append(encodeInt64(height), data...))
	return nil
}

// HasSnapshot reports whether a view is recorded for hash.
func (tx *Tx) HasSnapshot(hash types.Hash) (bool, error) {
	_, ok, err := tx.get(hashKey(prefixSnapshotView, hash))
	return ok, err
}

// PendingCreation is a side-chain creation request awaiting governance.
type PendingCreation struct {
	ProposalID types.Hash
	Request    types.SideChainCreationRequest
}

func (tx *Tx) PendingCreation(proposer types.Address) (*PendingCreation, bool, error) {
	v, ok, err := tx.get(addressKey(prefixPendingCreation, proposer))
	if err != nil || !ok {
		return nil, false, err
	}
	if len(v) < 32 {
		return nil, false, ErrCorrupt
	}
	p := &PendingCreation{}
	copy(p.ProposalID[:], v[:32])
	if err := p.Request.UnmarshalSSZ(v[32:]); err != nil {
		return nil, false, fmt.Errorf("%w: pending creation: %v", ErrCorrupt, err)
	}
	return p, true, nil
}

func (tx *Tx) PutPendingCreation(proposer types.Address, p *PendingCreation) error {
	req, err := p.Request.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("encode creation request: %w", err)
	}
	tx.put(addressKey(prefixPendingCreation, proposer), append(append([]byte(nil), p.ProposalID[:]...), req...))
	return nil
}

func (tx *Tx) DeletePendingCreation(proposer types.Address) {
	tx.del(addressKey(prefixPendingCreation, proposer))
}
