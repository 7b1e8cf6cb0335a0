package contract

import (
	"github.com/geanlabs/xchain/crosschain/state"
	"github.com/geanlabs/xchain/types"
)

// TransactionLeaf is the Merkle leaf of a mined transaction.
func TransactionLeaf(txID types.Hash) types.Hash {
	return types.HashOf(append(txID[:], "Mined"...))
}

// VerifyTransaction reports whether path proves txID was mined on chainID
// within the root recorded for parentChainHeight.
func (c *Coordinator) VerifyTransaction(txID types.Hash, path *types.MerklePath, parentChainHeight int64, chainID types.ChainID) (bool, error) {
	root, ok, err := c.GetMerkleRoot(chainID, parentChainHeight)
	if err != nil || !ok {
		return false, err
	}
	return path.ComputeRootWithLeafNode(TransactionLeaf(txID)) == root, nil
}

func merkleRootFor(tx *state.Tx, chainID types.ChainID, height int64) (types.Hash, bool, error) {
	parentID, err := tx.ParentChainID()
	if err != nil {
		return types.Hash{}, false, err
	}
	if parentID != 0 && chainID == parentID {
		return tx.ParentChainRoot(height)
	}
	if _, isSide, err := tx.SideChainInfo(chainID); err != nil {
		return types.Hash{}, false, err
	} else if isSide {
		return tx.IndexedSideChainRoot(height)
	}
	return tx.CousinRoot(height)
}
