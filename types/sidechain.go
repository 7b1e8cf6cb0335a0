package types

import "fmt"

// SideChainStatus is the lifecycle state of a side chain.
type SideChainStatus uint8

const (
	SideChainActive              SideChainStatus = 1
	SideChainInsufficientBalance SideChainStatus = 2
	SideChainTerminated          SideChainStatus = 3
)

func (s SideChainStatus) String() string {
	switch s {
	case SideChainActive:
		return "Active"
	case SideChainInsufficientBalance:
		return "InsufficientBalance"
	case SideChainTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// SideChainInfo is the registration record of a side chain.
type SideChainInfo struct {
	ChainID        ChainID
	Proposer       Address `ssz-size:"20"`
	Status         SideChainStatus
	IndexingPrice  int64
	CreationHeight int64
}

// ChainHeight pairs a chain with a recorded height.
type ChainHeight struct {
	ChainID ChainID
	Height  int64
}

// ChainStateView is the part of chain state the validation service reads,
// captured as of one block.
type ChainStateView struct {
	ParentChainID     ChainID
	ParentChainHeight int64
	SideChainHeights  []ChainHeight `ssz-max:"1024"`
}

// SideChainHeight returns the recorded height for chainID, or 0 if unknown.
func (v *ChainStateView) SideChainHeight(chainID ChainID) int64 {
	for _, ch := range v.SideChainHeights {
		if ch.ChainID == chainID {
			return ch.Height
		}
	}
	return 0
}

// SideChainCreationRequest asks governance to create a side chain.
type SideChainCreationRequest struct {
	Proposer          Address `ssz-size:"20"`
	IndexingPrice     int64
	LockedTokenAmount int64
}
