package types

import "fmt"

// ProposalStatus is the state of the single indexing proposal slot.
type ProposalStatus uint8

const (
	// StatusNonProposed: the slot is free.
	StatusNonProposed ProposalStatus = iota
	// StatusProposed: a batch is awaiting governance approval.
	StatusProposed
	// StatusToBeReleased: governance approved; waiting for the record call.
	StatusToBeReleased
)

func (s ProposalStatus) String() string {
	switch s {
	case StatusNonProposed:
		return "NonProposed"
	case StatusProposed:
		return "Proposed"
	case StatusToBeReleased:
		return "ToBeReleased"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// IndexingProposal is the single outstanding indexing proposal. Version is
// bumped on every mutation of the slot.
type IndexingProposal struct {
	Proposer   Address `ssz-size:"20"`
	ProposalID Hash    `ssz-size:"32"`
	Status     ProposalStatus
	Version    uint64
	Batch      CrossChainBlockData
}

// RecordInput is the governance payload executed on release.
type RecordInput struct {
	Proposer Address `ssz-size:"20"`
	Batch    CrossChainBlockData
}
