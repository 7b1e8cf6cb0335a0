// Package governance defines the proposal/approval/release collaborator the
// cross-chain contract relies on.
package governance

import (
	"context"
	"errors"
	"time"

	"github.com/geanlabs/xchain/types"
)

var (
	ErrUnknownOrganization = errors.New("unknown organization")
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrProposalExpired     = errors.New("proposal expired")
	ErrAlreadyApproved     = errors.New("proposal already approved by sender")
	ErrNotApproved         = errors.New("proposal has not reached the release threshold")
	ErrNotValidator        = errors.New("sender is not a current validator")
	ErrInvalidExpiry       = errors.New("proposal expiry is not in the future")
)

// ProposalRequest describes a proposal to execute Method with Payload on the
// target once the organization approves it.
type ProposalRequest struct {
	Organization types.Address
	Proposer     types.Address
	Method       string
	Payload      []byte
	Expiry       time.Time
	// NotifyOnThreshold makes governance call the target's ReleaseApproved
	// as soon as the threshold is reached.
	NotifyOnThreshold bool
}

// ProposalInfo is the current state of a proposal.
type ProposalInfo struct {
	ID           types.Hash
	Organization types.Address
	Proposer     types.Address
	Method       string
	Payload      []byte
	Expiry       time.Time
	Approvals    int
	Approved     bool
}

// Expired reports whether the proposal can no longer be approved or released at now.
func (p ProposalInfo) Expired(now time.Time) bool {
	return !now.Before(p.Expiry)
}

// Governance creates and releases proposals.
type Governance interface {
	CreateProposal(ctx context.Context, req ProposalRequest) (types.Hash, error)
	GetProposal(id types.Hash) (ProposalInfo, bool)
	Release(ctx context.Context, call types.CallContext, id types.Hash) error
}

// Target is the contract proposals execute against. Calls made by governance
// carry the organization address as sender.
type Target interface {
	ReleaseApproved(ctx context.Context, call types.CallContext, id types.Hash, payload []byte) error
	Execute(ctx context.Context, call types.CallContext, method string, payload []byte) error
}

// ValidatorSet answers who currently produces blocks.
type ValidatorSet interface {
	IsCurrentValidator(addr types.Address) bool
	Validators() []types.Address
}

// StaticValidators is a fixed validator set.
type StaticValidators []types.Address

func (s StaticValidators) IsCurrentValidator(addr types.Address) bool {
	for _, v := range s {
		if v == addr {
			return true
		}
	}
	return false
}

func (s StaticValidators) Validators() []types.Address {
	return append([]types.Address(nil), s...)
}
