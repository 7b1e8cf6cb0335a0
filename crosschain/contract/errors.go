package contract

import "errors"

var (
	// Validation failures
	ErrValidationFailure = errors.New("cross chain data validation failed")
	ErrInvalidRequest    = errors.New("invalid side chain request")

	// Authorization failures
	ErrNotValidator  = errors.New("sender is not a current validator")
	ErrBanned        = errors.New("sender is banned from proposing")
	ErrUnauthorized  = errors.New("sender is not the controlling organization")
	ErrUnknownMethod = errors.New("unknown governance method")

	// Lifecycle violations
	ErrWrongStatus       = errors.New("indexing proposal slot is in the wrong status")
	ErrProposalMismatch  = errors.New("proposal does not match the pending proposal")
	ErrNotExpired        = errors.New("pending proposal has not expired")
	ErrNoPendingProposal = errors.New("no pending indexing proposal")
	ErrChainNotFound     = errors.New("side chain not found")
	ErrChainTerminated   = errors.New("side chain terminated")
	ErrCreationPending   = errors.New("side chain creation request already pending")
	ErrNoPendingCreation = errors.New("no pending side chain creation request")
)
