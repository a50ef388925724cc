package escrow

import "errors"

// The error taxonomy surfaced by escrow operations. Every check fails the
// whole operation before any mutation becomes visible; errors propagate
// verbatim to the caller.
var (
	// ErrNilState indicates the engine was used before SetState.
	ErrNilState = errors.New("escrow: state not configured")
	// ErrEscrowNotFound marks a missing escrow record.
	ErrEscrowNotFound = errors.New("escrow: escrow not found")
	// ErrEscrowExists rejects a second escrow for the same (buyer, seller)
	// derivation.
	ErrEscrowExists = errors.New("escrow: escrow already exists for parties")
	// ErrInvalidState marks an operation that is illegal for the current
	// status.
	ErrInvalidState = errors.New("escrow: invalid state for operation")
	// ErrAlreadyFinalized marks an operation against a terminal escrow.
	ErrAlreadyFinalized = errors.New("escrow: escrow already finalized")
	// ErrUnauthorized marks a caller lacking the required role.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrUnauthorizedArbiter marks a resolution attempt by an unknown or
	// deactivated arbiter.
	ErrUnauthorizedArbiter = errors.New("escrow: caller is not an active arbiter")
	// ErrInsufficientFunds marks a transfer that would underflow a balance.
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
	// ErrInvalidAmount marks an amount outside the allowed bounds.
	ErrInvalidAmount = errors.New("escrow: invalid amount")
	// ErrInvalidParties rejects identical or zero buyer/seller identities.
	ErrInvalidParties = errors.New("escrow: invalid parties")
	// ErrOverflow marks arithmetic exceeding the representable range.
	ErrOverflow = errors.New("escrow: arithmetic overflow")
	// ErrInvalidResolution marks an unknown dispute resolution.
	ErrInvalidResolution = errors.New("escrow: invalid resolution")
)
