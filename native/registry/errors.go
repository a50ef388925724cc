package registry

import "errors"

var (
	// ErrNilState indicates the engine was used before SetState.
	ErrNilState = errors.New("registry: state not configured")
	// ErrAlreadyInitialized is returned when the config bootstrap runs twice.
	ErrAlreadyInitialized = errors.New("registry: config already initialized")
	// ErrNotInitialized is returned when an operation requires the config
	// singleton before the bootstrap has run.
	ErrNotInitialized = errors.New("registry: config not initialized")
	// ErrFeeTooHigh rejects fee rates above MaxFeeBasisPoints.
	ErrFeeTooHigh = errors.New("registry: fee exceeds 1000 basis points")
	// ErrInvalidFeeCollector rejects a zero fee vault binding.
	ErrInvalidFeeCollector = errors.New("registry: invalid fee collector")
	// ErrUnauthorized is returned when the caller is not the config admin.
	ErrUnauthorized = errors.New("registry: caller is not the admin")
	// ErrInvalidArbiter rejects the zero address as an arbiter identity.
	ErrInvalidArbiter = errors.New("registry: invalid arbiter address")
	// ErrArbiterNotFound is returned when deactivating an unknown arbiter.
	ErrArbiterNotFound = errors.New("registry: arbiter not found")
)
