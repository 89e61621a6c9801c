package ring

import "errors"

// The error taxonomy is small, explicit, and orthogonal to Go's
// error-wrapping mechanism: every sentinel below is returned (or
// wrapped with %w) rather than encoded as a distinct type, so callers
// use errors.Is against these values from any package in the module.
var (
	// ErrGeneric covers a bad argument or an otherwise unspecified
	// failure.
	ErrGeneric = errors.New("ring: generic error")

	// ErrNotFound means the identifier does not exist.
	ErrNotFound = errors.New("ring: not found")

	// ErrExists means the identifier is already registered.
	ErrExists = errors.New("ring: already exists")

	// ErrNoNodes means the ring has no eligible nodes for this
	// operation.
	ErrNoNodes = errors.New("ring: no eligible nodes")

	// ErrQuorumFailed means placement succeeded but the healthy
	// replica count fell below the required quorum.
	ErrQuorumFailed = errors.New("ring: quorum not satisfied")

	// ErrInvalidState means the precondition for a requested state
	// transition was not met.
	ErrInvalidState = errors.New("ring: invalid state transition")

	// ErrAllocFailed means an underlying memory allocation failed.
	ErrAllocFailed = errors.New("ring: allocation failed")

	// ErrInvalidConfig means configuration values are incompatible.
	ErrInvalidConfig = errors.New("ring: invalid configuration")
)
