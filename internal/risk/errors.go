package risk

import "errors"

var (
	// ErrInvalidProposal means the proposal failed validation before any
	// limit was consulted.
	ErrInvalidProposal = errors.New("risk: invalid trade proposal")

	// ErrStoreUnavailable means limits or daily state could not be read or
	// written. Admission fails closed on it.
	ErrStoreUnavailable = errors.New("risk: store unavailable")

	// ErrTimeout means the scope locks could not be acquired within the
	// configured window. No state was changed.
	ErrTimeout = errors.New("risk: admission lock timeout")
)
