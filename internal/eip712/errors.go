package eip712

import "errors"

var (
	// ErrUnknownType is returned when a type name cannot be resolved against
	// the registry, or a definition is malformed.
	ErrUnknownType = errors.New("unknown type")

	// ErrInvariantViolation is returned when a synthesized struct default is
	// not recursively empty.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrInvalidValue is returned when a value does not fit its declared type.
	ErrInvalidValue = errors.New("invalid value")
)
