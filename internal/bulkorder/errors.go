package bulkorder

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacity means the leaves do not fit the tree height.
	ErrCapacity = errors.New("bulkorder: tree capacity exceeded")
	// ErrIndexOutOfRange is a capacity error raised when reading a slot
	// outside [0, 2^height).
	ErrIndexOutOfRange = fmt.Errorf("%w: index out of range", ErrCapacity)
	// ErrInvalidHeight is returned for a non-positive tree height.
	ErrInvalidHeight = errors.New("bulkorder: invalid height")
	// ErrInvalidStartIndex is returned for a negative start index.
	ErrInvalidStartIndex = errors.New("bulkorder: invalid start index")
	// ErrInvalidDirectory is returned for directory code without the 0xfe
	// prefix.
	ErrInvalidDirectory = errors.New("bulkorder: invalid type hash directory")
	// ErrMalformedSignature covers packed bulk signatures and signatures
	// that are neither 64 nor 65 bytes.
	ErrMalformedSignature = errors.New("bulkorder: malformed signature")
)
