package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/GoPolymarket/bulkgate/internal/bulkorder"
	"github.com/GoPolymarket/bulkgate/internal/eip712"
	"github.com/GoPolymarket/bulkgate/internal/signer"
)

type ErrorType string

const (
	ErrSchema             ErrorType = "SCHEMA_ERROR"
	ErrInvariantViolation ErrorType = "INVARIANT_VIOLATION"
	ErrCapacity           ErrorType = "CAPACITY_ERROR"
	ErrInput              ErrorType = "INPUT_ERROR"
	ErrSignatureInvalid   ErrorType = "SIGNATURE_INVALID"
	ErrAuthFailed         ErrorType = "AUTH_FAILED"
	ErrRateLimited        ErrorType = "RATE_LIMITED"
	ErrInvalidRequest     ErrorType = "INVALID_REQUEST"
	ErrInternal           ErrorType = "INTERNAL_ERROR"
	ErrNotFound           ErrorType = "NOT_FOUND"
	ErrConflict           ErrorType = "CONFLICT"
	ErrUpstream           ErrorType = "UPSTREAM_ERROR"
	ErrReadOnly           ErrorType = "READ_ONLY"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewNotFound(msg string) *AppError {
	return New(ErrNotFound, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return FromEngine(err)
}

// FromEngine classifies errors returned by the tree, hashing and signing
// packages. Anything unrecognized is internal.
func FromEngine(err error) *AppError {
	if err == nil {
		return nil
	}
	var t ErrorType
	switch {
	case errors.Is(err, eip712.ErrInvariantViolation):
		t = ErrInvariantViolation
	case errors.Is(err, eip712.ErrUnknownType):
		t = ErrSchema
	case errors.Is(err, bulkorder.ErrCapacity):
		t = ErrCapacity
	case errors.Is(err, signer.ErrSignatureMismatch):
		t = ErrSignatureInvalid
	case errors.Is(err, eip712.ErrInvalidValue),
		errors.Is(err, bulkorder.ErrInvalidHeight),
		errors.Is(err, bulkorder.ErrInvalidStartIndex),
		errors.Is(err, bulkorder.ErrInvalidDirectory),
		errors.Is(err, bulkorder.ErrMalformedSignature):
		t = ErrInput
	default:
		t = ErrInternal
	}
	return New(t, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInput, ErrInvalidRequest, ErrSignatureInvalid:
		return http.StatusBadRequest
	case ErrSchema, ErrCapacity:
		return http.StatusUnprocessableEntity
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrUpstream:
		return http.StatusBadGateway
	case ErrReadOnly:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrCapacity:
		return "Use a larger tree height or fewer orders, and keep proof indexes below 2^height."
	case ErrInput:
		return "Check order fields, heights and signature encoding."
	case ErrSignatureInvalid:
		return "Sign the digest returned when the batch was created with the claimed signer."
	case ErrAuthFailed:
		return "Check API keys."
	case ErrRateLimited:
		return "Retry after a short delay."
	case ErrInvariantViolation:
		return "The order schema is inconsistent; report this as a bug."
	default:
		return ""
	}
}
