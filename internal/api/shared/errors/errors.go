package errors

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Client errors (4xx)
	ErrCodeBadRequest        ErrorCode = "bad_request"
	ErrCodeNotFound          ErrorCode = "not_found"
	ErrCodeValidationFailed  ErrorCode = "validation_failed"
	ErrCodeUnauthorized      ErrorCode = "unauthorized"
	ErrCodeForbidden         ErrorCode = "forbidden"
	ErrCodeIdempotencyReused ErrorCode = "idempotency_key_reused"

	// Server errors (5xx)
	ErrCodeInternalError    ErrorCode = "internal_error"
	ErrCodeStoreUnavailable ErrorCode = "store_unavailable"
)

// APIError represents a structured API error that carries error code and details
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	jsonErr, _ := json.Marshal(e)
	return string(jsonErr)
}

func newError(code ErrorCode, message string, details ...string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

// Error constructors for common error types
func NewBadRequestError(message string, details ...string) *APIError {
	return newError(ErrCodeBadRequest, message, details...)
}

func NewNotFoundError(message string, details ...string) *APIError {
	return newError(ErrCodeNotFound, message, details...)
}

func NewValidationError(details ...string) *APIError {
	return newError(ErrCodeValidationFailed, "Validation failed", details...)
}

func NewUnauthorizedError(message string, details ...string) *APIError {
	return newError(ErrCodeUnauthorized, message, details...)
}

func NewForbiddenError(message string, details ...string) *APIError {
	return newError(ErrCodeForbidden, message, details...)
}

func NewIdempotencyReusedError(details ...string) *APIError {
	return newError(ErrCodeIdempotencyReused, "Idempotency key was already used for a different request", details...)
}

func NewInternalError(message string, details ...string) *APIError {
	return newError(ErrCodeInternalError, message, details...)
}

func NewStoreUnavailableError(details ...string) *APIError {
	return newError(ErrCodeStoreUnavailable, "Territory store unavailable", details...)
}

// StatusForReason maps a claim outcome to its HTTP status
func StatusForReason(reason domain.ReasonCode) int {
	switch reason {
	case domain.ReasonClaimed, domain.ReasonRefreshed, domain.ReasonAbandoned:
		return http.StatusOK
	case domain.ReasonTrustRejected:
		return http.StatusForbidden
	case domain.ReasonNotFound:
		return http.StatusNotFound
	case domain.ReasonLocked, domain.ReasonConflict, domain.ReasonOutOfState:
		return http.StatusConflict
	case domain.ReasonOutOfRange:
		return http.StatusUnprocessableEntity
	case domain.ReasonStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
