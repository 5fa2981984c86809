package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an error for retry policy and HTTP mapping
type ErrorKind string

const (
	ErrKindValidation  ErrorKind = "validation"
	ErrKindNotFound    ErrorKind = "not_found"
	ErrKindConflict    ErrorKind = "conflict"
	ErrKindTransient   ErrorKind = "transient"
	ErrKindPermanent   ErrorKind = "permanent"
	ErrKindRateLimited ErrorKind = "rate_limited"
	ErrKindCancelled   ErrorKind = "cancelled"
	ErrKindInternal    ErrorKind = "internal"
)

// Sentinel errors shared across services
var (
	ErrQueueFull         = errors.New("operation queue is full")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrZeroVector        = errors.New("zero vector cannot be normalized")
	ErrStoreDegraded     = errors.New("vector store is running in degraded mode")
)

// AppError is the error type carried across service boundaries. Kind drives
// retry decisions and the HTTP status, Code is the stable machine-readable
// identifier surfaced in API error bodies.
type AppError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Op      string    `json:"op"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithCode overrides the default code derived from the kind
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func newAppError(kind ErrorKind, op, message string, err error) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    defaultCode(kind),
		Op:      op,
		Message: message,
		Err:     err,
	}
}

func defaultCode(kind ErrorKind) string {
	switch kind {
	case ErrKindValidation:
		return "VALIDATION_ERROR"
	case ErrKindNotFound:
		return "NOT_FOUND"
	case ErrKindConflict:
		return "CONFLICT"
	case ErrKindTransient:
		return "SERVICE_UNAVAILABLE"
	case ErrKindPermanent:
		return "UPSTREAM_ERROR"
	case ErrKindRateLimited:
		return "RATE_LIMITED"
	case ErrKindCancelled:
		return "REQUEST_CANCELLED"
	default:
		return "INTERNAL_ERROR"
	}
}

// NewValidationError reports rejected input
func NewValidationError(op, message string) *AppError {
	return newAppError(ErrKindValidation, op, message, nil)
}

// NewNotFoundError reports a missing resource
func NewNotFoundError(op, message string) *AppError {
	return newAppError(ErrKindNotFound, op, message, nil)
}

// NewConflictError reports a state conflict such as a duplicate upload
func NewConflictError(op, message string) *AppError {
	return newAppError(ErrKindConflict, op, message, nil)
}

// NewTransientError wraps a failure that is safe to retry
func NewTransientError(op string, err error) *AppError {
	return newAppError(ErrKindTransient, op, "", err)
}

// NewPermanentError wraps a failure that retrying will not fix
func NewPermanentError(op string, err error) *AppError {
	return newAppError(ErrKindPermanent, op, "", err)
}

// NewRateLimitedError reports an exhausted rate budget
func NewRateLimitedError(op, message string) *AppError {
	return newAppError(ErrKindRateLimited, op, message, nil)
}

// NewCancelledError wraps a context cancellation
func NewCancelledError(op string, err error) *AppError {
	return newAppError(ErrKindCancelled, op, "", err)
}

// NewInternalError wraps an unexpected failure
func NewInternalError(op string, err error) *AppError {
	return newAppError(ErrKindInternal, op, "", err)
}

// KindOf walks the error chain and returns the classification of the
// outermost AppError. Context cancellations classify as cancelled and
// deadline expiry as transient even when never wrapped.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTransient
	}
	return ErrKindInternal
}

// IsTransient reports whether the error is worth retrying
func IsTransient(err error) bool {
	return KindOf(err) == ErrKindTransient
}

// IsNotFound reports whether the error is a missing-resource error
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsValidation reports whether the error is a rejected-input error
func IsValidation(err error) bool {
	return KindOf(err) == ErrKindValidation
}

// IsConflict reports whether the error is a state-conflict error
func IsConflict(err error) bool {
	return KindOf(err) == ErrKindConflict
}

// IsCancelled reports whether the error came from a cancelled context
func IsCancelled(err error) bool {
	return KindOf(err) == ErrKindCancelled
}

// ErrorCode returns the stable code for the API error body
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return defaultCode(KindOf(err))
}

// HTTPStatus maps an error to the response status code
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case "FILE_TOO_LARGE":
			return http.StatusRequestEntityTooLarge
		case "UNSUPPORTED_FORMAT":
			return http.StatusUnsupportedMediaType
		}
	}
	switch KindOf(err) {
	case ErrKindValidation:
		return http.StatusBadRequest
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindConflict:
		return http.StatusConflict
	case ErrKindRateLimited:
		return http.StatusTooManyRequests
	case ErrKindTransient:
		return http.StatusServiceUnavailable
	case ErrKindPermanent:
		return http.StatusBadGateway
	case ErrKindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
