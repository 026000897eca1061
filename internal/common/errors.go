package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError. The string value is the wire code.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindPayloadTooLarge    Kind = "payload_too_large"
	KindConflict           Kind = "conflict"
	KindExtractionFailed   Kind = "extraction_failed"
	KindBlobWriteFailed    Kind = "blob_write_failed"
	KindBlobDeleteFailed   Kind = "blob_delete_failed"
	KindRecordInsertFailed Kind = "record_insert_failed"
	KindRecordDeleteFailed Kind = "record_delete_failed"
	KindInternal           Kind = "internal"
	KindUnavailable        Kind = "unavailable"
	KindConfig             Kind = "config_error"
)

// AppError represents application-specific errors.
// Message is safe to show to clients; Cause is for logs only.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
)

// Error constructors
func NewAppError(kind Kind, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

func NotFoundError(format string, args ...any) error {
	return NewAppError(KindNotFound, fmt.Sprintf(format, args...), ErrNotFound)
}

func InvalidInputError(format string, args ...any) error {
	return NewAppError(KindInvalidInput, fmt.Sprintf(format, args...), ErrInvalidInput)
}

func ConflictError(format string, args ...any) error {
	return NewAppError(KindConflict, fmt.Sprintf(format, args...), ErrConflict)
}

func ExtractionFailedError(message string, cause error) error {
	return NewAppError(KindExtractionFailed, message, cause)
}

func InternalError(message string, cause error) error {
	return NewAppError(KindInternal, message, cause)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// KindOf returns the Kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// PublicMessage returns the client-facing message for err.
// Errors that are not AppErrors never expose their text.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal server error"
}

// HTTPStatus maps err to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindConflict:
		return http.StatusConflict
	case KindExtractionFailed:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
