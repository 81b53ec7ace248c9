// Package apperror defines the error kinds returned by the service layer and
// their mapping onto HTTP status codes.
package apperror

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidOperation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindInsufficientBalance
	KindRateLimited
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a classified error. Message is safe to show to API clients;
// Err carries the underlying cause for logs only.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func InvalidOperation(message string) *Error {
	return New(KindInvalidOperation, message, nil)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message, nil)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message, nil)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

func Conflict(message string) *Error {
	return New(KindConflict, message, nil)
}

func InsufficientBalance(message string) *Error {
	return New(KindInsufficientBalance, message, nil)
}

func Unavailable(err error) *Error {
	return New(KindUnavailable, "service temporarily unavailable", err)
}

func Internal(err error) *Error {
	return New(KindInternal, "internal server error", err)
}

// Wrap classifies an error coming out of the store. Errors that are already
// classified pass through unchanged; nil stays nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, sql.ErrConnDone):
		return Unavailable(err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return New(KindConflict, "resource already exists", err)
	case strings.Contains(msg, "SQLITE_BUSY"), strings.Contains(msg, "database is locked"), strings.Contains(msg, "database is closed"):
		return Unavailable(err)
	}
	return Internal(err)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindInvalidOperation, KindInsufficientBalance:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message to expose to clients. Internal errors never
// leak their cause.
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Kind == KindInternal {
			return "internal server error"
		}
		return ae.Message
	}
	return "internal server error"
}

// FieldsOf returns the field-level validation messages attached to err, if any.
func FieldsOf(err error) map[string]string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}
