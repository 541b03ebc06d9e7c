// Package apperrors defines the error taxonomy shared by the realtime
// gateway and the HTTP surface.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry and surfacing decisions.
type Kind int

const (
	KindInternal Kind = iota
	// KindAuth covers invalid or expired credentials. Recoverable by a
	// token refresh, never by retrying with the same token.
	KindAuth
	// KindForbidden covers authorization failures such as acting on a
	// room without membership. Never retried.
	KindForbidden
	KindNotFound
	// KindValidation covers malformed input. Rejected immediately.
	KindValidation
	KindConflict
	// KindTransient covers infrastructure failures the caller may retry
	// with backoff.
	KindTransient
)

// Error carries a kind alongside the message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets sentinel errors of the same kind and message match via errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New returns a kinded error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns a kinded error wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain, defaulting to internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsTransient reports whether the error may be retried with backoff.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// HTTPStatus maps an error kind to an HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// TypeString returns the snake_case error type used in API responses.
func TypeString(kind Kind) string {
	switch kind {
	case KindAuth:
		return "auth_error"
	case KindForbidden:
		return "forbidden_error"
	case KindNotFound:
		return "not_found_error"
	case KindValidation:
		return "validation_error"
	case KindConflict:
		return "conflict_error"
	case KindTransient:
		return "transient_error"
	default:
		return "internal_error"
	}
}
