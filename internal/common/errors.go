// Package common defines shared constants and sentinel errors used across
// repositories, services and transport layers. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level error kinds. Each maps to a single transport status.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorBadRequest   = errors.New("bad request")
	ErrorConflict     = errors.New("conflict")
	ErrorGone         = errors.New("gone")
	ErrorInternal     = errors.New("internal error")

	// ErrInvalidToken covers every reason a signed token can be rejected.
	ErrInvalidToken = errors.New("invalid token")
)

// Error is a domain failure carrying a client-facing message. Kind is one of
// the service-level sentinels above, so errors.Is(err, ErrorForbidden) holds
// for an *Error of that kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// NewError builds an *Error of the given kind.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Unauthorized, Forbidden, BadRequest, NotFound and Gone are shorthands for
// NewError with the matching kind.
func Unauthorized(message string) *Error { return NewError(ErrorUnauthorized, message) }

func Forbidden(message string) *Error { return NewError(ErrorForbidden, message) }

func BadRequest(message string) *Error { return NewError(ErrorBadRequest, message) }

func NotFound(message string) *Error { return NewError(ErrorNotFound, message) }

func Gone(message string) *Error { return NewError(ErrorGone, message) }

// MessageOf returns the client-facing message of err when it is an *Error.
func MessageOf(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Message, true
	}
	return "", false
}
