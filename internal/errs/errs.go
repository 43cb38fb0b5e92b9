// Package errs defines the error taxonomy shared across clawbench: a closed
// set of kinds, a wrapping Error type, and helpers for mapping a wrapped
// error chain back to its kind at a service boundary.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the error taxonomy entries from the core design.
type Kind string

const (
	Validation     Kind = "validation"
	Authentication Kind = "authentication"
	Authorization  Kind = "authorization"
	NotFound       Kind = "not_found"
	AlreadyExists  Kind = "already_exists"
	InvalidKind    Kind = "invalid_kind"
	Conflict       Kind = "conflict"
	InvalidToken   Kind = "invalid_token"
	SessionExpired Kind = "session_expired"
	Storage        Kind = "storage"
	Internal       Kind = "internal"

	// Provider sub-kinds are distinguished by ProviderKind, not Kind.
	Provider Kind = "provider"
)

// ProviderKind distinguishes the Provider error kind's sub-cases.
type ProviderKind string

const (
	ProviderTimeout     ProviderKind = "timeout"
	ProviderRateLimited ProviderKind = "rate_limited"
	ProviderProtocol    ProviderKind = "protocol"
	ProviderUnavailable ProviderKind = "unavailable"
)

// Error is the concrete error type carried through the system. Message is
// safe to show a user; Details is optional structured context.
type Error struct {
	Kind         Kind
	ProviderKind ProviderKind
	Message      string
	Details      map[string]any
	cause        error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, errs.NotFound) style checks against a bare Kind
// wrapped as an error via New(kind, "").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.ProviderKind != "" && t.ProviderKind != e.ProviderKind {
		return false
	}
	return true
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func NewProvider(pk ProviderKind, message string) *Error {
	return &Error{Kind: Provider, ProviderKind: pk, Message: message}
}

func WithDetails(err *Error, details map[string]any) *Error {
	err.Details = details
	return err
}

// KindOf walks err's chain and returns the first *Error's Kind, or Internal
// if none is found in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// ProviderKindOf returns the ProviderKind of the first *Error in err's chain
// whose Kind is Provider, or "" if none is found.
func ProviderKindOf(err error) ProviderKind {
	var e *Error
	if errors.As(err, &e) && e.Kind == Provider {
		return e.ProviderKind
	}
	return ""
}

// Is is a convenience wrapper over errors.Is for checking against a bare Kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// HTTPStatus maps a Kind to the status code named in the error-handling
// design: Validation/NotFound/Conflict/... map to structured 4xx,
// everything else collapses to an opaque 5xx.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return 400
	case Authentication, InvalidToken, SessionExpired:
		return 401
	case Authorization:
		return 403
	case NotFound:
		return 404
	case AlreadyExists, Conflict:
		return 409
	case InvalidKind:
		return 422
	default:
		return 500
	}
}

// Code returns a stable machine-readable code string for the user-visible
// {error, code, details?} envelope.
func Code(kind Kind) string {
	return string(kind)
}
