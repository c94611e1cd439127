// Package apperr defines the application error taxonomy shared by the
// authorization pipeline, the document services, and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and logging.
type Kind int

const (
	// KindUnknown is an unclassified internal error.
	KindUnknown Kind = iota
	// KindUnauthenticated means no valid identity was presented, or the
	// identity class is insufficient for the operation (e.g. a temporary
	// MFA token used outside MFA completion).
	KindUnauthenticated
	// KindForbidden means the identity is valid but lacks membership, role
	// level, or an allowing subscription state.
	KindForbidden
	// KindBadRequest is a validation failure: invalid state transition,
	// missing required declaration, malformed payload.
	KindBadRequest
	// KindNotFound means the entity does not exist or does not belong to
	// the resolved tenant. Tenant-scoped misses deliberately look the same
	// as cross-tenant denials.
	KindNotFound
	// KindConflict means a concurrent writer won; the caller should re-read.
	KindConflict
	// KindCrypto is a decryption or authentication failure. Detail stays in
	// server logs; clients see a generic internal error.
	KindCrypto
	// KindStorage means the data-access collaborator failed. Retryable.
	KindStorage
)

// Error is a kinded application error.
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

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a formatted error of the given kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }
func Forbidden(message string) *Error       { return New(KindForbidden, message) }
func BadRequest(message string) *Error      { return New(KindBadRequest, message) }
func NotFound(message string) *Error        { return New(KindNotFound, message) }
func Conflict(message string) *Error        { return New(KindConflict, message) }

// Crypto wraps a cryptographic failure.
func Crypto(message string, err error) *Error { return Wrap(KindCrypto, message, err) }

// Storage wraps a data-access failure.
func Storage(message string, err error) *Error { return Wrap(KindStorage, message, err) }

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// HTTPStatus maps an error kind to an HTTP status code. Crypto and storage
// failures are surfaced as opaque 500s.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage returns the message safe to echo back to the caller.
// Internal kinds never leak detail.
func ClientMessage(err error) string {
	switch KindOf(err) {
	case KindUnauthenticated, KindForbidden, KindBadRequest, KindNotFound, KindConflict:
		var ae *Error
		errors.As(err, &ae)
		return ae.Message
	case KindStorage:
		return "storage unavailable, retry later"
	default:
		return "internal error"
	}
}
