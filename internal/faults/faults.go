// Package faults defines the request-failure taxonomy shared by all
// coinback orchestrators and handlers.
//
// Every validation or business-rule failure is surfaced to the caller as a
// typed fault with a stable kind; handlers map kinds to HTTP status codes.
package faults

import (
	"errors"
	"net/http"
)

// Kind classifies a request failure.
type Kind string

const (
	Unauthenticated    Kind = "unauthenticated"
	InvalidArgument    Kind = "invalid-argument"
	FailedPrecondition Kind = "failed-precondition"
	NotFound           Kind = "not-found"
	PermissionDenied   Kind = "permission-denied"
	ResourceExhausted  Kind = "resource-exhausted"
	Internal           Kind = "internal"
)

// Fault is a typed request failure.
type Fault struct {
	Kind    Kind
	Message string
}

func (f *Fault) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// New creates a fault of the given kind.
func New(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

// KindOf returns the kind of err, or Internal for untyped errors.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return Internal
}

// Message returns the human-readable message of err.
func Message(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Message
	}
	return err.Error()
}

// HTTPStatus maps a fault kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case InvalidArgument, FailedPrecondition:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case PermissionDenied:
		return http.StatusForbidden
	case ResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
