// Package apperr classifies client errors into the three kinds the front-ends
// render differently: connection problems, server rejections and local
// precondition failures.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the error category.
type Kind int

const (
	// KindConnection covers unreachable servers, timeouts and malformed
	// responses. Always retryable.
	KindConnection Kind = iota + 1
	// KindRejected is a well-formed {basarili:false, hata} response.
	KindRejected
	// KindPrecondition is raised locally before any network call.
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindRejected:
		return "rejected"
	case KindPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// ConnectionMessage is what users see for every connection error.
const ConnectionMessage = "could not reach server"

// Error is the error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same call may succeed.
func (e *Error) Retryable() bool { return e.Kind == KindConnection }

// Connection wraps a transport failure.
func Connection(op string, err error) *Error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

// Rejected builds an error from a server-supplied message.
func Rejected(op string, status int, message string) *Error {
	return &Error{Kind: KindRejected, Op: op, Status: status, Message: message}
}

// Precondition builds a local validation error.
func Precondition(op, message string) *Error {
	return &Error{Kind: KindPrecondition, Op: op, Message: message}
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsConnection reports whether err is a connection error.
func IsConnection(err error) bool { return KindOf(err) == KindConnection }

// IsRejected reports whether err is a server rejection.
func IsRejected(err error) bool { return KindOf(err) == KindRejected }

// IsPrecondition reports whether err is a local precondition failure.
func IsPrecondition(err error) bool { return KindOf(err) == KindPrecondition }

// UserMessage renders err for display. Server messages are passed through
// verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Kind {
	case KindConnection:
		return ConnectionMessage
	default:
		if e.Message != "" {
			return e.Message
		}
		return e.Error()
	}
}
