// Package apierror normalizes transport and HTTP failures from the lending
// backend into typed errors with a kind, a retry hint and a CLI exit code.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure
type Kind string

const (
	KindTransport    Kind = "transport"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindInvalid      Kind = "invalid_response"
	KindUnknown      Kind = "unknown"
)

// Exit codes used by the CLI
const (
	ExitSuccess  = 0
	ExitGeneral  = 1
	ExitAuth     = 2
	ExitBlocked  = 3
	ExitNotFound = 4
)

// Sentinels for errors.Is
var (
	ErrTransport    = errors.New("backend unreachable")
	ErrUnauthorized = errors.New("session expired or invalid")
	ErrConflict     = errors.New("request conflicts with account state")
	ErrNotFound     = errors.New("record not found")
	ErrInvalid      = errors.New("invalid backend response")
	ErrUnknown      = errors.New("backend failure")
)

// Error is a normalized gateway failure
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 for transport failures
	Message string // server-provided message when available
	Op      string // operation that failed, e.g. "fetch loans"
	Err     error  // underlying cause
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap exposes the cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

// Retryable reports whether a user-initiated retry could succeed
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindUnknown:
		return true
	default:
		return false
	}
}

// Hint is a short remediation suggestion for CLI output
func (e *Error) Hint() string {
	switch e.Kind {
	case KindTransport:
		return "Check that the lending server is running and --api-url is correct"
	case KindUnauthorized:
		return "Sign in again with 'lending login'"
	case KindNotFound:
		return "Check the identifier with 'lending catalog'"
	case KindUnknown:
		return "Try again later"
	default:
		return ""
	}
}

// ExitCode maps the kind to a process exit code
func (e *Error) ExitCode() int {
	switch e.Kind {
	case KindUnauthorized:
		return ExitAuth
	case KindConflict:
		return ExitBlocked
	case KindNotFound:
		return ExitNotFound
	default:
		return ExitGeneral
	}
}

func sentinel(k Kind) error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindUnauthorized:
		return ErrUnauthorized
	case KindConflict:
		return ErrConflict
	case KindNotFound:
		return ErrNotFound
	case KindInvalid:
		return ErrInvalid
	default:
		return ErrUnknown
	}
}

// Transport wraps a network-level failure
func Transport(op string, err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Op:      op,
		Message: "could not connect to the lending server",
		Err:     err,
	}
}

// Invalid wraps a payload that could not be decoded
func Invalid(op string, err error) *Error {
	return &Error{
		Kind:    KindInvalid,
		Op:      op,
		Message: fmt.Sprintf("unexpected response: %v", err),
		Err:     err,
	}
}

// FromStatus builds an error for a non-success HTTP response. message is the
// server's own message when the body carried one.
func FromStatus(op string, status int, message string) *Error {
	e := &Error{Op: op, Status: status, Message: message}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
		if e.Message == "" {
			e.Message = "not authorized, check your credentials"
		}
	case status == http.StatusForbidden:
		// Only 401 means the session is gone; a 403 refuses this one action
		e.Kind = KindConflict
		if e.Message == "" {
			e.Message = "not allowed for this account"
		}
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
		if e.Message == "" {
			e.Message = "record not found"
		}
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		e.Kind = KindConflict
		if e.Message == "" {
			e.Message = "request rejected by the server"
		}
	case status >= 500:
		e.Kind = KindUnknown
		if e.Message == "" {
			e.Message = "server error, try again later"
		}
	case status >= 400:
		e.Kind = KindUnknown
		if e.Message == "" {
			e.Message = "invalid data, check the request"
		}
	default:
		e.Kind = KindUnknown
		if e.Message == "" {
			e.Message = fmt.Sprintf("unexpected status %d", status)
		}
	}
	return e
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsUnauthorized reports whether err should tear down the session
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
