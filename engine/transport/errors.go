package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTransport marks network, HTTP status and gRPC status failures
	ErrTransport = errors.New("transport error")

	// ErrAuth marks token exchange failures
	ErrAuth = errors.New("authentication error")

	// ErrDecode marks malformed payloads
	ErrDecode = errors.New("decode error")

	// ErrNotFound marks an absent entity
	ErrNotFound = errors.New("record not found")

	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrUnknownField        = errors.New("unknown field")

	// ErrNotSupported is returned when a transport lacks a capability
	ErrNotSupported = errors.New("operation not supported by transport")
)

// TransportError wraps a failed round trip. Status is the HTTP status code or
// the gRPC status code; zero when the request never got a response.
type TransportError struct {
	Transport Kind
	Op        string
	Path      string
	Status    int
	Detail    string
	Cause     error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s %s failed", e.Transport, e.Op, e.Path)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s with status %d", msg, e.Status)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the failure was a deadline or network timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Cause, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Cause, &netErr) && netErr.Timeout()
}

// AuthError represents a failed or incomplete token exchange
type AuthError struct {
	Reason string
	Cause  error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// DecodeError represents a payload that could not be decoded
type DecodeError struct {
	Source string
	Cause  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Source, e.Cause)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UnsupportedOperatorError is raised for operators outside the rendering table
type UnsupportedOperatorError struct {
	Operator string
	Column   string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %q on column %q", e.Operator, e.Column)
}

func (e *UnsupportedOperatorError) Is(target error) bool {
	return target == ErrUnsupportedOperator
}

// UnknownFieldError is raised in strict mode when a request key has no setter
type UnknownFieldError struct {
	Message string
	Field   string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q for %s", e.Field, e.Message)
}

func (e *UnknownFieldError) Is(target error) bool {
	return target == ErrUnknownField
}

// NewTransportError creates a transport error with the given cause
func NewTransportError(kind Kind, op, path string, cause error) error {
	return &TransportError{Transport: kind, Op: op, Path: path, Cause: cause}
}

// NewStatusError creates a transport error for a non-success status
func NewStatusError(kind Kind, op, path string, status int, detail string) error {
	return &TransportError{Transport: kind, Op: op, Path: path, Status: status, Detail: detail}
}

// NewDecodeError creates a decode error
func NewDecodeError(source string, cause error) error {
	return &DecodeError{Source: source, Cause: cause}
}

// NewAuthError creates an authentication error
func NewAuthError(reason string, cause error) error {
	return &AuthError{Reason: reason, Cause: cause}
}

// StatusOf returns the status code carried by a TransportError in err's chain.
func StatusOf(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Status
	}
	return 0
}

// grpcNotFound is codes.NotFound.
const grpcNotFound = 5

// IsNotFoundStatus reports whether err carries a REST 404 or a gRPC NotFound status.
func IsNotFoundStatus(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	if te.Transport == KindGRPC {
		return te.Status == grpcNotFound
	}
	return te.Status == 404
}
