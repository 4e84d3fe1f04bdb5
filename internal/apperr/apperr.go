// Package apperr defines the engine's error taxonomy as a small set of
// sentinel kinds wrapped in a single structured error type, the way
// sdk/errors.go wraps an HTTP status code behind APIError.Unwrap.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the taxonomy bucket a failure belongs to.
type Kind string

const (
	KindValidation Kind = "validation"
	KindResource   Kind = "resource"
	KindEvaluation Kind = "evaluation"
	KindTimeout    Kind = "timeout"
	KindShutdown   Kind = "shutdown"
)

// Sentinel errors, matched with errors.Is against the Kind field via Unwrap.
var (
	ErrValidation = errors.New("validation error")
	ErrResource   = errors.New("resource error")
	ErrEvaluation = errors.New("evaluation error")
	ErrTimeout    = errors.New("timeout error")
	ErrShutdown   = errors.New("shutdown error")
)

func sentinelFor(kind Kind) error {
	switch kind {
	case KindValidation:
		return ErrValidation
	case KindResource:
		return ErrResource
	case KindEvaluation:
		return ErrEvaluation
	case KindTimeout:
		return ErrTimeout
	case KindShutdown:
		return ErrShutdown
	default:
		return nil
	}
}

// Error is the single structured error object surfaced to callers.
// It names the offending node/key/param so the caller does not need to
// parse the message.
type Error struct {
	Kind    Kind
	Message string
	NodeID  string
	Key     string
	Param   string
	cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.NodeID != "" {
		msg += fmt.Sprintf(" (node=%s)", e.NodeID)
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (key=%s)", e.Key)
	}
	if e.Param != "" {
		msg += fmt.Sprintf(" (param=%s)", e.Param)
	}
	return msg
}

// Unwrap exposes the sentinel matching Kind so callers can use errors.Is.
func (e *Error) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return sentinelFor(e.Kind)
}

// New builds an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind, preserving cause for errors.Is/As
// chains while still exposing the sentinel kind.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	e := New(kind, format, args...)
	e.cause = cause
	return e
}

// WithNode annotates the error with the offending node id.
func (e *Error) WithNode(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithKey annotates the error with the offending key name.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithParam annotates the error with the offending parameter name.
func (e *Error) WithParam(param string) *Error {
	e.Param = param
	return e
}

// As reports whether err is (or wraps) an *Error, recovering the
// structured detail via errors.As(err, &opErr).
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
