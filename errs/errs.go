// Package errs defines the error-kind taxonomy of spec.md §7. Every
// failure the scraper engine surfaces above the leaf packages is
// classified into one of six kinds so logs carry a structured
// {source, phase, error_kind, message} shape: a typed *Error carrying
// Kind and Phase around a cause wrapped with fmt.Errorf's %w, instead
// of a generic error string.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the six error classes from spec.md §7.
type Kind string

const (
	Config   Kind = "config_error"
	Auth     Kind = "auth_error"
	Network  Kind = "network_error"
	Response Kind = "response_error"
	Store    Kind = "store_error"
	Emission Kind = "emission_error"
)

// Error carries the kind and phase alongside the wrapped cause so
// logging call sites can build the {source, phase, error_kind,
// message} fields spec.md §7 requires without re-deriving them.
type Error struct {
	Kind  Kind
	Phase string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and phase. Returns nil if err is nil.
func New(kind Kind, phase string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Phase: phase, Err: err}
}

// Wrap is New with an additional message prefix.
func Wrap(kind Kind, phase, msg string, err error) error {
	if err == nil {
		return nil
	}
	return New(kind, phase, fmt.Errorf("%s: %w", msg, err))
}

// KindOf reports the Kind of err, if it (or something it wraps) is an
// *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Phase reports the phase of err, if any.
func Phase(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Phase
	}
	return ""
}
