// Package errs defines the error taxonomy shared by every component of the
// SSTable engine (spec.md §7).
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way the read and write paths must react to
// it: corruption fails the current reader only, I/O errors may be retried,
// write-path errors abort and clean up.
type Kind byte

const (
	Unknown Kind = iota
	Malformed
	Checksum
	Io
	Truncated
	Unsupported
	Timeout
	Cancelled
	OutOfOrder
	Overflow
	MissingComponent
)

func (k Kind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case Checksum:
		return "checksum"
	case Io:
		return "io"
	case Truncated:
		return "truncated"
	case Unsupported:
		return "unsupported"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	case OutOfOrder:
		return "out_of_order"
	case Overflow:
		return "overflow"
	case MissingComponent:
		return "missing_component"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every package in this module returns.
// Components wrap it with fmt.Errorf("%w: ...", errs.New(kind)) the way the
// teacher's common/errors.go wraps CustomError sentinels.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.kind.String()
	}
	return e.kind.String() + ": " + e.msg
}

// KindOf reports the classification of err, or Unknown if err isn't (or
// doesn't wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Unknown
}

// Is lets errors.Is(err, errs.ErrMalformed) work by comparing kinds, matching
// the sentinel-comparison idiom the teacher's CustomError relies on.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.kind == t.kind
	}
	return false
}

// New creates a bare sentinel for the given kind, suitable for errors.Is
// comparisons (e.g. errs.Is(err, errs.Malformed)).
func New(kind Kind) *Error {
	return &Error{kind: kind}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to an existing error, preserving it as the wrapped
// cause so errors.Unwrap still reaches the original.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", New(kind), err)
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var (
	ErrMalformed        = New(Malformed)
	ErrChecksum         = New(Checksum)
	ErrTruncated        = New(Truncated)
	ErrUnsupported      = New(Unsupported)
	ErrOutOfOrder       = New(OutOfOrder)
	ErrOverflow         = New(Overflow)
	ErrMissingComponent = New(MissingComponent)
)
