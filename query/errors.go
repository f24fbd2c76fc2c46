package query

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches exactly one of
// them under errors.Is.
var (
	// ErrConfiguration reports a datatype with no concrete scalar
	// representation where one is required, or a missing strategy.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation reports an out-of-bounds subarray, a missing buffer or
	// attribute, or malformed offsets.
	ErrValidation = errors.New("validation error")

	// ErrState reports an operation invoked in the wrong lifecycle state.
	ErrState = errors.New("state error")

	// ErrSizeMismatch reports an element-count mismatch while merging an
	// incoming buffer into a bound one.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrDecode reports an unrecognized wire token or a missing sub-message.
	ErrDecode = errors.New("decode error")

	// ErrIO reports a failure surfaced by a Reader or Writer strategy.
	ErrIO = errors.New("io error")
)

var kinds = []error{ErrConfiguration, ErrValidation, ErrState, ErrSizeMismatch, ErrDecode, ErrIO}

// Error is a classified query error.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("query %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("query %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SizeMismatchError describes a rejected merge.
type SizeMismatchError struct {
	Attribute string
	// Region is "data" or "offsets".
	Region   string
	Existing int
	Incoming int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("attribute %q %s: bound buffer holds %d elements, message carries %d",
		e.Attribute, e.Region, e.Existing, e.Incoming)
}

// Is reports true for ErrSizeMismatch.
func (e *SizeMismatchError) Is(target error) bool { return target == ErrSizeMismatch }

func errorf(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func wrap(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// classify keeps errors that already carry a kind and files the rest under
// fallback.
func classify(op string, err error, fallback error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	return wrap(fallback, op, err)
}
