package arraystore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/arraystore/fragment"
	"github.com/hupe1980/arraystore/resource"
	"github.com/hupe1980/arraystore/schema"
)

var (
	// ErrArrayExists is returned by Create when the URI already holds an array.
	ErrArrayExists = errors.New("array already exists")

	// ErrArrayNotFound is returned by Open when the URI holds no array schema.
	ErrArrayNotFound = errors.New("array not found")

	// ErrCorrupt is returned when a stored schema or fragment fails verification.
	ErrCorrupt = errors.New("array data corrupt")
)

// ErrInvalidSchema indicates a schema rejected by Create or read back by Open.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrInvalidSchema struct {
	URI   string
	cause error
}

func (e *ErrInvalidSchema) Error() string {
	return fmt.Sprintf("invalid schema for array %q: %v", e.URI, e.cause)
}

func (e *ErrInvalidSchema) Unwrap() error { return e.cause }

// ErrResourceLimit indicates a reservation larger than the configured
// memory limit.
//
// The original underlying error (a *resource.LimitError) can be accessed
// via errors.Unwrap or errors.As.
type ErrResourceLimit struct {
	Requested int64
	Limit     int64
	cause     error
}

func (e *ErrResourceLimit) Error() string {
	return fmt.Sprintf("resource limit exceeded: requested %d bytes, limit %d bytes", e.Requested, e.Limit)
}

func (e *ErrResourceLimit) Unwrap() error { return e.cause }

// translateError maps errors of the storage layers onto the errors of this
// package. Query error kinds stay visible through errors.Is.
func translateError(uri string, err error) error {
	if err == nil {
		return nil
	}

	var le *resource.LimitError
	if errors.As(err, &le) {
		return &ErrResourceLimit{Requested: le.Requested, Limit: le.Limit, cause: err}
	}

	if errors.Is(err, schema.ErrInvalid) || errors.Is(err, schema.ErrUnknownToken) {
		return &ErrInvalidSchema{URI: uri, cause: err}
	}

	if errors.Is(err, fragment.ErrCorrupt) {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return err
}
