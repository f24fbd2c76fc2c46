package schema

import "errors"

var (
	// ErrUnknownToken is returned when a layout, array type or compressor
	// token is not recognized.
	ErrUnknownToken = errors.New("schema: unknown token")

	// ErrInvalid is returned by Check and FromMessage for a structurally
	// invalid schema.
	ErrInvalid = errors.New("schema: invalid")
)
