package resource

import "fmt"

// LimitError reports a reservation that can never be satisfied.
type LimitError struct {
	Requested int64
	Limit     int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("resource: requested %d bytes exceeds memory limit of %d bytes", e.Requested, e.Limit)
}
