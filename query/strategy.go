package query

import (
	"context"

	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/wire"
)

// Strategy holds the operations shared by readers and writers. The query
// forwards its configuration to the strategy as it changes.
type Strategy interface {
	SetArraySchema(s *schema.ArraySchema) error
	SetLayout(l schema.Layout) error
	// SetSubarray receives a validated subarray, or nil for the full domain.
	SetSubarray(subarray any) error
	// SetBuffer receives the binding of attr. The strategy may keep b and
	// report result sizes through b.SetResult.
	SetBuffer(attr string, b *Buffer) error
	Init(ctx context.Context) error
}

// Fragment describes an immutable batch of written cells a reader consults.
type Fragment interface {
	URI() string
	Timestamp() int64
}

// Reader executes read queries.
type Reader interface {
	Strategy
	Read(ctx context.Context) error
	// Incomplete reports whether the last Read stopped because the result
	// buffers were full. A further Read resumes from the same position.
	Incomplete() bool
	// NoResults reports whether the last Read produced no cells written by
	// a fragment.
	NoResults() bool
	SetFragmentMetadata(frags []Fragment) error
	FragmentNum() int
	FragmentURIs() []string
	LastFragmentURI() string
}

// Writer executes write queries.
type Writer interface {
	Strategy
	Write(ctx context.Context) error
	// Finalize flushes any state buffered across Write calls.
	Finalize(ctx context.Context) error
	SetFragmentURI(uri string)
	// SerializeState returns the global-order write state.
	SerializeState() (*wire.Writer, error)
	// DeserializeState restores a state produced by SerializeState.
	DeserializeState(m *wire.Writer) error
}

// strategies is the tagged pair of execution strategies. Only the member
// matching the query type is ever consulted.
type strategies struct {
	reader Reader
	writer Writer
}

// strategy returns the active strategy, or nil if none was configured.
func (q *Query) strategy() Strategy {
	switch q.typ {
	case Read:
		if q.exec.reader != nil {
			return q.exec.reader
		}
	case Write:
		if q.exec.writer != nil {
			return q.exec.writer
		}
	}
	return nil
}
