package query

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/hupe1980/arraystore/schema"
)

// Query is a read or write request against one array.
//
// A Query is not safe for concurrent use, with one exception: Cancel may be
// called from any goroutine while Process runs.
type Query struct {
	typ       Type
	layout    schema.Layout
	status    atomic.Uint32
	schema    *schema.ArraySchema
	subarray  any
	buffers   map[string]*Buffer
	order     []string
	callback  func()
	fragments []Fragment
	exec      strategies
	logger    *slog.Logger
}

// New creates a query of the given type over s. The query borrows s.
//
// The configured strategy (WithReader for Read, WithWriter for Write)
// receives the schema and the default row-major layout immediately.
func New(typ Type, s *schema.ArraySchema, opts ...Option) (*Query, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, fn := range opts {
		fn(&o)
	}
	q := &Query{
		typ:     typ,
		layout:  schema.RowMajor,
		schema:  s,
		buffers: make(map[string]*Buffer),
		logger:  o.logger.With("query_type", typ.String()),
	}
	switch typ {
	case Read:
		q.exec.reader = o.reader
	case Write:
		q.exec.writer = o.writer
	default:
		return nil, errorf(ErrConfiguration, "new", "unknown query type %d", typ)
	}
	if st := q.strategy(); st != nil {
		if s != nil {
			if err := st.SetArraySchema(s); err != nil {
				return nil, classify("new", err, ErrConfiguration)
			}
		}
		if err := st.SetLayout(q.layout); err != nil {
			return nil, classify("new", err, ErrConfiguration)
		}
	}
	return q, nil
}

// Type returns the query type.
func (q *Query) Type() Type { return q.typ }

// Status returns the current lifecycle status.
func (q *Query) Status() Status { return Status(q.status.Load()) }

func (q *Query) setStatus(s Status) {
	if old := Status(q.status.Swap(uint32(s))); old != s {
		q.logger.Debug("query status", "from", old.String(), "to", s.String())
	}
}

// Layout returns the cell layout of the query.
func (q *Query) Layout() schema.Layout { return q.layout }

// SetLayout sets the cell layout and forwards it to the strategy.
func (q *Query) SetLayout(l schema.Layout) error {
	if st := q.strategy(); st != nil {
		if err := st.SetLayout(l); err != nil {
			return classify("set layout", err, ErrConfiguration)
		}
	}
	q.layout = l
	return nil
}

// ArraySchema returns the schema the query is bound to.
func (q *Query) ArraySchema() *schema.ArraySchema { return q.schema }

// SetArraySchema rebinds the query to s.
func (q *Query) SetArraySchema(s *schema.ArraySchema) error {
	if st := q.strategy(); st != nil {
		if err := st.SetArraySchema(s); err != nil {
			return classify("set array schema", err, ErrConfiguration)
		}
	}
	q.schema = s
	return nil
}

// SetBuffer binds caller memory to a fixed-length attribute. data must be a
// typed slice matching the attribute datatype ([]int32 for INT32, []byte for
// CHAR and STRING_ASCII). The query reads from data on writes and fills it on
// reads; no copy is made. Binding an attribute again replaces the previous
// binding. Attribute names are checked against the schema lazily.
func (q *Query) SetBuffer(attr string, data any) error {
	return q.setBuffer(attr, nil, data)
}

// SetBufferVar binds a variable-length attribute: offsets holds the byte
// offset of each cell in data. A nil offsets slice binds attr as a fixed
// attribute.
func (q *Query) SetBufferVar(attr string, offsets []uint64, data any) error {
	return q.setBuffer(attr, offsets, data)
}

func (q *Query) setBuffer(attr string, offsets []uint64, data any) error {
	const op = "set buffer"
	b, err := newBuffer(data, offsets)
	if err != nil {
		return errorf(ErrValidation, op, "attribute %q: %w", attr, err)
	}
	return q.bind(op, attr, b)
}

func (q *Query) bind(op, attr string, b *Buffer) error {
	if err := q.offer(op, attr, b); err != nil {
		return err
	}
	q.register(attr, b)
	return nil
}

// offer hands b to the strategy without touching the registry.
func (q *Query) offer(op, attr string, b *Buffer) error {
	if st := q.strategy(); st != nil {
		if err := st.SetBuffer(attr, b); err != nil {
			return classify(op, err, ErrValidation)
		}
	}
	return nil
}

func (q *Query) register(attr string, b *Buffer) {
	if _, ok := q.buffers[attr]; !ok {
		q.order = append(q.order, attr)
	}
	q.buffers[attr] = b
}

// AttributeBuffers returns a snapshot of the bound buffers by attribute.
func (q *Query) AttributeBuffers() map[string]Buffer {
	out := make(map[string]Buffer, len(q.buffers))
	for name, b := range q.buffers {
		out[name] = *b
	}
	return out
}

// Attributes returns the names of the bound attributes in bind order.
func (q *Query) Attributes() []string {
	return slices.Clone(q.order)
}

// ResultSize returns the number of data and offset elements the last read
// placed into the buffers of attr.
func (q *Query) ResultSize(attr string) (dataElems, offsetElems uint64, ok bool) {
	b, ok := q.buffers[attr]
	if !ok {
		return 0, 0, false
	}
	d, o := b.Result()
	return d, o, true
}

// SetCallback registers fn to run once when the query next completes.
func (q *Query) SetCallback(fn func()) {
	q.callback = fn
}

// Init prepares the strategy. It is a no-op unless the query is
// Uninitialized; on success the status becomes InProgress.
func (q *Query) Init(ctx context.Context) error {
	const op = "init"
	if q.Status() != Uninitialized {
		return nil
	}
	st := q.strategy()
	if st == nil {
		return errorf(ErrConfiguration, op, "no %s strategy configured", q.typ)
	}
	if q.schema == nil {
		return errorf(ErrConfiguration, op, "query has no array schema")
	}
	if err := st.Init(ctx); err != nil {
		err = classify(op, err, ErrIO)
		q.logger.ErrorContext(ctx, "query init failed", "error", err)
		return err
	}
	q.setStatus(InProgress)
	return nil
}

// Process runs one read or write step. Writes complete in one step. Reads
// end Incomplete when the result buffers filled up before the subarray was
// exhausted; Process may then be called again to resume.
//
// The completion callback fires when the status becomes Completed. A
// failing strategy moves the query to Failed.
func (q *Query) Process(ctx context.Context) error {
	const op = "process"
	if q.Status() == Uninitialized {
		return errorf(ErrState, op, "query is not initialized")
	}
	st := q.strategy()
	if st == nil {
		return errorf(ErrConfiguration, op, "no %s strategy configured", q.typ)
	}
	q.setStatus(InProgress)

	var err error
	switch q.typ {
	case Read:
		err = q.exec.reader.Read(ctx)
	case Write:
		err = q.exec.writer.Write(ctx)
	}
	if err != nil {
		q.setStatus(Failed)
		err = classify(op, err, ErrIO)
		q.logger.ErrorContext(ctx, "query process failed", "error", err)
		return err
	}

	next := Completed
	if q.typ == Read && q.exec.reader.Incomplete() {
		next = Incomplete
	}
	// A concurrent Cancel wins over the outcome of the step.
	if !q.status.CompareAndSwap(uint32(InProgress), uint32(next)) {
		return nil
	}
	q.logger.DebugContext(ctx, "query status", "from", InProgress.String(), "to", next.String())
	if next == Completed {
		q.complete()
	}
	return nil
}

func (q *Query) complete() {
	if fn := q.callback; fn != nil {
		q.callback = nil
		fn()
	}
}

// Finalize flushes writes buffered across Process calls and marks the query
// Completed. It is a no-op on an Uninitialized query.
func (q *Query) Finalize(ctx context.Context) error {
	const op = "finalize"
	if q.Status() == Uninitialized {
		return nil
	}
	if q.typ == Write && q.exec.writer != nil {
		if err := q.exec.writer.Finalize(ctx); err != nil {
			q.setStatus(Failed)
			err = classify(op, err, ErrIO)
			q.logger.ErrorContext(ctx, "query finalize failed", "error", err)
			return err
		}
	}
	q.setStatus(Completed)
	return nil
}

// Cancel marks the query Failed. It may be called from any state and any
// goroutine; it does not interrupt a running Process.
func (q *Query) Cancel() {
	q.setStatus(Failed)
}

// HasResults reports whether an initialized read query produced cells.
func (q *Query) HasResults() bool {
	if q.Status() == Uninitialized || q.typ != Read || q.exec.reader == nil {
		return false
	}
	return !q.exec.reader.NoResults()
}

// SetFragmentMetadata sets the fragments a read query consults, ordered
// oldest first.
func (q *Query) SetFragmentMetadata(frags []Fragment) error {
	if q.typ == Read && q.exec.reader != nil {
		if err := q.exec.reader.SetFragmentMetadata(frags); err != nil {
			return classify("set fragment metadata", err, ErrConfiguration)
		}
	}
	q.fragments = slices.Clone(frags)
	return nil
}

// FragmentNum returns the number of fragments a read query consults.
func (q *Query) FragmentNum() int {
	if q.typ != Read || q.exec.reader == nil {
		return 0
	}
	return q.exec.reader.FragmentNum()
}

// FragmentURIs returns the URIs of the fragments a read query consults.
func (q *Query) FragmentURIs() []string {
	if q.typ != Read || q.exec.reader == nil {
		return nil
	}
	return q.exec.reader.FragmentURIs()
}

// LastFragmentURI returns the URI of the newest fragment a read query
// consults. It is empty for write queries.
func (q *Query) LastFragmentURI() string {
	if q.typ != Read || q.exec.reader == nil {
		return ""
	}
	return q.exec.reader.LastFragmentURI()
}

// SetFragmentURI names the fragment a write query creates. It is ignored
// by read queries.
func (q *Query) SetFragmentURI(uri string) {
	if q.typ == Write && q.exec.writer != nil {
		q.exec.writer.SetFragmentURI(uri)
	}
}
