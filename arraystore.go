package arraystore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/arraystore/blobstore"
	"github.com/hupe1980/arraystore/codec"
	"github.com/hupe1980/arraystore/fragment"
	"github.com/hupe1980/arraystore/internal/cache"
	"github.com/hupe1980/arraystore/query"
	"github.com/hupe1980/arraystore/resource"
	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/wire"
)

// SchemaName is the blob name of the array schema below the array URI.
const SchemaName = schema.SpecialNamePrefix + "schema"

// ErrSchemaMismatch is returned by ServeQuery when the client's schema
// differs from the stored one.
var ErrSchemaMismatch = errors.New("query schema does not match array schema")

// Array is an open dense array: its schema and the fragments visible at
// the last (re)load. It is safe for concurrent use; the queries it creates
// are not.
type Array struct {
	uri    string
	store  blobstore.BlobStore
	schema *schema.ArraySchema
	opts   options
	logger *Logger
	rc     *resource.Controller
	cache  *cache.LRU

	mu    sync.RWMutex
	frags []*fragment.Metadata
}

func schemaKey(uri string) string {
	return path.Join(uri, SchemaName)
}

// Create stores s as the schema of a new array at uri. The schema is
// encoded with the codec of WithCodec; Open must use the same codec.
func Create(ctx context.Context, store blobstore.BlobStore, uri string, s *schema.ArraySchema, opts ...Option) error {
	o := applyOptions(opts)
	logger := o.logger.WithArray(uri)

	if s == nil {
		return &ErrInvalidSchema{URI: uri, cause: fmt.Errorf("%w: nil schema", schema.ErrInvalid)}
	}
	if err := s.Check(); err != nil {
		return translateError(uri, err)
	}

	key := schemaKey(uri)
	blob, err := store.Open(ctx, key)
	switch {
	case err == nil:
		_ = blob.Close()
		return fmt.Errorf("%w: %s", ErrArrayExists, uri)
	case !errors.Is(err, blobstore.ErrNotFound):
		return err
	}

	msg, err := s.ToMessage()
	if err != nil {
		return translateError(uri, err)
	}
	data, err := o.codec.Marshal(msg)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, key, data); err != nil {
		return err
	}
	logger.InfoContext(ctx, "array created", "codec", o.codec.Name(), "array_type", s.ArrayType.String())
	return nil
}

// Open loads the schema and fragment list of the array at uri.
func Open(ctx context.Context, store blobstore.BlobStore, uri string, opts ...Option) (*Array, error) {
	o := applyOptions(opts)
	a := &Array{
		uri:    uri,
		opts:   o,
		logger: o.logger.WithArray(uri),
		rc:     resource.NewController(o.resource),
		store:  store,
	}
	if o.blockCacheBytes > 0 {
		a.cache = cache.NewLRU(o.blockCacheBytes, a.rc)
		a.store = blobstore.NewCachingStore(store, a.cache, o.blockSize)
	}

	err := a.load(ctx)
	a.logger.LogOpen(ctx, a.fragmentNum(), err)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Array) load(ctx context.Context) error {
	data, err := blobstore.ReadAll(ctx, a.store, schemaKey(a.uri))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("%w: %s: %w", ErrArrayNotFound, a.uri, err)
		}
		return err
	}
	var msg wire.ArraySchema
	if err := a.opts.codec.Unmarshal(data, &msg); err != nil {
		return &ErrInvalidSchema{URI: a.uri, cause: err}
	}
	s, err := schema.FromMessage(&msg)
	if err != nil {
		return translateError(a.uri, err)
	}
	a.schema = s
	return a.Reopen(ctx)
}

// URI returns the array URI.
func (a *Array) URI() string { return a.uri }

// Schema returns the array schema. It must not be modified.
func (a *Array) Schema() *schema.ArraySchema { return a.schema }

// Fragments returns the metadata of the visible fragments, oldest first.
func (a *Array) Fragments() []*fragment.Metadata {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.frags)
}

func (a *Array) fragmentNum() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.frags)
}

// Reopen reloads the fragment list. Queries created earlier keep the
// fragments they were created with.
func (a *Array) Reopen(ctx context.Context) error {
	frags, err := fragment.List(ctx, a.store, a.uri, a.rc)
	if err != nil {
		return translateError(a.uri, err)
	}
	a.mu.Lock()
	a.frags = frags
	a.mu.Unlock()
	a.opts.metricsCollector.RecordFragments(len(frags))
	a.logger.DebugContext(ctx, "fragments loaded", "fragments", len(frags))
	return nil
}

// NewQuery creates a query of type typ bound to the array schema. Read
// queries consult the fragments currently visible; write queries create
// new fragments below the array URI.
func (a *Array) NewQuery(typ query.Type) (*query.Query, error) {
	fopts := []fragment.Option{
		fragment.WithLogger(a.logger.Logger),
		fragment.WithResourceController(a.rc),
		fragment.WithClock(a.opts.clock),
	}
	qopts := []query.Option{query.WithLogger(a.logger.Logger)}

	switch typ {
	case query.Read:
		q, err := query.New(typ, a.schema, append(qopts, query.WithReader(fragment.NewReader(a.store, fopts...)))...)
		if err != nil {
			return nil, err
		}
		frags := a.Fragments()
		qf := make([]query.Fragment, len(frags))
		for i, m := range frags {
			qf[i] = m
		}
		if err := q.SetFragmentMetadata(qf); err != nil {
			return nil, err
		}
		return q, nil
	case query.Write:
		return query.New(typ, a.schema, append(qopts, query.WithWriter(fragment.NewWriter(a.store, a.uri, fopts...)))...)
	default:
		return query.New(typ, a.schema, qopts...)
	}
}

// Submit initializes q if needed and runs one step. A write that created
// a fragment makes it visible to queries created afterwards.
func (a *Array) Submit(ctx context.Context, q *query.Query) error {
	start := time.Now()
	err := a.submit(ctx, q)
	a.opts.metricsCollector.RecordSubmit(q.Type(), time.Since(start), q.Status() == query.Incomplete, err)
	a.logger.LogSubmit(ctx, q, err)
	return translateError(a.uri, err)
}

func (a *Array) submit(ctx context.Context, q *query.Query) error {
	if err := q.Init(ctx); err != nil {
		return err
	}
	if err := q.Process(ctx); err != nil {
		return err
	}
	if q.Type() == query.Write && q.Layout() != schema.GlobalOrder {
		return a.Reopen(ctx)
	}
	return nil
}

// Finalize flushes the cells a global-order write staged across Submit
// calls.
func (a *Array) Finalize(ctx context.Context, q *query.Query) error {
	start := time.Now()
	err := q.Finalize(ctx)
	if err == nil && q.Type() == query.Write {
		err = a.Reopen(ctx)
	}
	a.opts.metricsCollector.RecordFinalize(time.Since(start), err)
	a.logger.LogFinalize(ctx, q, err)
	return translateError(a.uri, err)
}

// SubmitAndFinalize submits q and finalizes it.
func (a *Array) SubmitAndFinalize(ctx context.Context, q *query.Query) error {
	if err := a.Submit(ctx, q); err != nil {
		return err
	}
	return a.Finalize(ctx, q)
}

// ServeQuery executes a serialized client query against arr and returns
// the serialized result. c defaults to the codec of WithCodec.
//
// The server keeps no state between calls: a global-order write carries its
// progress in the writer state of the message, and an incomplete read is
// answered from the start of its subarray on every call.
func ServeQuery(ctx context.Context, arr *Array, c codec.Codec, request []byte) ([]byte, error) {
	return arr.serve(ctx, c, request, false)
}

// ServeFinalize finalizes a serialized client write query, flushing the
// cells staged in its writer state, and returns the serialized result.
func ServeFinalize(ctx context.Context, arr *Array, c codec.Codec, request []byte) ([]byte, error) {
	return arr.serve(ctx, c, request, true)
}

func (a *Array) serve(ctx context.Context, c codec.Codec, request []byte, finalize bool) ([]byte, error) {
	if c == nil {
		c = a.opts.codec
	}
	start := time.Now()
	resp, err := a.serveQuery(ctx, c, request, finalize)
	a.opts.metricsCollector.RecordServe(time.Since(start), len(request), len(resp), err)
	a.logger.LogServe(ctx, c.Name(), len(request), len(resp), err)
	return resp, err
}

func (a *Array) serveQuery(ctx context.Context, c codec.Codec, request []byte, finalize bool) ([]byte, error) {
	var msg wire.Query
	if err := c.Unmarshal(request, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", query.ErrDecode, err)
	}
	if err := a.checkSchema(c, msg.ArraySchema); err != nil {
		return nil, err
	}
	typ, err := query.ParseType(msg.Type)
	if err != nil {
		return nil, err
	}
	q, err := a.NewQuery(typ)
	if err != nil {
		return nil, err
	}
	if err := q.FromMessage(&msg); err != nil {
		return nil, err
	}

	if finalize {
		if err := q.Init(ctx); err != nil {
			return nil, err
		}
		if err := a.Finalize(ctx, q); err != nil {
			return nil, err
		}
	} else if err := a.Submit(ctx, q); err != nil {
		return nil, err
	}
	return query.Serialize(q, c)
}

// checkSchema compares the schema a client sent with the stored one in
// their encoded form.
func (a *Array) checkSchema(c codec.Codec, m *wire.ArraySchema) error {
	if m == nil {
		return fmt.Errorf("%w: message has no array schema", query.ErrDecode)
	}
	s, err := schema.FromMessage(m)
	if err != nil {
		return fmt.Errorf("%w: %w", query.ErrDecode, err)
	}
	got, err := s.ToMessage()
	if err != nil {
		return err
	}
	want, err := a.schema.ToMessage()
	if err != nil {
		return err
	}
	gb, err := c.Marshal(got)
	if err != nil {
		return err
	}
	wb, err := c.Marshal(want)
	if err != nil {
		return err
	}
	if !bytes.Equal(gb, wb) {
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, a.uri)
	}
	return nil
}
