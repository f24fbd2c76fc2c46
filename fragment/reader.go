package fragment

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/arraystore/blobstore"
	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/internal/conv"
	"github.com/hupe1980/arraystore/query"
	"github.com/hupe1980/arraystore/schema"
)

// loadedFragment is the decompressed content of one fragment, restricted to
// the attributes a read needs. Cells are stored row-major over box.
type loadedFragment struct {
	meta  *Metadata
	box   box
	order cellOrder
	cols  map[string]column
	// owned holds the result positions for which this fragment is the
	// newest writer.
	owned    *roaring64.Bitmap
	reserved int64
}

// binding is the output state of one bound attribute during a Read.
type binding struct {
	attr     *schema.Attribute
	buf      *query.Buffer
	cellSize int
	capCells int
	capBytes uint64
	data     []byte
	offsets  []uint64
}

func (b *binding) fits(cell []byte) bool {
	if b.attr.IsVar() {
		return len(b.offsets) < b.capCells && uint64(len(b.data)+len(cell)) <= b.capBytes
	}
	return len(b.data)/b.cellSize < b.capCells
}

func (b *binding) add(cell []byte) {
	if b.attr.IsVar() {
		b.offsets = append(b.offsets, uint64(len(b.data)))
	}
	b.data = append(b.data, cell...)
}

// Reader is the dense query.Reader. It resolves every cell of the subarray
// to the newest fragment that wrote it; cells no fragment wrote read as
// zero values, or as empty values for variable-length attributes.
//
// Results are produced in row-major or col-major order; global order
// follows the schema cell order. When the bound buffers fill up the Read
// stops at the last whole cell and the next Read resumes there. A Read
// after the subarray was exhausted starts over.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	store  blobstore.BlobStore
	opts   options
	logger *slog.Logger

	schema   *schema.ArraySchema
	geom     geometry
	layout   schema.Layout
	subarray any
	buffers  map[string]*query.Buffer
	frags    []*Metadata

	ready      bool
	box        box
	total      uint64
	order      cellOrder
	attrs      map[string]bool
	loaded     []*loadedFragment
	reserved   int64
	cursor     uint64
	incomplete bool
	noResults  bool
}

var _ query.Reader = (*Reader)(nil)

// NewReader creates a reader over fragments stored in store.
func NewReader(store blobstore.BlobStore, opts ...Option) *Reader {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Reader{
		store:     store,
		opts:      o,
		logger:    o.logger.With("strategy", "reader"),
		layout:    schema.RowMajor,
		buffers:   make(map[string]*query.Buffer),
		noResults: true,
	}
}

// SetArraySchema binds the reader to a dense schema with an integer domain.
func (r *Reader) SetArraySchema(s *schema.ArraySchema) error {
	g, err := denseGeometry(s)
	if err != nil {
		return err
	}
	r.release()
	r.schema, r.geom = s, g
	return nil
}

// SetLayout sets the result order. UNORDERED is rejected.
func (r *Reader) SetLayout(l schema.Layout) error {
	if err := checkLayout(l); err != nil {
		return err
	}
	r.release()
	r.layout = l
	return nil
}

// SetSubarray sets the region read.
func (r *Reader) SetSubarray(subarray any) error {
	r.release()
	r.subarray = subarray
	return nil
}

// SetBuffer binds the result buffer of attr. Buffers may be rebound
// between Reads of an incomplete query.
func (r *Reader) SetBuffer(attr string, b *query.Buffer) error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer for attribute %q", query.ErrValidation, attr)
	}
	r.buffers[attr] = b
	return nil
}

// SetFragmentMetadata sets the fragments to read. Every element must be a
// *Metadata loaded by LoadMetadata.
func (r *Reader) SetFragmentMetadata(frags []query.Fragment) error {
	ms := make([]*Metadata, 0, len(frags))
	for _, f := range frags {
		m, ok := f.(*Metadata)
		if !ok || m == nil {
			return fmt.Errorf("%w: fragment %T is not a dense fragment", query.ErrConfiguration, f)
		}
		ms = append(ms, m)
	}
	SortMetadata(ms)
	r.release()
	r.frags = ms
	return nil
}

// SortMetadata orders fragments oldest first, by timestamp then name.
func SortMetadata(ms []*Metadata) {
	slices.SortStableFunc(ms, func(a, b *Metadata) int {
		return cmp.Or(cmp.Compare(a.UnixNano, b.UnixNano), cmp.Compare(a.Name, b.Name))
	})
}

// FragmentNum returns the number of fragments set.
func (r *Reader) FragmentNum() int { return len(r.frags) }

// FragmentURIs returns the blob names of the fragments set, oldest first.
func (r *Reader) FragmentURIs() []string {
	uris := make([]string, len(r.frags))
	for i, m := range r.frags {
		uris[i] = m.URI()
	}
	return uris
}

// LastFragmentURI returns the blob name of the newest fragment.
func (r *Reader) LastFragmentURI() string {
	if len(r.frags) == 0 {
		return ""
	}
	return r.frags[len(r.frags)-1].URI()
}

// Incomplete reports whether the last Read stopped before the end of the
// subarray.
func (r *Reader) Incomplete() bool { return r.incomplete }

// NoResults reports whether the last Read returned no cell written by a
// fragment.
func (r *Reader) NoResults() bool { return r.noResults }

// Close releases the fragments loaded by Init.
func (r *Reader) Close() error {
	r.release()
	return nil
}

func (r *Reader) release() {
	r.opts.rc.ReleaseMemory(r.reserved)
	r.reserved = 0
	r.loaded = nil
	r.ready = false
}

// Init loads the fragments intersecting the subarray.
func (r *Reader) Init(ctx context.Context) error {
	r.release()
	if r.schema == nil {
		return fmt.Errorf("%w: reader has no array schema", query.ErrConfiguration)
	}
	b, err := r.geom.toBox(r.schema.Domain, r.subarray)
	if err != nil {
		return err
	}
	total, err := b.cells()
	if err != nil {
		return err
	}
	binds, err := r.bindings()
	if err != nil {
		return err
	}

	r.box, r.total = b, total
	r.order = newOrder(b, cellLayout(r.layout, r.schema))
	r.attrs = make(map[string]bool, len(binds))
	attrs := make([]*schema.Attribute, 0, len(binds))
	for _, bd := range binds {
		r.attrs[bd.attr.Name] = true
		attrs = append(attrs, bd.attr)
	}
	if err := r.load(ctx, attrs); err != nil {
		r.release()
		return err
	}

	covered := roaring64.New()
	for _, lf := range r.loaded {
		region, _ := lf.box.intersect(r.box)
		bm := roaring64.New()
		addRuns(bm, r.order, region)
		bm.AndNot(covered)
		covered.Or(bm)
		lf.owned = bm
	}
	r.cursor, r.incomplete, r.noResults, r.ready = 0, false, true, true
	r.logger.DebugContext(ctx, "read initialized",
		"cells", total, "written", covered.GetCardinality(), "fragments", len(r.loaded))
	return nil
}

// addRuns adds the result positions of region, a sub-box of o.box, to bm.
// Cells adjacent along the fastest dimension form one run.
func addRuns(bm *roaring64.Bitmap, o cellOrder, region box) {
	fast := o.major[len(o.major)-1]
	c := make([]uint64, len(region))
	for d := range region {
		c[d] = region[d].lo
	}
	for {
		start := o.pos(c)
		bm.AddRange(start, start+region[fast].len())
		i := len(o.major) - 2
		for ; i >= 0; i-- {
			d := o.major[i]
			if c[d] < region[d].hi {
				c[d]++
				break
			}
			c[d] = region[d].lo
		}
		if i < 0 {
			return
		}
	}
}

// load reads the intersecting fragments in parallel, newest first.
func (r *Reader) load(ctx context.Context, attrs []*schema.Attribute) error {
	type candidate struct {
		meta *Metadata
		box  box
	}
	var cands []candidate
	for i := len(r.frags) - 1; i >= 0; i-- {
		m := r.frags[i]
		fb, err := r.geom.toBox(r.schema.Domain, r.geom.take(&m.NonEmptyDomain))
		if err != nil {
			return fmt.Errorf("%w: %s: non-empty domain: %v", ErrCorrupt, m.key, err)
		}
		if _, ok := fb.intersect(r.box); ok {
			cands = append(cands, candidate{meta: m, box: fb})
		}
	}

	rc := r.opts.rc
	loaded := make([]*loadedFragment, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.Workers())
	for i, c := range cands {
		g.Go(func() error {
			if err := rc.AcquireWorker(gctx); err != nil {
				return err
			}
			defer rc.ReleaseWorker()

			lf, err := r.loadFragment(gctx, c.meta, c.box, attrs)
			if err != nil {
				return err
			}
			loaded[i] = lf
			return nil
		})
	}
	err := g.Wait()
	for _, lf := range loaded {
		if lf != nil {
			r.reserved += lf.reserved
		}
	}
	if err != nil {
		return err
	}
	r.loaded = loaded
	return nil
}

func (r *Reader) loadFragment(ctx context.Context, m *Metadata, fb box, attrs []*schema.Attribute) (*loadedFragment, error) {
	cells, err := fb.cells()
	if err != nil || cells != m.CellNum {
		return nil, fmt.Errorf("%w: %s: %d cells recorded for a domain of %d", ErrCorrupt, m.key, m.CellNum, cells)
	}
	n, err := conv.Uint64ToInt(cells)
	if err != nil {
		return nil, err
	}

	var size uint64
	for _, a := range attrs {
		if am, ok := m.Attribute(a.Name); ok {
			size += am.Data.Size
			if am.Offsets != nil {
				size += am.Offsets.Size
			}
		}
	}
	reserved, err := conv.Uint64ToInt64(size)
	if err != nil {
		return nil, err
	}
	rc := r.opts.rc
	if err := rc.AcquireMemory(ctx, reserved); err != nil {
		return nil, err
	}
	done := false
	defer func() {
		if !done {
			rc.ReleaseMemory(reserved)
		}
	}()

	blob, err := r.store.Open(ctx, m.key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = blob.Close() }()

	lf := &loadedFragment{
		meta:     m,
		box:      fb,
		order:    newOrder(fb, schema.RowMajor),
		cols:     make(map[string]column, len(attrs)),
		reserved: reserved,
	}
	for _, a := range attrs {
		am, ok := m.Attribute(a.Name)
		if !ok {
			continue
		}
		if am.Type != a.Type.String() || am.CellValNum != a.CellValNum {
			return nil, fmt.Errorf("%w: %s: attribute %q stored as %s", ErrCorrupt, m.key, a.Name, am.Type)
		}
		data, err := readSection(ctx, blob, m, &am.Data, rc)
		if err != nil {
			return nil, err
		}
		col := column{data: data, cellSize: cellSizeOf(a)}
		if a.IsVar() {
			if am.Offsets == nil {
				return nil, fmt.Errorf("%w: %s: attribute %q has no offsets", ErrCorrupt, m.key, a.Name)
			}
			raw, err := readSection(ctx, blob, m, am.Offsets, rc)
			if err != nil {
				return nil, err
			}
			if col.offsets, err = decodeOffsets(raw); err != nil {
				return nil, err
			}
			if len(col.offsets) != n || !offsetsValid(col.offsets, uint64(len(data))) {
				return nil, fmt.Errorf("%w: %s: attribute %q offsets are malformed", ErrCorrupt, m.key, a.Name)
			}
		} else if len(data) != n*col.cellSize {
			return nil, fmt.Errorf("%w: %s: attribute %q holds %d bytes for %d cells", ErrCorrupt, m.key, a.Name, len(data), n)
		}
		lf.cols[a.Name] = col
	}
	r.logger.DebugContext(ctx, "fragment loaded", "fragment", m.Name, "bytes", size)
	done = true
	return lf, nil
}

// bindings validates the bound buffers against the schema.
func (r *Reader) bindings() ([]*binding, error) {
	if len(r.buffers) == 0 {
		return nil, fmt.Errorf("%w: no result buffers bound", query.ErrValidation)
	}
	binds := make([]*binding, 0, len(r.buffers))
	for _, a := range r.schema.Attributes {
		b, ok := r.buffers[a.Name]
		if !ok {
			continue
		}
		if err := checkBinding(a, b); err != nil {
			return nil, err
		}
		bd := &binding{attr: a, buf: b, cellSize: cellSizeOf(a)}
		if a.IsVar() {
			bd.capCells = len(b.OffsetsSlice())
			bd.capBytes = b.Data.ByteSize()
		} else {
			bd.capCells = b.Data.Len() / int(a.CellValNum)
		}
		binds = append(binds, bd)
	}
	if len(binds) != len(r.buffers) {
		for name := range r.buffers {
			if _, ok := r.schema.Attribute(name); !ok {
				return nil, fmt.Errorf("%w: attribute %q does not exist", query.ErrValidation, name)
			}
		}
	}
	return binds, nil
}

// owner returns the newest fragment that wrote result position p.
func (r *Reader) owner(p uint64) *loadedFragment {
	for _, lf := range r.loaded {
		if lf.owned.Contains(p) {
			return lf
		}
	}
	return nil
}

// Read fills the bound buffers from the cursor on.
func (r *Reader) Read(ctx context.Context) error {
	if !r.ready {
		if err := r.Init(ctx); err != nil {
			return err
		}
	}
	binds, err := r.bindings()
	if err != nil {
		return err
	}
	for _, bd := range binds {
		if !r.attrs[bd.attr.Name] {
			return fmt.Errorf("%w: attribute %q was bound after the read started", query.ErrState, bd.attr.Name)
		}
	}

	c := make([]uint64, len(r.box))
	cells := make([][]byte, len(binds))
	zero := make([][]byte, len(binds))
	for i, bd := range binds {
		zero[i] = make([]byte, bd.cellSize)
	}
	written := false
	p := r.cursor
scan:
	for ; p < r.total; p++ {
		if p%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		r.order.coords(p, c)
		lf := r.owner(p)
		for i, bd := range binds {
			cells[i] = zero[i]
			if lf != nil {
				if col, ok := lf.cols[bd.attr.Name]; ok {
					cells[i] = col.cell(int(lf.order.pos(c)))
				}
			}
			if !bd.fits(cells[i]) {
				break scan
			}
		}
		for i, bd := range binds {
			bd.add(cells[i])
		}
		written = written || lf != nil
	}
	if p == r.cursor && p < r.total {
		return fmt.Errorf("%w: result buffers cannot hold a single cell", query.ErrValidation)
	}

	for _, bd := range binds {
		n, err := datatype.DecodeInto(bd.buf.Data.Slice(), bd.data)
		if err != nil {
			return fmt.Errorf("%w: attribute %q: %v", query.ErrValidation, bd.attr.Name, err)
		}
		if bd.attr.IsVar() {
			copy(bd.buf.OffsetsSlice(), bd.offsets)
		}
		bd.buf.SetResult(uint64(n), uint64(len(bd.offsets)))
	}

	r.logger.DebugContext(ctx, "read step", "from", r.cursor, "to", p, "cells", r.total)
	r.cursor = p
	r.incomplete = p < r.total
	r.noResults = !written
	if !r.incomplete {
		r.release()
	}
	return nil
}
