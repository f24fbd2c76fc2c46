package fragment

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"

	"github.com/google/uuid"

	"github.com/hupe1980/arraystore/blobstore"
	"github.com/hupe1980/arraystore/query"
	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/wire"
)

// globalState holds the cells of a global-order write staged across Write
// calls until Finalize.
type globalState struct {
	name   string
	box    box
	cells  uint64
	staged map[string]*column
	// reserved is the memory taken from the resource controller.
	reserved int64
}

// Writer is the dense query.Writer. Row-major and col-major writes cover
// the whole subarray and produce one fragment per Write. Global-order
// writes accept the subarray cells in cell order across several Write calls
// and produce one fragment on Finalize.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	store    blobstore.BlobStore
	arrayURI string
	opts     options
	logger   *slog.Logger

	schema   *schema.ArraySchema
	geom     geometry
	layout   schema.Layout
	subarray any
	buffers  map[string]*query.Buffer

	ready bool
	box   box
	cells uint64

	name     string
	global   *globalState
	restored *wire.Writer
	written  []string
}

var _ query.Writer = (*Writer)(nil)

// NewWriter creates a writer that stores fragments of the array at
// arrayURI in store.
func NewWriter(store blobstore.BlobStore, arrayURI string, opts ...Option) *Writer {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Writer{
		store:    store,
		arrayURI: arrayURI,
		opts:     o,
		logger:   o.logger.With("array", arrayURI, "strategy", "writer"),
		layout:   schema.RowMajor,
		buffers:  make(map[string]*query.Buffer),
	}
}

// SetArraySchema binds the writer to a dense schema with an integer domain.
func (w *Writer) SetArraySchema(s *schema.ArraySchema) error {
	if w.pending() {
		return fmt.Errorf("%w: cannot change the schema of a global write with staged cells", query.ErrState)
	}
	g, err := denseGeometry(s)
	if err != nil {
		return err
	}
	w.schema, w.geom, w.ready = s, g, false
	return nil
}

// SetLayout sets the order of the bound cells. UNORDERED is rejected.
func (w *Writer) SetLayout(l schema.Layout) error {
	if err := checkLayout(l); err != nil {
		return err
	}
	if w.pending() && l != w.layout {
		return fmt.Errorf("%w: cannot change the layout of a global write with staged cells", query.ErrState)
	}
	w.layout, w.ready = l, false
	return nil
}

// SetSubarray sets the region written. A global write with staged cells
// only accepts its own subarray again.
func (w *Writer) SetSubarray(subarray any) error {
	if w.pending() && w.schema != nil {
		b, err := w.geom.toBox(w.schema.Domain, subarray)
		if err != nil {
			return err
		}
		if !b.equal(w.global.box) {
			return fmt.Errorf("%w: cannot move the subarray of a global write with staged cells", query.ErrState)
		}
	}
	w.subarray, w.ready = subarray, false
	return nil
}

// SetBuffer binds the cells written for attr.
func (w *Writer) SetBuffer(attr string, b *query.Buffer) error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer for attribute %q", query.ErrValidation, attr)
	}
	w.buffers[attr] = b
	return nil
}

// SetFragmentURI names the next fragment. Only the last path element of
// uri is used.
func (w *Writer) SetFragmentURI(uri string) {
	w.name = path.Base(uri)
}

// FragmentURIs returns the blob names of the fragments written so far.
func (w *Writer) FragmentURIs() []string {
	return slices.Clone(w.written)
}

func (w *Writer) pending() bool {
	return w.global != nil && w.global.cells > 0
}

// Init validates the bindings against the schema and the subarray.
func (w *Writer) Init(_ context.Context) error {
	if w.schema == nil {
		return fmt.Errorf("%w: writer has no array schema", query.ErrConfiguration)
	}
	b, err := w.geom.toBox(w.schema.Domain, w.subarray)
	if err != nil {
		return err
	}
	cells, err := b.cells()
	if err != nil {
		return err
	}
	if err := w.checkBuffers(); err != nil {
		return err
	}
	w.box, w.cells = b, cells
	if w.restored != nil {
		if err := w.restore(w.restored); err != nil {
			return err
		}
		w.restored = nil
	}
	w.ready = true
	return nil
}

func (w *Writer) checkBuffers() error {
	for name := range w.buffers {
		if _, ok := w.schema.Attribute(name); !ok {
			return fmt.Errorf("%w: attribute %q does not exist", query.ErrValidation, name)
		}
	}
	for _, a := range w.schema.Attributes {
		b, ok := w.buffers[a.Name]
		if !ok {
			return fmt.Errorf("%w: no buffer bound for attribute %q", query.ErrValidation, a.Name)
		}
		if err := checkBinding(a, b); err != nil {
			return err
		}
	}
	return nil
}

// columns copies the bound cells and checks that every attribute holds the
// same number of cells.
func (w *Writer) columns() (map[string]column, uint64, error) {
	cols := make(map[string]column, len(w.schema.Attributes))
	n := -1
	for _, a := range w.schema.Attributes {
		c, err := columnOf(a, w.buffers[a.Name])
		if err != nil {
			return nil, 0, err
		}
		if n >= 0 && c.len() != n {
			return nil, 0, fmt.Errorf("%w: attribute %q holds %d cells, %q holds %d",
				query.ErrValidation, a.Name, c.len(), w.schema.Attributes[0].Name, n)
		}
		n = c.len()
		cols[a.Name] = c
	}
	return cols, uint64(max(n, 0)), nil
}

// Write stores the bound cells. Row-major and col-major writes must cover
// the subarray exactly. Global-order writes stage their cells.
func (w *Writer) Write(ctx context.Context) error {
	if !w.ready {
		if err := w.Init(ctx); err != nil {
			return err
		}
	}
	if err := w.checkBuffers(); err != nil {
		return err
	}
	cols, n, err := w.columns()
	if err != nil {
		return err
	}

	if w.layout == schema.GlobalOrder {
		return w.stage(ctx, cols, n)
	}
	if n != w.cells {
		return fmt.Errorf("%w: buffers hold %d cells, subarray has %d", query.ErrValidation, n, w.cells)
	}
	if l := cellLayout(w.layout, w.schema); l != schema.RowMajor {
		if cols, err = reorder(cols, w.box, l); err != nil {
			return err
		}
	}
	return w.flush(ctx, w.takeName(), w.box, cols)
}

func (w *Writer) stage(ctx context.Context, cols map[string]column, n uint64) error {
	if w.global == nil {
		w.global = &globalState{name: w.takeName(), box: w.box, staged: make(map[string]*column)}
	}
	g := w.global
	if g.cells == 0 {
		g.box = w.box
	}
	if g.cells+n > w.cells {
		return fmt.Errorf("%w: global write of %d cells overflows the subarray of %d cells", query.ErrValidation, g.cells+n, w.cells)
	}
	var size int64
	for _, c := range cols {
		size += int64(len(c.data) + 8*len(c.offsets))
	}
	if err := w.opts.rc.AcquireMemory(ctx, size); err != nil {
		return err
	}
	g.reserved += size
	for name, c := range cols {
		s, ok := g.staged[name]
		if !ok {
			s = &column{cellSize: c.cellSize}
			g.staged[name] = s
		}
		s.appendColumn(c)
	}
	g.cells += n
	w.logger.DebugContext(ctx, "global write staged", "fragment", g.name, "cells", n, "staged", g.cells)
	return nil
}

// Finalize writes the fragment of a global-order write. It fails when the
// staged cells do not cover the subarray, and is a no-op for other layouts
// or when nothing was staged.
func (w *Writer) Finalize(ctx context.Context) error {
	if !w.ready && w.restored != nil {
		if err := w.Init(ctx); err != nil {
			return err
		}
	}
	g := w.global
	if w.layout != schema.GlobalOrder || g == nil || g.cells == 0 {
		return nil
	}
	if g.cells != w.cells {
		return fmt.Errorf("%w: global write covers %d of %d cells", query.ErrValidation, g.cells, w.cells)
	}
	cols := make(map[string]column, len(g.staged))
	for name, c := range g.staged {
		cols[name] = *c
	}
	var err error
	if l := cellLayout(w.layout, w.schema); l != schema.RowMajor {
		if cols, err = reorder(cols, g.box, l); err != nil {
			return err
		}
	}
	if err := w.flush(ctx, g.name, g.box, cols); err != nil {
		return err
	}
	w.opts.rc.ReleaseMemory(g.reserved)
	w.global = nil
	return nil
}

// reorder permutes columns given in layout l into row-major storage order.
func reorder(cols map[string]column, b box, l schema.Layout) (map[string]column, error) {
	src, err := permutation(b, newOrder(b, l))
	if err != nil {
		return nil, err
	}
	out := make(map[string]column, len(cols))
	for name, c := range cols {
		out[name] = c.gather(src)
	}
	return out, nil
}

func (w *Writer) takeName() string {
	if name := w.name; name != "" && name != "." && name != "/" {
		w.name = ""
		return name
	}
	return NewName(uuid.New(), w.opts.clock())
}

// flush encodes cols, stored row-major over b, into a fragment blob.
func (w *Writer) flush(ctx context.Context, name string, b box, cols map[string]column) error {
	s := w.schema
	ts := w.opts.clock().UnixNano()
	if _, t, err := ParseName(name); err == nil {
		ts = t
	}
	cells, err := b.cells()
	if err != nil {
		return err
	}
	m := &Metadata{Name: name, UnixNano: ts, CellNum: cells}
	w.geom.put(&m.NonEmptyDomain, w.geom.fromBox(s.Domain, b))

	capacity := max(s.Capacity, 1)
	var bb blobBuilder
	for _, a := range s.Attributes {
		c := cols[a.Name]
		unit := c.cellSize
		if c.isVar() {
			unit = int(a.Type.Size())
		}
		am := AttributeMeta{Name: a.Name, Type: a.Type.String(), CellValNum: a.CellValNum}
		if am.Data, err = bb.add(c.data, a.Compressor, a.CompressionLevel, blockSize(capacity, unit), unit); err != nil {
			return fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		if c.isVar() {
			off, err := bb.add(encodeOffsets(c.offsets), s.OffsetCompression, s.OffsetCompressionLevel, blockSize(capacity, 8), 8)
			if err != nil {
				return fmt.Errorf("attribute %q offsets: %w", a.Name, err)
			}
			am.Offsets = &off
		}
		m.Attributes = append(m.Attributes, am)
	}
	blob, err := bb.finish(m)
	if err != nil {
		return err
	}

	key := Key(w.arrayURI, name)
	if err := w.store.Put(ctx, key, blob); err != nil {
		return err
	}
	w.written = append(w.written, key)
	w.logger.DebugContext(ctx, "fragment written", "fragment", name, "cells", cells, "bytes", len(blob))
	return nil
}

func blockSize(capacity uint64, unit int) int {
	if capacity > maxBlockSize {
		return maxBlockSize
	}
	return int(capacity) * unit
}

// SerializeState captures a global write in progress. The fragment name is
// fixed on the first call.
func (w *Writer) SerializeState() (*wire.Writer, error) {
	if w.global == nil && w.restored != nil {
		// Not yet applied by Init; it round-trips unchanged.
		return w.restored, nil
	}
	if w.global == nil {
		if w.schema == nil {
			return nil, fmt.Errorf("%w: writer has no array schema", query.ErrConfiguration)
		}
		b, err := w.geom.toBox(w.schema.Domain, w.subarray)
		if err != nil {
			return nil, err
		}
		w.global = &globalState{name: w.takeName(), box: b, staged: make(map[string]*column)}
	}
	g := w.global
	msg := &wire.Writer{
		FragmentURI: Key(w.arrayURI, g.name),
		GlobalWriteState: &wire.GlobalWriteState{
			CellsWritten: wire.Uint64(g.cells),
		},
	}
	w.geom.put(&msg.GlobalWriteState.Subarray, w.geom.fromBox(w.schema.Domain, g.box))
	for _, a := range w.schema.Attributes {
		c, ok := g.staged[a.Name]
		if !ok {
			continue
		}
		msg.GlobalWriteState.Staged = append(msg.GlobalWriteState.Staged, wire.Staged{
			Attribute: a.Name,
			Data:      slices.Clone(c.data),
			Offsets:   slices.Clone(c.offsets),
		})
	}
	return msg, nil
}

// DeserializeState replaces the global write in progress with m. The state
// is checked against the schema, layout and subarray on the next Init.
func (w *Writer) DeserializeState(m *wire.Writer) error {
	if m == nil {
		return fmt.Errorf("%w: nil writer state", query.ErrDecode)
	}
	if name := path.Base(m.FragmentURI); name == "" || name == "." || name == "/" {
		return fmt.Errorf("%w: writer state has no fragment name", query.ErrDecode)
	}
	w.release()
	w.restored, w.ready = m, false
	return nil
}

// restore rebuilds the staged cells of m once the schema and subarray are
// known.
func (w *Writer) restore(m *wire.Writer) error {
	g := &globalState{name: path.Base(m.FragmentURI), box: w.box, staged: make(map[string]*column)}
	gs := m.GlobalWriteState
	if gs == nil {
		w.global = g
		return nil
	}
	if !gs.Subarray.Empty() {
		b, err := w.geom.toBox(w.schema.Domain, w.geom.take(&gs.Subarray))
		if err != nil {
			return fmt.Errorf("%w: writer state subarray: %v", query.ErrDecode, err)
		}
		if !b.equal(w.box) {
			return fmt.Errorf("%w: writer state subarray differs from the query subarray", query.ErrDecode)
		}
	}
	g.cells = uint64(gs.CellsWritten)
	if g.cells > w.cells {
		return fmt.Errorf("%w: writer state holds %d cells, subarray has %d", query.ErrDecode, g.cells, w.cells)
	}
	for _, st := range gs.Staged {
		a, ok := w.schema.Attribute(st.Attribute)
		if !ok {
			return fmt.Errorf("%w: writer state stages unknown attribute %q", query.ErrDecode, st.Attribute)
		}
		c := &column{data: slices.Clone(st.Data), offsets: slices.Clone([]uint64(st.Offsets)), cellSize: cellSizeOf(a)}
		if c.isVar() != a.IsVar() || (!c.isVar() && len(c.data)%c.cellSize != 0) {
			return fmt.Errorf("%w: writer state for attribute %q is malformed", query.ErrDecode, a.Name)
		}
		g.staged[a.Name] = c
	}
	if g.cells > 0 {
		for _, a := range w.schema.Attributes {
			c, ok := g.staged[a.Name]
			if !ok || uint64(c.len()) != g.cells {
				return fmt.Errorf("%w: writer state for attribute %q does not hold %d cells", query.ErrDecode, a.Name, g.cells)
			}
			if c.isVar() && !offsetsValid(c.offsets, uint64(len(c.data))) {
				return fmt.Errorf("%w: writer state offsets for attribute %q are malformed", query.ErrDecode, a.Name)
			}
		}
	}
	for _, c := range g.staged {
		g.reserved += int64(len(c.data) + 8*len(c.offsets))
	}
	if !w.opts.rc.TryAcquireMemory(g.reserved) {
		return fmt.Errorf("%w: %d bytes of staged cells exceed the memory limit", query.ErrState, g.reserved)
	}
	w.global = g
	return nil
}

// release drops a global write in progress.
func (w *Writer) release() {
	if w.global != nil {
		w.opts.rc.ReleaseMemory(w.global.reserved)
		w.global = nil
	}
}

// offsetsValid reports whether offsets start at 0, never decrease and stay
// within size bytes.
func offsetsValid(offsets []uint64, size uint64) bool {
	if len(offsets) > 0 && offsets[0] != 0 {
		return false
	}
	for i, off := range offsets {
		if off > size || (i > 0 && off < offsets[i-1]) {
			return false
		}
	}
	return true
}
