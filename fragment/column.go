package fragment

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/query"
	"github.com/hupe1980/arraystore/schema"
)

// column holds the cells of one attribute as little-endian bytes. Fixed
// columns have cellSize > 0; variable columns carry one byte offset per cell.
type column struct {
	data     []byte
	offsets  []uint64
	cellSize int
}

func (c column) isVar() bool { return c.cellSize == 0 }

func (c column) len() int {
	if c.isVar() {
		return len(c.offsets)
	}
	return len(c.data) / c.cellSize
}

func (c column) cell(i int) []byte {
	if !c.isVar() {
		return c.data[i*c.cellSize : (i+1)*c.cellSize]
	}
	end := uint64(len(c.data))
	if i+1 < len(c.offsets) {
		end = c.offsets[i+1]
	}
	return c.data[c.offsets[i]:end]
}

// gather returns the cells of c in the order given by src.
func (c column) gather(src []int) column {
	out := column{cellSize: c.cellSize, data: make([]byte, 0, len(c.data))}
	if c.isVar() {
		out.offsets = make([]uint64, 0, len(src))
	}
	for _, i := range src {
		if c.isVar() {
			out.offsets = append(out.offsets, uint64(len(out.data)))
		}
		out.data = append(out.data, c.cell(i)...)
	}
	return out
}

// appendColumn appends the cells of o to c, rebasing the offsets of o.
func (c *column) appendColumn(o column) {
	base := uint64(len(c.data))
	for _, off := range o.offsets {
		c.offsets = append(c.offsets, base+off)
	}
	c.data = append(c.data, o.data...)
}

// cellSizeOf returns the byte size of one cell of a, 0 for variable cells.
func cellSizeOf(a *schema.Attribute) int {
	if a.IsVar() {
		return 0
	}
	return int(uint64(a.CellValNum) * a.Type.Size())
}

// columnOf copies the cells bound in b for attribute a.
func columnOf(a *schema.Attribute, b *query.Buffer) (column, error) {
	data, err := datatype.AppendBytes(nil, b.Data.Slice())
	if err != nil {
		return column{}, fmt.Errorf("%w: attribute %q: %v", query.ErrValidation, a.Name, err)
	}
	c := column{data: data, cellSize: cellSizeOf(a)}
	if a.IsVar() {
		offsets := b.OffsetsSlice()
		if err := query.CheckVarOffsets(offsets, uint64(len(data))); err != nil {
			return column{}, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		if offsets[0] != 0 {
			return column{}, fmt.Errorf("%w: attribute %q: first offset is %d, want 0", query.ErrValidation, a.Name, offsets[0])
		}
		for _, off := range offsets {
			if off%a.Type.Size() != 0 {
				return column{}, fmt.Errorf("%w: attribute %q: offset %d splits a %s value", query.ErrValidation, a.Name, off, a.Type)
			}
		}
		c.offsets = append([]uint64(nil), offsets...)
		return c, nil
	}
	if len(data)%c.cellSize != 0 {
		return column{}, fmt.Errorf("%w: attribute %q: buffer of %d bytes is not a whole number of %d-byte cells",
			query.ErrValidation, a.Name, len(data), c.cellSize)
	}
	return c, nil
}

func encodeOffsets(offsets []uint64) []byte {
	out := make([]byte, 0, 8*len(offsets))
	for _, off := range offsets {
		out = binary.LittleEndian.AppendUint64(out, off)
	}
	return out
}

func decodeOffsets(b []byte) ([]uint64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: offsets section of %d bytes", ErrCorrupt, len(b))
	}
	out := make([]uint64, len(b)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[8*i:])
	}
	return out, nil
}
