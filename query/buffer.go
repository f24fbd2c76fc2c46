package query

import (
	"fmt"

	"github.com/hupe1980/arraystore/datatype"
)

// Region is a typed memory region bound to a query. A Borrowed region views
// caller memory; an Owned region was allocated by the query itself (while
// merging a deserialized message) and is released with the binding.
type Region struct {
	slice any
	owned bool
}

// Borrow wraps caller-owned memory. slice must be a typed slice such as []int32.
func Borrow(slice any) Region { return Region{slice: slice} }

func own(slice any) Region { return Region{slice: slice, owned: true} }

// Slice returns the underlying typed slice.
func (r Region) Slice() any { return r.slice }

// Owned reports whether the query allocated the region.
func (r Region) Owned() bool { return r.owned }

// Len returns the element count, 0 for an empty region.
func (r Region) Len() int {
	if n := datatype.Len(r.slice); n > 0 {
		return n
	}
	return 0
}

// ByteSize returns the size of the region in bytes.
func (r Region) ByteSize() uint64 { return datatype.ByteLen(r.slice) }

// Buffer is the memory bound to one attribute. Offsets is set only for
// variable-length attributes and always views a []uint64.
//
// Strategies report how much of a region a read filled through SetResult;
// the element counts are visible to callers via Query.ResultSize.
type Buffer struct {
	Data    Region
	Offsets *Region

	dataResult    uint64
	offsetsResult uint64
}

// SetResult records the number of data and offset elements a read produced.
func (b *Buffer) SetResult(dataElems, offsetElems uint64) {
	b.dataResult = dataElems
	b.offsetsResult = offsetElems
}

// Result returns the element counts recorded by SetResult.
func (b Buffer) Result() (dataElems, offsetElems uint64) {
	return b.dataResult, b.offsetsResult
}

// OffsetsSlice returns the offsets as []uint64, or nil for fixed attributes.
func (b Buffer) OffsetsSlice() []uint64 {
	if b.Offsets == nil {
		return nil
	}
	off, _ := b.Offsets.slice.([]uint64)
	return off
}

func newBuffer(data any, offsets []uint64) (*Buffer, error) {
	if data == nil {
		return nil, fmt.Errorf("nil data buffer")
	}
	if _, ok := datatype.Of(data); !ok {
		return nil, fmt.Errorf("unsupported buffer type %T", data)
	}
	b := &Buffer{Data: Borrow(data)}
	if offsets != nil {
		r := Borrow(offsets)
		b.Offsets = &r
	}
	return b, nil
}

// CheckVarOffsets validates the offsets of a variable-length buffer: they
// must be strictly ascending and each must address a byte inside a value
// region of valueBytes bytes. An empty offsets buffer holds no cells and
// passes.
func CheckVarOffsets(offsets []uint64, valueBytes uint64) error {
	if len(offsets) == 0 {
		return nil
	}
	prev := offsets[0]
	if prev >= valueBytes {
		return errorf(ErrValidation, "check offsets", "offset %d specified for buffer of size %d", prev, valueBytes)
	}
	for _, off := range offsets[1:] {
		if off <= prev {
			return errorf(ErrValidation, "check offsets", "offsets are not ascending")
		}
		if off >= valueBytes {
			return errorf(ErrValidation, "check offsets", "offset %d specified for buffer of size %d", off, valueBytes)
		}
		prev = off
	}
	return nil
}
