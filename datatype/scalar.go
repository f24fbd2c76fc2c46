package datatype

import (
	"encoding/binary"
	"fmt"
)

// Scalar is the set of Go types that back a Datatype in memory.
type Scalar interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// Of reports the Datatype that matches the element type of a typed slice.
//
// []byte resolves to Uint8; CHAR and the 8-bit string types share that
// representation (see Matches).
func Of(slice any) (Datatype, bool) {
	switch slice.(type) {
	case []int8:
		return Int8, true
	case []uint8:
		return Uint8, true
	case []int16:
		return Int16, true
	case []uint16:
		return Uint16, true
	case []int32:
		return Int32, true
	case []uint32:
		return Uint32, true
	case []int64:
		return Int64, true
	case []uint64:
		return Uint64, true
	case []float32:
		return Float32, true
	case []float64:
		return Float64, true
	default:
		return Any, false
	}
}

// For returns the Datatype that matches the Go type T.
func For[T Scalar]() Datatype {
	var zero T
	d, _ := Of([]T{zero})
	return d
}

// Matches reports whether slice is a valid in-memory representation of values of d.
func Matches(d Datatype, slice any) bool {
	st, ok := d.Storage()
	if !ok {
		return false
	}
	if st == Char {
		st = Uint8
	}
	got, ok := Of(slice)
	return ok && got == st
}

// Len returns the element count of a typed slice, or -1 if slice is not one.
func Len(slice any) int {
	switch s := slice.(type) {
	case []int8:
		return len(s)
	case []uint8:
		return len(s)
	case []int16:
		return len(s)
	case []uint16:
		return len(s)
	case []int32:
		return len(s)
	case []uint32:
		return len(s)
	case []int64:
		return len(s)
	case []uint64:
		return len(s)
	case []float32:
		return len(s)
	case []float64:
		return len(s)
	default:
		return -1
	}
}

// ByteLen returns the size in bytes of a typed slice.
func ByteLen(slice any) uint64 {
	d, ok := Of(slice)
	if !ok {
		return 0
	}
	return uint64(Len(slice)) * d.Size()
}

// MakeSlice allocates a zeroed slice of n values of d.
func MakeSlice(d Datatype, n int) (any, error) {
	st, ok := d.Storage()
	if !ok {
		return nil, fmt.Errorf("datatype %s has no storage representation", d)
	}
	switch st {
	case Int8:
		return make([]int8, n), nil
	case Uint8, Char:
		return make([]uint8, n), nil
	case Int16:
		return make([]int16, n), nil
	case Uint16:
		return make([]uint16, n), nil
	case Int32:
		return make([]int32, n), nil
	case Uint32:
		return make([]uint32, n), nil
	case Int64:
		return make([]int64, n), nil
	case Uint64:
		return make([]uint64, n), nil
	case Float32:
		return make([]float32, n), nil
	case Float64:
		return make([]float64, n), nil
	}
	return nil, fmt.Errorf("datatype %s has no storage representation", d)
}

// AppendBytes appends the little-endian encoding of a typed slice to dst.
func AppendBytes(dst []byte, slice any) ([]byte, error) {
	if _, ok := Of(slice); !ok {
		return nil, fmt.Errorf("unsupported slice type %T", slice)
	}
	return binary.Append(dst, binary.LittleEndian, slice)
}

// DecodeBytes decodes little-endian values of d from data into a new slice.
func DecodeBytes(d Datatype, data []byte) (any, error) {
	size := d.Size()
	if size == 0 || uint64(len(data))%size != 0 {
		return nil, fmt.Errorf("cannot decode %d bytes as %s", len(data), d)
	}
	out, err := MakeSlice(d, int(uint64(len(data))/size))
	if err != nil {
		return nil, err
	}
	if _, err := binary.Decode(data, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Slice returns slice[from:to] for a typed slice, or nil if slice is not one.
func Slice(slice any, from, to int) any {
	switch s := slice.(type) {
	case []int8:
		return s[from:to]
	case []uint8:
		return s[from:to]
	case []int16:
		return s[from:to]
	case []uint16:
		return s[from:to]
	case []int32:
		return s[from:to]
	case []uint32:
		return s[from:to]
	case []int64:
		return s[from:to]
	case []uint64:
		return s[from:to]
	case []float32:
		return s[from:to]
	case []float64:
		return s[from:to]
	default:
		return nil
	}
}

// DecodeInto decodes little-endian values from data into the head of dst,
// a typed slice, and returns the number of values decoded.
func DecodeInto(dst any, data []byte) (int, error) {
	d, ok := Of(dst)
	if !ok {
		return 0, fmt.Errorf("unsupported slice type %T", dst)
	}
	size := d.Size()
	if uint64(len(data))%size != 0 {
		return 0, fmt.Errorf("cannot decode %d bytes as %s", len(data), d)
	}
	n := int(uint64(len(data)) / size)
	if n > Len(dst) {
		return 0, fmt.Errorf("%d values do not fit a slice of %d", n, Len(dst))
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := binary.Decode(data, binary.LittleEndian, Slice(dst, 0, n)); err != nil {
		return 0, err
	}
	return n, nil
}
