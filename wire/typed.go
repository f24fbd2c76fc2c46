package wire

import (
	"github.com/hupe1980/arraystore/datatype"
)

// TypedArray is a datatype-tagged union of typed lists. Exactly one slot is
// populated by a well-formed message; every other slot is omitted.
type TypedArray struct {
	Int8    []int8    `json:"int8,omitempty"`
	Uint8   Uint8s    `json:"uint8,omitempty"`
	Int16   []int16   `json:"int16,omitempty"`
	Uint16  []uint16  `json:"uint16,omitempty"`
	Int32   []int32   `json:"int32,omitempty"`
	Uint32  []uint32  `json:"uint32,omitempty"`
	Int64   Int64s    `json:"int64,omitempty"`
	Uint64  Uint64s   `json:"uint64,omitempty"`
	Float32 Float32s  `json:"float32,omitempty"`
	Float64 Float64s  `json:"float64,omitempty"`
	Text    Chars     `json:"text,omitempty"`
}

// Slot returns the list slot of a that holds values of type T.
func Slot[T datatype.Scalar](a *TypedArray) *[]T {
	var p any
	switch any(*new(T)).(type) {
	case int8:
		p = &a.Int8
	case uint8:
		p = (*[]uint8)(&a.Uint8)
	case int16:
		p = &a.Int16
	case uint16:
		p = &a.Uint16
	case int32:
		p = &a.Int32
	case uint32:
		p = &a.Uint32
	case int64:
		p = (*[]int64)(&a.Int64)
	case uint64:
		p = (*[]uint64)(&a.Uint64)
	case float32:
		p = (*[]float32)(&a.Float32)
	case float64:
		p = (*[]float64)(&a.Float64)
	}
	return p.(*[]T)
}

// Tags returns the names of the populated slots.
func (a *TypedArray) Tags() []string {
	var tags []string
	add := func(ok bool, name string) {
		if ok {
			tags = append(tags, name)
		}
	}
	add(len(a.Int8) > 0, "int8")
	add(len(a.Uint8) > 0, "uint8")
	add(len(a.Int16) > 0, "int16")
	add(len(a.Uint16) > 0, "uint16")
	add(len(a.Int32) > 0, "int32")
	add(len(a.Uint32) > 0, "uint32")
	add(len(a.Int64) > 0, "int64")
	add(len(a.Uint64) > 0, "uint64")
	add(len(a.Float32) > 0, "float32")
	add(len(a.Float64) > 0, "float64")
	add(len(a.Text) > 0, "text")
	return tags
}

// Empty reports whether no slot is populated.
func (a *TypedArray) Empty() bool {
	return a == nil || len(a.Tags()) == 0
}

// TypedValue is a datatype-tagged single value.
type TypedValue struct {
	Int8    *int8    `json:"int8,omitempty"`
	Uint8   *uint8   `json:"uint8,omitempty"`
	Int16   *int16   `json:"int16,omitempty"`
	Uint16  *uint16  `json:"uint16,omitempty"`
	Int32   *int32   `json:"int32,omitempty"`
	Uint32  *uint32  `json:"uint32,omitempty"`
	Int64   *Int64   `json:"int64,omitempty"`
	Uint64  *Uint64  `json:"uint64,omitempty"`
	Float32 *float32 `json:"float32,omitempty"`
	Float64 *float64 `json:"float64,omitempty"`
}

// ValueOf wraps v in the slot matching its type.
func ValueOf[T datatype.Scalar](v T) *TypedValue {
	out := &TypedValue{}
	switch x := any(v).(type) {
	case int8:
		out.Int8 = &x
	case uint8:
		out.Uint8 = &x
	case int16:
		out.Int16 = &x
	case uint16:
		out.Uint16 = &x
	case int32:
		out.Int32 = &x
	case uint32:
		out.Uint32 = &x
	case int64:
		w := Int64(x)
		out.Int64 = &w
	case uint64:
		w := Uint64(x)
		out.Uint64 = &w
	case float32:
		out.Float32 = &x
	case float64:
		out.Float64 = &x
	}
	return out
}

// ValueAs reads the slot of v that holds a T.
func ValueAs[T datatype.Scalar](v *TypedValue) (T, bool) {
	var zero T
	if v == nil {
		return zero, false
	}
	var (
		got any
		ok  bool
	)
	switch any(zero).(type) {
	case int8:
		got, ok = deref(v.Int8)
	case uint8:
		got, ok = deref(v.Uint8)
	case int16:
		got, ok = deref(v.Int16)
	case uint16:
		got, ok = deref(v.Uint16)
	case int32:
		got, ok = deref(v.Int32)
	case uint32:
		got, ok = deref(v.Uint32)
	case int64:
		if v.Int64 != nil {
			got, ok = int64(*v.Int64), true
		}
	case uint64:
		if v.Uint64 != nil {
			got, ok = uint64(*v.Uint64), true
		}
	case float32:
		got, ok = deref(v.Float32)
	case float64:
		got, ok = deref(v.Float64)
	}
	if !ok {
		return zero, false
	}
	return got.(T), true
}

func deref[T any](p *T) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}
