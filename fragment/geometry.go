package fragment

import (
	"fmt"
	"slices"

	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/internal/conv"
	"github.com/hupe1980/arraystore/query"
	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/wire"
)

type integer interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64
}

// span is an inclusive range of ordinals along one dimension. An ordinal is
// the distance of a coordinate from the lower bound of the domain, so every
// integer domain type maps onto [0, hi-lo] in uint64.
type span struct {
	lo, hi uint64
}

func (s span) len() uint64 { return s.hi - s.lo + 1 }

// box is a hyper-rectangle of cells, one span per dimension.
type box []span

// cells returns the number of cells in b, failing on overflow.
func (b box) cells() (uint64, error) {
	n := uint64(1)
	for _, s := range b {
		l := s.len()
		if l == 0 {
			return 0, fmt.Errorf("%w: dimension spans 2^64 cells", query.ErrConfiguration)
		}
		var err error
		if n, err = conv.MulUint64(n, l); err != nil {
			return 0, fmt.Errorf("%w: %v", query.ErrConfiguration, err)
		}
	}
	return n, nil
}

func (b box) intersect(o box) (box, bool) {
	out := make(box, len(b))
	for i := range b {
		lo, hi := max(b[i].lo, o[i].lo), min(b[i].hi, o[i].hi)
		if lo > hi {
			return nil, false
		}
		out[i] = span{lo: lo, hi: hi}
	}
	return out, true
}

func (b box) equal(o box) bool { return slices.Equal(b, o) }

// cellOrder linearizes the cells of a box in row-major or col-major order.
type cellOrder struct {
	box     box
	strides []uint64
	// major lists dimensions from slowest to fastest varying.
	major []int
}

// newOrder builds the order of b under l. GLOBAL_ORDER and UNORDERED fall
// back to row-major. The cell count of b must have been checked.
func newOrder(b box, l schema.Layout) cellOrder {
	n := len(b)
	o := cellOrder{box: b, strides: make([]uint64, n), major: make([]int, n)}
	for i := range n {
		if l == schema.ColMajor {
			o.major[i] = n - 1 - i
		} else {
			o.major[i] = i
		}
	}
	acc := uint64(1)
	for i := n - 1; i >= 0; i-- {
		d := o.major[i]
		o.strides[d] = acc
		acc *= b[d].len()
	}
	return o
}

// coords decodes position p into absolute ordinals.
func (o cellOrder) coords(p uint64, dst []uint64) {
	for _, d := range o.major {
		dst[d] = o.box[d].lo + p/o.strides[d]
		p %= o.strides[d]
	}
}

// pos encodes absolute ordinals inside the box into a position.
func (o cellOrder) pos(c []uint64) uint64 {
	var p uint64
	for d, s := range o.strides {
		p += (c[d] - o.box[d].lo) * s
	}
	return p
}

func (o cellOrder) contains(c []uint64) bool {
	for d, s := range o.box {
		if c[d] < s.lo || c[d] > s.hi {
			return false
		}
	}
	return true
}

// geometry converts typed subarrays of one domain type to and from boxes.
type geometry struct {
	// toBox converts a subarray ([lo0, hi0, lo1, hi1, ...]) to a box;
	// a nil subarray selects the whole domain.
	toBox   func(dom *schema.Domain, subarray any) (box, error)
	fromBox func(dom *schema.Domain, b box) any
	put     func(a *wire.TypedArray, subarray any)
	take    func(a *wire.TypedArray) any
}

var geometries = map[datatype.Datatype]geometry{
	datatype.Int8:   geometryOf[int8](),
	datatype.Uint8:  geometryOf[uint8](),
	datatype.Int16:  geometryOf[int16](),
	datatype.Uint16: geometryOf[uint16](),
	datatype.Int32:  geometryOf[int32](),
	datatype.Uint32: geometryOf[uint32](),
	datatype.Int64:  geometryOf[int64](),
	datatype.Uint64: geometryOf[uint64](),
}

// geometryFor resolves the geometry of a dense domain. Only integer domains
// address cells.
func geometryFor(dom *schema.Domain) (geometry, error) {
	if dom == nil || len(dom.Dimensions) == 0 {
		return geometry{}, fmt.Errorf("%w: array schema has no domain", query.ErrConfiguration)
	}
	g, ok := geometries[dom.Type]
	if !ok {
		return geometry{}, fmt.Errorf("%w: dense arrays need an integer domain, got %s", query.ErrConfiguration, dom.Type)
	}
	return g, nil
}

func geometryOf[T integer]() geometry {
	return geometry{
		toBox: func(dom *schema.Domain, subarray any) (box, error) {
			var sub []T
			if subarray != nil {
				var ok bool
				if sub, ok = subarray.([]T); !ok {
					return nil, fmt.Errorf("%w: subarray %T does not match %s domain", query.ErrValidation, subarray, dom.Type)
				}
				if len(sub) != 2*len(dom.Dimensions) {
					return nil, fmt.Errorf("%w: subarray has %d values for %d dimensions", query.ErrValidation, len(sub), len(dom.Dimensions))
				}
			}
			b := make(box, len(dom.Dimensions))
			for i, d := range dom.Dimensions {
				lo, hi, ok := schema.Bounds[T](d)
				if !ok {
					return nil, fmt.Errorf("%w: dimension %q has no %s domain", query.ErrConfiguration, d.Name, dom.Type)
				}
				if sub == nil {
					b[i] = span{lo: 0, hi: uint64(hi) - uint64(lo)}
					continue
				}
				slo, shi := sub[2*i], sub[2*i+1]
				if slo > shi || slo < lo || shi > hi {
					return nil, fmt.Errorf("%w: subarray [%v, %v] outside dimension %q domain [%v, %v]", query.ErrValidation, slo, shi, d.Name, lo, hi)
				}
				b[i] = span{lo: uint64(slo) - uint64(lo), hi: uint64(shi) - uint64(lo)}
			}
			return b, nil
		},
		fromBox: func(dom *schema.Domain, b box) any {
			out := make([]T, 0, 2*len(b))
			for i, d := range dom.Dimensions {
				lo, _, _ := schema.Bounds[T](d)
				out = append(out, T(uint64(lo)+b[i].lo), T(uint64(lo)+b[i].hi))
			}
			return out
		},
		put: func(a *wire.TypedArray, subarray any) {
			*wire.Slot[T](a) = slices.Clone(subarray.([]T))
		},
		take: func(a *wire.TypedArray) any {
			return slices.Clone(*wire.Slot[T](a))
		},
	}
}
