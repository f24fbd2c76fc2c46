package query

import (
	"slices"

	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/wire"
)

// kernel bundles the per-datatype operations of the query. kernelOf[T] is
// instantiated once per storage type; kernelFor is the only place that
// branches on a runtime datatype.
type kernel struct {
	// check validates a subarray against the domain.
	check func(dom *schema.Domain, subarray any) error
	// put stores a copy of slice in the matching slot of a.
	put func(a *wire.TypedArray, slice any)
	// take returns a copy of the matching slot of a.
	take func(a *wire.TypedArray) any
	// assign copies src into dst element by element.
	assign func(dst, src any)
}

var kernels = map[datatype.Datatype]kernel{
	datatype.Int8:    kernelOf[int8](),
	datatype.Uint8:   kernelOf[uint8](),
	datatype.Int16:   kernelOf[int16](),
	datatype.Uint16:  kernelOf[uint16](),
	datatype.Int32:   kernelOf[int32](),
	datatype.Uint32:  kernelOf[uint32](),
	datatype.Int64:   kernelOf[int64](),
	datatype.Uint64:  kernelOf[uint64](),
	datatype.Float32: kernelOf[float32](),
	datatype.Float64: kernelOf[float64](),
	datatype.Char:    charKernel(),
}

func kernelOf[T datatype.Scalar]() kernel {
	return kernel{
		check: checkBounds[T],
		put: func(a *wire.TypedArray, slice any) {
			*wire.Slot[T](a) = slices.Clone(slice.([]T))
		},
		take: func(a *wire.TypedArray) any {
			return slices.Clone(*wire.Slot[T](a))
		},
		assign: func(dst, src any) {
			copy(dst.([]T), src.([]T))
		},
	}
}

// CHAR values travel in the text slot.
func charKernel() kernel {
	k := kernelOf[uint8]()
	k.check = nil
	k.put = func(a *wire.TypedArray, slice any) { a.Text = wire.Chars(slices.Clone(slice.([]byte))) }
	k.take = func(a *wire.TypedArray) any { return slices.Clone([]byte(a.Text)) }
	return k
}

// kernelFor resolves the kernel that handles values of d.
func kernelFor(op string, d datatype.Datatype) (kernel, error) {
	st, ok := d.Storage()
	if !ok {
		return kernel{}, errorf(ErrConfiguration, op, "datatype %s has no concrete scalar representation", d)
	}
	k, ok := kernels[st]
	if !ok {
		return kernel{}, errorf(ErrConfiguration, op, "datatype %s is not supported", d)
	}
	return k, nil
}

// domainKernel resolves the kernel for a domain, rejecting non-scalar domain types.
func domainKernel(op string, dom *schema.Domain) (kernel, error) {
	if dom == nil {
		return kernel{}, errorf(ErrConfiguration, op, "array schema has no domain")
	}
	if !dom.Type.IsDomainType() {
		return kernel{}, errorf(ErrConfiguration, op, "datatype %s cannot type a domain", dom.Type)
	}
	return kernelFor(op, dom.Type)
}
