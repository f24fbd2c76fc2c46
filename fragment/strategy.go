package fragment

import (
	"fmt"

	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/internal/conv"
	"github.com/hupe1980/arraystore/query"
	"github.com/hupe1980/arraystore/schema"
)

// denseGeometry accepts only dense schemas over integer domains.
func denseGeometry(s *schema.ArraySchema) (geometry, error) {
	if s == nil {
		return geometry{}, fmt.Errorf("%w: nil array schema", query.ErrConfiguration)
	}
	if s.ArrayType != schema.Dense {
		return geometry{}, fmt.Errorf("%w: %s arrays are not supported", query.ErrConfiguration, s.ArrayType)
	}
	return geometryFor(s.Domain)
}

// checkLayout rejects layouts without a dense cell order.
func checkLayout(l schema.Layout) error {
	switch l {
	case schema.RowMajor, schema.ColMajor, schema.GlobalOrder:
		return nil
	default:
		return fmt.Errorf("%w: layout %s is not supported for dense arrays", query.ErrConfiguration, l)
	}
}

// cellLayout resolves the traversal order of l. The global order of a dense
// array is its cell order; tile boundaries are not materialized.
func cellLayout(l schema.Layout, s *schema.ArraySchema) schema.Layout {
	if l == schema.GlobalOrder {
		return s.CellOrder
	}
	return l
}

// checkBinding verifies that b can hold values of a.
func checkBinding(a *schema.Attribute, b *query.Buffer) error {
	if !datatype.Matches(a.Type, b.Data.Slice()) {
		return fmt.Errorf("%w: attribute %q is %s but bound to %T", query.ErrValidation, a.Name, a.Type, b.Data.Slice())
	}
	if a.IsVar() && b.Offsets == nil {
		return fmt.Errorf("%w: variable-length attribute %q bound without offsets", query.ErrValidation, a.Name)
	}
	if !a.IsVar() && b.Offsets != nil {
		return fmt.Errorf("%w: fixed-length attribute %q bound with offsets", query.ErrValidation, a.Name)
	}
	return nil
}

// permutation returns, for each row-major position of b, the position of the
// same cell under from.
func permutation(b box, from cellOrder) ([]int, error) {
	cells, err := b.cells()
	if err != nil {
		return nil, err
	}
	n, err := conv.Uint64ToInt(cells)
	if err != nil {
		return nil, err
	}
	row := newOrder(b, schema.RowMajor)
	c := make([]uint64, len(b))
	src := make([]int, n)
	for p := range src {
		row.coords(uint64(p), c)
		src[p] = int(from.pos(c))
	}
	return src, nil
}
