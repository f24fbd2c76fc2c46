package query

import (
	"fmt"

	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/schema"
)

func checkBounds[T datatype.Scalar](dom *schema.Domain, subarray any) error {
	sub, ok := subarray.([]T)
	if !ok {
		return fmt.Errorf("subarray is %T, domain expects []%s", subarray, dom.Type)
	}
	if len(sub) != 2*len(dom.Dimensions) {
		return fmt.Errorf("subarray has %d bounds, domain needs %d", len(sub), 2*len(dom.Dimensions))
	}
	for i, dim := range dom.Dimensions {
		lo, hi, ok := schema.Bounds[T](dim)
		if !ok {
			return fmt.Errorf("dimension %q domain is not a []%s pair", dim.Name, dom.Type)
		}
		if sub[2*i] != sub[2*i] || sub[2*i+1] != sub[2*i+1] {
			return fmt.Errorf("subarray bound on dimension %q is NaN", dim.Name)
		}
		if sub[2*i] < lo || sub[2*i+1] > hi {
			return fmt.Errorf("subarray out of bounds on dimension %q: [%v, %v] not in [%v, %v]",
				dim.Name, sub[2*i], sub[2*i+1], lo, hi)
		}
		if sub[2*i] > sub[2*i+1] {
			return fmt.Errorf("lower bound exceeds upper bound on dimension %q: %v > %v",
				dim.Name, sub[2*i], sub[2*i+1])
		}
	}
	return nil
}

// Subarray returns the current subarray as a typed slice of the domain type,
// or nil when the query covers the entire domain.
func (q *Query) Subarray() any {
	return q.subarray
}

// SetSubarray restricts the query to a hyper-rectangle given as [lo, hi]
// pairs per dimension, typed after the domain ([]int64 for an INT64
// domain). nil or an empty slice selects the entire domain.
//
// An invalid subarray is rejected with ErrValidation and leaves the query
// untouched. On success the status resets to Uninitialized.
func (q *Query) SetSubarray(subarray any) error {
	const op = "set subarray"

	if subarray == nil || datatype.Len(subarray) == 0 {
		if s := q.strategy(); s != nil {
			if err := s.SetSubarray(nil); err != nil {
				return classify(op, err, ErrValidation)
			}
		}
		q.subarray = nil
		q.setStatus(Uninitialized)
		return nil
	}

	if q.schema == nil {
		return errorf(ErrConfiguration, op, "query has no array schema")
	}
	k, err := domainKernel(op, q.schema.Domain)
	if err != nil {
		return err
	}
	if err := k.check(q.schema.Domain, subarray); err != nil {
		q.logger.Debug("subarray rejected", "error", err)
		return wrap(ErrValidation, op, err)
	}

	sub, _ := datatype.MakeSlice(q.schema.Domain.Type, datatype.Len(subarray))
	k.assign(sub, subarray)

	if s := q.strategy(); s != nil {
		if err := s.SetSubarray(sub); err != nil {
			return classify(op, err, ErrValidation)
		}
	}
	q.subarray = sub
	q.setStatus(Uninitialized)
	return nil
}
