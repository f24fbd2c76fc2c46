package query

import (
	"slices"

	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/wire"
)

// bufferUpdate is one planned change to the buffer registry.
type bufferUpdate struct {
	name    string
	k       kernel
	target  *Buffer // nil binds a new owned buffer
	data    any
	offsets []uint64
}

// FromMessage applies a message produced by ToMessage, in this order:
// writer state, schema, type and layout, subarray, buffers, status.
//
// Incoming buffers for attributes that are already bound are copied into
// the bound memory, which must hold exactly as many elements as the message
// carries; otherwise the call fails with a *SizeMismatchError. Attributes
// without a binding get freshly allocated buffers owned by the query. No
// buffer is modified unless every buffer entry is acceptable, but a failed
// call may leave the schema, layout and subarray replaced: discard the query.
//
// The status is restored verbatim, bypassing the lifecycle rules.
func (q *Query) FromMessage(msg *wire.Query) error {
	const op = "deserialize"
	if msg == nil {
		return errorf(ErrDecode, op, "nil message")
	}

	typ, err := ParseType(msg.Type)
	if err != nil {
		return err
	}
	if typ != q.typ {
		return errorf(ErrDecode, op, "message is a %s query, query is %s", typ, q.typ)
	}

	if msg.Writer != nil && q.typ == Write {
		if q.exec.writer == nil {
			return errorf(ErrConfiguration, op, "message carries writer state but query has no writer")
		}
		if err := q.exec.writer.DeserializeState(msg.Writer); err != nil {
			return classify(op, err, ErrDecode)
		}
	}

	if msg.ArraySchema == nil {
		return errorf(ErrDecode, op, "message has no array schema")
	}
	s, err := schema.FromMessage(msg.ArraySchema)
	if err != nil {
		return wrap(ErrDecode, op, err)
	}
	if err := q.SetArraySchema(s); err != nil {
		return err
	}

	layout, err := schema.ParseLayout(msg.Layout)
	if err != nil {
		return wrap(ErrDecode, op, err)
	}
	if err := q.SetLayout(layout); err != nil {
		return err
	}

	if !msg.Subarray.Empty() {
		k, err := domainKernel(op, s.Domain)
		if err != nil {
			return err
		}
		sub, err := takeSlot(op, k, msg.Subarray, "subarray")
		if err != nil {
			return err
		}
		if err := q.SetSubarray(sub); err != nil {
			return err
		}
	}

	status, err := ParseStatus(msg.Status)
	if err != nil {
		return err
	}

	updates, err := q.planBuffers(op, s, msg.Buffers)
	if err != nil {
		q.logger.Error("query deserialize rejected", "error", err)
		return err
	}
	if err := q.applyBuffers(op, updates); err != nil {
		q.logger.Error("query deserialize rejected", "error", err)
		return err
	}

	q.setStatus(status)
	return nil
}

func (q *Query) planBuffers(op string, s *schema.ArraySchema, m wire.BufferMap) ([]bufferUpdate, error) {
	updates := make([]bufferUpdate, 0, len(m.Entries))
	for _, e := range m.Entries {
		if schema.IsSpecialName(e.Key) {
			continue
		}
		attr, ok := s.Attribute(e.Key)
		if !ok {
			return nil, errorf(ErrValidation, op, "attribute %q does not exist", e.Key)
		}
		typ, err := datatype.Parse(e.Value.Type)
		if err != nil {
			return nil, wrap(ErrDecode, op, err)
		}
		if typ != attr.Type {
			return nil, errorf(ErrValidation, op, "attribute %q is %s, message buffer is %s", e.Key, attr.Type, typ)
		}
		k, err := kernelFor(op, attr.Type)
		if err != nil {
			return nil, err
		}
		data, err := takeSlot(op, k, &e.Value.Buffer, e.Key)
		if err != nil {
			return nil, err
		}
		n := datatype.Len(data)
		if n <= 0 {
			// An empty incoming buffer is treated as absent.
			continue
		}
		offsets := []uint64(e.Value.BufferOffset)

		u := bufferUpdate{name: e.Key, k: k, data: data, offsets: offsets}
		if b, bound := q.buffers[e.Key]; bound {
			if !datatype.Matches(attr.Type, b.Data.Slice()) {
				return nil, errorf(ErrValidation, op, "attribute %q is %s but bound to %T", e.Key, attr.Type, b.Data.Slice())
			}
			if have := b.Data.Len(); have != n {
				return nil, wrap(ErrSizeMismatch, op, &SizeMismatchError{Attribute: e.Key, Region: "data", Existing: have, Incoming: n})
			}
			if len(offsets) > 0 {
				have := b.OffsetsSlice()
				if have == nil {
					return nil, errorf(ErrValidation, op, "attribute %q carries offsets but is bound without them", e.Key)
				}
				if len(have) != len(offsets) {
					return nil, wrap(ErrSizeMismatch, op, &SizeMismatchError{Attribute: e.Key, Region: "offsets", Existing: len(have), Incoming: len(offsets)})
				}
			}
			u.target = b
		}
		updates = append(updates, u)
	}
	return updates, nil
}

// applyBuffers commits planned updates in two phases. New bindings are
// offered to the strategy first; the registry and bound memory change only
// once every offer was accepted.
func (q *Query) applyBuffers(op string, updates []bufferUpdate) error {
	fresh := make([]*Buffer, len(updates))
	for i, u := range updates {
		if u.target != nil {
			continue
		}
		b := &Buffer{Data: own(u.data)}
		if len(u.offsets) > 0 {
			r := own(slices.Clone(u.offsets))
			b.Offsets = &r
		}
		if err := q.offer(op, u.name, b); err != nil {
			return err
		}
		fresh[i] = b
	}
	for i, u := range updates {
		if u.target == nil {
			q.register(u.name, fresh[i])
			continue
		}
		u.k.assign(u.target.Data.Slice(), u.data)
		if len(u.offsets) > 0 {
			copy(u.target.OffsetsSlice(), u.offsets)
		}
	}
	return nil
}

// takeSlot reads the slot of a that matches k, rejecting a populated slot
// of any other type.
func takeSlot(op string, k kernel, a *wire.TypedArray, what string) (any, error) {
	v := k.take(a)
	tags := a.Tags()
	if len(tags) > 1 || (len(tags) == 1 && datatype.Len(v) <= 0) {
		return nil, errorf(ErrDecode, op, "%s carries unexpected typed slots %v", what, tags)
	}
	return v, nil
}
