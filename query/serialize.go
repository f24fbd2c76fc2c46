package query

import (
	"slices"

	"github.com/hupe1980/arraystore/codec"
	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/wire"
)

// ToMessage captures the externally visible state of the query: schema,
// type, layout, status, subarray and bound buffers. Attributes with a
// reserved name or an empty buffer are left out. Global-order write queries
// also carry the writer state.
//
// Serializing does not change the status.
func (q *Query) ToMessage() (*wire.Query, error) {
	const op = "serialize"
	if q.schema == nil {
		return nil, errorf(ErrConfiguration, op, "query has no array schema")
	}
	sm, err := q.schema.ToMessage()
	if err != nil {
		return nil, wrap(ErrConfiguration, op, err)
	}

	msg := &wire.Query{
		ArraySchema: sm,
		Buffers:     wire.BufferMap{Entries: []wire.BufferEntry{}},
		Layout:      q.layout.String(),
		Status:      q.Status().String(),
		Type:        q.typ.String(),
	}

	if datatype.Len(q.subarray) > 0 {
		k, err := domainKernel(op, q.schema.Domain)
		if err != nil {
			return nil, err
		}
		sub := &wire.TypedArray{}
		k.put(sub, q.subarray)
		msg.Subarray = sub
	}

	for _, name := range q.order {
		if schema.IsSpecialName(name) {
			continue
		}
		b := q.buffers[name]
		if b.Data.Len() == 0 {
			continue
		}
		attr, ok := q.schema.Attribute(name)
		if !ok {
			return nil, errorf(ErrValidation, op, "attribute %q does not exist", name)
		}
		k, err := kernelFor(op, attr.Type)
		if err != nil {
			return nil, err
		}
		if !datatype.Matches(attr.Type, b.Data.Slice()) {
			return nil, errorf(ErrValidation, op, "attribute %q is %s but bound to %T", name, attr.Type, b.Data.Slice())
		}
		ab := wire.AttributeBuffer{Type: attr.Type.String()}
		k.put(&ab.Buffer, b.Data.Slice())
		if off := b.OffsetsSlice(); len(off) > 0 {
			ab.BufferOffset = slices.Clone(off)
		}
		msg.Buffers.Entries = append(msg.Buffers.Entries, wire.BufferEntry{Key: name, Value: ab})
	}

	if q.typ == Write && q.layout == schema.GlobalOrder {
		if q.exec.writer == nil {
			return nil, errorf(ErrConfiguration, op, "global-order write query has no writer")
		}
		ws, err := q.exec.writer.SerializeState()
		if err != nil {
			return nil, classify(op, err, ErrIO)
		}
		msg.Writer = ws
	}

	return msg, nil
}

// Serialize encodes the query with c.
func Serialize(q *Query, c codec.Codec) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	msg, err := q.ToMessage()
	if err != nil {
		return nil, err
	}
	b, err := c.Marshal(msg)
	if err != nil {
		return nil, wrap(ErrValidation, "serialize", err)
	}
	q.logger.Debug("query serialized", "codec", c.Name(), "bytes", len(b))
	return b, nil
}

// Deserialize decodes data with c and applies it to q (see FromMessage).
func Deserialize(q *Query, c codec.Codec, data []byte) error {
	if c == nil {
		c = codec.Default
	}
	var msg wire.Query
	if err := c.Unmarshal(data, &msg); err != nil {
		return wrap(ErrDecode, "deserialize", err)
	}
	return q.FromMessage(&msg)
}
