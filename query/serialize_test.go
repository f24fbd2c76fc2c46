package query

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/arraystore/codec"
	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/testutil"
	"github.com/hupe1980/arraystore/wire"
)

const rowMajorWriteJSON = `{"arraySchema":` + testutil.DenseSchemaJSON +
	`,"buffers":{"entries":[{"key":"a1","value":{"type":"INT32","buffer":{"int32":[1,2,3,4]}}}]},` +
	`"layout":"row-major","status":"UNINITIALIZED","type":"WRITE","subarray":{"int64":["1","4"]}}`

func rowMajorWrite(t *testing.T) *Query {
	t.Helper()
	q, err := New(Write, testutil.DenseSchema())
	require.NoError(t, err)
	require.NoError(t, q.SetLayout(schema.RowMajor))
	require.NoError(t, q.SetSubarray([]int64{1, 4}))
	require.NoError(t, q.SetBuffer("a1", []int32{1, 2, 3, 4}))
	return q
}

func TestSerialize_RowMajorWrite(t *testing.T) {
	b, err := Serialize(rowMajorWrite(t), codec.JSON{})
	require.NoError(t, err)
	assert.Equal(t, rowMajorWriteJSON, string(b))
}

func TestSerialize_ReadBuffersAreEmitted(t *testing.T) {
	q, err := New(Read, testutil.DenseSchema())
	require.NoError(t, err)
	require.NoError(t, q.SetBuffer("a1", make([]int32, 16)))
	require.NoError(t, q.SetSubarray([]int64{1, 4}))

	b, err := Serialize(q, codec.JSON{})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"buffer":{"int32":[0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0]}`)
	assert.Contains(t, string(b), `"type":"READ"`)
}

func TestRoundTrip_ByteIdentical(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}, codec.CBOR{}} {
		t.Run(c.Name(), func(t *testing.T) {
			first, err := Serialize(rowMajorWrite(t), c)
			require.NoError(t, err)

			fresh, err := New(Write, testutil.DenseSchema())
			require.NoError(t, err)
			require.NoError(t, Deserialize(fresh, c, first))

			second, err := Serialize(fresh, c)
			require.NoError(t, err)
			assert.Equal(t, first, second)
			assert.Equal(t, Uninitialized, fresh.Status())

			bufs := fresh.AttributeBuffers()
			assert.True(t, bufs["a1"].Data.Owned())
			assert.Equal(t, []int32{1, 2, 3, 4}, bufs["a1"].Data.Slice())
			assert.Equal(t, []int64{1, 4}, fresh.Subarray())
		})
	}
}

func TestRoundTrip_VarAndCharAttributes(t *testing.T) {
	s := testutil.GridSchema()
	name := schema.NewAttribute("name", datatype.Char)
	name.CellValNum = schema.VarNum
	s.Attributes = append(s.Attributes, name)

	q, err := New(Write, s)
	require.NoError(t, err)
	require.NoError(t, q.SetSubarray([]int32{1, 2, 1, 1}))
	require.NoError(t, q.SetBuffer("a1", []int32{10, 20}))
	require.NoError(t, q.SetBufferVar("a2", []uint64{0, 3}, []byte("abcde")))
	require.NoError(t, q.SetBufferVar("name", []uint64{0, 2}, []byte("hiyo")))

	msg, err := q.ToMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.Uint8s("abcde"), msg.Buffers.Entries[1].Value.Buffer.Uint8)
	assert.Equal(t, wire.Chars("hiyo"), msg.Buffers.Entries[2].Value.Buffer.Text)
	assert.Equal(t, wire.Uint64s{0, 2}, msg.Buffers.Entries[2].Value.BufferOffset)

	fresh, err := New(Write, s)
	require.NoError(t, err)
	require.NoError(t, fresh.FromMessage(msg))

	again, err := fresh.ToMessage()
	require.NoError(t, err)
	assert.Equal(t, msg, again)
	assert.Equal(t, []uint64{0, 3}, fresh.AttributeBuffers()["a2"].OffsetsSlice())
}

func TestSerialize_GlobalOrderWriterState(t *testing.T) {
	state := &wire.Writer{FragmentURI: "__frag_1", GlobalWriteState: &wire.GlobalWriteState{CellsWritten: 5}}
	w := newMockWriter()
	w.On("SerializeState").Return(state, nil)

	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)
	require.NoError(t, q.SetLayout(schema.GlobalOrder))
	require.NoError(t, q.SetSubarray([]int64{0, 4}))
	require.NoError(t, q.SetBuffer("a1", []int32{1, 2, 3, 4, 5}))

	msg, err := q.ToMessage()
	require.NoError(t, err)
	require.NotNil(t, msg.Writer)
	assert.NotEmpty(t, msg.Writer.FragmentURI)

	// the writer state is restored into the writer of the receiving query
	w2 := newMockWriter()
	w2.On("DeserializeState", state).Return(nil).Once()
	fresh, err := New(Write, testutil.DenseSchema(), WithWriter(w2))
	require.NoError(t, err)
	require.NoError(t, fresh.FromMessage(msg))
	w2.AssertExpectations(t)
}

func TestSerialize_RowMajorHasNoWriterState(t *testing.T) {
	w := newMockWriter()
	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)
	require.NoError(t, q.SetSubarray([]int64{0, 4}))
	require.NoError(t, q.SetBuffer("a1", []int32{1, 2, 3, 4, 5}))

	msg, err := q.ToMessage()
	require.NoError(t, err)
	assert.Nil(t, msg.Writer)
	w.AssertNotCalled(t, "SerializeState")

	b, err := Serialize(q, codec.JSON{})
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"writer"`)
}

func TestSerialize_GlobalOrderWriterError(t *testing.T) {
	w := newMockWriter()
	w.On("SerializeState").Return(nil, errors.New("state lost"))
	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)
	require.NoError(t, q.SetLayout(schema.GlobalOrder))

	_, err = q.ToMessage()
	assert.ErrorIs(t, err, ErrIO)
}

func TestSerialize_SkipsSpecialAndEmpty(t *testing.T) {
	s := testutil.DenseSchema()
	s.Attributes = append(s.Attributes, schema.NewAttribute("", datatype.Int32), schema.NewAttribute("a3", datatype.Int32))

	q, err := New(Read, s)
	require.NoError(t, err)
	require.NoError(t, q.SetBuffer(schema.AnonymousAttribute, []int32{9}))
	require.NoError(t, q.SetBuffer("a3", []int32{}))
	require.NoError(t, q.SetBuffer("a1", []int32{1}))

	msg, err := q.ToMessage()
	require.NoError(t, err)
	require.Len(t, msg.Buffers.Entries, 1)
	assert.Equal(t, "a1", msg.Buffers.Entries[0].Key)
}

func TestSerialize_Errors(t *testing.T) {
	t.Run("any attribute", func(t *testing.T) {
		s := testutil.DenseSchema()
		s.Attributes[0].Type = datatype.Any
		q, err := New(Write, s)
		require.NoError(t, err)
		require.NoError(t, q.SetBuffer("a1", []byte{1}))
		_, err = q.ToMessage()
		assert.ErrorIs(t, err, ErrConfiguration)
	})
	t.Run("unknown attribute", func(t *testing.T) {
		q, err := New(Write, testutil.DenseSchema())
		require.NoError(t, err)
		require.NoError(t, q.SetBuffer("zz", []int32{1}))
		_, err = q.ToMessage()
		assert.ErrorIs(t, err, ErrValidation)
	})
	t.Run("wrong buffer type", func(t *testing.T) {
		q, err := New(Write, testutil.DenseSchema())
		require.NoError(t, err)
		require.NoError(t, q.SetBuffer("a1", []int64{1}))
		_, err = q.ToMessage()
		assert.ErrorIs(t, err, ErrValidation)
	})
	t.Run("no schema", func(t *testing.T) {
		q, err := New(Write, nil)
		require.NoError(t, err)
		_, err = q.ToMessage()
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestDeserialize_MergeIntoBoundBuffers(t *testing.T) {
	msg, err := rowMajorWrite(t).ToMessage()
	require.NoError(t, err)

	q, err := New(Write, testutil.DenseSchema())
	require.NoError(t, err)
	dst := make([]int32, 4)
	require.NoError(t, q.SetBuffer("a1", dst))

	require.NoError(t, q.FromMessage(msg))
	assert.Equal(t, []int32{1, 2, 3, 4}, dst)
	assert.False(t, q.AttributeBuffers()["a1"].Data.Owned())

	// applying the same message again is idempotent
	require.NoError(t, q.FromMessage(msg))
	assert.Equal(t, []int32{1, 2, 3, 4}, dst)
}

func TestDeserialize_SizeMismatch(t *testing.T) {
	msg, err := rowMajorWrite(t).ToMessage()
	require.NoError(t, err)

	q, err := New(Write, testutil.DenseSchema())
	require.NoError(t, err)
	dst := []int32{7, 7, 7}
	require.NoError(t, q.SetBuffer("a1", dst))

	err = q.FromMessage(msg)
	require.ErrorIs(t, err, ErrSizeMismatch)
	var sm *SizeMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "a1", sm.Attribute)
	assert.Equal(t, 3, sm.Existing)
	assert.Equal(t, 4, sm.Incoming)
	assert.Equal(t, []int32{7, 7, 7}, dst)
}

func TestDeserialize_NoPartialBufferCommit(t *testing.T) {
	s := testutil.GridSchema()
	src, err := New(Write, s)
	require.NoError(t, err)
	require.NoError(t, src.SetBuffer("a1", []int32{1, 2}))
	require.NoError(t, src.SetBufferVar("a2", []uint64{0, 1}, []byte("xy")))
	msg, err := src.ToMessage()
	require.NoError(t, err)

	q, err := New(Write, s)
	require.NoError(t, err)
	a1 := []int32{0, 0}
	a2 := []byte{0, 0}
	require.NoError(t, q.SetBuffer("a1", a1))
	require.NoError(t, q.SetBufferVar("a2", []uint64{0, 0, 0}, a2))

	err = q.FromMessage(msg)
	require.ErrorIs(t, err, ErrSizeMismatch)
	var sm *SizeMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "offsets", sm.Region)
	assert.Equal(t, []int32{0, 0}, a1, "earlier entries are not committed")
	assert.Equal(t, []byte{0, 0}, a2)
}

func TestDeserialize_EmptyIncomingLeavesBoundBuffer(t *testing.T) {
	msg, err := rowMajorWrite(t).ToMessage()
	require.NoError(t, err)
	msg.Buffers.Entries[0].Value.Buffer = wire.TypedArray{}

	q, err := New(Write, testutil.DenseSchema())
	require.NoError(t, err)
	dst := []int32{5, 6}
	require.NoError(t, q.SetBuffer("a1", dst))

	require.NoError(t, q.FromMessage(msg))
	assert.Equal(t, []int32{5, 6}, dst)
}

func TestDeserialize_OffsetsWithoutBinding(t *testing.T) {
	s := testutil.GridSchema()
	src, err := New(Write, s)
	require.NoError(t, err)
	require.NoError(t, src.SetBufferVar("a2", []uint64{0, 1}, []byte("xy")))
	msg, err := src.ToMessage()
	require.NoError(t, err)

	q, err := New(Write, s)
	require.NoError(t, err)
	require.NoError(t, q.SetBuffer("a2", make([]byte, 2)))
	assert.ErrorIs(t, q.FromMessage(msg), ErrValidation)
}

func TestDeserialize_SkipsSpecialNames(t *testing.T) {
	msg, err := rowMajorWrite(t).ToMessage()
	require.NoError(t, err)
	msg.Buffers.Entries = append(msg.Buffers.Entries, wire.BufferEntry{
		Key:   "__attr",
		Value: wire.AttributeBuffer{Type: "INT32", Buffer: wire.TypedArray{Int32: []int32{1}}},
	})

	q, err := New(Write, testutil.DenseSchema())
	require.NoError(t, err)
	require.NoError(t, q.FromMessage(msg))
	assert.Equal(t, []string{"a1"}, q.Attributes())
}

func TestDeserialize_StatusVerbatim(t *testing.T) {
	msg, err := rowMajorWrite(t).ToMessage()
	require.NoError(t, err)
	msg.Status = "INCOMPLETE"

	q, err := New(Write, testutil.DenseSchema())
	require.NoError(t, err)
	require.NoError(t, q.FromMessage(msg))
	assert.Equal(t, Incomplete, q.Status())
}

func TestDeserialize_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*wire.Query)
		kind   error
	}{
		{"unknown type", func(m *wire.Query) { m.Type = "APPEND" }, ErrDecode},
		{"type mismatch", func(m *wire.Query) { m.Type = "READ" }, ErrDecode},
		{"unknown layout", func(m *wire.Query) { m.Layout = "hilbert" }, ErrDecode},
		{"unknown status", func(m *wire.Query) { m.Status = "DONE" }, ErrDecode},
		{"missing schema", func(m *wire.Query) { m.ArraySchema = nil }, ErrDecode},
		{"bad schema", func(m *wire.Query) { m.ArraySchema.ArrayType = "ragged" }, ErrDecode},
		{"unknown attribute", func(m *wire.Query) { m.Buffers.Entries[0].Key = "zz" }, ErrValidation},
		{"unknown datatype", func(m *wire.Query) { m.Buffers.Entries[0].Value.Type = "INT128" }, ErrDecode},
		{"datatype mismatch", func(m *wire.Query) { m.Buffers.Entries[0].Value.Type = "INT64" }, ErrValidation},
		{"wrong buffer slot", func(m *wire.Query) {
			m.Buffers.Entries[0].Value.Buffer = wire.TypedArray{Int64: wire.Int64s{1}}
		}, ErrDecode},
		{"wrong subarray slot", func(m *wire.Query) { m.Subarray = &wire.TypedArray{Int32: []int32{1, 4}} }, ErrDecode},
		{"subarray out of bounds", func(m *wire.Query) { m.Subarray = &wire.TypedArray{Int64: wire.Int64s{1, 400}} }, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := rowMajorWrite(t).ToMessage()
			require.NoError(t, err)
			tt.mutate(msg)

			q, err := New(Write, testutil.DenseSchema())
			require.NoError(t, err)
			assert.ErrorIs(t, q.FromMessage(msg), tt.kind)
		})
	}
}

func TestDeserialize_BadBytes(t *testing.T) {
	q, err := New(Write, testutil.DenseSchema())
	require.NoError(t, err)
	assert.ErrorIs(t, Deserialize(q, codec.JSON{}, []byte("{")), ErrDecode)
}

func TestDeserialize_ForwardsToStrategy(t *testing.T) {
	msg, err := rowMajorWrite(t).ToMessage()
	require.NoError(t, err)

	w := &mockWriter{}
	w.On("SetArraySchema", mock.Anything).Return(nil)
	w.On("SetLayout", schema.RowMajor).Return(nil)
	w.On("SetSubarray", []int64{1, 4}).Return(nil).Once()
	w.On("SetBuffer", "a1", mock.MatchedBy(func(b *Buffer) bool { return b.Data.Owned() })).Return(nil).Once()

	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)
	require.NoError(t, q.FromMessage(msg))
	w.AssertExpectations(t)
}

func charSchema() *schema.ArraySchema {
	s := testutil.GridSchema()
	name := schema.NewAttribute("name", datatype.Char)
	name.CellValNum = schema.VarNum
	s.Attributes = append(s.Attributes, name)
	return s
}

func TestRoundTrip_CharBytesAreLossless(t *testing.T) {
	raw := []byte{0xff, 0x00, 0xc3, 0x41}
	for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}, codec.CBOR{}} {
		t.Run(c.Name(), func(t *testing.T) {
			src, err := New(Write, charSchema())
			require.NoError(t, err)
			require.NoError(t, src.SetBufferVar("name", []uint64{0, 2}, slices.Clone(raw)))
			b, err := Serialize(src, c)
			require.NoError(t, err)

			// merged into bound memory of the same size
			q, err := New(Write, charSchema())
			require.NoError(t, err)
			dst := make([]byte, 4)
			off := make([]uint64, 2)
			require.NoError(t, q.SetBufferVar("name", off, dst))
			require.NoError(t, Deserialize(q, c, b))
			assert.Equal(t, raw, dst)
			assert.Equal(t, []uint64{0, 2}, off)

			// allocated and serialized again
			fresh, err := New(Write, charSchema())
			require.NoError(t, err)
			require.NoError(t, Deserialize(fresh, c, b))
			assert.Equal(t, raw, fresh.AttributeBuffers()["name"].Data.Slice())
			again, err := Serialize(fresh, c)
			require.NoError(t, err)
			assert.Equal(t, b, again)
		})
	}
}

func TestRoundTrip_NonFiniteFloats(t *testing.T) {
	s := testutil.DenseSchema()
	s.Attributes = append(s.Attributes,
		schema.NewAttribute("f32", datatype.Float32),
		schema.NewAttribute("f64", datatype.Float64))

	for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}, codec.CBOR{}} {
		t.Run(c.Name(), func(t *testing.T) {
			src, err := New(Write, s)
			require.NoError(t, err)
			require.NoError(t, src.SetBuffer("f32", []float32{float32(math.Inf(-1)), 0.5, float32(math.NaN())}))
			require.NoError(t, src.SetBuffer("f64", []float64{1, math.NaN(), math.Inf(1)}))
			b, err := Serialize(src, c)
			require.NoError(t, err)

			fresh, err := New(Write, s)
			require.NoError(t, err)
			require.NoError(t, Deserialize(fresh, c, b))

			f32 := fresh.AttributeBuffers()["f32"].Data.Slice().([]float32)
			require.Len(t, f32, 3)
			assert.True(t, math.IsInf(float64(f32[0]), -1))
			assert.Equal(t, float32(0.5), f32[1])
			assert.True(t, math.IsNaN(float64(f32[2])))

			f64 := fresh.AttributeBuffers()["f64"].Data.Slice().([]float64)
			require.Len(t, f64, 3)
			assert.Equal(t, 1.0, f64[0])
			assert.True(t, math.IsNaN(f64[1]))
			assert.True(t, math.IsInf(f64[2], 1))
		})
	}
}

func TestDeserialize_RejectedBindingCommitsNothing(t *testing.T) {
	s := testutil.GridSchema()
	s.Attributes = append(s.Attributes, schema.NewAttribute("a3", datatype.Int32))

	src, err := New(Write, s)
	require.NoError(t, err)
	require.NoError(t, src.SetBuffer("a1", []int32{1, 2}))
	require.NoError(t, src.SetBufferVar("a2", []uint64{0, 1}, []byte("xy")))
	require.NoError(t, src.SetBuffer("a3", []int32{5, 6}))
	msg, err := src.ToMessage()
	require.NoError(t, err)

	w := &mockWriter{}
	w.On("SetArraySchema", mock.Anything).Return(nil)
	w.On("SetLayout", mock.Anything).Return(nil)
	w.On("SetSubarray", mock.Anything).Return(nil)
	w.On("SetBuffer", "a1", mock.Anything).Return(nil).Once()
	w.On("SetBuffer", "a2", mock.Anything).Return(nil).Once()
	w.On("SetBuffer", "a3", mock.Anything).Return(errors.New("a3 rejected")).Once()

	q, err := New(Write, s, WithWriter(w))
	require.NoError(t, err)
	a1 := []int32{0, 0}
	require.NoError(t, q.SetBuffer("a1", a1))

	err = q.FromMessage(msg)
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []int32{0, 0}, a1)
	assert.Equal(t, []string{"a1"}, q.Attributes())
	_, bound := q.AttributeBuffers()["a2"]
	assert.False(t, bound)
	w.AssertExpectations(t)
}
