package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/arraystore/wire"
)

func sampleQuery() *wire.Query {
	return &wire.Query{
		Buffers: wire.BufferMap{Entries: []wire.BufferEntry{
			{Key: "a1", Value: wire.AttributeBuffer{Type: "INT32", Buffer: wire.TypedArray{Int32: []int32{1, 2, 3, 4}}}},
			{Key: "a2", Value: wire.AttributeBuffer{
				Type:         "STRING_ASCII",
				Buffer:       wire.TypedArray{Uint8: wire.Uint8s("abcd")},
				BufferOffset: wire.Uint64s{0, 1, 3},
			}},
		}},
		Layout:   "global-order",
		Status:   "INPROGRESS",
		Type:     "WRITE",
		Subarray: &wire.TypedArray{Int64: wire.Int64s{0, 4}},
		Writer: &wire.Writer{
			FragmentURI: "__frag",
			GlobalWriteState: &wire.GlobalWriteState{
				CellsWritten: 2,
				Staged:       []wire.Staged{{Attribute: "a1", Data: []byte{1, 0, 0, 0}}},
			},
		},
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json", "cbor"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("protobuf")
	assert.False(t, ok)
	assert.Equal(t, "json", Default.Name())
}

func TestRoundTrip(t *testing.T) {
	for _, c := range []Codec{JSON{}, GoJSON{}, CBOR{}} {
		t.Run(c.Name(), func(t *testing.T) {
			in := sampleQuery()
			b, err := c.Marshal(in)
			require.NoError(t, err)

			var out wire.Query
			require.NoError(t, c.Unmarshal(b, &out))
			assert.Equal(t, in, &out)
		})
	}
}

func TestJSONCodecsAgree(t *testing.T) {
	in := sampleQuery()
	assert.Equal(t, string(MustMarshal(JSON{}, in)), string(MustMarshal(GoJSON{}, in)))

	b, err := GoJSON{}.Append([]byte("x"), in.Subarray)
	require.NoError(t, err)
	assert.Equal(t, `x{"int64":["0","4"]}`, string(b))
}

func TestCBORDeterministic(t *testing.T) {
	a := MustMarshal(CBOR{}, sampleQuery())
	b := MustMarshal(CBOR{}, sampleQuery())
	assert.Equal(t, a, b)
	assert.Less(t, len(a), len(MustMarshal(JSON{}, sampleQuery())))
}

func TestMustMarshalPanics(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(JSON{}, make(chan int)) })
}
