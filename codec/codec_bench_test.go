package codec

import (
	"testing"

	"github.com/hupe1980/arraystore/wire"
)

func benchQuery(cells int) *wire.Query {
	data := make([]int32, cells)
	for i := range data {
		data[i] = int32(i)
	}
	return &wire.Query{
		Buffers: wire.BufferMap{Entries: []wire.BufferEntry{
			{Key: "a1", Value: wire.AttributeBuffer{Type: "INT32", Buffer: wire.TypedArray{Int32: data}}},
		}},
		Layout:   "row-major",
		Status:   "UNINITIALIZED",
		Type:     "READ",
		Subarray: &wire.TypedArray{Int64: wire.Int64s{0, int64(cells - 1)}},
	}
}

func benchmarkCodecMarshal(b *testing.B, c Codec, v any) {
	b.Helper()
	b.ReportAllocs()

	warm, err := c.Marshal(v)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(warm)))

	var sink []byte
	b.ResetTimer()
	for b.Loop() {
		out, err := c.Marshal(v)
		if err != nil {
			b.Fatal(err)
		}
		sink = out
	}
	_ = sink
}

func benchmarkCodecUnmarshal(b *testing.B, c Codec, data []byte) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	b.ResetTimer()
	for b.Loop() {
		var q wire.Query
		if err := c.Unmarshal(data, &q); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCodec_Marshal_Query(b *testing.B) {
	q := benchQuery(4096)
	b.Run("stdlib", func(b *testing.B) { benchmarkCodecMarshal(b, JSON{}, q) })
	b.Run("go-json", func(b *testing.B) { benchmarkCodecMarshal(b, GoJSON{}, q) })
	b.Run("cbor", func(b *testing.B) { benchmarkCodecMarshal(b, CBOR{}, q) })
}

func BenchmarkCodec_Unmarshal_Query(b *testing.B) {
	q := benchQuery(4096)
	for _, c := range []Codec{JSON{}, GoJSON{}, CBOR{}} {
		data := MustMarshal(c, q)
		b.Run(c.Name(), func(b *testing.B) { benchmarkCodecUnmarshal(b, c, data) })
	}
}
