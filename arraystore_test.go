package arraystore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/arraystore/blobstore"
	"github.com/hupe1980/arraystore/codec"
	"github.com/hupe1980/arraystore/query"
	"github.com/hupe1980/arraystore/resource"
	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/testutil"
)

const gridURI = "arrays/grid"

func newClock() func() time.Time {
	t := time.Unix(1_700_000_000, 0)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func gridText(r, c int) []byte {
	return []byte(strings.Repeat(string(rune('a'+r-1)), c))
}

// gridCells returns a1 = 10*row+col+base and a2 = gridText(row, col) for
// rows [r0, r1] and all cols, in row-major order.
func gridCells(r0, r1 int, base int32) ([]int32, []uint64, []byte) {
	var a1 []int32
	var off []uint64
	var a2 []byte
	for r := r0; r <= r1; r++ {
		for c := 1; c <= 4; c++ {
			a1 = append(a1, base+int32(10*r+c))
			off = append(off, uint64(len(a2)))
			a2 = append(a2, gridText(r, c)...)
		}
	}
	return a1, off, a2
}

func openGrid(t *testing.T, store blobstore.BlobStore, opts ...Option) *Array {
	t.Helper()
	ctx := context.Background()
	opts = append([]Option{WithClock(newClock())}, opts...)
	require.NoError(t, Create(ctx, store, gridURI, testutil.GridSchema(), opts...))
	arr, err := Open(ctx, store, gridURI, opts...)
	require.NoError(t, err)
	return arr
}

func writeRows(t *testing.T, arr *Array, r0, r1 int, base int32) {
	t.Helper()
	q, err := arr.NewQuery(query.Write)
	require.NoError(t, err)
	require.NoError(t, q.SetSubarray([]int32{int32(r0), int32(r1), 1, 4}))
	a1, off, a2 := gridCells(r0, r1, base)
	require.NoError(t, q.SetBuffer("a1", a1))
	require.NoError(t, q.SetBufferVar("a2", off, a2))
	require.NoError(t, arr.Submit(context.Background(), q))
	require.Equal(t, query.Completed, q.Status())
}

func TestCreateOpen(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	require.NoError(t, Create(ctx, store, gridURI, testutil.GridSchema()))
	require.ErrorIs(t, Create(ctx, store, gridURI, testutil.GridSchema()), ErrArrayExists)

	arr, err := Open(ctx, store, gridURI)
	require.NoError(t, err)
	assert.Equal(t, gridURI, arr.URI())
	assert.Equal(t, []string{"a1", "a2"}, arr.Schema().AttributeNames())
	assert.Equal(t, schema.Dense, arr.Schema().ArrayType)
	assert.Empty(t, arr.Fragments())

	t.Run("missing array", func(t *testing.T) {
		_, err := Open(ctx, store, "arrays/missing")
		require.ErrorIs(t, err, ErrArrayNotFound)
	})

	t.Run("invalid schema", func(t *testing.T) {
		s := testutil.GridSchema()
		s.Attributes = nil
		err := Create(ctx, store, "arrays/invalid", s)
		var ise *ErrInvalidSchema
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, "arrays/invalid", ise.URI)
		assert.ErrorIs(t, err, schema.ErrInvalid)

		_, err = Open(ctx, store, "arrays/invalid")
		assert.ErrorIs(t, err, ErrArrayNotFound)
	})

	t.Run("undecodable schema", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "arrays/bad/"+SchemaName, []byte("{not json")))
		_, err := Open(ctx, store, "arrays/bad")
		var ise *ErrInvalidSchema
		assert.ErrorAs(t, err, &ise)
	})

	t.Run("go-json codec", func(t *testing.T) {
		require.NoError(t, Create(ctx, store, "arrays/gojson", testutil.DenseSchema(), WithCodec(codec.GoJSON{})))
		arr, err := Open(ctx, store, "arrays/gojson", WithCodec(codec.GoJSON{}))
		require.NoError(t, err)
		assert.Equal(t, []string{"a1"}, arr.Schema().AttributeNames())
	})
}

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	arr := openGrid(t, blobstore.NewLocalStore(t.TempDir()))

	writeRows(t, arr, 1, 2, 0)
	writeRows(t, arr, 2, 2, 100)
	require.Len(t, arr.Fragments(), 2)

	q, err := arr.NewQuery(query.Read)
	require.NoError(t, err)
	assert.Equal(t, 2, q.FragmentNum())
	assert.Equal(t, arr.Fragments()[1].URI(), q.LastFragmentURI())

	a1 := make([]int32, 16)
	off := make([]uint64, 16)
	a2 := make([]byte, 64)
	require.NoError(t, q.SetBuffer("a1", a1))
	require.NoError(t, q.SetBufferVar("a2", off, a2))
	require.NoError(t, arr.Submit(ctx, q))
	require.Equal(t, query.Completed, q.Status())
	assert.True(t, q.HasResults())

	assert.Equal(t, []int32{
		11, 12, 13, 14,
		121, 122, 123, 124,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}, a1)

	n, offN, ok := q.ResultSize("a2")
	require.True(t, ok)
	assert.Equal(t, uint64(16), offN)
	assert.Equal(t, strings.Repeat("a", 10)+strings.Repeat("b", 10), string(a2[:n]))
}

func TestReadOlderSnapshot(t *testing.T) {
	ctx := context.Background()
	arr := openGrid(t, blobstore.NewMemoryStore())
	writeRows(t, arr, 1, 1, 0)

	q, err := arr.NewQuery(query.Read)
	require.NoError(t, err)
	require.NoError(t, q.SetSubarray([]int32{1, 1, 1, 4}))

	// Fragments written after NewQuery are not consulted.
	writeRows(t, arr, 1, 1, 100)

	a1 := make([]int32, 4)
	require.NoError(t, q.SetBuffer("a1", a1))
	require.NoError(t, arr.Submit(ctx, q))
	assert.Equal(t, []int32{11, 12, 13, 14}, a1)
}

func TestGlobalOrderSubmitAndFinalize(t *testing.T) {
	ctx := context.Background()
	arr := openGrid(t, blobstore.NewMemoryStore())

	q, err := arr.NewQuery(query.Write)
	require.NoError(t, err)
	require.NoError(t, q.SetLayout(schema.GlobalOrder))

	a1, off, a2 := gridCells(1, 2, 0)
	require.NoError(t, q.SetBuffer("a1", a1))
	require.NoError(t, q.SetBufferVar("a2", off, a2))
	require.NoError(t, arr.Submit(ctx, q))
	assert.Empty(t, arr.Fragments())

	a1, off, a2 = gridCells(3, 4, 0)
	require.NoError(t, q.SetBuffer("a1", a1))
	require.NoError(t, q.SetBufferVar("a2", off, a2))
	require.NoError(t, arr.SubmitAndFinalize(ctx, q))
	require.Len(t, arr.Fragments(), 1)
	assert.Equal(t, query.Completed, q.Status())

	r, err := arr.NewQuery(query.Read)
	require.NoError(t, err)
	out := make([]int32, 16)
	require.NoError(t, r.SetBuffer("a1", out))
	require.NoError(t, arr.Submit(ctx, r))
	want, _, _ := gridCells(1, 4, 0)
	assert.Equal(t, want, out)
}

func TestIncompleteSubmit(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	arr := openGrid(t, blobstore.NewMemoryStore(), WithMetricsCollector(metrics))
	writeRows(t, arr, 1, 4, 0)

	q, err := arr.NewQuery(query.Read)
	require.NoError(t, err)
	out := make([]int32, 6)
	require.NoError(t, q.SetBuffer("a1", out))

	var got []int32
	for {
		require.NoError(t, arr.Submit(ctx, q))
		n, _, _ := q.ResultSize("a1")
		got = append(got, out[:n]...)
		if q.Status() != query.Incomplete {
			break
		}
	}
	want, _, _ := gridCells(1, 4, 0)
	assert.Equal(t, want, got)

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats.ReadCount)
	assert.Equal(t, int64(2), stats.ReadIncomplete)
	assert.Equal(t, int64(1), stats.WriteCount)
	assert.Equal(t, int64(1), stats.Fragments)
}

func TestSubmitErrors(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	arr := openGrid(t, blobstore.NewMemoryStore(), WithMetricsCollector(metrics))

	q, err := arr.NewQuery(query.Write)
	require.NoError(t, err)
	require.NoError(t, q.SetBuffer("a1", make([]int32, 16)))
	// a2 is unbound.
	err = arr.Submit(ctx, q)
	require.ErrorIs(t, err, query.ErrValidation)
	assert.Equal(t, int64(1), metrics.GetStats().WriteErrors)
	assert.Empty(t, arr.Fragments())
}

func TestResourceLimit(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	arr := openGrid(t, store)
	writeRows(t, arr, 1, 4, 0)

	limited, err := Open(ctx, store, gridURI, WithResourceConfig(resource.Config{MemoryLimitBytes: 16}))
	require.NoError(t, err)
	q, err := limited.NewQuery(query.Read)
	require.NoError(t, err)
	require.NoError(t, q.SetBuffer("a1", make([]int32, 16)))

	err = limited.Submit(ctx, q)
	var rle *ErrResourceLimit
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, int64(16), rle.Limit)
}

func TestBlockCache(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	writer := openGrid(t, store)
	writeRows(t, writer, 1, 4, 0)

	arr, err := Open(ctx, store, gridURI, WithBlockCache(1<<20, 256))
	require.NoError(t, err)

	q, err := arr.NewQuery(query.Read)
	require.NoError(t, err)
	out := make([]int32, 16)
	require.NoError(t, q.SetBuffer("a1", out))
	require.NoError(t, arr.Submit(ctx, q))
	want, _, _ := gridCells(1, 4, 0)
	assert.Equal(t, want, out)

	assert.Positive(t, arr.rc.MemoryUsage())
	require.NoError(t, arr.Close())
	assert.Zero(t, arr.rc.MemoryUsage())
}

func TestServeQuery(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	arr := openGrid(t, blobstore.NewMemoryStore(), WithMetricsCollector(metrics))
	c := codec.JSON{}

	t.Run("write", func(t *testing.T) {
		client, err := query.New(query.Write, testutil.GridSchema())
		require.NoError(t, err)
		require.NoError(t, client.SetSubarray([]int32{1, 2, 1, 4}))
		a1, off, a2 := gridCells(1, 2, 0)
		require.NoError(t, client.SetBuffer("a1", a1))
		require.NoError(t, client.SetBufferVar("a2", off, a2))

		req, err := query.Serialize(client, c)
		require.NoError(t, err)
		resp, err := ServeQuery(ctx, arr, c, req)
		require.NoError(t, err)
		require.NoError(t, query.Deserialize(client, c, resp))

		assert.Equal(t, query.Completed, client.Status())
		assert.Len(t, arr.Fragments(), 1)
	})

	t.Run("read", func(t *testing.T) {
		client, err := query.New(query.Read, testutil.GridSchema())
		require.NoError(t, err)
		require.NoError(t, client.SetSubarray([]int32{1, 2, 1, 4}))
		a1 := make([]int32, 8)
		off := make([]uint64, 8)
		a2 := make([]byte, 32)
		require.NoError(t, client.SetBuffer("a1", a1))
		require.NoError(t, client.SetBufferVar("a2", off, a2))

		req, err := query.Serialize(client, c)
		require.NoError(t, err)
		resp, err := ServeQuery(ctx, arr, nil, req)
		require.NoError(t, err)
		require.NoError(t, query.Deserialize(client, c, resp))

		want, wantOff, wantA2 := gridCells(1, 2, 0)
		assert.Equal(t, query.Completed, client.Status())
		assert.Equal(t, want, a1)
		assert.Equal(t, wantOff, off)
		assert.Equal(t, wantA2, a2[:len(wantA2)])
	})

	t.Run("schema mismatch", func(t *testing.T) {
		client, err := query.New(query.Read, testutil.DenseSchema())
		require.NoError(t, err)
		require.NoError(t, client.SetBuffer("a1", make([]int32, 4)))
		req, err := query.Serialize(client, c)
		require.NoError(t, err)
		_, err = ServeQuery(ctx, arr, c, req)
		assert.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ServeQuery(ctx, arr, c, []byte("{"))
		assert.ErrorIs(t, err, query.ErrDecode)
	})

	stats := metrics.GetStats()
	assert.Equal(t, int64(4), stats.ServeCount)
	assert.Equal(t, int64(2), stats.ServeErrors)
	assert.Positive(t, stats.ServeBytesIn)
}

func TestServeGlobalOrderWrite(t *testing.T) {
	ctx := context.Background()
	c := codec.CBOR{}
	store := blobstore.NewMemoryStore()
	require.NoError(t, Create(ctx, store, "arrays/dense", testutil.DenseSchema(), WithCodec(c)))
	arr, err := Open(ctx, store, "arrays/dense", WithCodec(c), WithClock(newClock()))
	require.NoError(t, err)

	// The client needs a writer to carry the global write state between
	// requests; it never writes to the store itself.
	client, err := arr.NewQuery(query.Write)
	require.NoError(t, err)
	require.NoError(t, client.SetLayout(schema.GlobalOrder))
	require.NoError(t, client.SetSubarray([]int64{0, 9}))

	send := func(serve func(context.Context, *Array, codec.Codec, []byte) ([]byte, error), a1 []int32) {
		t.Helper()
		require.NoError(t, client.SetBuffer("a1", a1))
		req, err := query.Serialize(client, c)
		require.NoError(t, err)
		resp, err := serve(ctx, arr, nil, req)
		require.NoError(t, err)
		require.NoError(t, query.Deserialize(client, c, resp))
	}

	send(ServeQuery, []int32{0, 1, 2, 3, 4})
	assert.Empty(t, arr.Fragments())
	send(ServeQuery, []int32{5, 6, 7, 8, 9})
	assert.Empty(t, arr.Fragments())
	send(ServeFinalize, []int32{5, 6, 7, 8, 9})
	require.Len(t, arr.Fragments(), 1)

	r, err := arr.NewQuery(query.Read)
	require.NoError(t, err)
	require.NoError(t, r.SetSubarray([]int64{0, 9}))
	out := make([]int32, 10)
	require.NoError(t, r.SetBuffer("a1", out))
	require.NoError(t, arr.Submit(ctx, r))
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, out)
}
