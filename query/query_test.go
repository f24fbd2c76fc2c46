package query

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/arraystore/datatype"
	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/testutil"
)

func TestSetSubarray_Valid(t *testing.T) {
	q, err := New(Write, testutil.DenseSchema())
	require.NoError(t, err)

	rng := testutil.NewRNG(4711)
	for range 200 {
		lo, hi := rng.Range(0, 99)
		q.Cancel()
		require.NoError(t, q.SetSubarray([]int64{lo, hi}))
		assert.Equal(t, Uninitialized, q.Status())
		assert.Equal(t, []int64{lo, hi}, q.Subarray())
	}
}

func TestSetSubarray_Invalid(t *testing.T) {
	tests := []struct {
		name string
		sub  any
	}{
		{"below domain", []int64{-1, 4}},
		{"above domain", []int64{1, 100}},
		{"inverted", []int64{5, 4}},
		{"wrong type", []int32{1, 4}},
		{"wrong arity", []int64{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New(Read, testutil.DenseSchema())
			require.NoError(t, err)
			require.NoError(t, q.SetSubarray([]int64{2, 3}))
			q.Cancel()

			err = q.SetSubarray(tt.sub)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, []int64{2, 3}, q.Subarray())
			assert.Equal(t, Failed, q.Status())
		})
	}
}

func TestSetSubarray_FloatDomainRejectsNaN(t *testing.T) {
	s := schema.New(schema.Dense,
		schema.NewDomain(schema.NewDimension[float64]("x", 0, 10)),
		schema.NewAttribute("a1", datatype.Int32),
	)
	q, err := New(Read, s)
	require.NoError(t, err)

	assert.ErrorIs(t, q.SetSubarray([]float64{math.NaN(), 5}), ErrValidation)
	assert.ErrorIs(t, q.SetSubarray([]float64{1, math.NaN()}), ErrValidation)
	assert.Nil(t, q.Subarray())
	require.NoError(t, q.SetSubarray([]float64{0.5, 5}))
}

func TestSetSubarray_RandomInvalid(t *testing.T) {
	q, err := New(Read, testutil.DenseSchema())
	require.NoError(t, err)

	rng := testutil.NewRNG(42)
	for range 200 {
		lo, hi := rng.Range(-50, 150)
		valid := lo >= 0 && hi <= 99
		err := q.SetSubarray([]int64{lo, hi})
		if valid {
			assert.NoError(t, err)
			continue
		}
		assert.ErrorIs(t, err, ErrValidation)
		err = q.SetSubarray([]int64{hi, lo})
		if lo != hi {
			assert.ErrorIs(t, err, ErrValidation)
		}
	}
}

func TestSetSubarray_Clear(t *testing.T) {
	q, err := New(Read, testutil.DenseSchema())
	require.NoError(t, err)
	require.NoError(t, q.SetSubarray([]int64{1, 4}))
	q.Cancel()

	require.NoError(t, q.SetSubarray(nil))
	assert.Nil(t, q.Subarray())
	assert.Equal(t, Uninitialized, q.Status())
}

func TestSetSubarray_CopiesInput(t *testing.T) {
	q, err := New(Read, testutil.DenseSchema())
	require.NoError(t, err)
	sub := []int64{1, 4}
	require.NoError(t, q.SetSubarray(sub))
	sub[0] = 3
	assert.Equal(t, []int64{1, 4}, q.Subarray())
}

func TestSetSubarray_UnsupportedDomain(t *testing.T) {
	s := testutil.DenseSchema()
	s.Domain.Type = datatype.StringASCII
	q, err := New(Read, s)
	require.NoError(t, err)

	err = q.SetSubarray([]int64{1, 4})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSetSubarray_Forwarded(t *testing.T) {
	r := &mockReader{}
	r.On("SetArraySchema", mock.Anything).Return(nil)
	r.On("SetLayout", schema.RowMajor).Return(nil)
	r.On("SetSubarray", []int64{1, 4}).Return(nil).Once()

	q, err := New(Read, testutil.DenseSchema(), WithReader(r))
	require.NoError(t, err)
	require.NoError(t, q.SetSubarray([]int64{1, 4}))
	r.AssertExpectations(t)
}

func TestSetBuffer(t *testing.T) {
	q, err := New(Write, testutil.GridSchema())
	require.NoError(t, err)

	require.NoError(t, q.SetBuffer("a1", []int32{1, 2}))
	require.NoError(t, q.SetBufferVar("a2", []uint64{0, 2}, []byte("abcd")))
	assert.Equal(t, []string{"a1", "a2"}, q.Attributes())

	// rebinding keeps the original bind order
	require.NoError(t, q.SetBuffer("a1", []int32{7}))
	assert.Equal(t, []string{"a1", "a2"}, q.Attributes())

	bufs := q.AttributeBuffers()
	assert.Equal(t, []int32{7}, bufs["a1"].Data.Slice())
	assert.False(t, bufs["a1"].Data.Owned())
	assert.Nil(t, bufs["a1"].Offsets)
	assert.Equal(t, uint64(4), bufs["a2"].Data.ByteSize())
	assert.Equal(t, []uint64{0, 2}, bufs["a2"].Offsets.Slice())

	// unknown attributes are accepted until use
	require.NoError(t, q.SetBuffer("nope", []float64{1}))

	assert.ErrorIs(t, q.SetBuffer("a1", nil), ErrValidation)
	assert.ErrorIs(t, q.SetBuffer("a1", []string{"x"}), ErrValidation)
}

func TestCheckVarOffsets(t *testing.T) {
	assert.NoError(t, CheckVarOffsets([]uint64{0, 1, 3}, 4))
	assert.NoError(t, CheckVarOffsets(nil, 4))
	assert.NoError(t, CheckVarOffsets([]uint64{}, 0))
	assert.ErrorIs(t, CheckVarOffsets([]uint64{0, 0}, 4), ErrValidation)
	assert.ErrorIs(t, CheckVarOffsets([]uint64{0, 3, 2}, 4), ErrValidation)
	assert.ErrorIs(t, CheckVarOffsets([]uint64{0, 4}, 4), ErrValidation)
	assert.ErrorIs(t, CheckVarOffsets([]uint64{4}, 4), ErrValidation)
}

func TestProcess_BeforeInit(t *testing.T) {
	q, err := New(Write, testutil.DenseSchema(), WithWriter(newMockWriter()))
	require.NoError(t, err)

	err = q.Process(context.Background())
	assert.ErrorIs(t, err, ErrState)
	assert.Equal(t, Uninitialized, q.Status())
}

func TestInit_NoStrategy(t *testing.T) {
	q, err := New(Read, testutil.DenseSchema())
	require.NoError(t, err)
	assert.ErrorIs(t, q.Init(context.Background()), ErrConfiguration)
}

func TestInit_FailureKeepsStatus(t *testing.T) {
	w := newMockWriter()
	w.On("Init", mock.Anything).Return(errors.New("boom")).Once()
	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)

	err = q.Init(context.Background())
	assert.ErrorIs(t, err, ErrIO)
	assert.Equal(t, Uninitialized, q.Status())
}

func TestInit_Idempotent(t *testing.T) {
	w := newMockWriter()
	w.On("Init", mock.Anything).Return(nil).Once()
	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)

	require.NoError(t, q.Init(context.Background()))
	require.NoError(t, q.Init(context.Background()))
	assert.Equal(t, InProgress, q.Status())
	w.AssertExpectations(t)
}

func TestProcess_WriteCompletes(t *testing.T) {
	ctx := context.Background()
	w := newMockWriter()
	w.On("Init", mock.Anything).Return(nil)
	w.On("Write", mock.Anything).Return(nil)
	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)

	calls := 0
	q.SetCallback(func() { calls++ })

	require.NoError(t, q.Init(ctx))
	require.NoError(t, q.Process(ctx))
	assert.Equal(t, Completed, q.Status())
	assert.Equal(t, 1, calls)

	require.NoError(t, q.Process(ctx))
	assert.Equal(t, 1, calls, "callback is single-shot")
}

func TestProcess_ReadIncompleteThenComplete(t *testing.T) {
	ctx := context.Background()
	r := newMockReader()
	r.On("Init", mock.Anything).Return(nil)
	r.On("Read", mock.Anything).Return(nil)
	r.On("Incomplete").Return(true).Once()
	r.On("Incomplete").Return(false).Once()
	q, err := New(Read, testutil.DenseSchema(), WithReader(r))
	require.NoError(t, err)

	calls := 0
	q.SetCallback(func() { calls++ })

	require.NoError(t, q.Init(ctx))
	require.NoError(t, q.Process(ctx))
	assert.Equal(t, Incomplete, q.Status())
	assert.Zero(t, calls)

	require.NoError(t, q.Process(ctx))
	assert.Equal(t, Completed, q.Status())
	assert.Equal(t, 1, calls)
	r.AssertExpectations(t)
}

func TestProcess_Failure(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("disk on fire")
	r := newMockReader()
	r.On("Init", mock.Anything).Return(nil)
	r.On("Read", mock.Anything).Return(cause)
	q, err := New(Read, testutil.DenseSchema(), WithReader(r))
	require.NoError(t, err)

	called := false
	q.SetCallback(func() { called = true })

	require.NoError(t, q.Init(ctx))
	err = q.Process(ctx)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, Failed, q.Status())
	assert.False(t, called)
}

func TestProcess_StrategyErrorKindKept(t *testing.T) {
	ctx := context.Background()
	w := newMockWriter()
	w.On("Init", mock.Anything).Return(nil)
	w.On("Write", mock.Anything).Return(errorf(ErrValidation, "write", "missing buffer"))
	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)

	require.NoError(t, q.Init(ctx))
	err = q.Process(ctx)
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrIO)
}

func TestProcess_CancelWins(t *testing.T) {
	ctx := context.Background()
	w := newMockWriter()
	w.On("Init", mock.Anything).Return(nil)
	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)
	w.On("Write", mock.Anything).Run(func(mock.Arguments) { q.Cancel() }).Return(nil)

	require.NoError(t, q.Init(ctx))
	require.NoError(t, q.Process(ctx))
	assert.Equal(t, Failed, q.Status())
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()
	w := newMockWriter()
	w.On("Init", mock.Anything).Return(nil)
	w.On("Finalize", mock.Anything).Return(nil).Once()
	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)

	// no-op before init
	require.NoError(t, q.Finalize(ctx))
	assert.Equal(t, Uninitialized, q.Status())

	require.NoError(t, q.Init(ctx))
	require.NoError(t, q.Finalize(ctx))
	assert.Equal(t, Completed, q.Status())
	w.AssertExpectations(t)
}

func TestFinalize_Failure(t *testing.T) {
	ctx := context.Background()
	w := newMockWriter()
	w.On("Init", mock.Anything).Return(nil)
	w.On("Finalize", mock.Anything).Return(errors.New("flush failed"))
	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)

	require.NoError(t, q.Init(ctx))
	assert.ErrorIs(t, q.Finalize(ctx), ErrIO)
	assert.Equal(t, Failed, q.Status())
}

func TestCancel_FromAnyState(t *testing.T) {
	q, err := New(Read, testutil.DenseSchema())
	require.NoError(t, err)
	q.Cancel()
	assert.Equal(t, Failed, q.Status())
	q.Cancel()
	assert.Equal(t, Failed, q.Status())
}

func TestReaderIntrospection(t *testing.T) {
	ctx := context.Background()
	frags := []Fragment{testFragment{"__a_1", 1}, testFragment{"__b_2", 2}}
	r := newMockReader()
	r.On("SetFragmentMetadata", frags).Return(nil)
	r.On("FragmentNum").Return(2)
	r.On("FragmentURIs").Return([]string{"__a_1", "__b_2"})
	r.On("LastFragmentURI").Return("__b_2")
	r.On("Init", mock.Anything).Return(nil)
	r.On("NoResults").Return(false)

	q, err := New(Read, testutil.DenseSchema(), WithReader(r))
	require.NoError(t, err)
	require.NoError(t, q.SetFragmentMetadata(frags))

	assert.False(t, q.HasResults(), "uninitialized queries have no results")
	require.NoError(t, q.Init(ctx))
	assert.True(t, q.HasResults())
	assert.Equal(t, 2, q.FragmentNum())
	assert.Equal(t, []string{"__a_1", "__b_2"}, q.FragmentURIs())
	assert.Equal(t, "__b_2", q.LastFragmentURI())
}

func TestWriterFragmentURI(t *testing.T) {
	w := newMockWriter()
	w.On("SetFragmentURI", "__x_1").Once()
	q, err := New(Write, testutil.DenseSchema(), WithWriter(w))
	require.NoError(t, err)

	q.SetFragmentURI("__x_1")
	assert.Empty(t, q.LastFragmentURI())
	assert.Zero(t, q.FragmentNum())
	w.AssertExpectations(t)
}

func TestResultSize(t *testing.T) {
	var bound *Buffer
	r := &mockReader{}
	r.On("SetArraySchema", mock.Anything).Return(nil)
	r.On("SetLayout", mock.Anything).Return(nil)
	r.On("SetBuffer", "a1", mock.Anything).Run(func(args mock.Arguments) {
		bound = args.Get(1).(*Buffer)
	}).Return(nil)

	q, err := New(Read, testutil.DenseSchema(), WithReader(r))
	require.NoError(t, err)
	require.NoError(t, q.SetBuffer("a1", make([]int32, 8)))
	require.NotNil(t, bound)

	bound.SetResult(3, 0)
	n, _, ok := q.ResultSize("a1")
	require.True(t, ok)
	assert.Equal(t, uint64(3), n)

	_, _, ok = q.ResultSize("a2")
	assert.False(t, ok)
}

func TestTokens(t *testing.T) {
	for _, s := range []Status{Uninitialized, InProgress, Completed, Incomplete, Failed} {
		got, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("DONE")
	assert.ErrorIs(t, err, ErrDecode)

	typ, err := ParseType("WRITE")
	require.NoError(t, err)
	assert.Equal(t, Write, typ)
	_, err = ParseType("APPEND")
	assert.ErrorIs(t, err, ErrDecode)
}
