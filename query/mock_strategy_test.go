package query

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hupe1980/arraystore/schema"
	"github.com/hupe1980/arraystore/wire"
)

type mockStrategy struct {
	mock.Mock
}

func (m *mockStrategy) SetArraySchema(s *schema.ArraySchema) error {
	return m.Called(s).Error(0)
}

func (m *mockStrategy) SetLayout(l schema.Layout) error {
	return m.Called(l).Error(0)
}

func (m *mockStrategy) SetSubarray(subarray any) error {
	return m.Called(subarray).Error(0)
}

func (m *mockStrategy) SetBuffer(attr string, b *Buffer) error {
	return m.Called(attr, b).Error(0)
}

func (m *mockStrategy) Init(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// permissive accepts configuration calls without explicit expectations.
func (m *mockStrategy) permissive() {
	m.On("SetArraySchema", mock.Anything).Return(nil).Maybe()
	m.On("SetLayout", mock.Anything).Return(nil).Maybe()
	m.On("SetSubarray", mock.Anything).Return(nil).Maybe()
	m.On("SetBuffer", mock.Anything, mock.Anything).Return(nil).Maybe()
}

type mockReader struct {
	mockStrategy
}

func newMockReader() *mockReader {
	r := &mockReader{}
	r.permissive()
	return r
}

func (m *mockReader) Read(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockReader) Incomplete() bool {
	return m.Called().Bool(0)
}

func (m *mockReader) NoResults() bool {
	return m.Called().Bool(0)
}

func (m *mockReader) SetFragmentMetadata(frags []Fragment) error {
	return m.Called(frags).Error(0)
}

func (m *mockReader) FragmentNum() int {
	return m.Called().Int(0)
}

func (m *mockReader) FragmentURIs() []string {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]string)
	}
	return nil
}

func (m *mockReader) LastFragmentURI() string {
	return m.Called().String(0)
}

type mockWriter struct {
	mockStrategy
}

func newMockWriter() *mockWriter {
	w := &mockWriter{}
	w.permissive()
	return w
}

func (m *mockWriter) Write(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockWriter) Finalize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockWriter) SetFragmentURI(uri string) {
	m.Called(uri)
}

func (m *mockWriter) SerializeState() (*wire.Writer, error) {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.(*wire.Writer), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWriter) DeserializeState(w *wire.Writer) error {
	return m.Called(w).Error(0)
}

type testFragment struct {
	uri string
	ts  int64
}

func (f testFragment) URI() string      { return f.uri }
func (f testFragment) Timestamp() int64 { return f.ts }
