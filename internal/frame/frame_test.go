package frame

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/pkg/errors"
)

func sampleFrame(t *testing.T) *Frame {
	t.Helper()
	f, err := New([]string{"app", "rating", "content"}, map[string][]interface{}{
		"app":     {"a", "a", "b"},
		"rating":  {4.0, 2.0, 5.0},
		"content": {"good app", "bad", "great"},
	})
	require.NoError(t, err)
	return f
}

func TestNewFrame(t *testing.T) {
	f := sampleFrame(t)
	assert.Equal(t, 3, f.NumRows())
	assert.Equal(t, []string{"app", "rating", "content"}, f.Names())
	assert.True(t, f.Has("rating"))
	assert.False(t, f.Has("missing"))
}

func TestNewFrameLengthMismatch(t *testing.T) {
	_, err := New([]string{"a", "b"}, map[string][]interface{}{
		"a": {1, 2},
		"b": {1},
	})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrLengthMismatch))
}

func TestColumnMissing(t *testing.T) {
	f := sampleFrame(t)
	_, err := f.Column("nope")
	require.Error(t, err)
	assert.True(t, errors.IsSchemaError(err))
	assert.Contains(t, err.Error(), "nope")
}

func TestWithColumnDoesNotMutateParent(t *testing.T) {
	f := sampleFrame(t)
	g, err := f.WithBools("flag", []bool{true, false, true})
	require.NoError(t, err)

	assert.False(t, f.Has("flag"))
	assert.True(t, g.Has("flag"))
	assert.Equal(t, []string{"app", "rating", "content", "flag"}, g.Names())

	_, err = f.WithBools("flag", []bool{true})
	require.Error(t, err)
}

func TestFilterAndTake(t *testing.T) {
	f := sampleFrame(t)
	g, err := f.Filter([]bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 2, g.NumRows())

	content, err := g.Strings("content")
	require.NoError(t, err)
	assert.Equal(t, []string{"good app", "great"}, content)
	assert.Equal(t, 3, f.NumRows())

	_, err = f.Filter([]bool{true})
	require.Error(t, err)
}

func TestDropAndRename(t *testing.T) {
	f := sampleFrame(t)
	g := f.Drop("rating", "unknown")
	assert.Equal(t, []string{"app", "content"}, g.Names())

	h, err := f.Rename("content", "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "rating", "text"}, h.Names())
	assert.True(t, f.Has("content"))

	_, err = f.Rename("missing", "x")
	require.Error(t, err)
	_, err = f.Rename("app", "rating")
	require.Error(t, err)
}

func TestFloatsValidity(t *testing.T) {
	f, err := New([]string{"x"}, map[string][]interface{}{"x": {"1.5", "", nil, "abc", int64(3)}})
	require.NoError(t, err)

	values, valid, err := f.Floats("x")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, false, true}, valid)
	assert.Equal(t, 1.5, values[0])
	assert.Equal(t, 3.0, values[4])
}

func TestGroupMeanAndJoin(t *testing.T) {
	f := sampleFrame(t)
	means, err := f.GroupMean([]string{"app"}, "rating")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, means["a"], 1e-9)
	assert.InDelta(t, 5.0, means["b"], 1e-9)

	g, err := f.LeftJoinColumn([]string{"app"}, means, "avg")
	require.NoError(t, err)
	avg, _, err := g.Floats("avg")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 5}, avg)
}

func TestGroupKeysSeparateNilFromEmpty(t *testing.T) {
	f := MustNew([]string{"app"}, map[string][]interface{}{"app": {nil, "", nil, "a"}})
	keys, err := f.GroupKeys([]string{"app"})
	require.NoError(t, err)
	assert.Equal(t, keys[0], keys[2])
	assert.NotEqual(t, keys[0], keys[1])
	assert.NotEqual(t, keys[1], keys[3])
}

func TestTimes(t *testing.T) {
	f, err := New([]string{"date"}, map[string][]interface{}{"date": {"2023-01-02 10:00:00", "2023-03-04T05:06:07Z"}})
	require.NoError(t, err)
	times, err := f.Times("date")
	require.NoError(t, err)
	assert.Equal(t, 2023, times[0].Year())
	assert.Equal(t, 5, times[1].Hour())
}

func TestCSVRoundTrip(t *testing.T) {
	f := sampleFrame(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, f))

	g, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.Names(), g.Names())
	ratings, err := g.Strings("rating")
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "2", "5"}, ratings)
}

func TestJSONRoundTripPreservesOrderAndTypes(t *testing.T) {
	f, err := New([]string{"z", "a"}, map[string][]interface{}{
		"z": {"x", nil},
		"a": {int64(1), true},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, f))
	g, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.True(t, f.Equal(g))
}

func TestReadCSVRaggedRecord(t *testing.T) {
	_, err := ReadCSV(bytes.NewBufferString("a,b\n1,2\n3\n"))
	require.Error(t, err)
}
