package ingest

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/errors"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func seed(n int64) *int64 { return &n }

func reviews() *frame.Frame {
	return frame.MustNew([]string{"id", "content", "date", "rating"}, map[string][]interface{}{
		"id":      {"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"},
		"content": {"great app", "line one\nline two", nil, "ok", "bad  bad bad", "fine", "love it", "meh", "slow\n", "five stars"},
		"date": {
			"2019-06-01", "2020-03-15 10:30:00", "2021-01-01", "2018-12-31", "2022-07-04",
			"2020-01-01", "2023-02-02", "2019-12-31", "2021-08-09", "2024-01-01",
		},
		"rating": {"5", "3", "1", "4", "2", "3", "5", nil, "2", "5"},
	})
}

func column(t *testing.T, f *frame.Frame, name string) []interface{} {
	t.Helper()
	values, err := f.Column(name)
	require.NoError(t, err)
	return values
}

func TestSampleIsReproducible(t *testing.T) {
	task, err := NewSample(SampleConfig{Fraction: 0.5, Seed: seed(42)}, quietLogger())
	require.NoError(t, err)

	first, err := task.Run(context.Background(), reviews())
	require.NoError(t, err)
	second, err := task.Run(context.Background(), reviews())
	require.NoError(t, err)

	assert.Equal(t, 5, first.NumRows())
	assert.True(t, first.Equal(second))
	assert.Equal(t, "sample", task.Name())
}

func TestSampleFullFractionKeepsOrder(t *testing.T) {
	task, err := NewSample(SampleConfig{Fraction: 1, Seed: seed(1)}, quietLogger())
	require.NoError(t, err)
	out, err := task.Run(context.Background(), reviews())
	require.NoError(t, err)
	assert.True(t, out.Equal(reviews()))
}

func TestSampleRejectsBadFraction(t *testing.T) {
	for _, frac := range []float64{0, -0.1, 1.5} {
		_, err := NewSample(SampleConfig{Fraction: frac}, nil)
		require.ErrorIs(t, err, errors.ErrInvalidValue)
	}
}

func TestFilterDate(t *testing.T) {
	task, err := NewFilterDate(FilterDateConfig{Year: 2020, Seed: seed(7)}, quietLogger())
	require.NoError(t, err)

	out, err := task.Run(context.Background(), reviews())
	require.NoError(t, err)

	// 2020-01-01 itself is not after the threshold
	assert.Equal(t, []interface{}{"2", "3", "5", "7", "9", "10"}, column(t, out, "id"))
}

func TestFilterDateRequiresYear(t *testing.T) {
	_, err := NewFilterDate(FilterDateConfig{}, nil)
	require.ErrorIs(t, err, errors.ErrMissingKey)
}

func TestFilterDateMissingColumn(t *testing.T) {
	task, err := NewFilterDate(FilterDateConfig{Column: "posted", Year: 2020}, quietLogger())
	require.NoError(t, err)
	_, err = task.Run(context.Background(), reviews())
	require.ErrorIs(t, err, errors.ErrMissingColumn)
}

func TestReviewLength(t *testing.T) {
	task, err := NewReviewLength(ReviewLengthConfig{}, quietLogger())
	require.NoError(t, err)
	out, err := task.Run(context.Background(), reviews())
	require.NoError(t, err)

	lengths := column(t, out, "review_length")
	assert.Equal(t, int64(2), lengths[0])
	assert.Equal(t, int64(4), lengths[1])
	assert.Equal(t, int64(0), lengths[2])
	assert.Equal(t, int64(3), lengths[4])
}

func TestRemoveNewlines(t *testing.T) {
	task, err := NewRemoveNewlines(ColumnConfig{}, quietLogger())
	require.NoError(t, err)
	out, err := task.Run(context.Background(), reviews())
	require.NoError(t, err)

	content := column(t, out, "content")
	assert.Equal(t, "line one line two", content[1])
	assert.Nil(t, content[2])
	assert.Equal(t, "slow ", content[8])
	assert.Equal(t, 10, out.NumRows())
}

func TestVerifyEncodingRepairsColumn(t *testing.T) {
	data := frame.MustNew([]string{"content"}, map[string][]interface{}{
		"content": {"caf\xe9 latte", "fine", nil},
	})
	task, err := NewVerifyEncoding(VerifyEncodingConfig{Fraction: 1}, quietLogger())
	require.NoError(t, err)

	out, err := task.Run(context.Background(), data)
	require.NoError(t, err)
	content := column(t, out, "content")
	assert.Equal(t, "caf latte", content[0])
	assert.Equal(t, "fine", content[1])
	assert.Nil(t, content[2])
}

func TestVerifyEncodingLeavesCleanColumn(t *testing.T) {
	data := reviews()
	task, err := NewVerifyEncoding(VerifyEncodingConfig{}, quietLogger())
	require.NoError(t, err)
	out, err := task.Run(context.Background(), data)
	require.NoError(t, err)
	assert.Same(t, data, out)
}

func TestCleanUTF8(t *testing.T) {
	assert.Equal(t, "héllo", CleanUTF8("héllo"))
	assert.Equal(t, "ab", CleanUTF8("a\xff\xfeb"))
}

func TestCastTypes(t *testing.T) {
	task, err := NewCastTypes(CastTypesConfig{Types: map[string]string{
		"rating": CastInt,
		"date":   CastDatetime,
		"id":     CastFloat,
	}}, quietLogger())
	require.NoError(t, err)

	out, err := task.Run(context.Background(), reviews())
	require.NoError(t, err)

	ratings := column(t, out, "rating")
	assert.Equal(t, int64(5), ratings[0])
	assert.Nil(t, ratings[7])

	dates := column(t, out, "date")
	require.IsType(t, time.Time{}, dates[1])
	assert.True(t, time.Date(2020, 3, 15, 10, 30, 0, 0, time.UTC).Equal(dates[1].(time.Time)))

	assert.Equal(t, 10.0, column(t, out, "id")[9])
}

func TestCastTypesErrors(t *testing.T) {
	_, err := NewCastTypes(CastTypesConfig{}, nil)
	require.ErrorIs(t, err, errors.ErrMissingKey)

	_, err = NewCastTypes(CastTypesConfig{Types: map[string]string{"rating": "decimal"}}, nil)
	require.ErrorIs(t, err, errors.ErrInvalidValue)

	task, err := NewCastTypes(CastTypesConfig{Types: map[string]string{"stars": CastInt}}, quietLogger())
	require.NoError(t, err)
	_, err = task.Run(context.Background(), reviews())
	require.ErrorIs(t, err, errors.ErrMissingColumn)

	task, err = NewCastTypes(CastTypesConfig{Types: map[string]string{"content": CastInt}}, quietLogger())
	require.NoError(t, err)
	_, err = task.Run(context.Background(), reviews())
	require.Error(t, err)
	assert.True(t, errors.IsSchemaError(err))
}
