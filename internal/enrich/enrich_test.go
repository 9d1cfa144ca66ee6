package enrich

import (
	"context"
	"io"
	"testing"

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

func dated() *frame.Frame {
	return frame.MustNew([]string{"date"}, map[string][]interface{}{
		"date": {"2024-05-01 14:00:00", "2024-05-03 09:00:00", "2024-04-30 23:59:00", nil},
	})
}

func run(t *testing.T, task interface {
	Run(context.Context, *frame.Frame) (*frame.Frame, error)
}, data *frame.Frame, column string) []interface{} {
	t.Helper()
	out, err := task.Run(context.Background(), data)
	require.NoError(t, err)
	values, err := out.Column(column)
	require.NoError(t, err)
	return values
}

func TestReviewAge(t *testing.T) {
	task, err := NewReviewAge(DateConfig{}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "review_age", task.Name())
	assert.Equal(t, []interface{}{int64(2), int64(0), int64(3), nil}, run(t, task, dated(), "enrichment_review_age"))
}

func TestCalendarParts(t *testing.T) {
	month, err := NewReviewMonth(DateConfig{}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(5), int64(5), int64(4), nil}, run(t, month, dated(), "enrichment_review_month"))

	// 2024-05-01 is a Wednesday
	dow, err := NewReviewDayOfWeek(DateConfig{NewColumn: "dow"}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(4), int64(6), int64(3), nil}, run(t, dow, dated(), "dow"))

	hour, err := NewReviewHour(DateConfig{}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(14), int64(9), int64(23), nil}, run(t, hour, dated(), "enrichment_review_hour"))
}

func TestDateTaskMissingColumn(t *testing.T) {
	task, err := NewReviewMonth(DateConfig{Column: "posted"}, quietLogger())
	require.NoError(t, err)
	_, err = task.Run(context.Background(), dated())
	require.ErrorIs(t, err, errors.ErrMissingColumn)
}

func TestPercentDeviation(t *testing.T) {
	data := frame.MustNew([]string{"category", "rating"}, map[string][]interface{}{
		"category": {"a", "a", "b", "c", "c", "d"},
		"rating":   {"4", "2", "5", "0", "0", "x"},
	})
	task, err := NewPercentDeviation(PercentDeviationConfig{Column: "rating"}, quietLogger())
	require.NoError(t, err)

	out, err := task.Run(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []string{"category", "rating", "enrichment_rating_pct_dev"}, out.Names())

	values, err := out.Column("enrichment_rating_pct_dev")
	require.NoError(t, err)
	assert.InDelta(t, 33.333, values[0].(float64), 1e-3)
	assert.InDelta(t, -33.333, values[1].(float64), 1e-3)
	assert.Equal(t, 0.0, values[2])
	assert.Equal(t, 0.0, values[3])
	assert.Equal(t, 0.0, values[4])
	assert.Nil(t, values[5])
}

func TestPercentDeviationValidation(t *testing.T) {
	_, err := NewPercentDeviation(PercentDeviationConfig{}, nil)
	require.ErrorIs(t, err, errors.ErrMissingKey)

	task, err := NewPercentDeviation(PercentDeviationConfig{Column: "rating", By: []string{"app"}}, quietLogger())
	require.NoError(t, err)
	_, err = task.Run(context.Background(), frame.MustNew([]string{"rating"}, map[string][]interface{}{"rating": {"1"}}))
	require.ErrorIs(t, err, errors.ErrMissingColumn)
}
