package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/pkg/models"
)

func TestNewInfluxSinkValidation(t *testing.T) {
	_, err := NewInfluxSink(nil, nil)
	require.Error(t, err)

	_, err = NewInfluxSink(&InfluxConfig{Bucket: "profiles"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url is required")

	_, err = NewInfluxSink(&InfluxConfig{URL: "http://localhost:8086"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")

	sink, err := NewInfluxSink(&InfluxConfig{URL: "http://localhost:8086", Bucket: "profiles"}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, sink.config.Timeout)
	sink.Close()
}

func TestProfilePoint(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	point := profilePoint(&models.Profile{
		RunID:          "run-1",
		ProcessType:    models.ProcessTypeStage,
		ProcessName:    "clean",
		Stage:          "clean",
		StartTime:      start,
		RuntimeSeconds: 2.5,
		RowsIn:         10,
		RowsOut:        7,
		Status:         StatusSuccess,
	})

	assert.Equal(t, Measurement, point.Name())
	assert.True(t, start.Equal(point.Time()))

	tags := map[string]string{}
	for _, tag := range point.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "stage", tags["process_type"])
	assert.Equal(t, "clean", tags["process_name"])
	assert.Equal(t, StatusSuccess, tags["status"])

	fields := map[string]interface{}{}
	for _, field := range point.FieldList() {
		fields[field.Key] = field.Value
	}
	assert.Equal(t, 2.5, fields["runtime_seconds"])
	assert.EqualValues(t, 7, fields["rows_out"])
}
