package distributed

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, partitions, workers, minRows int) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{Partitions: partitions, MaxWorkers: workers, MinPartitionRows: minRows}, logrus.New())
	require.NoError(t, err)
	return engine
}

func TestNewEngineInvalidConfig(t *testing.T) {
	_, err := NewEngine(EngineConfig{Partitions: 0, MaxWorkers: 1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partitions must be positive")

	_, err = NewEngine(EngineConfig{Partitions: 2, MaxWorkers: 0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_workers must be positive")
}

func TestPartitionCoversAllRows(t *testing.T) {
	engine := newTestEngine(t, 4, 2, 1)

	bounds := engine.partition(10)
	require.Len(t, bounds, 4)
	assert.Equal(t, [2]int{0, 3}, bounds[0])
	assert.Equal(t, [2]int{8, 10}, bounds[3])

	total := 0
	for _, b := range bounds {
		total += b[1] - b[0]
	}
	assert.Equal(t, 10, total)
	assert.Nil(t, engine.partition(0))
}

func TestPartitionRespectsMinRows(t *testing.T) {
	engine := newTestEngine(t, 8, 2, 100)
	assert.Len(t, engine.partition(150), 1)
	assert.Len(t, engine.partition(450), 4)
}

func TestForEachVisitsEveryRowOnce(t *testing.T) {
	engine := newTestEngine(t, 7, 3, 1)
	out := make([]int, 1000)
	var calls int64

	err := engine.ForEach(context.Background(), len(out), func(i int) error {
		out[i] = i * 2
		atomic.AddInt64(&calls, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), calls)
	for i, v := range out {
		assert.Equal(t, i*2, v)
	}

	metrics := engine.Metrics()
	assert.Equal(t, int64(1), metrics.JobsSucceeded)
	assert.Equal(t, int64(1000), metrics.RowsProcessed)
}

func TestForEachPropagatesError(t *testing.T) {
	engine := newTestEngine(t, 4, 4, 1)
	err := engine.MapRows(context.Background(), "failing", 100, func(i int) error {
		if i == 42 {
			return fmt.Errorf("row %d failed", i)
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 42 failed")

	jobs := engine.RecentJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, JobStateFailed, jobs[0].State)
	assert.Equal(t, int64(1), engine.Metrics().JobsFailed)
}

func TestForEachCancelledContext(t *testing.T) {
	engine := newTestEngine(t, 4, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := engine.ForEach(ctx, 100, func(i int) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
