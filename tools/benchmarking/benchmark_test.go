package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/tests/helpers"
)

func TestCalculateLatencyMetrics(t *testing.T) {
	latencies := []time.Duration{4 * time.Millisecond, 1 * time.Millisecond, 3 * time.Millisecond, 2 * time.Millisecond}
	m := calculateLatencyMetrics(latencies, []float64{50, 100})

	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	helpers.AssertFloatSliceEquals(t,
		[]float64{1, 4, 2.5, 2, 4},
		[]float64{ms(m.Min), ms(m.Max), ms(m.Mean), ms(m.Percentiles["p50"]), ms(m.Percentiles["p100"])},
		1e-3, "min, max, mean, p50, p100")
	// Sample standard deviation of 1..4 is sqrt(5/3).
	helpers.AssertFloatEquals(t, 1.2910, ms(m.StdDev), 1e-3, "std dev")

	empty := calculateLatencyMetrics(nil, []float64{50})
	assert.Zero(t, empty.Mean)
}

func TestBenchmarkRun(t *testing.T) {
	helpers.SkipIfShort(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := getDefaultConfig()
	cfg.Sizes = []int{200}
	cfg.Iterations = 2
	cfg.Warmup = 0

	b, err := NewBenchmark(cfg, logger)
	require.NoError(t, err)
	result, err := b.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Operations, len(cfg.Tasks)*len(cfg.Modes))
	for _, op := range result.Operations {
		assert.Zero(t, op.Errors, op.Task)
		assert.Equal(t, 200, op.Rows)
	}

	out := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, generateReport(result, ReportConfig{Format: "markdown", OutputFile: out}))
	assert.FileExists(t, out)
	assert.Error(t, generateReport(result, ReportConfig{Format: "html", OutputFile: out}))
}

func TestNewBenchmarkValidates(t *testing.T) {
	cfg := getDefaultConfig()
	cfg.Modes = []string{constants.ModeLocal, "gpu"}
	_, err := NewBenchmark(cfg, logrus.New())
	assert.Error(t, err)

	cfg = getDefaultConfig()
	cfg.Iterations = 0
	_, err = NewBenchmark(cfg, logrus.New())
	assert.Error(t, err)
}
