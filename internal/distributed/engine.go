// Package distributed runs row-level work across partitions in parallel.
//
// Strategies resolved from a distributed factory hand their per-row functions
// to an Engine instead of looping themselves. Each partition writes only its
// own index range, so results are identical to a sequential pass.
package distributed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// EngineConfig configures partitioning and parallelism.
type EngineConfig struct {
	Partitions int `json:"partitions" mapstructure:"partitions"`
	MaxWorkers int `json:"max_workers" mapstructure:"max_workers"`
	// MinPartitionRows avoids fan-out on tiny inputs.
	MinPartitionRows int `json:"min_partition_rows" mapstructure:"min_partition_rows"`
}

// JobState represents the state of a partitioned job
type JobState string

const (
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// JobRecord describes one MapRows invocation.
type JobRecord struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	Rows       int           `json:"rows"`
	Partitions int           `json:"partitions"`
	State      JobState      `json:"state"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// EngineMetrics are cumulative counters for the engine.
type EngineMetrics struct {
	JobsSubmitted       int64 `json:"jobs_submitted"`
	JobsSucceeded       int64 `json:"jobs_succeeded"`
	JobsFailed          int64 `json:"jobs_failed"`
	PartitionsProcessed int64 `json:"partitions_processed"`
	RowsProcessed       int64 `json:"rows_processed"`
}

// Engine executes row functions over partitions with bounded parallelism.
type Engine struct {
	config  EngineConfig
	logger  *logrus.Logger
	jobSeq  int64
	metrics EngineMetrics
	mu      sync.RWMutex
	recent  []JobRecord
}

const maxRecentJobs = 64

// DefaultEngineConfig returns the default engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Partitions:       constants.DefaultPartitions,
		MaxWorkers:       constants.DefaultMaxWorkers,
		MinPartitionRows: 256,
	}
}

// NewEngine creates a partitioned execution engine
func NewEngine(config EngineConfig, logger *logrus.Logger) (*Engine, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Partitions <= 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("partitions must be positive, got %d", config.Partitions))
	}
	if config.MaxWorkers <= 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("max_workers must be positive, got %d", config.MaxWorkers))
	}
	if config.MinPartitionRows < 1 {
		config.MinPartitionRows = 1
	}
	return &Engine{config: config, logger: logger}, nil
}

// Mode identifies the engine for logging and metrics.
func (e *Engine) Mode() string {
	return constants.ModeDistributed
}

// Config returns the engine configuration
func (e *Engine) Config() EngineConfig {
	return e.config
}

// ForEach calls fn for every row index in [0, n). Rows are split into
// contiguous partitions processed concurrently; the first error cancels the
// remaining partitions and is returned.
func (e *Engine) ForEach(ctx context.Context, n int, fn func(i int) error) error {
	return e.MapRows(ctx, "rows", n, fn)
}

// MapRows is ForEach with a job name used in logs and the job history.
func (e *Engine) MapRows(ctx context.Context, name string, n int, fn func(i int) error) error {
	record := JobRecord{
		ID:        atomic.AddInt64(&e.jobSeq, 1),
		Name:      name,
		Rows:      n,
		State:     JobStateRunning,
		StartedAt: time.Now(),
	}
	atomic.AddInt64(&e.metrics.JobsSubmitted, 1)

	bounds := e.partition(n)
	record.Partitions = len(bounds)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.MaxWorkers)

	for _, b := range bounds {
		start, end := b[0], b[1]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				if err := fn(i); err != nil {
					return err
				}
			}
			atomic.AddInt64(&e.metrics.PartitionsProcessed, 1)
			atomic.AddInt64(&e.metrics.RowsProcessed, int64(end-start))
			return nil
		})
	}

	err := g.Wait()
	record.Duration = time.Since(record.StartedAt)

	switch {
	case err == nil:
		record.State = JobStateSucceeded
		atomic.AddInt64(&e.metrics.JobsSucceeded, 1)
	case ctx.Err() != nil:
		record.State = JobStateCancelled
		record.Error = err.Error()
		atomic.AddInt64(&e.metrics.JobsFailed, 1)
	default:
		record.State = JobStateFailed
		record.Error = err.Error()
		atomic.AddInt64(&e.metrics.JobsFailed, 1)
	}
	e.remember(record)

	e.logger.WithFields(logrus.Fields{
		"job_id":     record.ID,
		"job":        name,
		"rows":       n,
		"partitions": record.Partitions,
		"state":      record.State,
		"duration":   record.Duration,
	}).Debug("Partitioned job finished")

	return err
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() EngineMetrics {
	return EngineMetrics{
		JobsSubmitted:       atomic.LoadInt64(&e.metrics.JobsSubmitted),
		JobsSucceeded:       atomic.LoadInt64(&e.metrics.JobsSucceeded),
		JobsFailed:          atomic.LoadInt64(&e.metrics.JobsFailed),
		PartitionsProcessed: atomic.LoadInt64(&e.metrics.PartitionsProcessed),
		RowsProcessed:       atomic.LoadInt64(&e.metrics.RowsProcessed),
	}
}

// RecentJobs returns the most recent job records, oldest first.
func (e *Engine) RecentJobs() []JobRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]JobRecord, len(e.recent))
	copy(out, e.recent)
	return out
}

func (e *Engine) remember(record JobRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = append(e.recent, record)
	if len(e.recent) > maxRecentJobs {
		e.recent = e.recent[len(e.recent)-maxRecentJobs:]
	}
}

// partition splits [0, n) into at most config.Partitions contiguous ranges of
// at least MinPartitionRows rows.
func (e *Engine) partition(n int) [][2]int {
	if n <= 0 {
		return nil
	}
	parts := e.config.Partitions
	if maxParts := n / e.config.MinPartitionRows; maxParts < parts {
		parts = maxParts
	}
	if parts < 1 {
		parts = 1
	}

	size := n / parts
	rem := n % parts
	bounds := make([][2]int, 0, parts)
	start := 0
	for p := 0; p < parts; p++ {
		end := start + size
		if p < rem {
			end++
		}
		bounds = append(bounds, [2]int{start, end})
		start = end
	}
	return bounds
}
