// Package profile records runtime profiles of stage and task executions and
// ships them to sinks: a gorm-backed table and an InfluxDB measurement.
package profile

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/pkg/interfaces"
	"github.com/inferloop/reviewqa/pkg/models"
)

const bytesPerMB = 1024 * 1024

// Process identifies the execution being profiled.
type Process struct {
	RunID string
	Type  string
	Name  string
	Stage string
}

// Recorder measures executions and writes one profile per execution to every
// sink. A nil *Recorder runs the function unmeasured.
type Recorder struct {
	sinks  []interfaces.ProfileSink
	logger *logrus.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder writing to sinks
func NewRecorder(logger *logrus.Logger, sinks ...interfaces.ProfileSink) *Recorder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Recorder{sinks: sinks, logger: logger, now: time.Now}
}

// Observe runs fn and records its runtime, row counts, heap use and outcome.
// Sink failures are logged and never returned; fn's error is returned as is.
func (r *Recorder) Observe(ctx context.Context, proc Process, rowsIn int, fn func(context.Context) (int, error)) error {
	if r == nil {
		_, err := fn(ctx)
		return err
	}

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	start := r.now()

	rowsOut, err := fn(ctx)

	end := r.now()
	runtime.ReadMemStats(&after)

	p := &models.Profile{
		ID:             uuid.New().String(),
		RunID:          proc.RunID,
		ProcessType:    proc.Type,
		ProcessName:    proc.Name,
		Stage:          proc.Stage,
		StartTime:      start,
		EndTime:        end,
		RuntimeSeconds: end.Sub(start).Seconds(),
		RowsIn:         rowsIn,
		RowsOut:        rowsOut,
		CPUCores:       runtime.NumCPU(),
		MemoryPeakMB:   float64(maxUint64(before.HeapAlloc, after.HeapAlloc)) / bytesPerMB,
		MemoryAllocs:   after.Mallocs - before.Mallocs,
		Status:         StatusSuccess,
	}
	if err != nil {
		p.ExceptionsRaised = 1
		p.Status = StatusFailed
	}

	r.write(ctx, p)
	return err
}

// Status values stored on profiles.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

func (r *Recorder) write(ctx context.Context, p *models.Profile) {
	for _, sink := range r.sinks {
		if err := sink.Record(ctx, p); err != nil {
			r.logger.WithFields(logrus.Fields{
				"process": p.ProcessName,
				"stage":   p.Stage,
				"error":   err,
			}).Warn("Failed to record profile")
		}
	}
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
