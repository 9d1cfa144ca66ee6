package profile

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type memorySink struct {
	mu       sync.Mutex
	profiles []*models.Profile
	err      error
}

func (m *memorySink) Record(ctx context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.profiles = append(m.profiles, p)
	return nil
}

func TestRecorderObserve(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(quietLogger(), sink)

	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec.now = func() time.Time {
		clock = clock.Add(1500 * time.Millisecond)
		return clock
	}

	proc := Process{RunID: "run-1", Type: models.ProcessTypeTask, Name: "sample", Stage: "ingest"}
	err := rec.Observe(context.Background(), proc, 100, func(ctx context.Context) (int, error) {
		return 40, nil
	})
	require.NoError(t, err)
	require.Len(t, sink.profiles, 1)

	p := sink.profiles[0]
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "run-1", p.RunID)
	assert.Equal(t, "sample", p.ProcessName)
	assert.Equal(t, "ingest", p.Stage)
	assert.Equal(t, 100, p.RowsIn)
	assert.Equal(t, 40, p.RowsOut)
	assert.InDelta(t, 1.5, p.RuntimeSeconds, 1e-9)
	assert.Positive(t, p.CPUCores)
	assert.Equal(t, StatusSuccess, p.Status)
	assert.Zero(t, p.ExceptionsRaised)
}

func TestRecorderObserveFailure(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(quietLogger(), sink)
	boom := stderrors.New("boom")

	err := rec.Observe(context.Background(), Process{Name: "t"}, 3, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	require.Len(t, sink.profiles, 1)
	assert.Equal(t, StatusFailed, sink.profiles[0].Status)
	assert.Equal(t, 1, sink.profiles[0].ExceptionsRaised)
}

func TestRecorderSinkErrorsAreNotReturned(t *testing.T) {
	rec := NewRecorder(quietLogger(), &memorySink{err: stderrors.New("db down")})
	err := rec.Observe(context.Background(), Process{Name: "t"}, 1, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	assert.NoError(t, err)
}

func TestNilRecorderRunsFunction(t *testing.T) {
	var rec *Recorder
	called := false
	err := rec.Observe(context.Background(), Process{}, 0, func(ctx context.Context) (int, error) {
		called = true
		return 0, nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
