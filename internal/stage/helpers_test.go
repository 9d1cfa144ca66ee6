package stage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/dataset"
	"github.com/inferloop/reviewqa/internal/frame"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var errBoom = errors.New("boom")

// spyTask counts its runs and optionally fails or transforms the data.
type spyTask struct {
	name    string
	calls   int
	fail    error
	stageID string
	apply   func(*frame.Frame) (*frame.Frame, error)
}

func (s *spyTask) Name() string { return s.name }

func (s *spyTask) SetStageID(id string) { s.stageID = id }

func (s *spyTask) Run(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	if s.apply != nil {
		return s.apply(data)
	}
	return data, nil
}

func reviews() *frame.Frame {
	return frame.MustNew([]string{"id", "content", "score"}, map[string][]interface{}{
		"id":      {"r1", "r2", "r3", "r4"},
		"content": {"great app love it", "bad", "works fine for me", "meh"},
		"score":   {5.0, 1.0, 4.0, 2.0},
	})
}

func seededRepo(t *testing.T, ctx context.Context, phase, stage, name string, f *frame.Frame) *dataset.MemoryRepository {
	t.Helper()
	repo := dataset.NewMemoryRepository()
	ds, err := dataset.NewFactory(quietLogger()).FromFrame(phase, stage, name, f, "", "")
	require.NoError(t, err)
	require.NoError(t, repo.Add(ctx, ds))
	return repo
}

func testEnv(repo *dataset.MemoryRepository) Env {
	logger := quietLogger()
	return Env{
		Repository: repo,
		Builder:    NewTaskBuilder(nil, logger),
		Logger:     logger,
	}
}

func stageConfig(force bool) Config {
	return Config{
		ID:          "clean",
		Phase:       "dq",
		Source:      DatasetRef{Phase: "ingest", Stage: "load", Name: "reviews"},
		Destination: DatasetRef{Name: "reviews"},
		Force:       force,
		Tasks:       []TaskSpec{{Type: "spy"}},
	}
}
