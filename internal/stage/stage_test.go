package stage

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/internal/observability/metrics"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
	"github.com/inferloop/reviewqa/pkg/models"
)

func dropShort(data *frame.Frame) (*frame.Frame, error) {
	texts, err := data.Strings("content")
	if err != nil {
		return nil, err
	}
	keep := make([]bool, len(texts))
	for i, s := range texts {
		keep[i] = len(s) > 3
	}
	return data.Filter(keep)
}

func TestStageRunPersistsDestination(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, ctx, "ingest", "load", "reviews", reviews())
	spy := &spyTask{name: "drop_short", apply: dropShort}

	st, err := New(stageConfig(false), []interfaces.Task{spy}, testEnv(repo))
	require.NoError(t, err)
	assert.Equal(t, models.StageNotStarted, st.Status())
	assert.Equal(t, "clean", spy.stageID)

	ds, err := st.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dataset-dq-clean-reviews", ds.ID)
	assert.Equal(t, 2, ds.Frame.NumRows())
	assert.Equal(t, models.StageComplete, st.Status())

	stored, err := repo.Get(ctx, "dataset-dq-clean-reviews")
	require.NoError(t, err)
	assert.True(t, stored.Frame.Equal(ds.Frame))

	rec := st.LastRun()
	require.NotNil(t, rec)
	assert.Equal(t, models.StageComplete, rec.Status)
	assert.Equal(t, 1, rec.TasksExecuted)
	assert.Equal(t, 4, rec.RowsIn)
	assert.Equal(t, 2, rec.RowsOut)
	assert.Equal(t, "dataset-ingest-load-reviews", rec.SourceID)
	assert.Equal(t, []string{"drop_short"}, rec.Tasks)
}

func TestStageRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, ctx, "ingest", "load", "reviews", reviews())
	spy := &spyTask{name: "drop_short", apply: dropShort}

	st, err := New(stageConfig(false), []interfaces.Task{spy}, testEnv(repo))
	require.NoError(t, err)

	first, err := st.Run(ctx)
	require.NoError(t, err)
	second, err := st.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, spy.calls)
	assert.True(t, first.Frame.Equal(second.Frame))
	assert.Equal(t, models.StageSkipped, st.Status())
	assert.Equal(t, 0, st.LastRun().TasksExecuted)
}

func TestStageForceReruns(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, ctx, "ingest", "load", "reviews", reviews())
	spy := &spyTask{name: "drop_short", apply: dropShort}

	st, err := New(stageConfig(true), []interfaces.Task{spy}, testEnv(repo))
	require.NoError(t, err)

	_, err = st.Run(ctx)
	require.NoError(t, err)
	ds, err := st.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, spy.calls)
	assert.Equal(t, models.StageComplete, st.Status())
	assert.Equal(t, 2, ds.Frame.NumRows())

	ids, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestStageTaskFailure(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, ctx, "ingest", "load", "reviews", reviews())
	first := &spyTask{name: "first"}
	failing := &spyTask{name: "failing", fail: errBoom}
	never := &spyTask{name: "never"}

	st, err := New(stageConfig(false), []interfaces.Task{first, failing, never}, testEnv(repo))
	require.NoError(t, err)

	_, err = st.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)

	var taskErr *errors.TaskExecutionError
	require.True(t, stderrors.As(err, &taskErr))
	assert.Equal(t, "clean", taskErr.Stage)
	assert.Equal(t, 1, taskErr.Index)
	assert.Equal(t, "failing", taskErr.Task)

	assert.Equal(t, 0, never.calls)
	assert.Equal(t, models.StageFailed, st.Status())
	assert.Equal(t, 1, st.LastRun().TasksExecuted)
	assert.NotEmpty(t, st.LastRun().Error)

	exists, err := repo.Exists(ctx, "dataset-dq-clean-reviews")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStageMissingSource(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, ctx, "ingest", "load", "other", reviews())

	st, err := New(stageConfig(false), []interfaces.Task{&spyTask{name: "spy"}}, testEnv(repo))
	require.NoError(t, err)

	_, err = st.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDatasetNotFound)
	assert.Equal(t, models.StageFailed, st.Status())
}

func TestStageCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := seededRepo(t, context.Background(), "ingest", "load", "reviews", reviews())
	spy := &spyTask{name: "spy"}

	st, err := New(stageConfig(false), []interfaces.Task{spy}, testEnv(repo))
	require.NoError(t, err)

	cancel()
	_, err = st.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, spy.calls)
}

func TestStageAssetIDOverride(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, ctx, "ingest", "load", "reviews", reviews())
	cfg := stageConfig(false)
	cfg.Destination = DatasetRef{AssetID: "custom-output"}
	cfg.Description = "cleaned reviews"

	st, err := New(cfg, []interfaces.Task{&spyTask{name: "spy"}}, testEnv(repo))
	require.NoError(t, err)

	ds, err := st.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "custom-output", ds.ID)

	stored, err := repo.Get(ctx, "custom-output")
	require.NoError(t, err)
	assert.Equal(t, "cleaned reviews", stored.Description)
}

func TestStageRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, ctx, "ingest", "load", "reviews", reviews())
	pm, err := metrics.NewPipelineMetrics(nil, quietLogger())
	require.NoError(t, err)
	env := testEnv(repo)
	env.Metrics = pm

	st, err := New(stageConfig(false), []interfaces.Task{&spyTask{name: "spy"}}, env)
	require.NoError(t, err)
	_, err = st.Run(ctx)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(pm.Registry(), "reviewqa_stage_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewRequiresRepository(t *testing.T) {
	_, err := New(stageConfig(false), nil, Env{Logger: quietLogger()})
	require.Error(t, err)
}
