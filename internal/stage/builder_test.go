package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/anomaly"
	"github.com/inferloop/reviewqa/internal/ingest"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

func testRegistry(t *testing.T) *anomaly.Registry {
	t.Helper()
	registry, err := anomaly.NewRegistry(anomaly.Deps{Logger: quietLogger()})
	require.NoError(t, err)
	return registry
}

func TestTaskBuilderTypes(t *testing.T) {
	withAnomaly := NewTaskBuilder(testRegistry(t), quietLogger()).Types()
	assert.Contains(t, withAnomaly, TypeAnomaly)
	assert.Contains(t, withAnomaly, ingest.TypeSample)
	assert.Contains(t, withAnomaly, "enrich.percent_deviation")
	assert.IsIncreasing(t, withAnomaly)

	withoutAnomaly := NewTaskBuilder(nil, quietLogger()).Types()
	assert.NotContains(t, withoutAnomaly, TypeAnomaly)
}

func TestTaskBuilderBuildsAnomalyTask(t *testing.T) {
	b := NewTaskBuilder(testRegistry(t), quietLogger())
	task, err := b.Build("quality", TaskSpec{Type: TypeAnomaly, Options: map[string]interface{}{
		"dimension":       "text",
		"column":          "content",
		"mode":            "detect",
		"detect_strategy": "short_review",
		"params":          map[string]interface{}{"threshold": 2},
	}})
	require.NoError(t, err)

	at, ok := task.(*anomaly.Task)
	require.True(t, ok)
	assert.Equal(t, "short_review", at.Config().DetectStrategy)
	assert.Equal(t, 2, at.Config().Params["threshold"])
}

func TestTaskBuilderBuildsIngestTask(t *testing.T) {
	b := NewTaskBuilder(nil, quietLogger())
	task, err := b.Build("ingest", TaskSpec{Type: ingest.TypeSample, Options: map[string]interface{}{
		"name":         "half",
		"frac":         0.5,
		"random_state": 3,
	}})
	require.NoError(t, err)
	assert.Equal(t, "half", task.Name())

	out, err := task.Run(context.Background(), reviews())
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())
}

func TestTaskBuilderErrors(t *testing.T) {
	b := NewTaskBuilder(testRegistry(t), quietLogger())

	_, err := b.Build("s", TaskSpec{Type: "nope"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidValue)
	assert.True(t, errors.HasCode(err, errors.CodeStageConfiguration))

	_, err = b.Build("s", TaskSpec{Type: ingest.TypeSample, Options: map[string]interface{}{"fraction": 0.5}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidValue)

	_, err = b.Build("s", TaskSpec{Type: TypeAnomaly, Options: map[string]interface{}{
		"dimension": "text",
		"column":    "content",
		"mode":      "detect",
	}})
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestTaskBuilderRegister(t *testing.T) {
	b := NewTaskBuilder(nil, quietLogger())
	require.Error(t, b.Register("", func(TaskSpec) (interfaces.Task, error) { return nil, nil }))
	require.Error(t, b.Register("x", nil))

	spy := &spyTask{name: "spy"}
	require.NoError(t, b.Register("spy", func(TaskSpec) (interfaces.Task, error) { return spy, nil }))

	tasks, err := b.BuildAll(&Config{ID: "s", Tasks: []TaskSpec{{Type: "spy"}, {Type: "spy"}}})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestBuildRejectsStrategyParamsBeforeRunning(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t, ctx, "ingest", "load", "reviews", reviews())
	b := NewTaskBuilder(testRegistry(t), quietLogger())
	spy := &spyTask{name: "spy"}
	require.NoError(t, b.Register("spy", func(TaskSpec) (interfaces.Task, error) { return spy, nil }))

	cfg := stageConfig(false)
	cfg.Tasks = []TaskSpec{
		{Type: "spy"},
		{Type: TypeAnomaly, Options: map[string]interface{}{
			"dimension":       "text",
			"column":          "content",
			"mode":            "repair",
			"repair_strategy": "whitespace",
		}},
		{Type: TypeAnomaly, Options: map[string]interface{}{
			"dimension":       "text",
			"column":          "content",
			"mode":            "detect",
			"detect_strategy": "regex_threshold",
			"params": map[string]interface{}{
				"pattern":        "email",
				"threshold":      0.5,
				"threshold_type": "proportion",
			},
		}},
	}
	env := testEnv(repo)
	env.Builder = b

	st, err := Build(cfg, env)
	require.Error(t, err)
	assert.Nil(t, st)
	assert.True(t, errors.HasCode(err, errors.CodeStageConfiguration))
	assert.True(t, errors.HasCode(err, errors.CodeInvalidThresholdSpec))
	assert.ErrorIs(t, err, errors.ErrInvalidThreshold)
	assert.Equal(t, 0, spy.calls)

	exists, err := repo.Exists(ctx, "dataset-dq-clean-reviews")
	require.NoError(t, err)
	assert.False(t, exists)
}
