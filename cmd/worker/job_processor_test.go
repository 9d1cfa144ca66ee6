package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/app"
	"github.com/inferloop/reviewqa/internal/stage"
	"github.com/inferloop/reviewqa/pkg/models"
	"github.com/inferloop/reviewqa/tests/helpers"
)

const nightly = `
name: nightly
stages:
  - id: quality
    phase: dq
    source:
      asset_id: dataset-raw-landing-reviews
    destination:
      name: reviews
    tasks:
      - type: anomaly
        dimension: text
        column: content
        mode: repair
        repair_strategy: short_review
`

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupApp(t *testing.T) (*helpers.TestEnvironment, *app.App) {
	t.Helper()
	env := helpers.NewTestEnvironment(t)
	a := env.NewApp(env.WriteConfig(""))
	env.SeedReviews(a.Repository, helpers.ReviewFrame("great app love it", "bad", "works fine for me"))
	return env, a
}

type failingLoader struct{}

func (failingLoader) LoadPipeline(string, bool) (*stage.Pipeline, error) {
	return nil, errors.New("no such pipeline")
}

func TestProcessJobRunsPipeline(t *testing.T) {
	env, a := setupApp(t)
	processor := NewJobProcessor(a, 1, quietLogger())

	job := &Job{ID: "job-1", Schedule: "nightly", Pipeline: env.WriteFile("nightly.yaml", nightly)}
	records, err := processor.ProcessJob(context.Background(), job, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StageComplete, records[0].Status)
	assert.Equal(t, int64(1), processor.CompletedJobs())
	assert.Equal(t, int64(0), processor.FailedJobs())
	assert.Equal(t, int32(0), processor.ActiveJobs())

	out, err := a.Repository.Get(context.Background(), "dataset-dq-quality-reviews")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Frame.NumRows())

	records, err = processor.ProcessJob(context.Background(), job, 0)
	require.NoError(t, err)
	assert.Equal(t, models.StageSkipped, records[0].Status)
}

func TestProcessJobCountsFailures(t *testing.T) {
	processor := NewJobProcessor(failingLoader{}, 1, quietLogger())
	_, err := processor.ProcessJob(context.Background(), &Job{ID: "job-2", Schedule: "broken"}, 0)
	require.Error(t, err)
	assert.Equal(t, int64(1), processor.FailedJobs())
	assert.Equal(t, int64(0), processor.CompletedJobs())
}

func TestProcessJobSkipsOverlappingSchedule(t *testing.T) {
	processor := NewJobProcessor(failingLoader{}, 1, quietLogger())
	require.True(t, processor.claim("nightly"))

	records, err := processor.ProcessJob(context.Background(), &Job{ID: "job-3", Schedule: "nightly"}, 0)
	require.NoError(t, err)
	assert.Nil(t, records)
	assert.Equal(t, int64(0), processor.FailedJobs())

	processor.release("nightly")
	_, err = processor.ProcessJob(context.Background(), &Job{ID: "job-4", Schedule: "nightly"}, 0)
	require.Error(t, err)
}

func TestSchedulerValidatesSchedules(t *testing.T) {
	tests := []struct {
		name      string
		schedules []app.Schedule
	}{
		{"invalid cron", []app.Schedule{{Name: "bad", Cron: "every day", Pipeline: "p.yaml"}}},
		{"missing name", []app.Schedule{{Cron: "@daily", Pipeline: "p.yaml"}}},
		{"missing pipeline", []app.Schedule{{Name: "nightly", Cron: "@daily"}}},
		{"duplicate", []app.Schedule{
			{Name: "nightly", Cron: "@daily", Pipeline: "p.yaml"},
			{Name: "nightly", Cron: "@hourly", Pipeline: "q.yaml"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScheduler(tt.schedules, 1, quietLogger())
			assert.Error(t, err)
		})
	}
}

func TestSchedulerQueuesJobs(t *testing.T) {
	sch := app.Schedule{Name: "nightly", Cron: "0 2 * * *", Pipeline: "nightly.yaml", Force: true}
	scheduler, err := NewScheduler([]app.Schedule{sch}, 1, quietLogger())
	require.NoError(t, err)

	assert.False(t, scheduler.Enqueue(sch), "not started")

	scheduler.Start(context.Background())
	next, ok := scheduler.Next("nightly")
	require.True(t, ok)
	assert.Equal(t, 2, next.Hour())

	assert.True(t, scheduler.Enqueue(sch))
	assert.False(t, scheduler.Enqueue(sch), "queue full")

	job := <-scheduler.GetJobQueue()
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "nightly.yaml", job.Pipeline)
	assert.True(t, job.Force)

	scheduler.Stop()
	_, open := <-scheduler.GetJobQueue()
	assert.False(t, open)
}

func TestProcessorDrainsQueue(t *testing.T) {
	processor := NewJobProcessor(failingLoader{}, 2, quietLogger())
	queue := make(chan *Job, 3)
	for i, name := range []string{"a", "b", "c"} {
		queue <- &Job{ID: string(rune('1' + i)), Schedule: name}
	}
	close(queue)

	done := make(chan struct{})
	go func() {
		processor.Start(context.Background(), queue)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop after queue closed")
	}
	assert.Equal(t, int64(3), processor.FailedJobs())
}

func TestScheduledJobRunsThroughProcessor(t *testing.T) {
	helpers.SkipIfShort(t)
	env, a := setupApp(t)
	ctx, cancel := helpers.GetTestContext(10 * time.Second)
	defer cancel()

	sch := app.Schedule{Name: "nightly", Cron: "@daily", Pipeline: env.WriteFile("nightly.yaml", nightly)}
	scheduler, err := NewScheduler([]app.Schedule{sch}, 2, quietLogger())
	require.NoError(t, err)
	scheduler.Start(ctx)

	processor := NewJobProcessor(a, 1, quietLogger())
	done := make(chan struct{})
	go func() {
		processor.Start(ctx, scheduler.GetJobQueue())
		close(done)
	}()

	require.True(t, scheduler.Enqueue(sch))
	helpers.AssertEventuallyTrue(t, func() bool {
		return processor.CompletedJobs() == 1
	}, 5*time.Second, 10*time.Millisecond, "scheduled job never completed")

	scheduler.Stop()
	<-done
	assert.Equal(t, int64(0), processor.FailedJobs())

	source, err := a.Repository.Get(ctx, helpers.RawReviewsAsset)
	require.NoError(t, err)
	out, err := a.Repository.Get(ctx, "dataset-dq-quality-reviews")
	require.NoError(t, err)
	helpers.AssertRowsRemoved(t, source.Frame, out.Frame, 1)
}
