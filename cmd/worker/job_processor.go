package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/stage"
	"github.com/inferloop/reviewqa/pkg/models"
)

// PipelineLoader builds a runnable pipeline from a definition file.
type PipelineLoader interface {
	LoadPipeline(path string, force bool) (*stage.Pipeline, error)
}

type JobProcessor struct {
	loader        PipelineLoader
	concurrency   int
	logger        *logrus.Logger
	activeJobs    int32
	completedJobs int64
	failedJobs    int64
	wg            sync.WaitGroup

	// inFlight holds the schedules with a running job; a schedule never
	// overlaps with itself.
	mu       sync.Mutex
	inFlight map[string]bool
}

func NewJobProcessor(loader PipelineLoader, concurrency int, logger *logrus.Logger) *JobProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &JobProcessor{
		loader:      loader,
		concurrency: concurrency,
		logger:      logger,
		inFlight:    make(map[string]bool),
	}
}

// Start runs the worker pool until queue is closed or ctx is done.
func (jp *JobProcessor) Start(ctx context.Context, queue <-chan *Job) {
	jp.logger.WithField("concurrency", jp.concurrency).Info("Job processor started")

	for i := 0; i < jp.concurrency; i++ {
		jp.wg.Add(1)
		go jp.worker(ctx, i, queue)
	}
	jp.wg.Wait()
	jp.logger.Info("All workers stopped")
}

func (jp *JobProcessor) worker(ctx context.Context, workerID int, queue <-chan *Job) {
	defer jp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-queue:
			if !ok {
				return
			}
			jp.ProcessJob(ctx, job, workerID)
		}
	}
}

// ProcessJob loads and runs the job's pipeline.
func (jp *JobProcessor) ProcessJob(ctx context.Context, job *Job, workerID int) ([]*models.RunRecord, error) {
	logger := jp.logger.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"schedule":  job.Schedule,
		"pipeline":  job.Pipeline,
		"worker_id": workerID,
	})

	if !jp.claim(job.Schedule) {
		logger.Warn("Previous run of schedule still active, job skipped")
		return nil, nil
	}
	defer jp.release(job.Schedule)

	atomic.AddInt32(&jp.activeJobs, 1)
	defer atomic.AddInt32(&jp.activeJobs, -1)

	start := time.Now()
	logger.Info("Processing job")

	records, err := jp.run(ctx, job)
	duration := time.Since(start)
	if err != nil {
		atomic.AddInt64(&jp.failedJobs, 1)
		logger.WithError(err).WithField("duration", duration).Error("Job failed")
		return records, err
	}

	atomic.AddInt64(&jp.completedJobs, 1)
	logger.WithFields(logrus.Fields{
		"duration": duration,
		"stages":   len(records),
	}).Info("Job completed successfully")
	return records, nil
}

func (jp *JobProcessor) run(ctx context.Context, job *Job) ([]*models.RunRecord, error) {
	pipeline, err := jp.loader.LoadPipeline(job.Pipeline, job.Force)
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx)
}

func (jp *JobProcessor) claim(schedule string) bool {
	jp.mu.Lock()
	defer jp.mu.Unlock()
	if jp.inFlight[schedule] {
		return false
	}
	jp.inFlight[schedule] = true
	return true
}

func (jp *JobProcessor) release(schedule string) {
	jp.mu.Lock()
	delete(jp.inFlight, schedule)
	jp.mu.Unlock()
}

func (jp *JobProcessor) ActiveJobs() int32 {
	return atomic.LoadInt32(&jp.activeJobs)
}

func (jp *JobProcessor) CompletedJobs() int64 {
	return atomic.LoadInt64(&jp.completedJobs)
}

func (jp *JobProcessor) FailedJobs() int64 {
	return atomic.LoadInt64(&jp.failedJobs)
}
