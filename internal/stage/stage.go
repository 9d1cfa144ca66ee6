// Package stage runs ordered task lists over dataset assets. A stage reads
// its source asset, folds its tasks over the data and persists the result as
// its destination asset; a destination that already exists short-circuits the
// run unless forced.
package stage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/dataset"
	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/internal/observability/metrics"
	"github.com/inferloop/reviewqa/internal/profile"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
	"github.com/inferloop/reviewqa/pkg/models"
)

// Env carries the collaborators shared by stages.
type Env struct {
	Repository interfaces.DatasetRepository
	Builder    *TaskBuilder
	Factory    *dataset.Factory
	Recorder   *profile.Recorder
	Metrics    *metrics.PipelineMetrics
	Logger     *logrus.Logger
}

func (e Env) withDefaults() (Env, error) {
	if e.Repository == nil {
		return e, errors.NewValidationError(errors.CodeInvalidConfig, "dataset repository is required")
	}
	if e.Logger == nil {
		e.Logger = logrus.New()
	}
	if e.Factory == nil {
		e.Factory = dataset.NewFactory(e.Logger)
	}
	if e.Builder == nil {
		e.Builder = NewTaskBuilder(nil, e.Logger)
	}
	return e, nil
}

// Stage is one configured step of a pipeline.
type Stage struct {
	config Config
	tasks  []interfaces.Task
	env    Env

	mu      sync.Mutex
	running bool
	status  models.StageStatus
	last    *models.RunRecord
}

// New creates a stage around already built tasks. Stage-aware tasks learn the
// stage id here.
func New(cfg Config, tasks []interfaces.Task, env Env) (*Stage, error) {
	env, err := env.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := cfg.normalize(!cfg.Source.IsZero()); err != nil {
		return nil, err
	}
	for _, task := range tasks {
		if aware, ok := task.(interfaces.StageAware); ok {
			aware.SetStageID(cfg.ID)
		}
	}
	return &Stage{config: cfg, tasks: tasks, env: env, status: models.StageNotStarted}, nil
}

// Build creates a stage, constructing its tasks with env.Builder.
func Build(cfg Config, env Env) (*Stage, error) {
	env, err := env.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := cfg.normalize(!cfg.Source.IsZero()); err != nil {
		return nil, err
	}
	tasks, err := env.Builder.BuildAll(&cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, tasks, env)
}

// ID returns the stage id.
func (s *Stage) ID() string {
	return s.config.ID
}

// Config returns the normalized stage definition.
func (s *Stage) Config() Config {
	return s.config
}

// Status returns the current lifecycle state.
func (s *Stage) Status() models.StageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastRun returns the record of the most recent run, or nil.
func (s *Stage) LastRun() *models.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	out := *s.last
	return &out
}

// Run executes the stage. When the destination exists and the stage is not
// forced, the stored destination is returned without running any task. A
// task error aborts the run before anything is persisted.
func (s *Stage) Run(ctx context.Context) (*dataset.Dataset, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, errors.NewAppError(errors.ErrorTypeJob, errors.CodeStageFailed, "stage '"+s.config.ID+"' is already running")
	}
	s.running = true
	s.mu.Unlock()

	record := &models.RunRecord{
		RunID:         uuid.New().String(),
		Stage:         s.config.ID,
		SourceID:      s.config.Source.ID(),
		DestinationID: s.config.Destination.ID(),
		Tasks:         s.taskNames(),
		Force:         s.config.Force,
		StartedAt:     time.Now().UTC(),
	}
	logger := s.env.Logger.WithFields(logrus.Fields{
		"stage":  s.config.ID,
		"run_id": record.RunID,
	})

	var result *dataset.Dataset
	err := s.env.Recorder.Observe(ctx, profile.Process{
		RunID: record.RunID,
		Type:  models.ProcessTypeStage,
		Name:  s.config.ID,
		Stage: s.config.ID,
	}, 0, func(ctx context.Context) (int, error) {
		var err error
		result, err = s.run(ctx, record, logger)
		return record.RowsOut, err
	})

	record.Duration = time.Since(record.StartedAt)
	if err != nil {
		record.Status = models.StageFailed
		record.Error = err.Error()
		logger.WithError(err).Error("Stage failed")
	}
	s.finish(record)
	return result, err
}

func (s *Stage) run(ctx context.Context, record *models.RunRecord, logger *logrus.Entry) (*dataset.Dataset, error) {
	repo := s.env.Repository
	destID := record.DestinationID

	exists, err := repo.Exists(ctx, destID)
	if err != nil {
		return nil, err
	}
	if exists && !s.config.Force {
		ds, err := repo.Get(ctx, destID)
		if err != nil {
			return nil, err
		}
		record.Status = models.StageSkipped
		record.RowsOut = ds.Frame.NumRows()
		s.setStatus(models.StageSkipped)
		logger.WithField("destination", destID).Warn("Destination exists, stage skipped")
		return ds, nil
	}

	s.setStatus(models.StageRunning)
	logger.WithFields(logrus.Fields{
		"source":      record.SourceID,
		"destination": destID,
		"tasks":       len(s.tasks),
	}).Info("Stage started")

	source, err := repo.Get(ctx, record.SourceID)
	if err != nil {
		return nil, err
	}
	record.RowsIn = source.Frame.NumRows()

	data, err := s.fold(ctx, record, source.Frame)
	if err != nil {
		return nil, err
	}

	if exists {
		if err := repo.Remove(ctx, destID); err != nil {
			return nil, err
		}
	}
	dest := s.config.Destination
	ds, err := s.env.Factory.FromFrame(dest.Phase, dest.Stage, dest.Name, data, dest.Engine, dest.Format)
	if err != nil {
		return nil, err
	}
	if dest.AssetID != "" {
		ds.ID = dest.AssetID
	}
	ds.Description = s.config.Description
	if err := repo.Add(ctx, ds); err != nil {
		return nil, err
	}

	record.Status = models.StageComplete
	record.RowsOut = data.NumRows()
	s.setStatus(models.StageComplete)
	logger.WithFields(logrus.Fields{
		"rows_in":  record.RowsIn,
		"rows_out": record.RowsOut,
		"duration": time.Since(record.StartedAt),
	}).Info("Stage complete")
	return ds, nil
}

// fold runs the tasks left to right, each on the previous task's output.
func (s *Stage) fold(ctx context.Context, record *models.RunRecord, data *frame.Frame) (*frame.Frame, error) {
	for i, task := range s.tasks {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewTaskExecutionError(s.config.ID, i, task.Name(), err)
		}

		in := data
		err := s.env.Recorder.Observe(ctx, profile.Process{
			RunID: record.RunID,
			Type:  models.ProcessTypeTask,
			Name:  task.Name(),
			Stage: s.config.ID,
		}, in.NumRows(), func(ctx context.Context) (int, error) {
			out, err := task.Run(ctx, in)
			if err != nil {
				return 0, err
			}
			data = out
			return out.NumRows(), nil
		})
		if err != nil {
			return nil, errors.NewTaskExecutionError(s.config.ID, i, task.Name(), err)
		}
		record.TasksExecuted++
	}
	return data, nil
}

func (s *Stage) setStatus(status models.StageStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Stage) finish(record *models.RunRecord) {
	s.mu.Lock()
	s.status = record.Status
	s.last = record
	s.running = false
	s.mu.Unlock()
	s.env.Metrics.RecordStageRun(s.config.ID, string(record.Status), record.Duration)
}

func (s *Stage) taskNames() []string {
	names := make([]string, len(s.tasks))
	for i, task := range s.tasks {
		names[i] = task.Name()
	}
	return names
}
