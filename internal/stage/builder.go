package stage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/anomaly"
	"github.com/inferloop/reviewqa/internal/enrich"
	"github.com/inferloop/reviewqa/internal/ingest"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// TypeAnomaly is the task type of anomaly detection and repair steps.
const TypeAnomaly = "anomaly"

// BuildFunc constructs a task from its pipeline entry.
type BuildFunc func(spec TaskSpec) (interfaces.Task, error)

// TaskBuilder maps task types in pipeline files to constructors.
type TaskBuilder struct {
	builders map[string]BuildFunc
	registry *anomaly.Registry
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewTaskBuilder registers the anomaly, ingest and enrich task types. A nil
// registry leaves anomaly tasks unavailable.
func NewTaskBuilder(registry *anomaly.Registry, logger *logrus.Logger) *TaskBuilder {
	if logger == nil {
		logger = logrus.New()
	}
	b := &TaskBuilder{
		builders: make(map[string]BuildFunc),
		registry: registry,
		logger:   logger,
	}
	b.registerDefaults()
	return b
}

func (b *TaskBuilder) registerDefaults() {
	if b.registry != nil {
		b.builders[TypeAnomaly] = func(spec TaskSpec) (interfaces.Task, error) {
			var cfg anomaly.TaskConfig
			if err := spec.decode(&cfg); err != nil {
				return nil, err
			}
			return anomaly.NewTask(cfg, b.registry)
		}
	}

	b.builders[ingest.TypeSample] = typed(b, ingest.NewSample)
	b.builders[ingest.TypeFilterDate] = typed(b, ingest.NewFilterDate)
	b.builders[ingest.TypeReviewLength] = typed(b, ingest.NewReviewLength)
	b.builders[ingest.TypeRemoveNewlines] = typed(b, ingest.NewRemoveNewlines)
	b.builders[ingest.TypeVerifyEncoding] = typed(b, ingest.NewVerifyEncoding)
	b.builders[ingest.TypeCastTypes] = typed(b, ingest.NewCastTypes)

	b.builders[enrich.TypeReviewAge] = typed(b, enrich.NewReviewAge)
	b.builders[enrich.TypeReviewMonth] = typed(b, enrich.NewReviewMonth)
	b.builders[enrich.TypeReviewDayOfWeek] = typed(b, enrich.NewReviewDayOfWeek)
	b.builders[enrich.TypeReviewHour] = typed(b, enrich.NewReviewHour)
	b.builders[enrich.TypePercentDeviation] = typed(b, enrich.NewPercentDeviation)
}

// typed adapts a constructor taking a decoded config struct.
func typed[C any, T interfaces.Task](b *TaskBuilder, newTask func(C, *logrus.Logger) (T, error)) BuildFunc {
	return func(spec TaskSpec) (interfaces.Task, error) {
		var cfg C
		if err := spec.decode(&cfg); err != nil {
			return nil, err
		}
		task, err := newTask(cfg, b.logger)
		if err != nil {
			return nil, err
		}
		return task, nil
	}
}

// Register adds or replaces a task type.
func (b *TaskBuilder) Register(taskType string, build BuildFunc) error {
	if taskType == "" {
		return errors.NewValidationError(errors.CodeInvalidType, "task type cannot be empty")
	}
	if build == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "build function cannot be nil")
	}
	b.mu.Lock()
	b.builders[taskType] = build
	b.mu.Unlock()
	return nil
}

// Build constructs the task for spec. Unknown types and invalid options are
// stage configuration errors.
func (b *TaskBuilder) Build(stageID string, spec TaskSpec) (interfaces.Task, error) {
	b.mu.RLock()
	build, ok := b.builders[spec.Type]
	b.mu.RUnlock()
	if !ok {
		return nil, errors.NewStageConfigurationError(stageID,
			errors.InvalidValue("type", spec.Type, fmt.Sprintf("unknown task type, expected one of %v", b.Types())))
	}

	task, err := build(spec)
	if err != nil {
		return nil, errors.NewStageConfigurationError(stageID, err)
	}
	return task, nil
}

// BuildAll constructs every task of a stage in order.
func (b *TaskBuilder) BuildAll(cfg *Config) ([]interfaces.Task, error) {
	tasks := make([]interfaces.Task, 0, len(cfg.Tasks))
	for _, spec := range cfg.Tasks {
		task, err := b.Build(cfg.ID, spec)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Types lists the registered task types.
func (b *TaskBuilder) Types() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	types := make([]string, 0, len(b.builders))
	for t := range b.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
