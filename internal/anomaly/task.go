package anomaly

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// TaskConfig describes one anomaly detection or repair step.
type TaskConfig struct {
	Name           string                 `json:"name" yaml:"name"`
	Dimension      string                 `json:"dimension" yaml:"dimension"`
	Column         string                 `json:"column" yaml:"column"`
	Columns        []string               `json:"columns,omitempty" yaml:"columns,omitempty"`
	NewColumn      string                 `json:"new_column" yaml:"new_column"`
	Mode           string                 `json:"mode" yaml:"mode"`
	DetectStrategy string                 `json:"detect_strategy" yaml:"detect_strategy"`
	RepairStrategy string                 `json:"repair_strategy,omitempty" yaml:"repair_strategy,omitempty"`
	Distributed    bool                   `json:"distributed" yaml:"distributed"`
	Params         map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// FlagColumn namespaces a flag column under its stage.
func FlagColumn(stageID, newColumn string) string {
	if stageID == "" {
		return newColumn
	}
	return stageID + "_" + newColumn
}

// strategyFunc is a constructed detect or repair strategy.
type strategyFunc func(ctx context.Context, data *frame.Frame) (*frame.Frame, error)

// Task runs one detect or repair strategy. The strategy is constructed with
// the task so that parameter errors surface before any data is processed; it
// is rebuilt only when the stage id changes its flag column.
type Task struct {
	config  TaskConfig
	factory *Factory
	stageID string
	logger  *logrus.Logger

	mu       sync.Mutex
	strategy strategyFunc
	builtFor string
}

// NewTask validates cfg and resolves its factory and strategy key.
func NewTask(cfg TaskConfig, registry *Registry) (*Task, error) {
	if registry == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "strategy registry is required")
	}
	switch cfg.Mode {
	case constants.TaskModeDetect:
		if cfg.DetectStrategy == "" {
			return nil, missingParam("detect_strategy", cfg.Name)
		}
	case constants.TaskModeRepair:
		if cfg.RepairStrategy == "" {
			return nil, missingParam("repair_strategy", cfg.Name)
		}
	default:
		return nil, invalidParam("mode", cfg.Mode, "expected detect or repair")
	}
	if err := ValidateDimension(cfg); err != nil {
		return nil, err
	}

	factory, err := registry.Factory(cfg.Dimension, cfg.Distributed)
	if err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("%s_%s_%s", cfg.Dimension, cfg.Mode, cfg.strategyKey())
	}
	t := &Task{config: cfg, factory: factory, logger: registry.Logger()}
	if _, err := t.resolve(); err != nil {
		return nil, err
	}
	return t, nil
}

func (c TaskConfig) strategyKey() string {
	if c.Mode == constants.TaskModeRepair {
		return c.RepairStrategy
	}
	return c.DetectStrategy
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.config.Name
}

// Config returns the task configuration.
func (t *Task) Config() TaskConfig {
	return t.config
}

// SetStageID namespaces the flag column under the owning stage.
func (t *Task) SetStageID(stageID string) {
	t.stageID = stageID
}

// FlagColumn returns the namespaced flag column this task writes.
func (t *Task) FlagColumn() string {
	newColumn := t.config.NewColumn
	if newColumn == "" {
		column := t.config.Column
		if column == "" && len(t.config.Columns) > 0 {
			column = t.config.Columns[0]
		}
		newColumn = DefaultFlagColumn(column, t.config.DetectStrategy)
		if t.config.DetectStrategy == "" {
			newColumn = DefaultFlagColumn(column, t.config.RepairStrategy)
		}
	}
	return FlagColumn(t.stageID, newColumn)
}

// Run applies the task's strategy to data.
func (t *Task) Run(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	start := time.Now()
	strategy, err := t.resolve()
	if err != nil {
		return nil, err
	}
	out, err := strategy(ctx, data)
	if err != nil {
		return nil, err
	}

	t.factory.env.metrics.RecordTask(t.config.Name, t.config.Mode, time.Since(start))
	t.logger.WithFields(logrus.Fields{
		"task":     t.config.Name,
		"strategy": t.config.strategyKey(),
		"column":   t.config.Column,
		"rows_in":  data.NumRows(),
		"rows_out": out.NumRows(),
		"duration": time.Since(start),
	}).Debug("Anomaly task complete")
	return out, nil
}

// resolve returns the strategy built for the current flag column.
func (t *Task) resolve() (strategyFunc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	flagColumn := t.FlagColumn()
	if t.strategy != nil && t.builtFor == flagColumn {
		return t.strategy, nil
	}
	spec := interfaces.StrategySpec{
		Column:    t.config.Column,
		Columns:   t.config.Columns,
		NewColumn: flagColumn,
		Params:    t.strategyParams(),
	}
	var strategy strategyFunc
	if t.config.Mode == constants.TaskModeDetect {
		detect, err := t.factory.NewDetect(t.config.DetectStrategy, spec)
		if err != nil {
			return nil, err
		}
		strategy = detect.Detect
	} else {
		repair, err := t.factory.NewRepair(t.config.RepairStrategy, spec)
		if err != nil {
			return nil, err
		}
		strategy = repair.Repair
	}
	t.strategy, t.builtFor = strategy, flagColumn
	return strategy, nil
}

// strategyParams forwards the task's detect strategy to repairs that pair
// with one.
func (t *Task) strategyParams() map[string]interface{} {
	p := params(t.config.Params).without()
	if t.config.Mode == constants.TaskModeRepair && t.config.DetectStrategy != "" && !p.has("detect_strategy") {
		p["detect_strategy"] = t.config.DetectStrategy
	}
	return p
}
