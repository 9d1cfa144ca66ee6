package stage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/models"
)

// Pipeline runs stages in order.
type Pipeline struct {
	name   string
	stages []*Stage
	logger *logrus.Logger
}

// NewPipeline builds every stage of cfg. Configuration errors surface here,
// before any stage runs.
func NewPipeline(cfg *PipelineConfig, env Env) (*Pipeline, error) {
	if cfg == nil || len(cfg.Stages) == 0 {
		return nil, errors.NewStageConfigurationError("", errors.MissingKey("stages"))
	}
	env, err := env.withDefaults()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{name: cfg.Name, logger: env.Logger}
	for _, sc := range cfg.Stages {
		st, err := Build(sc, env)
		if err != nil {
			return nil, err
		}
		p.stages = append(p.stages, st)
	}
	return p, nil
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// Stages returns the stages in run order.
func (p *Pipeline) Stages() []*Stage {
	return p.stages
}

// Run executes the stages in order and stops at the first failure. The run
// records of every attempted stage are returned, the failed one included.
func (p *Pipeline) Run(ctx context.Context) ([]*models.RunRecord, error) {
	start := time.Now()
	records := make([]*models.RunRecord, 0, len(p.stages))
	for _, st := range p.stages {
		_, err := st.Run(ctx)
		if rec := st.LastRun(); rec != nil {
			records = append(records, rec)
		}
		if err != nil {
			return records, err
		}
	}
	p.logger.WithFields(logrus.Fields{
		"pipeline": p.name,
		"stages":   len(p.stages),
		"duration": time.Since(start),
	}).Info("Pipeline complete")
	return records, nil
}
