package enrich

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/errors"
)

const groupMeanColumn = "__group_mean"

// PercentDeviationConfig configures enrich.percent_deviation.
type PercentDeviationConfig struct {
	Name      string   `yaml:"name"`
	Column    string   `yaml:"column"`
	NewColumn string   `yaml:"new_column"`
	By        []string `yaml:"by"`
}

// PercentDeviation expresses each value as its percent deviation from the
// mean of its group: (x - mean) / mean * 100.
type PercentDeviation struct {
	config PercentDeviationConfig
	logger *logrus.Logger
}

// NewPercentDeviation validates cfg; by defaults to category.
func NewPercentDeviation(cfg PercentDeviationConfig, logger *logrus.Logger) (*PercentDeviation, error) {
	if cfg.Column == "" {
		return nil, errors.MissingKey("column")
	}
	if len(cfg.By) == 0 {
		cfg.By = []string{"category"}
	}
	if cfg.NewColumn == "" {
		cfg.NewColumn = columnPrefix + cfg.Column + "_pct_dev"
	}
	if cfg.Name == "" {
		cfg.Name = "percent_deviation"
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PercentDeviation{config: cfg, logger: logger}, nil
}

// Name returns the task name.
func (t *PercentDeviation) Name() string {
	return t.config.Name
}

// Run adds the deviation column. Invalid values get nil; a zero group mean
// yields 0.
func (t *PercentDeviation) Run(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	start := time.Now()
	for _, column := range append([]string{t.config.Column}, t.config.By...) {
		if !data.Has(column) {
			return nil, errors.NewMissingColumnError(column, t.config.Name)
		}
	}

	means, err := data.GroupMean(t.config.By, t.config.Column)
	if err != nil {
		return nil, err
	}
	joined, err := data.LeftJoinColumn(t.config.By, means, groupMeanColumn)
	if err != nil {
		return nil, err
	}
	values, valid, err := joined.Floats(t.config.Column)
	if err != nil {
		return nil, err
	}
	groupMeans, hasMean, err := joined.Floats(groupMeanColumn)
	if err != nil {
		return nil, err
	}

	deviation := make([]float64, len(values))
	copy(deviation, values)
	floats.Sub(deviation, groupMeans)

	out := make([]interface{}, len(values))
	for i := range values {
		switch {
		case !valid[i] || !hasMean[i]:
		case groupMeans[i] == 0:
			out[i] = 0.0
		default:
			out[i] = deviation[i] / groupMeans[i] * 100
		}
	}

	result, err := joined.Drop(groupMeanColumn).WithColumn(t.config.NewColumn, out)
	if err != nil {
		return nil, err
	}
	t.logger.WithFields(logrus.Fields{
		"task":     t.config.Name,
		"column":   t.config.NewColumn,
		"groups":   len(means),
		"duration": time.Since(start),
	}).Debug("Task completed")
	return result, nil
}
