// Package enrich derives review metadata columns: age, calendar parts and
// deviation from a group mean.
package enrich

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// Task types as written in pipeline files.
const (
	TypeReviewAge        = "enrich.review_age"
	TypeReviewMonth      = "enrich.review_month"
	TypeReviewDayOfWeek  = "enrich.review_day_of_week"
	TypeReviewHour       = "enrich.review_hour"
	TypePercentDeviation = "enrich.percent_deviation"
)

const (
	defaultDateColumn = "date"
	columnPrefix      = "enrichment_"
)

// DateConfig configures the date-derived enrichments.
type DateConfig struct {
	Name      string `yaml:"name"`
	Column    string `yaml:"column"`
	NewColumn string `yaml:"new_column"`
}

// DateTask derives one integer column from a date column. Rows with no date
// get nil.
type DateTask struct {
	name      string
	column    string
	newColumn string
	logger    *logrus.Logger
	derive    func(dates []time.Time, present []bool) []interface{}
}

func newDateTask(cfg DateConfig, kind string, logger *logrus.Logger, derive func([]time.Time, []bool) []interface{}) *DateTask {
	if cfg.Column == "" {
		cfg.Column = defaultDateColumn
	}
	if cfg.NewColumn == "" {
		cfg.NewColumn = columnPrefix + kind
	}
	if cfg.Name == "" {
		cfg.Name = kind
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &DateTask{name: cfg.Name, column: cfg.Column, newColumn: cfg.NewColumn, logger: logger, derive: derive}
}

// Name returns the task name.
func (t *DateTask) Name() string {
	return t.name
}

// Run adds the derived column.
func (t *DateTask) Run(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	start := time.Now()
	if !data.Has(t.column) {
		return nil, errors.NewMissingColumnError(t.column, t.name)
	}
	raw, err := data.Column(t.column)
	if err != nil {
		return nil, err
	}
	dates, err := data.Times(t.column)
	if err != nil {
		return nil, err
	}
	present := make([]bool, len(raw))
	for i, v := range raw {
		present[i] = v != nil && !dates[i].IsZero()
	}

	out, err := data.WithColumn(t.newColumn, t.derive(dates, present))
	if err != nil {
		return nil, err
	}
	t.logger.WithFields(logrus.Fields{
		"task":     t.name,
		"column":   t.newColumn,
		"rows_in":  data.NumRows(),
		"duration": time.Since(start),
	}).Debug("Task completed")
	return out, nil
}

// NewReviewAge counts the days between each review and the latest review.
func NewReviewAge(cfg DateConfig, logger *logrus.Logger) (*DateTask, error) {
	return newDateTask(cfg, "review_age", logger, func(dates []time.Time, present []bool) []interface{} {
		var latest int64
		found := false
		for i, d := range dates {
			if present[i] && (!found || dayNumber(d) > latest) {
				latest, found = dayNumber(d), true
			}
		}
		return mapDates(dates, present, func(d time.Time) interface{} {
			return latest - dayNumber(d)
		})
	}), nil
}

// NewReviewMonth extracts the month, 1 through 12.
func NewReviewMonth(cfg DateConfig, logger *logrus.Logger) (*DateTask, error) {
	return newDateTask(cfg, "review_month", logger, func(dates []time.Time, present []bool) []interface{} {
		return mapDates(dates, present, func(d time.Time) interface{} { return int64(d.Month()) })
	}), nil
}

// NewReviewDayOfWeek extracts the weekday, 1 for Sunday through 7 for Saturday.
func NewReviewDayOfWeek(cfg DateConfig, logger *logrus.Logger) (*DateTask, error) {
	return newDateTask(cfg, "review_day_of_week", logger, func(dates []time.Time, present []bool) []interface{} {
		return mapDates(dates, present, func(d time.Time) interface{} { return int64(d.Weekday()) + 1 })
	}), nil
}

// NewReviewHour extracts the hour of day, 0 through 23.
func NewReviewHour(cfg DateConfig, logger *logrus.Logger) (*DateTask, error) {
	return newDateTask(cfg, "review_hour", logger, func(dates []time.Time, present []bool) []interface{} {
		return mapDates(dates, present, func(d time.Time) interface{} { return int64(d.Hour()) })
	}), nil
}

func mapDates(dates []time.Time, present []bool, fn func(time.Time) interface{}) []interface{} {
	out := make([]interface{}, len(dates))
	for i, d := range dates {
		if present[i] {
			out[i] = fn(d)
		}
	}
	return out
}

// dayNumber is the civil day index of t, ignoring the time of day.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
