package ingest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// SampleConfig configures ingest.sample.
type SampleConfig struct {
	Name     string  `yaml:"name"`
	Fraction float64 `yaml:"frac"`
	Seed     *int64  `yaml:"random_state"`
}

// Sample keeps a random fraction of rows.
type Sample struct {
	base
	config SampleConfig
}

// NewSample validates cfg
func NewSample(cfg SampleConfig, logger *logrus.Logger) (*Sample, error) {
	if err := validateFraction("frac", cfg.Fraction); err != nil {
		return nil, err
	}
	return &Sample{base: newBase(cfg.Name, "sample", logger), config: cfg}, nil
}

// Run samples the frame. A fixed seed gives a reproducible sample.
func (s *Sample) Run(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	start := time.Now()
	out := data.Take(sampleIndices(data.NumRows(), s.config.Fraction, newRand(s.config.Seed)))
	s.done(data.NumRows(), out.NumRows(), start)
	return out, nil
}

// FilterDateConfig configures ingest.filter_date.
type FilterDateConfig struct {
	Name     string  `yaml:"name"`
	Column   string  `yaml:"column"`
	Year     int     `yaml:"date"`
	Fraction float64 `yaml:"frac"`
	Seed     *int64  `yaml:"random_state"`
}

// FilterDate keeps rows dated after January 1st of a year, then samples them.
type FilterDate struct {
	base
	config FilterDateConfig
	after  time.Time
}

// NewFilterDate validates cfg
func NewFilterDate(cfg FilterDateConfig, logger *logrus.Logger) (*FilterDate, error) {
	if cfg.Column == "" {
		cfg.Column = defaultDateColumn
	}
	if cfg.Year <= 0 {
		return nil, errors.MissingKey("date")
	}
	if cfg.Fraction == 0 {
		cfg.Fraction = 1
	}
	if err := validateFraction("frac", cfg.Fraction); err != nil {
		return nil, err
	}
	return &FilterDate{
		base:   newBase(cfg.Name, "filter_date", logger),
		config: cfg,
		after:  time.Date(cfg.Year, time.January, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

// Run filters and samples.
func (f *FilterDate) Run(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	start := time.Now()
	if err := f.requireColumn(data, f.config.Column); err != nil {
		return nil, err
	}
	dates, err := data.Times(f.config.Column)
	if err != nil {
		return nil, err
	}

	keep := make([]bool, len(dates))
	for i, d := range dates {
		keep[i] = d.After(f.after)
	}
	filtered, err := data.Filter(keep)
	if err != nil {
		return nil, err
	}

	out := filtered.Take(sampleIndices(filtered.NumRows(), f.config.Fraction, newRand(f.config.Seed)))
	f.done(data.NumRows(), out.NumRows(), start)
	return out, nil
}
