package anomaly

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// madScale converts a median absolute deviation into a standard-normal scale.
const madScale = 0.6745

// numericColumn is a numeric view of a column. A cell is missing when it is
// nil or blank, and invalid when it is present but not a number.
type numericColumn struct {
	values  []float64
	valid   []bool
	missing []bool
}

func (c numericColumn) nonNumeric(i int) bool {
	return !c.valid[i] && !c.missing[i]
}

// sample returns the valid values, skipping rows where exclude is true.
func (c numericColumn) sample(exclude []bool) []float64 {
	out := make([]float64, 0, len(c.values))
	for i, v := range c.values {
		if c.valid[i] && (exclude == nil || !exclude[i]) {
			out = append(out, v)
		}
	}
	return out
}

func (b *base) numbers(data *frame.Frame) (numericColumn, error) {
	if err := b.requireColumns(data, b.column); err != nil {
		return numericColumn{}, err
	}
	raw, err := data.Column(b.column)
	if err != nil {
		return numericColumn{}, err
	}
	values, valid, err := data.Floats(b.column)
	if err != nil {
		return numericColumn{}, err
	}
	missing := make([]bool, len(raw))
	for i, v := range raw {
		if v == nil {
			missing[i] = true
		} else if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			missing[i] = true
		}
	}
	return numericColumn{values: values, valid: valid, missing: missing}, nil
}

// numericDetect flags non-numeric cells plus whatever outlier rule it wraps.
type numericDetect struct {
	base
	// prepare inspects the whole sample and returns the per-value rule.
	prepare func(sample []float64) func(x float64) bool
}

func (s *numericDetect) Detect(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	col, err := s.numbers(data)
	if err != nil {
		return nil, err
	}
	outlier := s.prepare(col.sample(nil))
	return s.flagRows(ctx, data, func(i int) (bool, error) {
		if col.nonNumeric(i) {
			return true, nil
		}
		return col.valid[i] && outlier(col.values[i]), nil
	})
}

// bounds is an optional closed interval.
type bounds struct {
	min *float64
	max *float64
}

func (b bounds) outside(x float64) bool {
	return (b.min != nil && x < *b.min) || (b.max != nil && x > *b.max)
}

func (b bounds) clip(x float64) float64 {
	if b.min != nil && x < *b.min {
		return *b.min
	}
	if b.max != nil && x > *b.max {
		return *b.max
	}
	return x
}

func parseBounds(p params, key string) (bounds, error) {
	min, err := p.optFloat("min")
	if err != nil {
		return bounds{}, err
	}
	max, err := p.optFloat("max")
	if err != nil {
		return bounds{}, err
	}
	if min == nil && max == nil {
		return bounds{}, missingParam("min or max", key)
	}
	if min != nil && max != nil && *min > *max {
		return bounds{}, invalidParam("min", *min, "must not exceed max")
	}
	return bounds{min: min, max: max}, nil
}

// NewThresholdDetect flags values outside [min, max]. Params: min, max.
func NewThresholdDetect(e env, spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
	b, err := newBase(e, constants.DetectThreshold, spec)
	if err != nil {
		return nil, err
	}
	bnd, err := parseBounds(params(spec.Params), b.key)
	if err != nil {
		return nil, err
	}
	return &numericDetect{base: b, prepare: func([]float64) func(float64) bool {
		return bnd.outside
	}}, nil
}

// NewZScoreDetect flags values whose absolute z-score exceeds threshold
// (default 3).
func NewZScoreDetect(e env, spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
	b, err := newBase(e, constants.DetectZScore, spec)
	if err != nil {
		return nil, err
	}
	threshold, err := params(spec.Params).float("threshold", constants.DefaultZScoreThreshold)
	if err != nil {
		return nil, err
	}
	return &numericDetect{base: b, prepare: func(sample []float64) func(float64) bool {
		if len(sample) < 2 {
			return never
		}
		mean, std := stat.MeanStdDev(sample, nil)
		if std == 0 || math.IsNaN(std) {
			return never
		}
		return func(x float64) bool {
			return math.Abs(stat.StdScore(x, mean, std)) > threshold
		}
	}}, nil
}

// NewRobustZScoreDetect flags values by the median/MAD modified z-score
// (default threshold 3.5).
func NewRobustZScoreDetect(e env, spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
	b, err := newBase(e, constants.DetectRobustZScore, spec)
	if err != nil {
		return nil, err
	}
	threshold, err := params(spec.Params).float("threshold", constants.DefaultRobustZThreshold)
	if err != nil {
		return nil, err
	}
	return &numericDetect{base: b, prepare: func(sample []float64) func(float64) bool {
		if len(sample) == 0 {
			return never
		}
		median := Median(sample)
		deviations := make([]float64, len(sample))
		for i, v := range sample {
			deviations[i] = math.Abs(v - median)
		}
		mad := Median(deviations)
		if mad == 0 {
			return never
		}
		return func(x float64) bool {
			return math.Abs(madScale*(x-median)/mad) > threshold
		}
	}}, nil
}

// NewIQRDetect flags values outside [Q1 - k*IQR, Q3 + k*IQR]. Params:
// multiplier (default 1.5).
func NewIQRDetect(e env, spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
	b, err := newBase(e, constants.DetectIQR, spec)
	if err != nil {
		return nil, err
	}
	k, err := params(spec.Params).float("multiplier", constants.DefaultIQRMultiplier)
	if err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, invalidParam("multiplier", k, "must be non-negative")
	}
	return &numericDetect{base: b, prepare: func(sample []float64) func(float64) bool {
		if len(sample) == 0 {
			return never
		}
		sorted := sortedCopy(sample)
		q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
		q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
		iqr := q3 - q1
		lo, hi := q1-k*iqr, q3+k*iqr
		return func(x float64) bool {
			return x < lo || x > hi
		}
	}}, nil
}

// NewNonIntegerDetect flags values with a fractional part.
func NewNonIntegerDetect(e env, spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
	b, err := newBase(e, constants.DetectNonInteger, spec)
	if err != nil {
		return nil, err
	}
	return &numericDetect{base: b, prepare: func([]float64) func(float64) bool {
		return func(x float64) bool {
			return x != math.Trunc(x)
		}
	}}, nil
}

// ClipRepair clamps flagged values into the threshold bounds.
type ClipRepair struct {
	base
	bounds bounds
	detect interfaces.DetectStrategy
}

// NewClipRepair builds the repair. It only pairs with threshold detection.
// Params: min, max.
func NewClipRepair(e env, spec interfaces.StrategySpec) (*ClipRepair, error) {
	b, err := newBase(e, constants.RepairClip, spec)
	if err != nil {
		return nil, err
	}
	p := params(spec.Params)
	key, err := p.str("detect_strategy", constants.DetectThreshold)
	if err != nil {
		return nil, err
	}
	if key != constants.DetectThreshold {
		return nil, invalidParam("detect_strategy", key, "clip only pairs with threshold detection")
	}
	bnd, err := parseBounds(p, b.key)
	if err != nil {
		return nil, err
	}
	detectSpec := spec
	detectSpec.NewColumn = b.newColumn
	detect, err := NewThresholdDetect(e, detectSpec)
	if err != nil {
		return nil, err
	}
	return &ClipRepair{base: b, bounds: bnd, detect: detect}, nil
}

// Repair clamps flagged numeric cells; non-numeric flagged cells are left.
func (s *ClipRepair) Repair(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	if err := s.requireColumns(data, s.column); err != nil {
		return nil, err
	}
	data, err := EnsureFlag(ctx, data, s.newColumn, s.detect)
	if err != nil {
		return nil, err
	}
	flags, err := data.Bools(s.newColumn)
	if err != nil {
		return nil, err
	}
	col, err := s.numbers(data)
	if err != nil {
		return nil, err
	}
	raw, _ := data.Column(s.column)
	out := make([]interface{}, len(raw))
	clipped := 0
	for i, v := range raw {
		out[i] = v
		if flags[i] && col.valid[i] {
			out[i] = s.bounds.clip(col.values[i])
			clipped++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"strategy": s.key,
		"column":   s.column,
		"clipped":  clipped,
	}).Debug("Clipped flagged values")
	return data.WithColumn(s.column, out)
}

// ImputeRepair replaces flagged cells with a statistic of the unflagged ones.
type ImputeRepair struct {
	base
	statistic func(sample []float64) float64
	detect    interfaces.DetectStrategy
}

func newImputeRepair(e env, spec interfaces.StrategySpec, key string, statistic func([]float64) float64, detectFor detectResolver) (*ImputeRepair, error) {
	b, err := newBase(e, key, spec)
	if err != nil {
		return nil, err
	}
	detect, err := pairedDetect(spec, b, constants.DetectZScore, detectFor)
	if err != nil {
		return nil, err
	}
	return &ImputeRepair{base: b, statistic: statistic, detect: detect}, nil
}

// Repair rewrites flagged cells. With no unflagged numeric values there is
// nothing to impute from and the frame is returned with its flags only.
func (s *ImputeRepair) Repair(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	if err := s.requireColumns(data, s.column); err != nil {
		return nil, err
	}
	data, err := EnsureFlag(ctx, data, s.newColumn, s.detect)
	if err != nil {
		return nil, err
	}
	flags, err := data.Bools(s.newColumn)
	if err != nil {
		return nil, err
	}
	col, err := s.numbers(data)
	if err != nil {
		return nil, err
	}
	sample := col.sample(flags)
	if len(sample) == 0 {
		s.logger.WithFields(logrus.Fields{
			"strategy": s.key,
			"column":   s.column,
		}).Warn("No unflagged values to impute from")
		return data, nil
	}
	value := s.statistic(sample)
	raw, _ := data.Column(s.column)
	out := make([]interface{}, len(raw))
	for i, v := range raw {
		out[i] = v
		if flags[i] {
			out[i] = value
		}
	}
	return data.WithColumn(s.column, out)
}

// Mean is the arithmetic mean.
func Mean(sample []float64) float64 {
	return stat.Mean(sample, nil)
}

// Median is the empirical median.
func Median(sample []float64) float64 {
	if len(sample) == 0 {
		return math.NaN()
	}
	sorted := sortedCopy(sample)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func sortedCopy(sample []float64) []float64 {
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)
	return sorted
}

func never(float64) bool { return false }
