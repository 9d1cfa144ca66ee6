package anomaly

import (
	"context"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// CategoricalDetect flags values outside a fixed set. Nil cells are not
// flagged.
type CategoricalDetect struct {
	base
	valid map[string]struct{}
}

// NewCategoricalDetect builds the detector. Params: valid_categories
// (required, non-empty).
func NewCategoricalDetect(e env, spec interfaces.StrategySpec) (*CategoricalDetect, error) {
	b, err := newBase(e, constants.DetectCategorical, spec)
	if err != nil {
		return nil, err
	}
	categories, err := params(spec.Params).stringList("valid_categories")
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return nil, errors.NewInvalidCategoriesError(b.column)
	}
	valid := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		valid[c] = struct{}{}
	}
	return &CategoricalDetect{base: b, valid: valid}, nil
}

// Detect adds the flag column.
func (s *CategoricalDetect) Detect(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	texts, err := s.texts(data)
	if err != nil {
		return nil, err
	}
	raw, _ := data.Column(s.column)
	return s.flagRows(ctx, data, func(i int) (bool, error) {
		if raw[i] == nil {
			return false, nil
		}
		_, ok := s.valid[texts[i]]
		return !ok, nil
	})
}

// CategoryReplace overwrites flagged values with a replacement category.
type CategoryReplace struct {
	base
	replacement string
	detect      interfaces.DetectStrategy
}

// NewCategoryReplace builds the repair. Params: replacement (default
// "unknown") plus the paired detector's params.
func NewCategoryReplace(e env, spec interfaces.StrategySpec, resolve detectResolver) (*CategoryReplace, error) {
	b, err := newBase(e, constants.RepairReplace, spec)
	if err != nil {
		return nil, err
	}
	replacement, err := params(spec.Params).str("replacement", constants.DefaultCategoryReplacement)
	if err != nil {
		return nil, err
	}
	detectSpec := spec
	detectSpec.Params = params(spec.Params).without("replacement")
	detect, err := pairedDetect(detectSpec, b, constants.DetectCategorical, resolve)
	if err != nil {
		return nil, err
	}
	return &CategoryReplace{base: b, replacement: replacement, detect: detect}, nil
}

// Repair rewrites flagged cells.
func (s *CategoryReplace) Repair(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
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
	raw, _ := data.Column(s.column)
	out := make([]interface{}, len(raw))
	for i, v := range raw {
		out[i] = v
		if flags[i] {
			out[i] = s.replacement
		}
	}
	return data.WithColumn(s.column, out)
}
