package anomaly

import (
	"context"

	"github.com/dlclark/regexp2"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// RegexDetect flags rows whose text matches a catalog pattern anywhere.
type RegexDetect struct {
	base
	pattern string
	re      *regexp2.Regexp
}

// NewRegexDetect builds a regex detector. Params: pattern.
func NewRegexDetect(e env, spec interfaces.StrategySpec) (*RegexDetect, error) {
	b, err := newBase(e, constants.DetectRegex, spec)
	if err != nil {
		return nil, err
	}
	p := params(spec.Params)
	pattern, err := p.str("pattern", "")
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		return nil, missingParam("pattern", b.key)
	}
	re, err := e.catalog.Regexp(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexDetect{base: b, pattern: pattern, re: re}, nil
}

// Detect adds the flag column.
func (s *RegexDetect) Detect(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	texts, err := s.texts(data)
	if err != nil {
		return nil, err
	}
	return s.flagRows(ctx, data, func(i int) (bool, error) {
		return matchAny(s.re, texts[i])
	})
}

// RegexThresholdDetect flags rows where the number of pattern matches, or
// their share of the row's words or characters, exceeds a threshold.
type RegexThresholdDetect struct {
	base
	pattern   string
	re        *regexp2.Regexp
	threshold ThresholdSpec
}

// NewRegexThresholdDetect builds the detector. Params: pattern, threshold,
// threshold_type (default count) and unit.
func NewRegexThresholdDetect(e env, spec interfaces.StrategySpec) (*RegexThresholdDetect, error) {
	b, err := newBase(e, constants.DetectRegexThreshold, spec)
	if err != nil {
		return nil, err
	}
	p := params(spec.Params)
	pattern, err := p.str("pattern", "")
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		return nil, missingParam("pattern", b.key)
	}
	threshold, err := p.threshold(constants.ThresholdCount)
	if err != nil {
		return nil, err
	}
	re, err := e.catalog.Regexp(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexThresholdDetect{base: b, pattern: pattern, re: re, threshold: threshold}, nil
}

// Detect adds the flag column.
func (s *RegexThresholdDetect) Detect(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	texts, err := s.texts(data)
	if err != nil {
		return nil, err
	}
	return s.flagRows(ctx, data, func(i int) (bool, error) {
		n, err := countMatches(s.re, texts[i])
		if err != nil {
			return false, err
		}
		return s.threshold.Exceeded(n, texts[i]), nil
	})
}

// ShortReviewDetect flags reviews by word count.
type ShortReviewDetect struct {
	base
	threshold int
	lessThan  bool
}

// NewShortReviewDetect builds the detector. Params: threshold (default 3) and
// detect_less_than_threshold (default true).
func NewShortReviewDetect(e env, spec interfaces.StrategySpec) (*ShortReviewDetect, error) {
	b, err := newBase(e, constants.DetectShortReview, spec)
	if err != nil {
		return nil, err
	}
	p := params(spec.Params)
	threshold, err := p.integer("threshold", constants.DefaultShortReviewThreshold)
	if err != nil {
		return nil, err
	}
	if threshold < 0 {
		return nil, invalidParam("threshold", threshold, "must be non-negative")
	}
	lessThan, err := p.boolean("detect_less_than_threshold", true)
	if err != nil {
		return nil, err
	}
	return &ShortReviewDetect{base: b, threshold: threshold, lessThan: lessThan}, nil
}

// Detect adds the flag column.
func (s *ShortReviewDetect) Detect(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	texts, err := s.texts(data)
	if err != nil {
		return nil, err
	}
	return s.flagRows(ctx, data, func(i int) (bool, error) {
		words := UnitCount(texts[i], constants.UnitWord)
		if s.lessThan {
			return words < s.threshold, nil
		}
		return words > s.threshold, nil
	})
}
