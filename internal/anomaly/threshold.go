package anomaly

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// ThresholdSpec says when a per-row match count is anomalous: either the raw
// count or its proportion of the row's words or characters.
type ThresholdSpec struct {
	Value float64 `json:"threshold" yaml:"threshold"`
	Type  string  `json:"threshold_type" yaml:"threshold_type"`
	Unit  string  `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Validate rejects unknown types and units, and proportions without a unit.
func (s ThresholdSpec) Validate() error {
	if s.Value < 0 {
		return errors.NewInvalidThresholdSpecError(fmt.Sprintf("threshold must be non-negative, got %v", s.Value))
	}
	switch s.Type {
	case constants.ThresholdCount:
		if s.Unit != "" && !validUnit(s.Unit) {
			return errors.NewInvalidThresholdSpecError(fmt.Sprintf("unknown unit '%s'", s.Unit))
		}
	case constants.ThresholdProportion:
		if s.Unit == "" {
			return errors.NewInvalidThresholdSpecError("proportion thresholds need a unit (word or character)")
		}
		if !validUnit(s.Unit) {
			return errors.NewInvalidThresholdSpecError(fmt.Sprintf("unknown unit '%s'", s.Unit))
		}
	default:
		return errors.NewInvalidThresholdSpecError(fmt.Sprintf("unknown threshold type '%s'", s.Type))
	}
	return nil
}

// Exceeded reports whether matches found in text cross the threshold. A text
// with no units has proportion 0 and is never flagged.
func (s ThresholdSpec) Exceeded(matches int, text string) bool {
	if s.Type == constants.ThresholdCount {
		return float64(matches) > s.Value
	}
	units := UnitCount(text, s.Unit)
	if units == 0 {
		return false
	}
	return float64(matches)/float64(units) > s.Value
}

// UnitCount counts whitespace-separated words or runes. Scripts written
// without spaces count as one word per run.
func UnitCount(text, unit string) int {
	if unit == constants.UnitCharacter {
		return utf8.RuneCountInString(text)
	}
	return len(strings.Fields(text))
}

func validUnit(unit string) bool {
	return unit == constants.UnitWord || unit == constants.UnitCharacter
}
