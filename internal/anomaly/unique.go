package anomaly

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// UniqueDetect flags every repeat of a key after its first occurrence in row
// order.
type UniqueDetect struct {
	base
	keys []string
}

// NewUniqueDetect builds the detector. The key is Columns when set, else Column.
func NewUniqueDetect(e env, spec interfaces.StrategySpec) (*UniqueDetect, error) {
	b, err := newBase(e, constants.DetectUnique, spec)
	if err != nil {
		return nil, err
	}
	keys := spec.Columns
	if len(keys) == 0 {
		keys = []string{b.column}
	}
	return &UniqueDetect{base: b, keys: keys}, nil
}

// Detect adds the flag column. The scan depends on row order, so it always runs
// sequentially.
func (s *UniqueDetect) Detect(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	if err := s.requireColumns(data, s.keys...); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys, err := data.GroupKeys(s.keys)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(keys))
	flags := make([]bool, len(keys))
	duplicates := 0
	for i, k := range keys {
		if _, dup := seen[k]; dup {
			flags[i] = true
			duplicates++
			continue
		}
		seen[k] = struct{}{}
	}

	s.metrics.RecordFlagged(s.key, duplicates)
	s.logger.WithFields(logrus.Fields{
		"strategy":   s.key,
		"keys":       s.keys,
		"rows":       len(keys),
		"duplicates": duplicates,
	}).Debug("Detection complete")
	return data.WithBools(s.newColumn, flags)
}

// NewUniqueRemove drops duplicate rows, keeping first occurrences.
func NewUniqueRemove(e env, spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
	detect, err := NewUniqueDetect(e, spec)
	if err != nil {
		return nil, err
	}
	b := detect.base
	b.key = constants.RepairUnique
	return &removal{base: b, detect: detect}, nil
}
