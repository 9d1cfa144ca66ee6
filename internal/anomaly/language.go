package anomaly

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/internal/language"
	"github.com/inferloop/reviewqa/pkg/constants"
	apperrors "github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// NonEnglishDetect flags rows both language classifiers reject. Classifier
// failures never fail the batch: the row is left unflagged and counted.
type NonEnglishDetect struct {
	base
	pair      *language.Pair
	warnRatio float64
}

// NewNonEnglishDetect builds the detector. Params: failure_warn_ratio.
func NewNonEnglishDetect(e env, pair *language.Pair, defaultWarnRatio float64, spec interfaces.StrategySpec) (*NonEnglishDetect, error) {
	b, err := newBase(e, constants.DetectNonEnglish, spec)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, apperrors.NewConfigurationError(apperrors.CodeInvalidConfig, "language classifiers are not configured")
	}
	ratio, err := params(spec.Params).float("failure_warn_ratio", defaultWarnRatio)
	if err != nil {
		return nil, err
	}
	return &NonEnglishDetect{base: b, pair: pair, warnRatio: ratio}, nil
}

// Detect adds the flag column.
func (s *NonEnglishDetect) Detect(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	texts, err := s.texts(data)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	failures := make(map[string]int)
	out, err := s.flagRows(ctx, data, func(i int) (bool, error) {
		text := texts[i]
		if strings.TrimSpace(text) == "" {
			return false, nil
		}
		foreign, err := s.pair.IsForeign(text)
		if err != nil {
			name := "unknown"
			var ce *language.ClassifierError
			if errors.As(err, &ce) {
				name = ce.Classifier
			}
			mu.Lock()
			failures[name]++
			mu.Unlock()
			s.logger.WithFields(logrus.Fields{
				"strategy":   s.key,
				"row":        i,
				"classifier": name,
			}).WithError(err).Debug("Language classification failed; row kept")
			return false, nil
		}
		return foreign, nil
	})
	if err != nil {
		return nil, err
	}

	total := 0
	for name, n := range failures {
		total += n
		s.metrics.RecordClassifierFailures(name, n)
	}
	if rows := data.NumRows(); rows > 0 && float64(total)/float64(rows) > s.warnRatio {
		s.logger.WithFields(logrus.Fields{
			"strategy": s.key,
			"column":   s.column,
			"rows":     rows,
			"failures": total,
			"ratio":    float64(total) / float64(rows),
		}).Warn("Language classifier failure rate above threshold")
	}
	return out, nil
}
