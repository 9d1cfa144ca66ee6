// Package language wraps the language identification libraries behind the
// LanguageClassifier contract.
package language

import (
	"fmt"
	"strings"
	"sync"

	"github.com/abadojack/whatlanggo"
	"github.com/pemistahl/lingua-go"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// Config holds classifier settings
type Config struct {
	Target           string  `json:"target" mapstructure:"target"`
	FailureWarnRatio float64 `json:"failure_warn_ratio" mapstructure:"failure_warn_ratio"`
	// LowAccuracy trades lingua precision on short texts for a much smaller model.
	LowAccuracy bool `json:"low_accuracy" mapstructure:"low_accuracy"`
}

// DefaultConfig returns the default classifier configuration
func DefaultConfig() Config {
	return Config{
		Target:           constants.DefaultTargetLanguage,
		FailureWarnRatio: constants.DefaultFailureWarnRatio,
		LowAccuracy:      true,
	}
}

// WhatlangClassifier is the fast trigram classifier used as the primary check.
type WhatlangClassifier struct {
	target string
}

// NewWhatlangClassifier creates a classifier for an ISO 639-1 target code.
func NewWhatlangClassifier(target string) (*WhatlangClassifier, error) {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "target language is required")
	}
	return &WhatlangClassifier{target: target}, nil
}

// Name returns the classifier name
func (c *WhatlangClassifier) Name() string {
	return "whatlang"
}

// IsLanguage reports whether text is written in the target language.
func (c *WhatlangClassifier) IsLanguage(text string) (ok bool, err error) {
	defer recoverInto(c.Name(), &err)
	info := whatlanggo.Detect(text)
	if info.Lang < 0 {
		return false, fmt.Errorf("%w: whatlang could not detect a language", errors.ErrClassifierFailed)
	}
	return info.Lang.Iso6391() == c.target, nil
}

// LinguaClassifier is the slower n-gram classifier used to confirm rejections.
type LinguaClassifier struct {
	target      string
	lowAccuracy bool
	detector    lingua.LanguageDetector
}

// NewLinguaClassifier creates a classifier for an ISO 639-1 target code. Each
// classifier owns its detector; share one through LazyPair.
func NewLinguaClassifier(target string, lowAccuracy bool) (*LinguaClassifier, error) {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "target language is required")
	}
	if lingua.GetIsoCode639_1FromValue(target) == lingua.UnknownIsoCode639_1 {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig,
			fmt.Sprintf("unsupported target language '%s'", target))
	}
	builder := lingua.NewLanguageDetectorBuilder().FromAllLanguages()
	if lowAccuracy {
		builder = builder.WithLowAccuracyMode()
	}
	return &LinguaClassifier{target: target, lowAccuracy: lowAccuracy, detector: builder.Build()}, nil
}

// Name returns the classifier name
func (c *LinguaClassifier) Name() string {
	if c.lowAccuracy {
		return "lingua-low"
	}
	return "lingua"
}

// IsLanguage reports whether text is written in the target language. Text
// lingua cannot place is reported as not the target.
func (c *LinguaClassifier) IsLanguage(text string) (ok bool, err error) {
	defer recoverInto(c.Name(), &err)
	lang, found := c.detector.DetectLanguageOf(text)
	if !found {
		return false, nil
	}
	return strings.EqualFold(lang.IsoCode639_1().String(), c.target), nil
}

// Pair is the injected two-stage classifier: the primary runs on every row and
// the secondary only re-checks the primary's rejections.
type Pair struct {
	Primary   interfaces.LanguageClassifier
	Secondary interfaces.LanguageClassifier
}

// NewPair creates a classifier pair
func NewPair(primary, secondary interfaces.LanguageClassifier) (*Pair, error) {
	if primary == nil || secondary == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "both primary and secondary classifiers are required")
	}
	return &Pair{Primary: primary, Secondary: secondary}, nil
}

// NewDefaultPair builds the whatlang/lingua pair from config.
func NewDefaultPair(config Config, logger *logrus.Logger) (*Pair, error) {
	if logger == nil {
		logger = logrus.New()
	}
	primary, err := NewWhatlangClassifier(config.Target)
	if err != nil {
		return nil, err
	}
	secondary, err := NewLinguaClassifier(config.Target, config.LowAccuracy)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"target":    config.Target,
		"primary":   primary.Name(),
		"secondary": secondary.Name(),
	}).Debug("Language classifiers ready")
	return NewPair(primary, secondary)
}

// LazyPair defers building the default pair until first use; loading the
// lingua models is slow and most pipelines never need them.
func LazyPair(config Config, logger *logrus.Logger) func() (*Pair, error) {
	var (
		once sync.Once
		pair *Pair
		err  error
	)
	return func() (*Pair, error) {
		once.Do(func() {
			pair, err = NewDefaultPair(config, logger)
		})
		return pair, err
	}
}

// ClassifierError names the classifier that failed on a text.
type ClassifierError struct {
	Classifier string
	Err        error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier %s: %v", e.Classifier, e.Err)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

// IsForeign runs the two-stage check. It returns true only when both
// classifiers reject the text. Errors are wrapped in a ClassifierError.
func (p *Pair) IsForeign(text string) (bool, error) {
	ok, err := p.Primary.IsLanguage(text)
	if err != nil {
		return false, &ClassifierError{Classifier: p.Primary.Name(), Err: err}
	}
	if ok {
		return false, nil
	}
	ok, err = p.Secondary.IsLanguage(text)
	if err != nil {
		return false, &ClassifierError{Classifier: p.Secondary.Name(), Err: err}
	}
	return !ok, nil
}

func recoverInto(name string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s panicked: %v", errors.ErrClassifierFailed, name, r)
	}
}
