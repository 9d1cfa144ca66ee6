package anomaly

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/distributed"
	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/internal/language"
	"github.com/inferloop/reviewqa/internal/observability/metrics"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// Dimensions lists every supported data dimension.
var Dimensions = []string{
	constants.DimensionText,
	constants.DimensionNumeric,
	constants.DimensionCategorical,
	constants.DimensionNominal,
	constants.DimensionInterval,
	constants.DimensionDiscrete,
}

// Deps are the shared resources injected into every factory.
type Deps struct {
	Catalog *Catalog
	// Engine runs row work for distributed factories; nil builds a default one.
	Engine *distributed.Engine
	// Languages lazily provides the classifier pair for non_english.
	Languages        func() (*language.Pair, error)
	FailureWarnRatio float64
	Metrics          *metrics.PipelineMetrics
	Logger           *logrus.Logger
}

func (d Deps) withDefaults() (Deps, error) {
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	if d.Catalog == nil {
		d.Catalog = NewCatalog()
	}
	if d.FailureWarnRatio <= 0 {
		d.FailureWarnRatio = constants.DefaultFailureWarnRatio
	}
	if d.Engine == nil {
		engine, err := distributed.NewEngine(distributed.DefaultEngineConfig(), d.Logger)
		if err != nil {
			return d, err
		}
		d.Engine = engine
	}
	return d, nil
}

// Factory resolves strategy keys for one dimension and execution mode.
type Factory struct {
	dimension string
	mode      string
	detect    map[string]interfaces.DetectCreateFunc
	repair    map[string]interfaces.RepairCreateFunc
	mu        sync.RWMutex
	env       env
	deps      Deps
	logger    *logrus.Logger
}

// NewFactory creates a factory with the default strategies for dimension
// registered. Distributed factories run row work on deps.Engine.
func NewFactory(dimension, mode string, deps Deps) (*Factory, error) {
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, err
	}

	var exec interfaces.RowExecutor
	switch mode {
	case constants.ModeLocal:
		exec = frame.Sequential{}
	case constants.ModeDistributed:
		exec = deps.Engine
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("unknown execution mode '%s'", mode))
	}

	f := &Factory{
		dimension: dimension,
		mode:      mode,
		detect:    make(map[string]interfaces.DetectCreateFunc),
		repair:    make(map[string]interfaces.RepairCreateFunc),
		env: env{
			exec:    exec,
			catalog: deps.Catalog,
			metrics: deps.Metrics,
			logger:  deps.Logger,
		},
		deps:   deps,
		logger: deps.Logger,
	}

	switch dimension {
	case constants.DimensionText:
		f.registerText()
	case constants.DimensionNumeric, constants.DimensionInterval:
		f.registerNumeric()
	case constants.DimensionDiscrete:
		f.registerNumeric()
		f.registerDiscrete()
	case constants.DimensionCategorical, constants.DimensionNominal:
		f.registerCategorical()
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("unknown data dimension '%s'", dimension))
	}
	return f, nil
}

// Dimension returns the factory's data dimension.
func (f *Factory) Dimension() string { return f.dimension }

// Mode returns the factory's execution mode.
func (f *Factory) Mode() string { return f.mode }

// GetDetectStrategy returns the constructor registered under key.
func (f *Factory) GetDetectStrategy(key string) (interfaces.DetectCreateFunc, error) {
	f.mu.RLock()
	create, ok := f.detect[key]
	f.mu.RUnlock()
	if !ok {
		return nil, errors.NewStrategyNotFoundError(key, f.dimension, f.mode)
	}
	return create, nil
}

// GetRepairStrategy returns the constructor registered under key.
func (f *Factory) GetRepairStrategy(key string) (interfaces.RepairCreateFunc, error) {
	f.mu.RLock()
	create, ok := f.repair[key]
	f.mu.RUnlock()
	if !ok {
		return nil, errors.NewStrategyNotFoundError(key, f.dimension, f.mode)
	}
	return create, nil
}

// NewDetect resolves and constructs a detect strategy.
func (f *Factory) NewDetect(key string, spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
	create, err := f.GetDetectStrategy(key)
	if err != nil {
		return nil, err
	}
	return create(spec)
}

// NewRepair resolves and constructs a repair strategy.
func (f *Factory) NewRepair(key string, spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
	create, err := f.GetRepairStrategy(key)
	if err != nil {
		return nil, err
	}
	return create(spec)
}

// RegisterDetect registers a detect strategy constructor.
func (f *Factory) RegisterDetect(key string, create interfaces.DetectCreateFunc) error {
	if key == "" {
		return errors.NewValidationError(errors.CodeInvalidInput, "Strategy key cannot be empty")
	}
	if create == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "Strategy create function cannot be nil")
	}
	f.mu.Lock()
	f.detect[key] = create
	f.mu.Unlock()

	f.logger.WithFields(logrus.Fields{
		"dimension": f.dimension,
		"mode":      f.mode,
		"strategy":  key,
	}).Debug("Registered detect strategy")
	return nil
}

// RegisterRepair registers a repair strategy constructor.
func (f *Factory) RegisterRepair(key string, create interfaces.RepairCreateFunc) error {
	if key == "" {
		return errors.NewValidationError(errors.CodeInvalidInput, "Strategy key cannot be empty")
	}
	if create == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "Strategy create function cannot be nil")
	}
	f.mu.Lock()
	f.repair[key] = create
	f.mu.Unlock()

	f.logger.WithFields(logrus.Fields{
		"dimension": f.dimension,
		"mode":      f.mode,
		"strategy":  key,
	}).Debug("Registered repair strategy")
	return nil
}

// AvailableDetect returns the registered detect keys, sorted.
func (f *Factory) AvailableDetect() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.detect)
}

// AvailableRepair returns the registered repair keys, sorted.
func (f *Factory) AvailableRepair() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.repair)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fixedDetect pins a removal's detector regardless of params.
func (f *Factory) fixedDetect(key string) detectResolver {
	return func(_ string, spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return f.NewDetect(key, spec)
	}
}

func (f *Factory) registerText() {
	e := f.env

	f.RegisterDetect(constants.DetectRegex, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewRegexDetect(e, spec)
	})
	f.RegisterDetect(constants.DetectRegexThreshold, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewRegexThresholdDetect(e, spec)
	})
	f.RegisterDetect(constants.DetectShortReview, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewShortReviewDetect(e, spec)
	})
	f.RegisterDetect(constants.DetectNonEnglish, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		if f.deps.Languages == nil {
			return NewNonEnglishDetect(e, nil, f.deps.FailureWarnRatio, spec)
		}
		pair, err := f.deps.Languages()
		if err != nil {
			return nil, err
		}
		return NewNonEnglishDetect(e, pair, f.deps.FailureWarnRatio, spec)
	})
	f.RegisterDetect(constants.DetectUnique, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewUniqueDetect(e, spec)
	})

	f.RegisterRepair(constants.RepairRegexReplace, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return NewRegexReplace(e, spec)
	})
	f.RegisterRepair(constants.RepairRegexRemove, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return newRemoval(e, spec, constants.RepairRegexRemove, constants.DetectRegex, false, f.fixedDetect(constants.DetectRegex))
	})
	f.RegisterRepair(constants.RepairRegexThresholdRemove, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return newRemoval(e, spec, constants.RepairRegexThresholdRemove, constants.DetectRegexThreshold, true, f.fixedDetect(constants.DetectRegexThreshold))
	})
	f.RegisterRepair(constants.RepairCustomRemove, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return newRemoval(e, spec, constants.RepairCustomRemove, constants.DetectRegex, true, f.NewDetect)
	})
	f.RegisterRepair(constants.RepairAccent, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return newPatternFlaggedRepair(e, spec, constants.RepairAccent, PatternAccentedChar, RemoveAccents, f.NewDetect)
	})
	f.RegisterRepair(constants.RepairNonASCII, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return newPatternFlaggedRepair(e, spec, constants.RepairNonASCII, PatternNonASCIIChar, ToASCII, f.NewDetect)
	})
	f.RegisterRepair(constants.RepairWhitespace, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return NewWhitespaceRepair(e, spec)
	})
	f.RegisterRepair(constants.RepairNonEnglish, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return newRemoval(e, spec, constants.RepairNonEnglish, constants.DetectNonEnglish, false, f.fixedDetect(constants.DetectNonEnglish))
	})
	f.RegisterRepair(constants.RepairShortReview, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return newRemoval(e, spec, constants.RepairShortReview, constants.DetectShortReview, false, f.fixedDetect(constants.DetectShortReview))
	})
	f.RegisterRepair(constants.RepairUnique, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return NewUniqueRemove(e, spec)
	})
}

func (f *Factory) registerNumeric() {
	e := f.env

	f.RegisterDetect(constants.DetectThreshold, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewThresholdDetect(e, spec)
	})
	f.RegisterDetect(constants.DetectZScore, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewZScoreDetect(e, spec)
	})
	f.RegisterDetect(constants.DetectRobustZScore, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewRobustZScoreDetect(e, spec)
	})
	f.RegisterDetect(constants.DetectIQR, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewIQRDetect(e, spec)
	})
	f.RegisterDetect(constants.DetectUnique, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewUniqueDetect(e, spec)
	})

	f.RegisterRepair(constants.RepairRemove, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return newRemoval(e, spec, constants.RepairRemove, constants.DetectThreshold, false, f.NewDetect)
	})
	f.RegisterRepair(constants.RepairClip, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return NewClipRepair(e, spec)
	})
	f.RegisterRepair(constants.RepairImputeMean, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return newImputeRepair(e, spec, constants.RepairImputeMean, Mean, f.NewDetect)
	})
	f.RegisterRepair(constants.RepairImputeMedian, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return newImputeRepair(e, spec, constants.RepairImputeMedian, Median, f.NewDetect)
	})
	f.RegisterRepair(constants.RepairUnique, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return NewUniqueRemove(e, spec)
	})
}

func (f *Factory) registerDiscrete() {
	e := f.env
	f.RegisterDetect(constants.DetectNonInteger, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewNonIntegerDetect(e, spec)
	})
}

func (f *Factory) registerCategorical() {
	e := f.env

	f.RegisterDetect(constants.DetectCategorical, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewCategoricalDetect(e, spec)
	})
	f.RegisterDetect(constants.DetectUnique, func(spec interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return NewUniqueDetect(e, spec)
	})

	f.RegisterRepair(constants.RepairRemove, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return newRemoval(e, spec, constants.RepairRemove, constants.DetectCategorical, false, f.NewDetect)
	})
	f.RegisterRepair(constants.RepairReplace, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return NewCategoryReplace(e, spec, f.NewDetect)
	})
	f.RegisterRepair(constants.RepairUnique, func(spec interfaces.StrategySpec) (interfaces.RepairStrategy, error) {
		return NewUniqueRemove(e, spec)
	})
}

// Registry holds one factory per dimension and execution mode.
type Registry struct {
	factories map[string]*Factory
	mu        sync.RWMutex
	deps      Deps
}

// NewRegistry builds local and distributed factories for every dimension.
func NewRegistry(deps Deps) (*Registry, error) {
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, err
	}
	r := &Registry{factories: make(map[string]*Factory), deps: deps}
	for _, dim := range Dimensions {
		for _, mode := range []string{constants.ModeLocal, constants.ModeDistributed} {
			f, err := NewFactory(dim, mode, deps)
			if err != nil {
				return nil, err
			}
			r.factories[registryKey(dim, mode)] = f
		}
	}
	deps.Logger.WithFields(logrus.Fields{
		"dimensions": len(Dimensions),
		"factories":  len(r.factories),
	}).Debug("Strategy registry ready")
	return r, nil
}

// Factory selects the factory for a dimension and execution mode.
func (r *Registry) Factory(dimension string, distributed bool) (*Factory, error) {
	mode := constants.ModeLocal
	if distributed {
		mode = constants.ModeDistributed
	}
	r.mu.RLock()
	f, ok := r.factories[registryKey(dimension, mode)]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("unknown data dimension '%s'", dimension))
	}
	return f, nil
}

// Catalog returns the shared regex catalog.
func (r *Registry) Catalog() *Catalog {
	return r.deps.Catalog
}

// Logger returns the registry's logger.
func (r *Registry) Logger() *logrus.Logger {
	return r.deps.Logger
}

// Metrics returns the shared metrics, possibly nil.
func (r *Registry) Metrics() *metrics.PipelineMetrics {
	return r.deps.Metrics
}

func registryKey(dimension, mode string) string {
	return dimension + "/" + mode
}
