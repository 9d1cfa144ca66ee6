package interfaces

import (
	"context"

	"github.com/inferloop/reviewqa/internal/frame"
)

// DetectStrategy adds one boolean flag column marking anomalous rows.
type DetectStrategy interface {
	// Detect returns data plus the flag column. It must not remove rows.
	Detect(ctx context.Context, data *frame.Frame) (*frame.Frame, error)
}

// RepairStrategy corrects or removes anomalous rows.
type RepairStrategy interface {
	// Repair returns the repaired frame. Only removal strategies change the row count.
	Repair(ctx context.Context, data *frame.Frame) (*frame.Frame, error)
}

// RowExecutor runs a per-row function over a frame's index range. The local
// executor loops in order; the distributed one fans out over partitions.
type RowExecutor interface {
	Mode() string
	ForEach(ctx context.Context, n int, fn func(i int) error) error
}

// LanguageClassifier answers whether a text is written in its target language.
type LanguageClassifier interface {
	Name() string
	IsLanguage(text string) (bool, error)
}

// StrategySpec carries the construction arguments shared by every strategy.
type StrategySpec struct {
	Column    string
	Columns   []string
	NewColumn string
	Params    map[string]interface{}
}

// DetectCreateFunc builds a detect strategy from a spec.
type DetectCreateFunc func(spec StrategySpec) (DetectStrategy, error)

// RepairCreateFunc builds a repair strategy from a spec.
type RepairCreateFunc func(spec StrategySpec) (RepairStrategy, error)
