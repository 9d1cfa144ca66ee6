package interfaces

import (
	"context"

	"github.com/inferloop/reviewqa/internal/frame"
)

// Task is one step of a stage. Tasks are folded left to right; each receives
// the previous task's output.
type Task interface {
	Name() string
	Run(ctx context.Context, data *frame.Frame) (*frame.Frame, error)
}

// StageAware tasks learn the owning stage id before the first run, so they can
// namespace the columns they create.
type StageAware interface {
	SetStageID(stageID string)
}
