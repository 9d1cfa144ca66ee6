package frame

import (
	"context"

	"github.com/inferloop/reviewqa/pkg/constants"
)

// ctxCheckInterval is how many rows Sequential processes between context checks.
const ctxCheckInterval = 1024

// Sequential runs row functions in order on the calling goroutine.
type Sequential struct{}

// Mode identifies the executor for logging and metrics.
func (Sequential) Mode() string {
	return constants.ModeLocal
}

// ForEach calls fn for every row index in [0, n), stopping at the first error.
func (Sequential) ForEach(ctx context.Context, n int, fn func(i int) error) error {
	for i := 0; i < n; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}
