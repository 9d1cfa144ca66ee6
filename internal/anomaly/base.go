package anomaly

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/internal/observability/metrics"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// env is what every strategy needs from the factory that built it.
type env struct {
	exec    interfaces.RowExecutor
	catalog *Catalog
	metrics *metrics.PipelineMetrics
	logger  *logrus.Logger
}

// base holds the column bindings shared by detect and repair strategies.
type base struct {
	env
	key       string
	column    string
	newColumn string
}

func newBase(e env, key string, spec interfaces.StrategySpec) (base, error) {
	if spec.Column == "" && len(spec.Columns) == 0 {
		return base{}, missingParam("column", key)
	}
	column := spec.Column
	if column == "" {
		column = spec.Columns[0]
	}
	newColumn := spec.NewColumn
	if newColumn == "" {
		newColumn = DefaultFlagColumn(column, key)
	}
	return base{env: e, key: key, column: column, newColumn: newColumn}, nil
}

// DefaultFlagColumn names the flag column when none is configured.
func DefaultFlagColumn(column, key string) string {
	return fmt.Sprintf("%s_%s", column, key)
}

func (b *base) requireColumns(data *frame.Frame, columns ...string) error {
	for _, c := range columns {
		if !data.Has(c) {
			return errors.NewMissingColumnError(c, b.key)
		}
	}
	return nil
}

func (b *base) texts(data *frame.Frame) ([]string, error) {
	if err := b.requireColumns(data, b.column); err != nil {
		return nil, err
	}
	return data.Strings(b.column)
}

// flagRows evaluates fn for every row on the strategy's executor and appends
// the result as the flag column.
func (b *base) flagRows(ctx context.Context, data *frame.Frame, fn func(i int) (bool, error)) (*frame.Frame, error) {
	n := data.NumRows()
	flags := make([]bool, n)
	var flagged int64
	err := b.exec.ForEach(ctx, n, func(i int) error {
		v, err := fn(i)
		if err != nil {
			return err
		}
		if v {
			flags[i] = true
			atomic.AddInt64(&flagged, 1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.metrics.RecordFlagged(b.key, int(flagged))
	b.logger.WithFields(logrus.Fields{
		"strategy": b.key,
		"column":   b.column,
		"flag":     b.newColumn,
		"rows":     n,
		"flagged":  flagged,
		"executor": b.exec.Mode(),
	}).Debug("Detection complete")

	return data.WithBools(b.newColumn, flags)
}

// mapTexts rewrites the strategy column. Rows where only is false, and nil
// cells, are left untouched. A nil only rewrites every row.
func (b *base) mapTexts(ctx context.Context, data *frame.Frame, only []bool, fn func(s string) (string, error)) (*frame.Frame, error) {
	if err := b.requireColumns(data, b.column); err != nil {
		return nil, err
	}
	src, err := data.Column(b.column)
	if err != nil {
		return nil, err
	}
	texts, err := data.Strings(b.column)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(src))
	err = b.exec.ForEach(ctx, len(src), func(i int) error {
		out[i] = src[i]
		if src[i] == nil || (only != nil && !only[i]) {
			return nil
		}
		s, err := fn(texts[i])
		if err != nil {
			return err
		}
		out[i] = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data.WithColumn(b.column, out)
}

// EnsureFlag makes sure data carries the detect strategy's flag column,
// running detect when the column is absent.
func EnsureFlag(ctx context.Context, data *frame.Frame, flagColumn string, detect interfaces.DetectStrategy) (*frame.Frame, error) {
	if data.Has(flagColumn) {
		return data, nil
	}
	return detect.Detect(ctx, data)
}

// removal drops the rows a paired detect strategy flags.
type removal struct {
	base
	detect interfaces.DetectStrategy
	// rerun forces detection even when the flag column already exists.
	rerun bool
}

func (r *removal) Repair(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	if err := r.requireColumns(data, r.column); err != nil {
		return nil, err
	}
	var err error
	if r.rerun {
		data, err = r.detect.Detect(ctx, data)
	} else {
		data, err = EnsureFlag(ctx, data, r.newColumn, r.detect)
	}
	if err != nil {
		return nil, err
	}
	flags, err := data.Bools(r.newColumn)
	if err != nil {
		return nil, err
	}
	keep := make([]bool, len(flags))
	for i, f := range flags {
		keep[i] = !f
	}
	out, err := data.Filter(keep)
	if err != nil {
		return nil, err
	}

	removed := data.NumRows() - out.NumRows()
	r.metrics.RecordRemoved(r.key, removed)
	r.logger.WithFields(logrus.Fields{
		"strategy": r.key,
		"column":   r.column,
		"rows_in":  data.NumRows(),
		"rows_out": out.NumRows(),
	}).Debug("Removed flagged rows")
	return out, nil
}
