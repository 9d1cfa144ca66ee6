// Package ingest holds the tasks that prepare raw review exports: sampling,
// date filtering, text hygiene and type casting.
package ingest

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// Task types as written in pipeline files.
const (
	TypeSample         = "ingest.sample"
	TypeFilterDate     = "ingest.filter_date"
	TypeReviewLength   = "ingest.review_length"
	TypeRemoveNewlines = "ingest.remove_newlines"
	TypeVerifyEncoding = "ingest.verify_encoding"
	TypeCastTypes      = "ingest.cast_types"
)

const (
	defaultTextColumn = "content"
	defaultDateColumn = "date"
)

type base struct {
	name   string
	logger *logrus.Logger
}

func newBase(name, fallback string, logger *logrus.Logger) base {
	if name == "" {
		name = fallback
	}
	if logger == nil {
		logger = logrus.New()
	}
	return base{name: name, logger: logger}
}

// Name returns the task name.
func (b base) Name() string {
	return b.name
}

func (b base) done(rowsIn, rowsOut int, start time.Time) {
	b.logger.WithFields(logrus.Fields{
		"task":     b.name,
		"rows_in":  rowsIn,
		"rows_out": rowsOut,
		"duration": time.Since(start),
	}).Debug("Task completed")
}

func (b base) requireColumn(f *frame.Frame, column string) error {
	if !f.Has(column) {
		return errors.NewMissingColumnError(column, b.name)
	}
	return nil
}

func validateFraction(key string, frac float64) error {
	if frac <= 0 || frac > 1 {
		return errors.InvalidValue(key, frac, "must be in (0, 1]")
	}
	return nil
}

func newRand(seed *int64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(*seed))
}

// sampleIndices picks round(frac*n) distinct rows and returns them in their
// original order.
func sampleIndices(n int, frac float64, rng *rand.Rand) []int {
	k := int(frac*float64(n) + 0.5)
	if k > n {
		k = n
	}
	indices := rng.Perm(n)[:k]
	sort.Ints(indices)
	return indices
}

func columnTypeError(column string, row int, value interface{}, want string) error {
	return errors.NewAppError(errors.ErrorTypeSchema, errors.CodeColumnType,
		fmt.Sprintf("column '%s' row %d: cannot cast %v to %s", column, row, value, want)).
		WithContext("column", column)
}
