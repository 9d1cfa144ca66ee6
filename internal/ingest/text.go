package ingest

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/inferloop/reviewqa/internal/frame"
)

// ReviewLengthConfig configures ingest.review_length.
type ReviewLengthConfig struct {
	Name      string `yaml:"name"`
	Column    string `yaml:"column"`
	NewColumn string `yaml:"new_column"`
}

// ReviewLength stores the word count of a text column.
type ReviewLength struct {
	base
	config ReviewLengthConfig
}

// NewReviewLength applies defaults to cfg
func NewReviewLength(cfg ReviewLengthConfig, logger *logrus.Logger) (*ReviewLength, error) {
	if cfg.Column == "" {
		cfg.Column = defaultTextColumn
	}
	if cfg.NewColumn == "" {
		cfg.NewColumn = "review_length"
	}
	return &ReviewLength{base: newBase(cfg.Name, "review_length", logger), config: cfg}, nil
}

// Run counts whitespace separated words; nil cells count zero.
func (t *ReviewLength) Run(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	start := time.Now()
	if err := t.requireColumn(data, t.config.Column); err != nil {
		return nil, err
	}
	texts, err := data.Strings(t.config.Column)
	if err != nil {
		return nil, err
	}
	lengths := make([]int64, len(texts))
	for i, s := range texts {
		lengths[i] = int64(len(strings.Fields(s)))
	}
	out, err := data.WithInts(t.config.NewColumn, lengths)
	if err != nil {
		return nil, err
	}
	t.done(data.NumRows(), out.NumRows(), start)
	return out, nil
}

// ColumnConfig configures tasks that only need a column.
type ColumnConfig struct {
	Name   string `yaml:"name"`
	Column string `yaml:"column"`
}

// RemoveNewlines replaces newlines with spaces.
type RemoveNewlines struct {
	base
	column string
}

// NewRemoveNewlines applies defaults to cfg
func NewRemoveNewlines(cfg ColumnConfig, logger *logrus.Logger) (*RemoveNewlines, error) {
	if cfg.Column == "" {
		cfg.Column = defaultTextColumn
	}
	return &RemoveNewlines{base: newBase(cfg.Name, "remove_newlines", logger), column: cfg.Column}, nil
}

// Run rewrites the column. Nil cells stay nil.
func (t *RemoveNewlines) Run(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	start := time.Now()
	out, err := mapStrings(data, t.base, t.column, func(s string) string {
		return strings.ReplaceAll(s, "\n", " ")
	})
	if err != nil {
		return nil, err
	}
	t.done(data.NumRows(), out.NumRows(), start)
	return out, nil
}

// VerifyEncodingConfig configures ingest.verify_encoding.
type VerifyEncodingConfig struct {
	Name     string  `yaml:"name"`
	Column   string  `yaml:"column"`
	Fraction float64 `yaml:"encoding_sample"`
	Seed     *int64  `yaml:"random_state"`
}

// VerifyEncoding checks a sample of the column for ill-formed UTF-8. When any
// is found the whole column is re-encoded with invalid sequences dropped.
type VerifyEncoding struct {
	base
	config VerifyEncodingConfig
}

// NewVerifyEncoding validates cfg
func NewVerifyEncoding(cfg VerifyEncodingConfig, logger *logrus.Logger) (*VerifyEncoding, error) {
	if cfg.Column == "" {
		cfg.Column = defaultTextColumn
	}
	if cfg.Fraction == 0 {
		cfg.Fraction = 1
	}
	if err := validateFraction("encoding_sample", cfg.Fraction); err != nil {
		return nil, err
	}
	return &VerifyEncoding{base: newBase(cfg.Name, "verify_encoding", logger), config: cfg}, nil
}

// Run verifies and, if needed, repairs the column.
func (t *VerifyEncoding) Run(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	start := time.Now()
	if err := t.requireColumn(data, t.config.Column); err != nil {
		return nil, err
	}
	values, err := data.Column(t.config.Column)
	if err != nil {
		return nil, err
	}

	found := false
	for _, i := range sampleIndices(len(values), t.config.Fraction, newRand(t.config.Seed)) {
		if s, ok := values[i].(string); ok && !utf8.ValidString(s) {
			found = true
			break
		}
	}
	if !found {
		t.logger.WithField("task", t.name).Debug("No encoding issues found in sample")
		t.done(data.NumRows(), data.NumRows(), start)
		return data, nil
	}

	t.logger.WithField("task", t.name).Debug("Encoding issues found in sample, re-encoding column")
	out, err := mapStrings(data, t.base, t.config.Column, CleanUTF8)
	if err != nil {
		return nil, err
	}
	t.done(data.NumRows(), out.NumRows(), start)
	return out, nil
}

// CleanUTF8 drops ill-formed UTF-8 sequences from s.
func CleanUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	dropInvalid := transform.Chain(
		runes.ReplaceIllFormed(),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })),
	)
	out, _, err := transform.String(dropInvalid, s)
	if err != nil {
		return strings.ToValidUTF8(s, "")
	}
	return out
}

// mapStrings applies fn to every non-nil cell of column.
func mapStrings(data *frame.Frame, b base, column string, fn func(string) string) (*frame.Frame, error) {
	if err := b.requireColumn(data, column); err != nil {
		return nil, err
	}
	values, err := data.Column(column)
	if err != nil {
		return nil, err
	}
	texts, err := data.Strings(column)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		out[i] = fn(texts[i])
	}
	return data.WithColumn(column, out)
}
