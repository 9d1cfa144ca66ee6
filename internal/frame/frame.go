// Package frame provides the in-memory tabular engine the pipeline runs on.
//
// A Frame is immutable by convention: every operation returns a new Frame that
// shares unchanged column slices with its parent. Callers must not mutate the
// slices returned by Column.
package frame

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/inferloop/reviewqa/pkg/errors"
)

// groupKeySep joins multi-column group keys.
const groupKeySep = "\x1f"

// nullKey stands for a nil cell in group keys, keeping it apart from "".
const nullKey = "\x00"

// Frame is a column-oriented table of rows x named columns.
type Frame struct {
	names   []string
	columns map[string][]interface{}
	rows    int
}

// New builds a frame from ordered column names and their values.
func New(names []string, columns map[string][]interface{}) (*Frame, error) {
	f := &Frame{
		names:   make([]string, 0, len(names)),
		columns: make(map[string][]interface{}, len(names)),
		rows:    -1,
	}
	for _, name := range names {
		values, ok := columns[name]
		if !ok {
			return nil, missingColumn(name)
		}
		if _, dup := f.columns[name]; dup {
			return nil, errors.NewValidationError(errors.CodeInvalidInput, fmt.Sprintf("duplicate column '%s'", name))
		}
		if f.rows >= 0 && len(values) != f.rows {
			return nil, lengthMismatch(name, len(values), f.rows)
		}
		f.rows = len(values)
		f.names = append(f.names, name)
		f.columns[name] = values
	}
	if f.rows < 0 {
		f.rows = 0
	}
	return f, nil
}

// MustNew is New for fixtures; it panics on error.
func MustNew(names []string, columns map[string][]interface{}) *Frame {
	f, err := New(names, columns)
	if err != nil {
		panic(err)
	}
	return f
}

// FromRecords builds a frame of string cells from a header and row records.
func FromRecords(header []string, records [][]string) (*Frame, error) {
	columns := make(map[string][]interface{}, len(header))
	for _, name := range header {
		columns[name] = make([]interface{}, len(records))
	}
	for i, record := range records {
		if len(record) != len(header) {
			return nil, errors.NewValidationError(errors.CodeInvalidFormat,
				fmt.Sprintf("record %d has %d fields, header has %d", i+1, len(record), len(header)))
		}
		for j, name := range header {
			columns[name][i] = record[j]
		}
	}
	return New(header, columns)
}

// NumRows returns the row count.
func (f *Frame) NumRows() int {
	return f.rows
}

// Names returns a copy of the column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Has reports whether the frame has the column.
func (f *Frame) Has(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Column returns the raw values of a column.
func (f *Frame) Column(name string) ([]interface{}, error) {
	values, ok := f.columns[name]
	if !ok {
		return nil, missingColumn(name)
	}
	return values, nil
}

// Value returns a single cell, or nil when the column is absent.
func (f *Frame) Value(name string, row int) interface{} {
	values, ok := f.columns[name]
	if !ok || row < 0 || row >= len(values) {
		return nil
	}
	return values[row]
}

// WithColumn adds or replaces a column.
func (f *Frame) WithColumn(name string, values []interface{}) (*Frame, error) {
	if len(f.names) > 0 && len(values) != f.rows {
		return nil, lengthMismatch(name, len(values), f.rows)
	}
	out := f.shallowCopy()
	if _, exists := out.columns[name]; !exists {
		out.names = append(out.names, name)
	}
	out.columns[name] = values
	out.rows = len(values)
	return out, nil
}

// WithStrings adds or replaces a string column.
func (f *Frame) WithStrings(name string, values []string) (*Frame, error) {
	col := make([]interface{}, len(values))
	for i, v := range values {
		col[i] = v
	}
	return f.WithColumn(name, col)
}

// WithBools adds or replaces a boolean column.
func (f *Frame) WithBools(name string, values []bool) (*Frame, error) {
	col := make([]interface{}, len(values))
	for i, v := range values {
		col[i] = v
	}
	return f.WithColumn(name, col)
}

// WithFloats adds or replaces a float column.
func (f *Frame) WithFloats(name string, values []float64) (*Frame, error) {
	col := make([]interface{}, len(values))
	for i, v := range values {
		col[i] = v
	}
	return f.WithColumn(name, col)
}

// WithInts adds or replaces an integer column.
func (f *Frame) WithInts(name string, values []int64) (*Frame, error) {
	col := make([]interface{}, len(values))
	for i, v := range values {
		col[i] = v
	}
	return f.WithColumn(name, col)
}

// Drop removes columns; absent names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := &Frame{columns: make(map[string][]interface{}, len(f.columns)), rows: f.rows}
	for _, n := range f.names {
		if drop[n] {
			continue
		}
		out.names = append(out.names, n)
		out.columns[n] = f.columns[n]
	}
	return out
}

// Rename renames a column, keeping its position.
func (f *Frame) Rename(oldName, newName string) (*Frame, error) {
	if !f.Has(oldName) {
		return nil, missingColumn(oldName)
	}
	if oldName == newName {
		return f, nil
	}
	if f.Has(newName) {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, fmt.Sprintf("column '%s' already exists", newName))
	}
	out := f.shallowCopy()
	for i, n := range out.names {
		if n == oldName {
			out.names[i] = newName
		}
	}
	out.columns[newName] = out.columns[oldName]
	delete(out.columns, oldName)
	return out, nil
}

// Filter keeps the rows where keep is true.
func (f *Frame) Filter(keep []bool) (*Frame, error) {
	if len(keep) != f.rows {
		return nil, lengthMismatch("filter mask", len(keep), f.rows)
	}
	indices := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			indices = append(indices, i)
		}
	}
	return f.Take(indices), nil
}

// Take returns the rows at the given indices, in that order.
func (f *Frame) Take(indices []int) *Frame {
	out := &Frame{
		names:   f.Names(),
		columns: make(map[string][]interface{}, len(f.columns)),
		rows:    len(indices),
	}
	for _, n := range f.names {
		src := f.columns[n]
		dst := make([]interface{}, len(indices))
		for i, idx := range indices {
			dst[i] = src[idx]
		}
		out.columns[n] = dst
	}
	return out
}

// Head returns at most the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n >= f.rows {
		return f
	}
	if n < 0 {
		n = 0
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return f.Take(indices)
}

// Strings returns a column as strings; nil cells become "".
func (f *Frame) Strings(name string) ([]string, error) {
	values, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, columnType(name, i, v, "string")
		}
		out[i] = s
	}
	return out, nil
}

// Floats returns a column as float64 values plus a validity mask. Cells that
// are nil, empty or not numeric are reported invalid and read as 0.
func (f *Frame) Floats(name string) ([]float64, []bool, error) {
	values, err := f.Column(name)
	if err != nil {
		return nil, nil, err
	}
	out := make([]float64, len(values))
	valid := make([]bool, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		x, err := cast.ToFloat64E(v)
		if err != nil {
			continue
		}
		out[i] = x
		valid[i] = true
	}
	return out, valid, nil
}

// Bools returns a column as booleans.
func (f *Frame) Bools(name string) ([]bool, error) {
	values, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, columnType(name, i, v, "bool")
		}
		out[i] = b
	}
	return out, nil
}

// Times returns a column as timestamps.
func (f *Frame) Times(name string) ([]time.Time, error) {
	values, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, columnType(name, i, v, "datetime")
		}
		out[i] = t
	}
	return out, nil
}

// GroupKeys returns, per row, the composite key of the given columns. Nil
// cells and empty strings form different groups.
func (f *Frame) GroupKeys(by []string) ([]string, error) {
	cols := make([][]string, len(by))
	for i, name := range by {
		s, err := f.Strings(name)
		if err != nil {
			return nil, err
		}
		values := f.columns[name]
		for r, v := range values {
			if v == nil {
				s[r] = nullKey
			}
		}
		cols[i] = s
	}
	keys := make([]string, f.rows)
	parts := make([]string, len(by))
	for r := 0; r < f.rows; r++ {
		for i := range by {
			parts[i] = cols[i][r]
		}
		keys[r] = strings.Join(parts, groupKeySep)
	}
	return keys, nil
}

// GroupMean averages column over the groups formed by the by columns. Invalid
// numeric cells are skipped.
func (f *Frame) GroupMean(by []string, column string) (map[string]float64, error) {
	keys, err := f.GroupKeys(by)
	if err != nil {
		return nil, err
	}
	values, valid, err := f.Floats(column)
	if err != nil {
		return nil, err
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, k := range keys {
		if !valid[i] {
			continue
		}
		sums[k] += values[i]
		counts[k]++
	}
	means := make(map[string]float64, len(sums))
	for k, s := range sums {
		means[k] = s / float64(counts[k])
	}
	return means, nil
}

// LeftJoinColumn attaches a per-group value to every row. Rows whose group is
// missing from lookup get nil.
func (f *Frame) LeftJoinColumn(by []string, lookup map[string]float64, name string) (*Frame, error) {
	keys, err := f.GroupKeys(by)
	if err != nil {
		return nil, err
	}
	col := make([]interface{}, len(keys))
	for i, k := range keys {
		if v, ok := lookup[k]; ok {
			col[i] = v
		}
	}
	return f.WithColumn(name, col)
}

// Schema returns column name to the Go type name of its first non-nil value.
func (f *Frame) Schema() map[string]string {
	schema := make(map[string]string, len(f.names))
	for _, n := range f.names {
		schema[n] = "null"
		for _, v := range f.columns[n] {
			if v != nil {
				schema[n] = reflect.TypeOf(v).String()
				break
			}
		}
	}
	return schema
}

// Equal reports whether both frames have the same columns, order and cells.
func (f *Frame) Equal(other *Frame) bool {
	if other == nil || f.rows != other.rows || !reflect.DeepEqual(f.names, other.names) {
		return false
	}
	for _, n := range f.names {
		if !reflect.DeepEqual(f.columns[n], other.columns[n]) {
			return false
		}
	}
	return true
}

// SortedNames returns column names in lexical order.
func (f *Frame) SortedNames() []string {
	names := f.Names()
	sort.Strings(names)
	return names
}

func (f *Frame) shallowCopy() *Frame {
	out := &Frame{
		names:   f.Names(),
		columns: make(map[string][]interface{}, len(f.columns)+1),
		rows:    f.rows,
	}
	for k, v := range f.columns {
		out.columns[k] = v
	}
	return out
}

func missingColumn(name string) *errors.AppError {
	return (&errors.AppError{
		Type:       errors.ErrorTypeSchema,
		Code:       errors.CodeMissingColumn,
		Message:    fmt.Sprintf("column '%s' not found", name),
		Cause:      errors.ErrMissingColumn,
		HTTPStatus: 400,
	}).WithContext("column", name)
}

func lengthMismatch(name string, got, want int) *errors.AppError {
	return &errors.AppError{
		Type:       errors.ErrorTypeSchema,
		Code:       errors.CodeLengthMismatch,
		Message:    fmt.Sprintf("column '%s' has %d values, frame has %d rows", name, got, want),
		Cause:      errors.ErrLengthMismatch,
		HTTPStatus: 400,
	}
}

func columnType(name string, row int, v interface{}, want string) *errors.AppError {
	return &errors.AppError{
		Type:       errors.ErrorTypeSchema,
		Code:       errors.CodeColumnType,
		Message:    fmt.Sprintf("column '%s' row %d: cannot read %v (%T) as %s", name, row, v, v, want),
		Cause:      errors.ErrColumnType,
		HTTPStatus: 400,
	}
}
