package stage

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/inferloop/reviewqa/internal/frame"
)

// Summary compares a stage's source and destination data.
type Summary struct {
	RowsBefore     int      `json:"rows_before"`
	RowsAfter      int      `json:"rows_after"`
	RowsRemoved    int      `json:"rows_removed"`
	PercentRemoved float64  `json:"percent_removed"`
	RowsModified   int      `json:"rows_modified"`
	ColumnsAdded   []string `json:"columns_added,omitempty"`
	ColumnsDropped []string `json:"columns_dropped,omitempty"`
}

// Summarize counts removed rows and rows modified across the shared columns.
// A destination row counts as modified when its shared-column values match no
// unclaimed source row.
func Summarize(source, destination *frame.Frame) Summary {
	sum := Summary{
		RowsBefore: source.NumRows(),
		RowsAfter:  destination.NumRows(),
	}
	if sum.RowsAfter < sum.RowsBefore {
		sum.RowsRemoved = sum.RowsBefore - sum.RowsAfter
	}
	if sum.RowsBefore > 0 {
		sum.PercentRemoved = float64(sum.RowsRemoved) / float64(sum.RowsBefore) * 100
	}

	inSource := make(map[string]bool)
	for _, n := range source.Names() {
		inSource[n] = true
	}
	var shared []string
	for _, n := range destination.Names() {
		if inSource[n] {
			shared = append(shared, n)
			delete(inSource, n)
		} else {
			sum.ColumnsAdded = append(sum.ColumnsAdded, n)
		}
	}
	for _, n := range source.Names() {
		if inSource[n] {
			sum.ColumnsDropped = append(sum.ColumnsDropped, n)
		}
	}
	if len(shared) == 0 {
		return sum
	}

	remaining := make(map[string]int, source.NumRows())
	for _, key := range rowKeys(source, shared) {
		remaining[key]++
	}
	for _, key := range rowKeys(destination, shared) {
		if remaining[key] > 0 {
			remaining[key]--
			continue
		}
		sum.RowsModified++
	}
	return sum
}

func rowKeys(f *frame.Frame, columns []string) []string {
	keys := make([]string, f.NumRows())
	parts := make([]string, len(columns))
	for r := range keys {
		for i, c := range columns {
			v := f.Value(c, r)
			if v == nil {
				parts[i] = "\x00"
				continue
			}
			parts[i] = frame.FormatValue(v)
		}
		keys[r] = strings.Join(parts, "\x1f")
	}
	return keys
}

// Write prints the summary as an aligned table.
func (s Summary) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Rows before\t%d\n", s.RowsBefore)
	fmt.Fprintf(tw, "Rows after\t%d\n", s.RowsAfter)
	fmt.Fprintf(tw, "Rows removed\t%d (%.2f%%)\n", s.RowsRemoved, s.PercentRemoved)
	fmt.Fprintf(tw, "Rows modified\t%d\n", s.RowsModified)
	if len(s.ColumnsAdded) > 0 {
		fmt.Fprintf(tw, "Columns added\t%s\n", strings.Join(s.ColumnsAdded, ", "))
	}
	if len(s.ColumnsDropped) > 0 {
		fmt.Fprintf(tw, "Columns dropped\t%s\n", strings.Join(s.ColumnsDropped, ", "))
	}
	return tw.Flush()
}
