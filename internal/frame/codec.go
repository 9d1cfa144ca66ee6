package frame

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/inferloop/reviewqa/pkg/errors"
)

// ReadCSV decodes a CSV document with a header row. All cells are strings.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return New(nil, nil)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidFormat, "failed to read CSV header")
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidFormat, "failed to read CSV records")
	}
	return FromRecords(header, records)
}

// WriteCSV encodes the frame as CSV with a header row.
func WriteCSV(w io.Writer, f *Frame) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.names); err != nil {
		return err
	}
	record := make([]string, len(f.names))
	for r := 0; r < f.rows; r++ {
		for i, n := range f.names {
			record[i] = FormatValue(f.columns[n][r])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// splitDocument is the JSON layout: ordered columns plus row-major data.
type splitDocument struct {
	Columns []string        `json:"columns"`
	Data    [][]interface{} `json:"data"`
}

// ReadJSON decodes a frame written by WriteJSON.
func ReadJSON(r io.Reader) (*Frame, error) {
	var doc splitDocument
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidFormat, "failed to decode JSON frame")
	}

	columns := make(map[string][]interface{}, len(doc.Columns))
	for _, n := range doc.Columns {
		columns[n] = make([]interface{}, len(doc.Data))
	}
	for i, row := range doc.Data {
		if len(row) != len(doc.Columns) {
			return nil, errors.NewValidationError(errors.CodeInvalidFormat,
				fmt.Sprintf("row %d has %d values, expected %d", i, len(row), len(doc.Columns)))
		}
		for j, n := range doc.Columns {
			columns[n][i] = normalizeJSON(row[j])
		}
	}
	return New(doc.Columns, columns)
}

// WriteJSON encodes the frame as {"columns": [...], "data": [[...], ...]}.
func WriteJSON(w io.Writer, f *Frame) error {
	doc := splitDocument{Columns: f.names, Data: make([][]interface{}, f.rows)}
	for r := 0; r < f.rows; r++ {
		row := make([]interface{}, len(f.names))
		for i, n := range f.names {
			v := f.columns[n][r]
			if t, ok := v.(time.Time); ok {
				v = t.Format(time.RFC3339Nano)
			}
			row[i] = v
		}
		doc.Data[r] = row
	}
	return json.NewEncoder(w).Encode(doc)
}

// FormatValue renders a cell for text formats.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

func normalizeJSON(v interface{}) interface{} {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
