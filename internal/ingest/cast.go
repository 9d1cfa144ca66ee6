package ingest

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// Cast targets accepted by ingest.cast_types.
const (
	CastInt      = "int"
	CastFloat    = "float"
	CastString   = "string"
	CastBool     = "bool"
	CastDatetime = "datetime"
)

// CastTypesConfig configures ingest.cast_types.
type CastTypesConfig struct {
	Name  string            `yaml:"name"`
	Types map[string]string `yaml:"datatypes"`
}

// CastTypes converts columns to the configured types.
type CastTypes struct {
	base
	columns []string
	types   map[string]string
}

// NewCastTypes validates every target type up front.
func NewCastTypes(cfg CastTypesConfig, logger *logrus.Logger) (*CastTypes, error) {
	if len(cfg.Types) == 0 {
		return nil, errors.MissingKey("datatypes")
	}
	columns := make([]string, 0, len(cfg.Types))
	for column, typ := range cfg.Types {
		if _, ok := casters[typ]; !ok {
			return nil, errors.InvalidValue("datatypes."+column, typ, "expected int, float, string, bool or datetime")
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return &CastTypes{base: newBase(cfg.Name, "cast_types", logger), columns: columns, types: cfg.Types}, nil
}

var casters = map[string]func(interface{}) (interface{}, error){
	CastInt: func(v interface{}) (interface{}, error) {
		if f, ok := v.(float64); ok {
			return int64(f), nil
		}
		return cast.ToInt64E(v)
	},
	CastFloat:    func(v interface{}) (interface{}, error) { return cast.ToFloat64E(v) },
	CastString:   func(v interface{}) (interface{}, error) { return cast.ToStringE(v) },
	CastBool:     func(v interface{}) (interface{}, error) { return cast.ToBoolE(v) },
	CastDatetime: func(v interface{}) (interface{}, error) { return cast.ToTimeE(v) },
}

// Run casts every configured column. A column absent from the frame fails the
// task. Nil cells stay nil.
func (t *CastTypes) Run(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	start := time.Now()
	out := data
	for _, column := range t.columns {
		if err := t.requireColumn(out, column); err != nil {
			return nil, err
		}
		values, err := out.Column(column)
		if err != nil {
			return nil, err
		}
		typ := t.types[column]
		convert := casters[typ]
		converted := make([]interface{}, len(values))
		for i, v := range values {
			if v == nil {
				continue
			}
			c, err := convert(v)
			if err != nil {
				return nil, columnTypeError(column, i, v, typ)
			}
			converted[i] = c
		}
		if out, err = out.WithColumn(column, converted); err != nil {
			return nil, err
		}
	}
	t.done(data.NumRows(), out.NumRows(), start)
	return out, nil
}
