package anomaly

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/inferloop/reviewqa/pkg/errors"
)

// params reads typed strategy parameters. Malformed values are configuration
// errors wrapping ErrInvalidValue.
type params map[string]interface{}

func (p params) has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

func (p params) str(key, def string) (string, error) {
	if !p.has(key) {
		return def, nil
	}
	s, err := cast.ToStringE(p[key])
	if err != nil {
		return "", invalidParam(key, p[key], "expected a string")
	}
	return s, nil
}

func (p params) float(key string, def float64) (float64, error) {
	if !p.has(key) {
		return def, nil
	}
	f, err := cast.ToFloat64E(p[key])
	if err != nil {
		return 0, invalidParam(key, p[key], "expected a number")
	}
	return f, nil
}

func (p params) optFloat(key string) (*float64, error) {
	if !p.has(key) {
		return nil, nil
	}
	f, err := p.float(key, 0)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (p params) integer(key string, def int) (int, error) {
	if !p.has(key) {
		return def, nil
	}
	i, err := cast.ToIntE(p[key])
	if err != nil {
		return 0, invalidParam(key, p[key], "expected an integer")
	}
	return i, nil
}

func (p params) boolean(key string, def bool) (bool, error) {
	if !p.has(key) {
		return def, nil
	}
	b, err := cast.ToBoolE(p[key])
	if err != nil {
		return false, invalidParam(key, p[key], "expected a boolean")
	}
	return b, nil
}

func (p params) stringList(key string) ([]string, error) {
	if !p.has(key) {
		return nil, nil
	}
	s, err := cast.ToStringSliceE(p[key])
	if err != nil {
		return nil, invalidParam(key, p[key], "expected a list of strings")
	}
	return s, nil
}

func (p params) without(keys ...string) params {
	out := make(params, len(p))
	for k, v := range p {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func (p params) threshold(defaultType string) (ThresholdSpec, error) {
	value, err := p.float("threshold", 0)
	if err != nil {
		return ThresholdSpec{}, err
	}
	kind, err := p.str("threshold_type", defaultType)
	if err != nil {
		return ThresholdSpec{}, err
	}
	unit, err := p.str("unit", "")
	if err != nil {
		return ThresholdSpec{}, err
	}
	spec := ThresholdSpec{Value: value, Type: kind, Unit: unit}
	if !p.has("threshold") {
		return spec, errors.NewInvalidThresholdSpecError("threshold is required")
	}
	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

func invalidParam(key string, value interface{}, reason string) error {
	appErr := errors.NewConfigurationError(errors.CodeInvalidConfig, fmt.Sprintf("invalid parameter '%s'", key))
	appErr.Cause = errors.InvalidValue(key, value, reason)
	return appErr
}

func missingParam(key, strategy string) error {
	appErr := errors.NewConfigurationError(errors.CodeInvalidConfig,
		fmt.Sprintf("strategy '%s' requires parameter '%s'", strategy, key))
	appErr.Cause = errors.MissingKey(key)
	return appErr
}
