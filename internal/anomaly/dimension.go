package anomaly

import (
	"fmt"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// dimensionValidator checks a task config against its dimension's rules.
type dimensionValidator func(cfg TaskConfig) error

var dimensionValidators = map[string]dimensionValidator{
	constants.DimensionText:        requireColumn,
	constants.DimensionNumeric:     requireColumn,
	constants.DimensionInterval:    requireColumn,
	constants.DimensionDiscrete:    requireColumn,
	constants.DimensionCategorical: validateCategorical,
	constants.DimensionNominal:     requireColumn,
}

// ValidateDimension runs the rules registered for cfg.Dimension.
func ValidateDimension(cfg TaskConfig) error {
	validate, ok := dimensionValidators[cfg.Dimension]
	if !ok {
		return errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("unknown data dimension '%s'", cfg.Dimension))
	}
	return validate(cfg)
}

func requireColumn(cfg TaskConfig) error {
	if cfg.Column == "" && len(cfg.Columns) == 0 {
		return missingParam("column", cfg.Name)
	}
	return nil
}

// validateCategorical needs valid_categories whenever the categorical
// detector is in play.
func validateCategorical(cfg TaskConfig) error {
	if err := requireColumn(cfg); err != nil {
		return err
	}
	if !usesCategoricalDetect(cfg) {
		return nil
	}
	categories, err := params(cfg.Params).stringList("valid_categories")
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		return errors.NewInvalidCategoriesError(cfg.Column)
	}
	return nil
}

func usesCategoricalDetect(cfg TaskConfig) bool {
	if cfg.Mode == constants.TaskModeDetect {
		return cfg.DetectStrategy == constants.DetectCategorical
	}
	switch cfg.RepairStrategy {
	case constants.RepairRemove, constants.RepairReplace:
		detect := cfg.DetectStrategy
		if detect == "" {
			detect, _ = params(cfg.Params).str("detect_strategy", constants.DetectCategorical)
		}
		return detect == constants.DetectCategorical
	}
	return false
}
