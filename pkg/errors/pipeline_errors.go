package errors

import (
	"fmt"
)

// NewMissingColumnError reports a column absent from the dataset schema.
func NewMissingColumnError(column, strategy string) *AppError {
	return (&AppError{
		Type:       ErrorTypeSchema,
		Code:       CodeMissingColumn,
		Message:    fmt.Sprintf("column '%s' does not exist in the dataset (strategy '%s')", column, strategy),
		Cause:      ErrMissingColumn,
		HTTPStatus: 400,
	}).WithContext("column", column).WithContext("strategy", strategy)
}

// NewInvalidThresholdSpecError reports a malformed threshold/unit combination.
func NewInvalidThresholdSpecError(details string) *AppError {
	return &AppError{
		Type:       ErrorTypeConfiguration,
		Code:       CodeInvalidThresholdSpec,
		Message:    "invalid threshold specification",
		Details:    details,
		Cause:      ErrInvalidThreshold,
		HTTPStatus: 400,
	}
}

// NewStrategyNotFoundError reports a strategy key that no factory registers.
func NewStrategyNotFoundError(key, dimension, mode string) *AppError {
	return (&AppError{
		Type:       ErrorTypeConfiguration,
		Code:       CodeStrategyNotFound,
		Message:    fmt.Sprintf("strategy '%s' is not registered for dimension '%s' (%s)", key, dimension, mode),
		Cause:      ErrStrategyNotFound,
		HTTPStatus: 400,
	}).WithContext("key", key).WithContext("dimension", dimension).WithContext("mode", mode)
}

// NewInvalidReplacementError reports a replacement that does not resolve to a string.
func NewInvalidReplacementError(pattern string, value interface{}) *AppError {
	return (&AppError{
		Type:       ErrorTypeConfiguration,
		Code:       CodeInvalidReplacement,
		Message:    fmt.Sprintf("invalid replacement value %v for pattern '%s'", value, pattern),
		Cause:      ErrInvalidReplacement,
		HTTPStatus: 400,
	}).WithContext("pattern", pattern)
}

// NewUnknownPatternError reports a pattern name missing from the regex catalog.
func NewUnknownPatternError(name string) *AppError {
	return (&AppError{
		Type:       ErrorTypeConfiguration,
		Code:       CodeUnknownPattern,
		Message:    fmt.Sprintf("regex pattern '%s' is not registered", name),
		Cause:      ErrUnknownPattern,
		HTTPStatus: 400,
	}).WithContext("pattern", name)
}

// NewInvalidCategoriesError reports a categorical strategy built without categories.
func NewInvalidCategoriesError(column string) *AppError {
	return (&AppError{
		Type:       ErrorTypeConfiguration,
		Code:       CodeInvalidCategories,
		Message:    fmt.Sprintf("valid_categories must be a non-empty list for column '%s'", column),
		Cause:      ErrInvalidCategories,
		HTTPStatus: 400,
	}).WithContext("column", column)
}

// NewStageConfigurationError wraps a missing-key or invalid-value error raised while
// decoding a stage definition.
func NewStageConfigurationError(stage string, cause error) *AppError {
	return (&AppError{
		Type:       ErrorTypeConfiguration,
		Code:       CodeStageConfiguration,
		Message:    fmt.Sprintf("invalid configuration for stage '%s'", stage),
		Cause:      cause,
		HTTPStatus: 400,
	}).WithContext("stage", stage)
}

// MissingKey builds the error wrapped by a stage configuration error when a key is absent.
func MissingKey(key string) error {
	return fmt.Errorf("%w: '%s'", ErrMissingKey, key)
}

// InvalidValue builds the error wrapped by a stage configuration error for a bad value.
func InvalidValue(key string, value interface{}, reason string) error {
	return fmt.Errorf("%w: '%s'=%v: %s", ErrInvalidValue, key, value, reason)
}

// TaskExecutionError names the task that aborted a stage run.
type TaskExecutionError struct {
	*AppError
	Stage string `json:"stage"`
	Index int    `json:"index"`
	Task  string `json:"task"`
}

// NewTaskExecutionError wraps the error returned by the task at position index.
func NewTaskExecutionError(stage string, index int, task string, cause error) *TaskExecutionError {
	return &TaskExecutionError{
		AppError: &AppError{
			Type:       ErrorTypeJob,
			Code:       CodeTaskFailed,
			Message:    fmt.Sprintf("stage '%s' aborted at task %d (%s)", stage, index, task),
			Cause:      cause,
			Retryable:  false,
			HTTPStatus: 422,
		},
		Stage: stage,
		Index: index,
		Task:  task,
	}
}

// Unwrap returns the embedded AppError, whose cause is the task's own error.
func (e *TaskExecutionError) Unwrap() error {
	return e.AppError
}
