package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingKey           = errors.New("missing configuration key")
	ErrInvalidValue         = errors.New("invalid configuration value")

	// Strategy errors
	ErrStrategyNotFound   = errors.New("strategy not found")
	ErrUnknownPattern     = errors.New("unknown regex pattern")
	ErrInvalidThreshold   = errors.New("invalid threshold specification")
	ErrInvalidReplacement = errors.New("invalid replacement value")
	ErrInvalidCategories  = errors.New("valid categories must not be empty")

	// Schema errors
	ErrMissingColumn  = errors.New("column does not exist")
	ErrColumnType     = errors.New("column has unexpected type")
	ErrLengthMismatch = errors.New("column length does not match row count")

	// Storage errors
	ErrStorageWriteFailed = errors.New("storage write failed")
	ErrStorageReadFailed  = errors.New("storage read failed")
	ErrStorageTimeout     = errors.New("storage operation timeout")
	ErrDatasetNotFound    = errors.New("dataset not found")
	ErrConnectionFailed   = errors.New("connection failed")

	// Job/Task errors
	ErrTaskFailed       = errors.New("task failed")
	ErrStageFailed      = errors.New("stage failed")
	ErrJobCancelled     = errors.New("job cancelled")
	ErrClassifierFailed = errors.New("language classifier failed")

	// Internal errors
	ErrInternal       = errors.New("internal error")
	ErrNotImplemented = errors.New("not implemented")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeSchema        ErrorType = "schema"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeJob           ErrorType = "job"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Retryable:  false,
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Cause:      err,
		Retryable:  isRetryable(err),
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// IsConfigurationError reports whether err carries a configuration AppError.
func IsConfigurationError(err error) bool {
	return hasType(err, ErrorTypeConfiguration)
}

// IsSchemaError reports whether err carries a schema AppError.
func IsSchemaError(err error) bool {
	return hasType(err, ErrorTypeSchema)
}

// HasCode reports whether any AppError in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

func hasType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// getDefaultHTTPStatus returns the default HTTP status for an error type
func getDefaultHTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation, ErrorTypeConfiguration, ErrorTypeSchema:
		return 400
	case ErrorTypeStorage:
		return 404
	case ErrorTypeJob:
		return 422
	default:
		return 500
	}
}

// isRetryable determines if an error is retryable
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrConnectionFailed):
		return true
	case errors.Is(err, ErrStorageTimeout):
		return true
	default:
		return false
	}
}

// ErrorResponse represents an error response for APIs
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeInvalidInput  = "INVALID_INPUT"
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeInvalidType   = "INVALID_TYPE"
	CodeInvalidFormat = "INVALID_FORMAT"

	// Configuration error codes
	CodeStrategyNotFound     = "STRATEGY_NOT_FOUND"
	CodeUnknownPattern       = "UNKNOWN_PATTERN"
	CodeInvalidThresholdSpec = "INVALID_THRESHOLD_SPEC"
	CodeInvalidReplacement   = "INVALID_REPLACEMENT"
	CodeInvalidCategories    = "INVALID_CATEGORIES"
	CodeStageConfiguration   = "STAGE_CONFIGURATION"

	// Schema error codes
	CodeMissingColumn  = "MISSING_COLUMN"
	CodeColumnType     = "COLUMN_TYPE"
	CodeLengthMismatch = "LENGTH_MISMATCH"

	// Storage error codes
	CodeStorageError     = "STORAGE_ERROR"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeDataNotFound     = "DATA_NOT_FOUND"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"

	// Job error codes
	CodeTaskFailed   = "TASK_FAILED"
	CodeStageFailed  = "STAGE_FAILED"
	CodeJobCancelled = "JOB_CANCELLED"

	// Internal error codes
	CodeInternalError  = "INTERNAL_ERROR"
	CodeNotImplemented = "NOT_IMPLEMENTED"
)
