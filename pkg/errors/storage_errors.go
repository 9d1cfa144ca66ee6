package errors

import (
	"fmt"
	"strings"
	"time"
)

// Storage-specific error definitions
var (
	ErrStorageConnectionLost    = NewStorageError("STORAGE_CONNECTION_LOST", "storage connection lost")
	ErrStorageConnectionTimeout = NewStorageError("STORAGE_CONNECTION_TIMEOUT", "storage connection timeout")
	ErrStoragePermissionDenied  = NewStorageError("STORAGE_PERMISSION_DENIED", "storage permission denied")
	ErrStorageObjectNotFound    = NewStorageError("STORAGE_OBJECT_NOT_FOUND", "storage object not found")
	ErrStorageDataCorrupted     = NewStorageError("STORAGE_DATA_CORRUPTED", "storage data corrupted")
	ErrStorageConfigInvalid     = NewStorageError("STORAGE_CONFIG_INVALID", "storage configuration invalid")
)

// StorageError represents a storage-specific error with additional context
type StorageError struct {
	*AppError
	StorageType  string        `json:"storage_type,omitempty"` // "file", "s3", "redis", "sqlite", ...
	Location     string        `json:"location,omitempty"`     // bucket, directory or database
	AssetID      string        `json:"asset_id,omitempty"`
	Operation    string        `json:"operation,omitempty"` // "exists", "get", "add", "remove"
	Duration     time.Duration `json:"duration,omitempty"`
	RetryAttempt int           `json:"retry_attempt,omitempty"`
	Transient    bool          `json:"transient"`
}

// NewStorageError creates a new storage error
func NewStorageError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Code:       code,
		Message:    message,
		Retryable:  isRetryableStorageError(code),
		HTTPStatus: getStorageErrorHTTPStatus(code),
	}
}

// WrapStorageError wraps a storage error with additional context
func WrapStorageError(err error, operation, storageType string) *StorageError {
	if err == nil {
		return nil
	}

	return &StorageError{
		AppError:    WrapError(err, ErrorTypeStorage, CodeStorageError, fmt.Sprintf("%s %s failed", storageType, operation)),
		StorageType: storageType,
		Operation:   operation,
		Transient:   isTransientStorageError(err),
	}
}

// NewDatasetNotFoundError reports a missing dataset asset.
func NewDatasetNotFoundError(assetID, storageType string) *StorageError {
	return &StorageError{
		AppError: &AppError{
			Type:       ErrorTypeStorage,
			Code:       CodeDataNotFound,
			Message:    fmt.Sprintf("dataset '%s' not found", assetID),
			Cause:      ErrDatasetNotFound,
			HTTPStatus: 404,
		},
		StorageType: storageType,
		AssetID:     assetID,
		Operation:   "get",
	}
}

// NewStorageConnectionError creates a storage connection error
func NewStorageConnectionError(storageType, location string, err error) *StorageError {
	return &StorageError{
		AppError: &AppError{
			Type:       ErrorTypeStorage,
			Code:       CodeConnectionFailed,
			Message:    fmt.Sprintf("failed to connect to %s", storageType),
			Cause:      err,
			Retryable:  true,
			HTTPStatus: 503,
		},
		StorageType: storageType,
		Location:    location,
		Operation:   "connect",
		Transient:   true,
	}
}

// WithAssetID adds the dataset asset id to the storage error
func (se *StorageError) WithAssetID(assetID string) *StorageError {
	se.AssetID = assetID
	return se
}

// WithLocation adds the bucket, directory or database to the storage error
func (se *StorageError) WithLocation(location string) *StorageError {
	se.Location = location
	return se
}

// WithDuration adds operation duration to the storage error
func (se *StorageError) WithDuration(duration time.Duration) *StorageError {
	se.Duration = duration
	return se
}

// Unwrap exposes the embedded AppError so errors.As finds both layers.
func (se *StorageError) Unwrap() error {
	return se.AppError
}

// ShouldRetry checks if the operation should be retried based on the error
func (se *StorageError) ShouldRetry() bool {
	return se.Retryable || se.Transient
}

// GetRetryDelay calculates the retry delay with exponential backoff
func (se *StorageError) GetRetryDelay(attempt int) time.Duration {
	if !se.ShouldRetry() {
		return 0
	}

	baseDelay := 500 * time.Millisecond
	maxDelay := 30 * time.Second
	if se.Code == "STORAGE_CONNECTION_TIMEOUT" {
		baseDelay = 2 * time.Second
	}

	delay := time.Duration(float64(baseDelay) * float64(uint(1)<<uint(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func isRetryableStorageError(code string) bool {
	switch code {
	case "STORAGE_CONNECTION_LOST", "STORAGE_CONNECTION_TIMEOUT", CodeConnectionFailed:
		return true
	default:
		return false
	}
}

func getStorageErrorHTTPStatus(code string) int {
	switch code {
	case "STORAGE_OBJECT_NOT_FOUND", CodeDataNotFound:
		return 404
	case "STORAGE_PERMISSION_DENIED":
		return 403
	case "STORAGE_CONFIG_INVALID":
		return 400
	case "STORAGE_CONNECTION_LOST", "STORAGE_CONNECTION_TIMEOUT":
		return 503
	default:
		return 500
	}
}

func isTransientStorageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection reset", "connection refused", "temporarily unavailable", "broken pipe"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
