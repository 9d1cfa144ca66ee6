package helpers

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// AssertFloatEquals asserts that two floats are equal within tolerance
func AssertFloatEquals(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...interface{}) {
	t.Helper()

	if math.IsNaN(expected) && math.IsNaN(actual) {
		return
	}

	if math.IsInf(expected, 0) && math.IsInf(actual, 0) {
		assert.Equal(t, math.Signbit(expected), math.Signbit(actual), msgAndArgs...)
		return
	}

	diff := math.Abs(expected - actual)
	assert.True(t, diff <= tolerance,
		"expected %f to be within %f of %f (diff: %f). %s",
		actual, tolerance, expected, diff, fmt.Sprint(msgAndArgs...))
}

// AssertFloatSliceEquals asserts that two float slices are equal within tolerance
func AssertFloatSliceEquals(t *testing.T, expected, actual []float64, tolerance float64, msgAndArgs ...interface{}) {
	t.Helper()

	require.Equal(t, len(expected), len(actual), "slice length mismatch. %s", fmt.Sprint(msgAndArgs...))

	for i := range expected {
		AssertFloatEquals(t, expected[i], actual[i], tolerance,
			fmt.Sprintf("element %d: %s", i, fmt.Sprint(msgAndArgs...)))
	}
}

// AssertColumn asserts a frame column's cells.
func AssertColumn(t *testing.T, f *frame.Frame, name string, expected []interface{}) {
	t.Helper()

	values, err := f.Column(name)
	require.NoError(t, err, "column %s", name)
	assert.Equal(t, expected, values, "column %s", name)
}

// AssertFlags asserts a boolean flag column.
func AssertFlags(t *testing.T, f *frame.Frame, name string, expected []bool) {
	t.Helper()

	flags, err := f.Bools(name)
	require.NoError(t, err, "flag column %s", name)
	assert.Equal(t, expected, flags, "flag column %s", name)
}

// AssertRowsRemoved asserts that destination lost exactly removed rows.
func AssertRowsRemoved(t *testing.T, source, destination *frame.Frame, removed int) {
	t.Helper()
	assert.Equal(t, source.NumRows()-removed, destination.NumRows(), "rows removed")
}

// AssertErrorCode asserts that err carries an AppError with code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, code), "expected error code %s in %v", code, err)
}

// AssertHTTPResponse asserts HTTP response properties
func AssertHTTPResponse(t *testing.T, statusCode int, body []byte, expectedStatus int, expectedBodyContains ...string) {
	t.Helper()

	assert.Equal(t, expectedStatus, statusCode, "HTTP status code mismatch")

	bodyStr := string(body)
	for _, expected := range expectedBodyContains {
		assert.Contains(t, bodyStr, expected, "response body should contain expected text")
	}
}

// AssertJSONResponse asserts JSON response structure
func AssertJSONResponse(t *testing.T, body []byte, expectedFields map[string]interface{}) {
	t.Helper()

	var actual map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &actual), "response should be valid JSON")

	for field, expectedValue := range expectedFields {
		actualValue, exists := actual[field]
		assert.True(t, exists, "field %s should exist in response", field)

		if exists {
			assert.Equal(t, expectedValue, actualValue, "field %s value mismatch", field)
		}
	}
}

// AssertEventuallyTrue asserts that condition becomes true within timeout
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration, interval time.Duration, msgAndArgs ...interface{}) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}

	t.Fatalf("condition did not become true within %v. %s", timeout, fmt.Sprint(msgAndArgs...))
}

// AssertFileExists asserts that file exists and optionally checks content
func AssertFileExists(t *testing.T, filepath string, expectedContent ...string) {
	t.Helper()

	assert.FileExists(t, filepath, "file should exist")

	if len(expectedContent) > 0 {
		content, err := os.ReadFile(filepath)
		require.NoError(t, err, "should be able to read file")

		contentStr := string(content)
		for _, expected := range expectedContent {
			assert.Contains(t, contentStr, expected, "file should contain expected content")
		}
	}
}
