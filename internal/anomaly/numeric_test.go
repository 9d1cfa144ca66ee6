package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

func TestThresholdDetectFlagsNonNumeric(t *testing.T) {
	f := testFactory(t, constants.DimensionNumeric)
	data := textFrame(1, 7, "abc", nil, -1, "3.5", "")

	flags := detect(t, f, constants.DetectThreshold, data, map[string]interface{}{"min": 0, "max": 5})
	assert.Equal(t, []bool{false, true, true, false, true, false, false}, flags)
}

func TestThresholdDetectNeedsABound(t *testing.T) {
	f := testFactory(t, constants.DimensionNumeric)
	_, err := f.NewDetect(constants.DetectThreshold, interfaces.StrategySpec{Column: "content"})
	require.Error(t, err)

	_, err = f.NewDetect(constants.DetectThreshold, interfaces.StrategySpec{Column: "content", Params: map[string]interface{}{"min": 5, "max": 1}})
	require.Error(t, err)
}

func TestZScoreDetect(t *testing.T) {
	f := testFactory(t, constants.DimensionNumeric)
	data := textFrame(10, 10, 10, 10, 10, 10, 10, 10, 10, 100)

	flags := detect(t, f, constants.DetectZScore, data, map[string]interface{}{"threshold": 2.5})
	assert.Equal(t, []bool{false, false, false, false, false, false, false, false, false, true}, flags)

	// A constant column has no spread and nothing to flag.
	flags = detect(t, f, constants.DetectZScore, textFrame(4, 4, 4), nil)
	assert.Equal(t, []bool{false, false, false}, flags)
}

func TestRobustZScoreDetect(t *testing.T) {
	f := testFactory(t, constants.DimensionInterval)
	flags := detect(t, f, constants.DetectRobustZScore, textFrame(10, 11, 12, 13, 100), nil)
	assert.Equal(t, []bool{false, false, false, false, true}, flags)
}

func TestIQRDetect(t *testing.T) {
	f := testFactory(t, constants.DimensionNumeric)
	flags := detect(t, f, constants.DetectIQR, textFrame(1, 2, 3, 4, 5, 6, 7, 8, 9, 100), nil)
	assert.Equal(t, []bool{false, false, false, false, false, false, false, false, false, true}, flags)
}

func TestNonIntegerOnlyForDiscrete(t *testing.T) {
	f := testFactory(t, constants.DimensionDiscrete)
	flags := detect(t, f, constants.DetectNonInteger, textFrame(1, 2.5, "3", "3.25"), nil)
	assert.Equal(t, []bool{false, true, false, true}, flags)

	numeric := testFactory(t, constants.DimensionNumeric)
	_, err := numeric.GetDetectStrategy(constants.DetectNonInteger)
	assert.Error(t, err)
}

func TestClipRepair(t *testing.T) {
	f := testFactory(t, constants.DimensionNumeric)
	data := textFrame(1, 7, "abc", nil, -1)

	out := repair(t, f, constants.RepairClip, data, map[string]interface{}{"min": 0, "max": 5})
	assert.Equal(t, []interface{}{1, 5.0, "abc", nil, 0.0}, column(t, out, "content"))
	assert.Equal(t, data.NumRows(), out.NumRows())

	_, err := f.NewRepair(constants.RepairClip, interfaces.StrategySpec{Column: "content", Params: map[string]interface{}{
		"detect_strategy": constants.DetectZScore,
		"max":             5,
	}})
	assert.Error(t, err)
}

func TestImputeRepairs(t *testing.T) {
	f := testFactory(t, constants.DimensionNumeric)
	p := map[string]interface{}{"detect_strategy": constants.DetectThreshold, "max": 10}

	out := repair(t, f, constants.RepairImputeMean, textFrame(1, 2, 6, 100, "bad"), p)
	assert.Equal(t, []interface{}{1, 2, 6, 3.0, 3.0}, column(t, out, "content"))

	out = repair(t, f, constants.RepairImputeMedian, textFrame(1, 2, 6, 100), p)
	assert.Equal(t, []interface{}{1, 2, 6, 2.0}, column(t, out, "content"))
}

func TestNumericRemove(t *testing.T) {
	f := testFactory(t, constants.DimensionNumeric)
	out := repair(t, f, constants.RepairRemove, textFrame(1, 50, 2), map[string]interface{}{"max": 10})
	assert.Equal(t, []interface{}{1, 2}, column(t, out, "content"))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
}
