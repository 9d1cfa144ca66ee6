package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

func TestCategoricalRequiresCategories(t *testing.T) {
	f := testFactory(t, constants.DimensionCategorical)
	for _, p := range []map[string]interface{}{nil, {"valid_categories": []string{}}} {
		_, err := f.NewDetect(constants.DetectCategorical, interfaces.StrategySpec{Column: "content", Params: p})
		require.Error(t, err)
		assert.True(t, errors.IsConfigurationError(err))
		assert.ErrorIs(t, err, errors.ErrInvalidCategories)
	}
}

func TestCategoricalDetect(t *testing.T) {
	f := testFactory(t, constants.DimensionNominal)
	flags := detect(t, f, constants.DetectCategorical, textFrame("a", "b", "z", nil), map[string]interface{}{
		"valid_categories": []interface{}{"a", "b"},
	})
	assert.Equal(t, []bool{false, false, true, false}, flags)
}

func TestCategoryReplace(t *testing.T) {
	f := testFactory(t, constants.DimensionCategorical)
	p := map[string]interface{}{"valid_categories": []string{"Games", "Tools"}}

	out := repair(t, f, constants.RepairReplace, textFrame("Games", "Gamez", "Tools"), p)
	assert.Equal(t, []interface{}{"Games", "unknown", "Tools"}, column(t, out, "content"))

	p["replacement"] = "Other"
	out = repair(t, f, constants.RepairReplace, textFrame("Gamez"), p)
	assert.Equal(t, []interface{}{"Other"}, column(t, out, "content"))
}

func TestCategoricalRemove(t *testing.T) {
	f := testFactory(t, constants.DimensionCategorical)
	out := repair(t, f, constants.RepairRemove, textFrame("Games", "Gamez"), map[string]interface{}{
		"valid_categories": []string{"Games"},
	})
	assert.Equal(t, 1, out.NumRows())
}
