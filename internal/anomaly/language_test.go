package anomaly

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/observability/metrics"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

func TestNonEnglishNeedsBothClassifiersToAgree(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	// primary rejects "hola" and "bonjour"; secondary only "bonjour".
	flags := detect(t, f, constants.DetectNonEnglish, textFrame("hello world", "hola amigo", "bonjour tout le monde", ""), nil)
	assert.Equal(t, []bool{false, false, true, false}, flags)
}

func TestNonEnglishFailsOpen(t *testing.T) {
	var logs bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logs)
	logger.SetLevel(logrus.WarnLevel)

	pm, err := metrics.NewPipelineMetrics(nil, logger)
	require.NoError(t, err)

	deps := testDeps(t,
		&keywordClassifier{name: "primary", fail: "boom"},
		&keywordClassifier{name: "secondary"},
	)
	deps.Logger = logger
	deps.Metrics = pm
	f, err := NewFactory(constants.DimensionText, constants.ModeLocal, deps)
	require.NoError(t, err)

	flags := detect(t, f, constants.DetectNonEnglish, textFrame("boom one", "fine", "boom two"), nil)
	assert.Equal(t, []bool{false, false, false}, flags)
	assert.Contains(t, logs.String(), "failure rate above threshold")
}

func TestNonEnglishWithoutClassifiers(t *testing.T) {
	deps := testDeps(t, nil, nil)
	deps.Languages = nil
	f, err := NewFactory(constants.DimensionText, constants.ModeLocal, deps)
	require.NoError(t, err)

	_, err = f.NewDetect(constants.DetectNonEnglish, interfaces.StrategySpec{Column: "content"})
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestNonEnglishRepairRemovesForeignRows(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	out := repair(t, f, constants.RepairNonEnglish, textFrame("hello", "bonjour", "hola"), nil)
	assert.Equal(t, []interface{}{"hello", "hola"}, column(t, out, "content"))
}
