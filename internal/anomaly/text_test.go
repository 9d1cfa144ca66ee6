package anomaly

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

func TestRegexDetect(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	data := textFrame("mail me at a@b.io", "nothing here", nil)

	flags := detect(t, f, constants.DetectRegex, data, map[string]interface{}{"pattern": PatternEmail})
	assert.Equal(t, []bool{true, false, false}, flags)
}

func TestDetectMissingColumnFailsBeforeProcessing(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	data := frame.MustNew([]string{"other"}, map[string][]interface{}{"other": {"x"}})

	for _, key := range f.AvailableDetect() {
		p := map[string]interface{}{"pattern": PatternEmail, "threshold": 1}
		s, err := f.NewDetect(key, interfaces.StrategySpec{Column: "content", NewColumn: "flag", Params: p})
		require.NoError(t, err, key)
		_, err = s.Detect(testContext(t), data)
		require.Error(t, err, key)
		assert.True(t, errors.IsSchemaError(err), key)
		assert.ErrorIs(t, err, errors.ErrMissingColumn)
		assert.Contains(t, err.Error(), "content")
		assert.Contains(t, err.Error(), key)
	}
}

func TestRegexThresholdCount(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	flags := detect(t, f, constants.DetectRegexThreshold, textFrame("aaa bbb aaa", "aaa bbb"), map[string]interface{}{
		"pattern":        "aaa",
		"threshold":      1,
		"threshold_type": constants.ThresholdCount,
	})
	assert.Equal(t, []bool{true, false}, flags)
}

func TestRegexThresholdProportionEmptyValue(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	flags := detect(t, f, constants.DetectRegexThreshold, textFrame("", "1 2 3 x", nil), map[string]interface{}{
		"pattern":        PatternDigit,
		"threshold":      0.5,
		"threshold_type": constants.ThresholdProportion,
		"unit":           constants.UnitWord,
	})
	assert.Equal(t, []bool{false, true, false}, flags)
}

func TestRegexThresholdRejectsInvalidSpec(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	_, err := f.NewDetect(constants.DetectRegexThreshold, interfaces.StrategySpec{Column: "content", Params: map[string]interface{}{
		"pattern":        PatternDigit,
		"threshold":      0.5,
		"threshold_type": constants.ThresholdProportion,
	}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidThresholdSpec))

	_, err = f.NewDetect(constants.DetectRegexThreshold, interfaces.StrategySpec{Column: "content", Params: map[string]interface{}{
		"pattern": PatternDigit,
	}})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidThresholdSpec))
}

func TestShortReviewDetect(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	data := textFrame("ok", "fine app", "really great app overall", "")

	assert.Equal(t, []bool{true, true, false, true}, detect(t, f, constants.DetectShortReview, data, nil))
	assert.Equal(t, []bool{false, false, true, false}, detect(t, f, constants.DetectShortReview, data, map[string]interface{}{
		"threshold":                  3,
		"detect_less_than_threshold": false,
	}))
}

func TestAccentRepair(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	out := repair(t, f, constants.RepairAccent, textFrame("café RESUMÉ naïve", "plain", "straße"), nil)
	assert.Equal(t, []interface{}{"cafe RESUME naive", "plain", "strasse"}, column(t, out, "content"))
}

func TestAccentRepairOnlyTouchesFlaggedRows(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	// U+1EBD lies outside the accented_char ranges, so the row is never flagged.
	out := repair(t, f, constants.RepairAccent, textFrame("\u1ebdxtra", "crème"), nil)
	assert.Equal(t, []interface{}{"\u1ebdxtra", "creme"}, column(t, out, "content"))
}

func TestRemoveAccentsAndASCII(t *testing.T) {
	s, err := RemoveAccents("café RESUMÉ naïve")
	require.NoError(t, err)
	assert.Equal(t, "cafe RESUME naive", s)

	s, err = ToASCII("ﬁne “quotes” café ☺")
	require.NoError(t, err)
	assert.Equal(t, "fine quotes cafe ", s)
}

func TestNonASCIIRepair(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	out := repair(t, f, constants.RepairNonASCII, textFrame("ﬁve stars ★", "ascii only"), nil)
	assert.Equal(t, []interface{}{"five stars ", "ascii only"}, column(t, out, "content"))
}

func TestWhitespaceRepair(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	out := repair(t, f, constants.RepairWhitespace, textFrame("hello \u200bworld   ", "a  b", nil), nil)
	assert.Equal(t, []interface{}{"hello world", "a b", nil}, column(t, out, "content"))
}

func TestRegexReplace(t *testing.T) {
	f := testFactory(t, constants.DimensionText)

	out := repair(t, f, constants.RepairRegexReplace, textFrame("mail a@b.io now"), map[string]interface{}{"pattern": PatternEmail})
	assert.Equal(t, []interface{}{"mail [EMAIL] now"}, column(t, out, "content"))

	out = repair(t, f, constants.RepairRegexReplace, textFrame("mail a@b.io now"), map[string]interface{}{
		"pattern":     PatternEmail,
		"replacement": "<redacted>",
	})
	assert.Equal(t, []interface{}{"mail <redacted> now"}, column(t, out, "content"))
}

func TestRegexReplaceInvalidReplacement(t *testing.T) {
	f := testFactory(t, constants.DimensionText)

	_, err := f.NewRepair(constants.RepairRegexReplace, interfaces.StrategySpec{Column: "content", Params: map[string]interface{}{
		"pattern": PatternAccentedChar,
	}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidReplacement))

	_, err = f.NewRepair(constants.RepairRegexReplace, interfaces.StrategySpec{Column: "content", Params: map[string]interface{}{
		"pattern":     PatternEmail,
		"replacement": 42,
	}})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidReplacement))
}

func TestRegexRemoveDropsEveryFlaggedRow(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	data := textFrame("visit www.spam.io", "good app", "http://x.io deal", "love it")
	p := map[string]interface{}{"pattern": PatternURL}

	flags := detect(t, f, constants.DetectRegex, data, p)
	out := repair(t, f, constants.RepairRegexRemove, data, p)

	kept := column(t, out, "content")
	values := column(t, data, "content")
	for i, flagged := range flags {
		if flagged {
			assert.NotContains(t, kept, values[i])
		} else {
			assert.Contains(t, kept, values[i])
		}
	}
	assert.Equal(t, 2, out.NumRows())
}

func TestRemoveUsesExistingFlagColumn(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	data := textFrame("ok", "really great app overall")
	data, err := data.WithBools("flag", []bool{false, true})
	require.NoError(t, err)

	out := repair(t, f, constants.RepairShortReview, data, nil)
	assert.Equal(t, []interface{}{"ok"}, column(t, out, "content"))
}

func TestRegexThresholdRemoveRedetects(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	data := textFrame("aaa bbb aaa", "bbb")
	data, err := data.WithBools("flag", []bool{false, true})
	require.NoError(t, err)

	out := repair(t, f, constants.RepairRegexThresholdRemove, data, map[string]interface{}{
		"pattern":   "aaa",
		"threshold": 1,
	})
	assert.Equal(t, []interface{}{"bbb"}, column(t, out, "content"))
}

func TestCustomRemoveWithAnyDetector(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	out := repair(t, f, constants.RepairCustomRemove, textFrame("ok", "a longer review text"), map[string]interface{}{
		"detect_strategy": constants.DetectShortReview,
		"threshold":       2,
	})
	assert.Equal(t, []interface{}{"a longer review text"}, column(t, out, "content"))

	_, err := f.NewRepair(constants.RepairCustomRemove, interfaces.StrategySpec{Column: "content", Params: map[string]interface{}{
		"detect_strategy": "zscore",
	}})
	assert.True(t, errors.HasCode(err, errors.CodeStrategyNotFound))
}

type failingDetect struct{ err error }

func (d failingDetect) Detect(context.Context, *frame.Frame) (*frame.Frame, error) {
	return nil, d.err
}

func TestPairedDetectFailurePropagates(t *testing.T) {
	lost := fmt.Errorf("detector lost its model")
	f := testFactory(t, constants.DimensionText)
	require.NoError(t, f.RegisterDetect("failing", func(interfaces.StrategySpec) (interfaces.DetectStrategy, error) {
		return failingDetect{err: lost}, nil
	}))

	for _, key := range []string{constants.RepairCustomRemove, constants.RepairAccent, constants.RepairNonASCII} {
		s, err := f.NewRepair(key, interfaces.StrategySpec{Column: "content", NewColumn: "flag", Params: map[string]interface{}{
			"detect_strategy": "failing",
		}})
		require.NoError(t, err, key)

		out, err := s.Repair(testContext(t), textFrame("café", "plain"))
		assert.ErrorIs(t, err, lost, key)
		assert.Nil(t, out, key)
	}
}

func TestNonRemovalRepairsKeepRowCount(t *testing.T) {
	f := testFactory(t, constants.DimensionText)
	data := textFrame("café  ok", "  spaced out ", "mail a@b.io", "naïve ★", nil)

	cases := map[string]map[string]interface{}{
		constants.RepairRegexReplace: {"pattern": PatternEmail},
		constants.RepairAccent:       nil,
		constants.RepairNonASCII:     nil,
		constants.RepairWhitespace:   nil,
	}
	for key, p := range cases {
		out := repair(t, f, key, data, p)
		assert.Equal(t, data.NumRows(), out.NumRows(), key)
	}
}

func TestDistributedMatchesLocal(t *testing.T) {
	registry := testRegistry(t)
	local, err := registry.Factory(constants.DimensionText, false)
	require.NoError(t, err)
	dist, err := registry.Factory(constants.DimensionText, true)
	require.NoError(t, err)
	assert.Equal(t, constants.ModeDistributed, dist.Mode())

	values := make([]interface{}, 2000)
	for i := range values {
		values[i] = fmt.Sprintf("review %d café  www.x%d.io", i, i%7)
		if i%3 == 0 {
			values[i] = "plain text"
		}
	}
	data := textFrame(values...)
	spec := interfaces.StrategySpec{Column: "content", NewColumn: "flag", Params: map[string]interface{}{"pattern": PatternURL}}

	for _, key := range []string{constants.RepairRegexRemove, constants.RepairAccent, constants.RepairWhitespace} {
		l, err := local.NewRepair(key, spec)
		require.NoError(t, err)
		d, err := dist.NewRepair(key, spec)
		require.NoError(t, err)

		want, err := l.Repair(testContext(t), data)
		require.NoError(t, err)
		got, err := d.Repair(testContext(t), data)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), key)
	}
}
