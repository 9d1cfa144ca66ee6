package anomaly

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/internal/language"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// keywordClassifier accepts every text unless it contains one of reject;
// texts containing fail return an error.
type keywordClassifier struct {
	name   string
	reject []string
	fail   string
}

func (c *keywordClassifier) Name() string { return c.name }

func (c *keywordClassifier) IsLanguage(text string) (bool, error) {
	if c.fail != "" && strings.Contains(text, c.fail) {
		return false, errors.New("classifier unavailable")
	}
	for _, r := range c.reject {
		if strings.Contains(text, r) {
			return false, nil
		}
	}
	return true, nil
}

func testDeps(t *testing.T, primary, secondary interfaces.LanguageClassifier) Deps {
	t.Helper()
	return Deps{
		Catalog: NewCatalog(WithPattern("aaa", "aaa", nil)),
		Logger:  quietLogger(),
		Languages: func() (*language.Pair, error) {
			return language.NewPair(primary, secondary)
		},
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	primary := &keywordClassifier{name: "primary", reject: []string{"bonjour", "hola"}, fail: "boom"}
	secondary := &keywordClassifier{name: "secondary", reject: []string{"bonjour"}}
	registry, err := NewRegistry(testDeps(t, primary, secondary))
	require.NoError(t, err)
	return registry
}

func testFactory(t *testing.T, dimension string) *Factory {
	t.Helper()
	f, err := testRegistry(t).Factory(dimension, false)
	require.NoError(t, err)
	return f
}

func textFrame(values ...interface{}) *frame.Frame {
	return frame.MustNew([]string{"content"}, map[string][]interface{}{"content": values})
}

func detect(t *testing.T, f *Factory, key string, data *frame.Frame, p map[string]interface{}) []bool {
	t.Helper()
	s, err := f.NewDetect(key, interfaces.StrategySpec{Column: "content", NewColumn: "flag", Params: p})
	require.NoError(t, err)
	out, err := s.Detect(testContext(t), data)
	require.NoError(t, err)
	require.Equal(t, data.NumRows(), out.NumRows())
	flags, err := out.Bools("flag")
	require.NoError(t, err)
	return flags
}

func repair(t *testing.T, f *Factory, key string, data *frame.Frame, p map[string]interface{}) *frame.Frame {
	t.Helper()
	s, err := f.NewRepair(key, interfaces.StrategySpec{Column: "content", NewColumn: "flag", Params: p})
	require.NoError(t, err)
	out, err := s.Repair(testContext(t), data)
	require.NoError(t, err)
	return out
}

func column(t *testing.T, data *frame.Frame, name string) []interface{} {
	t.Helper()
	values, err := data.Column(name)
	require.NoError(t, err)
	return values
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
