package anomaly

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/pkg/errors"
)

func TestCatalogGetPattern(t *testing.T) {
	c := NewCatalog()

	info, err := c.GetPattern(PatternEmail)
	require.NoError(t, err)
	require.NotNil(t, info.DefaultReplacement)
	assert.Equal(t, "[EMAIL]", *info.DefaultReplacement)

	info, err = c.GetPattern(PatternAccentedChar)
	require.NoError(t, err)
	assert.Nil(t, info.DefaultReplacement)
}

func TestCatalogUnknownPattern(t *testing.T) {
	_, err := NewCatalog().GetPattern("nope")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnknownPattern))
	assert.ErrorIs(t, err, errors.ErrUnknownPattern)

	_, err = NewCatalog().Regexp("nope")
	assert.True(t, errors.IsConfigurationError(err))
}

func TestCatalogWithPatternOverrides(t *testing.T) {
	repl := "#"
	c := NewCatalog(WithPattern(PatternDigit, `[0-9]`, &repl), WithPattern("shout", `[A-Z]{4,}`, nil))

	info, err := c.GetPattern(PatternDigit)
	require.NoError(t, err)
	assert.Equal(t, `[0-9]`, info.Pattern)
	assert.Contains(t, c.Names(), "shout")
	assert.Len(t, c.Patterns(), len(builtinPatterns)+1)
}

func TestBuiltinPatternsCompile(t *testing.T) {
	c := NewCatalog()
	for _, name := range c.Names() {
		_, err := c.Regexp(name)
		assert.NoError(t, err, name)
	}
}

func TestCatalogMatches(t *testing.T) {
	c := NewCatalog()
	cases := []struct {
		pattern string
		text    string
		want    bool
	}{
		{PatternEmail, "write to me@example.com", true},
		{PatternURL, "see https://example.com/x", true},
		{PatternHTMLTag, "<b>bold</b>", true},
		{PatternRepeatedChar, "soooo good", true},
		{PatternRepeatedChar, "good", false},
		{PatternRepeatedWord, "very very good", true},
		{PatternNonASCIIChar, "plain ascii", false},
		{PatternNonASCIIChar, "naïve", true},
		{PatternAccentedChar, "café", true},
		{PatternEmoticon, "great app :)", true},
	}
	for _, tc := range cases {
		re, err := c.Regexp(tc.pattern)
		require.NoError(t, err)
		got, err := matchAny(re, tc.text)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s on %q", tc.pattern, tc.text)
	}
}

func TestRepeatedCharCollapsesToTwo(t *testing.T) {
	c := NewCatalog()
	re, err := c.Regexp(PatternRepeatedChar)
	require.NoError(t, err)
	info, _ := c.GetPattern(PatternRepeatedChar)

	out, err := re.Replace("soooo goooood", *info.DefaultReplacement, -1, -1)
	require.NoError(t, err)
	assert.Equal(t, "soo good", out)
}

func TestCatalogConcurrentCompile(t *testing.T) {
	c := NewCatalog()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Regexp(PatternURL)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
