package anomaly

import (
	"sort"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/inferloop/reviewqa/pkg/errors"
)

// Built-in pattern names
const (
	PatternEmail            = "email"
	PatternURL              = "url"
	PatternPhone            = "phone"
	PatternHTMLTag          = "html_tag"
	PatternControlChar      = "control_char"
	PatternAccentedChar     = "accented_char"
	PatternNonASCIIChar     = "non_ascii_char"
	PatternExcessWhitespace = "excess_whitespace"
	PatternRepeatedChar     = "repeated_char"
	PatternRepeatedWord     = "repeated_word"
	PatternRepeatedSequence = "repeated_sequence"
	PatternSpecialChar      = "special_char"
	PatternPunctuation      = "punctuation"
	PatternEmoticon         = "emoticon"
	PatternDigit            = "digit"
)

// matchTimeout bounds backtracking on pathological input.
const matchTimeout = 2 * time.Second

// PatternInfo describes a named pattern. A nil DefaultReplacement marks a
// removal-only pattern.
type PatternInfo struct {
	Name               string  `json:"name"`
	Pattern            string  `json:"pattern"`
	DefaultReplacement *string `json:"default_replacement,omitempty"`
}

func replacement(s string) *string { return &s }

var builtinPatterns = []PatternInfo{
	{Name: PatternEmail, Pattern: `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`, DefaultReplacement: replacement("[EMAIL]")},
	{Name: PatternURL, Pattern: `(?:https?://|www\.)[^\s<>"]+`, DefaultReplacement: replacement("[URL]")},
	{Name: PatternPhone, Pattern: `(?:\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`, DefaultReplacement: replacement("[PHONE]")},
	{Name: PatternHTMLTag, Pattern: `<[^>]+>`, DefaultReplacement: replacement("")},
	{Name: PatternControlChar, Pattern: `[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`, DefaultReplacement: replacement("")},
	{Name: PatternAccentedChar, Pattern: `[À-ÖØ-öø-ÿĀ-ſ]`},
	{Name: PatternNonASCIIChar, Pattern: `[^\x00-\x7F]`},
	{Name: PatternExcessWhitespace, Pattern: `\s{2,}`, DefaultReplacement: replacement(" ")},
	{Name: PatternRepeatedChar, Pattern: `(.)\1{2,}`, DefaultReplacement: replacement("$1$1")},
	{Name: PatternRepeatedWord, Pattern: `(?i)\b(\w+)(?:\s+\1\b)+`, DefaultReplacement: replacement("$1")},
	{Name: PatternRepeatedSequence, Pattern: `(?i)\b(\w+(?:\s+\w+){1,3})(?:\s+\1\b)+`, DefaultReplacement: replacement("$1")},
	{Name: PatternSpecialChar, Pattern: `[^\w\s.,!?'"-]`, DefaultReplacement: replacement("")},
	{Name: PatternPunctuation, Pattern: `\p{P}`, DefaultReplacement: replacement("")},
	{Name: PatternEmoticon, Pattern: `(?:[:;=8]['-]?[)(\]\[dDpP/\\|]|<3)`, DefaultReplacement: replacement("")},
	{Name: PatternDigit, Pattern: `\d+`, DefaultReplacement: replacement("")},
}

// CatalogOption customizes a catalog at construction.
type CatalogOption func(patterns map[string]PatternInfo)

// WithPattern adds or overrides a named pattern.
func WithPattern(name, pattern string, defaultReplacement *string) CatalogOption {
	return func(patterns map[string]PatternInfo) {
		patterns[name] = PatternInfo{Name: name, Pattern: pattern, DefaultReplacement: defaultReplacement}
	}
}

// Catalog maps pattern names to regular expressions. The table is fixed at
// construction; compiled expressions are memoized.
type Catalog struct {
	patterns map[string]PatternInfo
	compiled map[string]*regexp2.Regexp
	mu       sync.RWMutex
}

// NewCatalog creates a catalog of the built-in patterns plus any options.
func NewCatalog(opts ...CatalogOption) *Catalog {
	patterns := make(map[string]PatternInfo, len(builtinPatterns)+len(opts))
	for _, p := range builtinPatterns {
		patterns[p.Name] = p
	}
	for _, opt := range opts {
		opt(patterns)
	}
	return &Catalog{
		patterns: patterns,
		compiled: make(map[string]*regexp2.Regexp, len(patterns)),
	}
}

// GetPattern returns the named pattern.
func (c *Catalog) GetPattern(name string) (PatternInfo, error) {
	info, ok := c.patterns[name]
	if !ok {
		return PatternInfo{}, errors.NewUnknownPatternError(name)
	}
	return info, nil
}

// Regexp returns the compiled expression for a named pattern.
func (c *Catalog) Regexp(name string) (*regexp2.Regexp, error) {
	c.mu.RLock()
	re, ok := c.compiled[name]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}

	info, err := c.GetPattern(name)
	if err != nil {
		return nil, err
	}
	re, err = regexp2.Compile(info.Pattern, regexp2.None)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig,
			"failed to compile pattern '"+name+"'")
	}
	re.MatchTimeout = matchTimeout

	c.mu.Lock()
	if existing, ok := c.compiled[name]; ok {
		re = existing
	} else {
		c.compiled[name] = re
	}
	c.mu.Unlock()
	return re, nil
}

// Names returns the pattern names in lexical order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.patterns))
	for name := range c.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Patterns returns every pattern ordered by name.
func (c *Catalog) Patterns() []PatternInfo {
	names := c.Names()
	out := make([]PatternInfo, len(names))
	for i, name := range names {
		out[i] = c.patterns[name]
	}
	return out
}

func matchAny(re *regexp2.Regexp, s string) (bool, error) {
	return re.MatchString(s)
}

func countMatches(re *regexp2.Regexp, s string) (int, error) {
	n := 0
	m, err := re.FindStringMatch(s)
	for m != nil && err == nil {
		n++
		m, err = re.FindNextMatch(m)
	}
	return n, err
}
