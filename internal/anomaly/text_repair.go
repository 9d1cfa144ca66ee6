package anomaly

import (
	"context"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// specialAccents covers letters that carry no combining mark under NFD.
var specialAccents = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"đ", "d", "Đ", "D",
	"ð", "d", "Ð", "D",
	"ł", "l", "Ł", "L",
	"þ", "th", "Þ", "TH",
	"ı", "i",
)

var whitespaceRun = func() *regexp2.Regexp {
	re := regexp2.MustCompile(`[\s\u00A0\u200B]+`, regexp2.None)
	re.MatchTimeout = matchTimeout
	return re
}()

// RegexReplace substitutes every match of a catalog pattern.
type RegexReplace struct {
	base
	re          *regexp2.Regexp
	replacement string
}

// NewRegexReplace builds the repair. Params: pattern, replacement. Without an
// explicit replacement the pattern default is used; removal-only patterns have
// none and are rejected.
func NewRegexReplace(e env, spec interfaces.StrategySpec) (*RegexReplace, error) {
	b, err := newBase(e, constants.RepairRegexReplace, spec)
	if err != nil {
		return nil, err
	}
	p := params(spec.Params)
	pattern, err := p.str("pattern", "")
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		return nil, missingParam("pattern", b.key)
	}
	info, err := e.catalog.GetPattern(pattern)
	if err != nil {
		return nil, err
	}

	var replacement string
	switch v := spec.Params["replacement"].(type) {
	case string:
		replacement = v
	case nil:
		if info.DefaultReplacement == nil {
			return nil, errors.NewInvalidReplacementError(pattern, nil)
		}
		replacement = *info.DefaultReplacement
	default:
		return nil, errors.NewInvalidReplacementError(pattern, v)
	}

	re, err := e.catalog.Regexp(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexReplace{base: b, re: re, replacement: replacement}, nil
}

// Repair rewrites the column.
func (s *RegexReplace) Repair(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	return s.mapTexts(ctx, data, nil, func(text string) (string, error) {
		return s.re.Replace(text, s.replacement, -1, -1)
	})
}

// flaggedRepair rewrites only the rows its paired detector flags.
type flaggedRepair struct {
	base
	detect interfaces.DetectStrategy
	fix    func(string) (string, error)
}

func (s *flaggedRepair) Repair(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	if err := s.requireColumns(data, s.column); err != nil {
		return nil, err
	}
	data, err := EnsureFlag(ctx, data, s.newColumn, s.detect)
	if err != nil {
		return nil, err
	}
	flags, err := data.Bools(s.newColumn)
	if err != nil {
		return nil, err
	}
	return s.mapTexts(ctx, data, flags, s.fix)
}

// newPatternFlaggedRepair pairs fix with a detector chosen by detect_strategy,
// defaulting to a regex detect over defaultPattern. The accent repair uses the
// accented_char pattern, non_ascii the non_ascii_char one.
func newPatternFlaggedRepair(e env, spec interfaces.StrategySpec, key, defaultPattern string, fix func(string) (string, error), resolve detectResolver) (interfaces.RepairStrategy, error) {
	b, err := newBase(e, key, spec)
	if err != nil {
		return nil, err
	}
	withPattern := spec
	withPattern.Params = params(spec.Params).without()
	if !params(withPattern.Params).has("pattern") {
		withPattern.Params["pattern"] = defaultPattern
	}
	detect, err := pairedDetect(withPattern, b, constants.DetectRegex, resolve)
	if err != nil {
		return nil, err
	}
	return &flaggedRepair{base: b, detect: detect, fix: fix}, nil
}

// RemoveAccents decomposes text, drops combining marks, maps letters without a
// decomposition and recomposes.
func RemoveAccents(text string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, text)
	if err != nil {
		return "", err
	}
	return norm.NFC.String(specialAccents.Replace(stripped)), nil
}

// ToASCII applies compatibility decomposition and drops what remains outside
// ASCII.
func ToASCII(text string) (string, error) {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, text)
	return out, err
}

// WhitespaceRepair collapses whitespace runs, including no-break and
// zero-width spaces, and trims. It applies to every row.
type WhitespaceRepair struct {
	base
}

// NewWhitespaceRepair builds the repair.
func NewWhitespaceRepair(e env, spec interfaces.StrategySpec) (*WhitespaceRepair, error) {
	b, err := newBase(e, constants.RepairWhitespace, spec)
	if err != nil {
		return nil, err
	}
	return &WhitespaceRepair{base: b}, nil
}

// Repair rewrites the column.
func (s *WhitespaceRepair) Repair(ctx context.Context, data *frame.Frame) (*frame.Frame, error) {
	return s.mapTexts(ctx, data, nil, NormalizeWhitespace)
}

// NormalizeWhitespace collapses whitespace runs to one space and trims.
func NormalizeWhitespace(text string) (string, error) {
	out, err := whitespaceRun.Replace(text, " ", -1, -1)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
