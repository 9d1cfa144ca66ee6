// Package synthetic generates app review datasets with known, injected data
// quality problems for tests, benchmarks and demos.
package synthetic

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// Columns of a generated review frame.
const (
	ColumnID      = "review_id"
	ColumnApp     = "app"
	ColumnContent = "content"
	ColumnScore   = "score"
	ColumnThumbs  = "thumbs_up"
	ColumnVersion = "app_version"
	ColumnDate    = "date"
)

// Anomaly kinds that can be injected.
const (
	AnomalyShort        = "short"
	AnomalyNonEnglish   = "non_english"
	AnomalyEmail        = "email"
	AnomalyURL          = "url"
	AnomalyNewline      = "newline"
	AnomalyAccented     = "accented"
	AnomalyDuplicate    = "duplicate"
	AnomalyScoreOutlier = "score_outlier"
	AnomalyMissingScore = "missing_score"
)

// DateLayout is the layout of the date column.
const DateLayout = "2006-01-02 15:04:05"

// Config controls the size and make-up of a generated dataset. Rates are
// per-row probabilities in [0, 1].
type Config struct {
	Rows      int                `json:"rows" yaml:"rows"`
	Seed      int64              `json:"seed" yaml:"seed"`
	Apps      []string           `json:"apps" yaml:"apps"`
	Versions  []string           `json:"versions" yaml:"versions"`
	End       time.Time          `json:"end" yaml:"end"`
	Days      int                `json:"days" yaml:"days"`
	Anomalies map[string]float64 `json:"anomalies" yaml:"anomalies"`
}

func DefaultConfig() *Config {
	return &Config{
		Rows:     1000,
		Seed:     1,
		Apps:     []string{"com.example.notes", "com.example.weather", "com.example.chat"},
		Versions: []string{"1.0.0", "1.1.0", "1.2.3", "2.0.0"},
		End:      time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Days:     730,
		Anomalies: map[string]float64{
			AnomalyShort:        0.05,
			AnomalyNonEnglish:   0.05,
			AnomalyEmail:        0.02,
			AnomalyURL:          0.02,
			AnomalyNewline:      0.05,
			AnomalyAccented:     0.02,
			AnomalyDuplicate:    0.03,
			AnomalyScoreOutlier: 0.01,
			AnomalyMissingScore: 0.01,
		},
	}
}

var anomalyKinds = []string{
	AnomalyShort, AnomalyNonEnglish, AnomalyEmail, AnomalyURL, AnomalyNewline,
	AnomalyAccented, AnomalyDuplicate, AnomalyScoreOutlier, AnomalyMissingScore,
}

// Validate checks sizes and rates.
func (c *Config) Validate() error {
	if c.Rows < 1 {
		return errors.NewValidationError(errors.CodeInvalidConfig, "rows must be positive")
	}
	if c.Days < 1 {
		return errors.NewValidationError(errors.CodeInvalidConfig, "days must be positive")
	}
	if len(c.Apps) == 0 || len(c.Versions) == 0 {
		return errors.NewValidationError(errors.CodeInvalidConfig, "apps and versions must not be empty")
	}
	for kind, rate := range c.Anomalies {
		if !knownKind(kind) {
			return errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("unknown anomaly kind '%s'", kind))
		}
		if rate < 0 || rate > 1 {
			return errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("rate for '%s' must be in [0, 1], got %v", kind, rate))
		}
	}
	return nil
}

func knownKind(kind string) bool {
	for _, k := range anomalyKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Result is a generated frame and the rows each anomaly was injected into.
type Result struct {
	Frame    *frame.Frame
	Injected map[string][]int
}

// Count returns how many rows received kind.
func (r *Result) Count(kind string) int {
	return len(r.Injected[kind])
}

type Generator struct {
	config *Config
	logger *logrus.Logger
	rand   *rand.Rand
}

func NewGenerator(config *Config, logger *logrus.Logger) (*Generator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Generator{
		config: config,
		logger: logger,
		rand:   rand.New(rand.NewSource(config.Seed)),
	}, nil
}

var (
	subjects   = []string{"this app", "the update", "the new design", "the widget", "sync", "the dark mode", "search", "the login screen"}
	verbs      = []string{"works", "crashes", "loads", "looks", "runs", "feels", "stopped working", "keeps freezing"}
	adverbs    = []string{"really well", "every time", "on my phone", "since yesterday", "after the update", "most of the time", "quite slowly", "perfectly"}
	closers    = []string{"five stars", "please fix it", "would recommend", "great job team", "very disappointed", "keep it up", "not worth it", "love it"}
	shortTexts = []string{"ok", "good", "bad", "meh", "nice app", "great", "no"}
	foreign    = []string{
		"Diese App ist wirklich sehr gut und funktioniert jeden Tag ohne Probleme",
		"La aplicación se cierra cada vez que intento abrir la configuración",
		"Application très pratique mais la dernière mise à jour est trop lente",
		"Questa applicazione è fantastica e la uso ogni giorno per lavoro",
		"O aplicativo parou de funcionar depois da última atualização",
	}
	accentedTexts = []string{"the café menu looks naïve but works", "résumé export is broken again", "great for my piñata shop"}
)

// Generate builds the frame. Injected anomalies are recorded per kind.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	n := g.config.Rows
	cols := map[string][]interface{}{
		ColumnID:      make([]interface{}, n),
		ColumnApp:     make([]interface{}, n),
		ColumnContent: make([]interface{}, n),
		ColumnScore:   make([]interface{}, n),
		ColumnThumbs:  make([]interface{}, n),
		ColumnVersion: make([]interface{}, n),
		ColumnDate:    make([]interface{}, n),
	}
	injected := make(map[string][]int)
	start := g.config.End.Add(-time.Duration(g.config.Days) * 24 * time.Hour)

	for i := 0; i < n; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		content := g.sentence()
		switch {
		case g.hit(AnomalyShort):
			content = pick(g.rand, shortTexts)
			injected[AnomalyShort] = append(injected[AnomalyShort], i)
		case g.hit(AnomalyNonEnglish):
			content = pick(g.rand, foreign)
			injected[AnomalyNonEnglish] = append(injected[AnomalyNonEnglish], i)
		case g.hit(AnomalyAccented):
			content = pick(g.rand, accentedTexts)
			injected[AnomalyAccented] = append(injected[AnomalyAccented], i)
		case i > 0 && g.hit(AnomalyDuplicate):
			content = cols[ColumnContent][i-1].(string)
			injected[AnomalyDuplicate] = append(injected[AnomalyDuplicate], i)
		}
		if g.hit(AnomalyEmail) {
			content += fmt.Sprintf(" contact me at user%d@example.com", i)
			injected[AnomalyEmail] = append(injected[AnomalyEmail], i)
		}
		if g.hit(AnomalyURL) {
			content += fmt.Sprintf(" see https://example.com/reviews/%d", i)
			injected[AnomalyURL] = append(injected[AnomalyURL], i)
		}
		if g.hit(AnomalyNewline) {
			content = strings.Replace(content, " ", "\n", 1)
			injected[AnomalyNewline] = append(injected[AnomalyNewline], i)
		}

		var score interface{} = int64(1 + g.rand.Intn(5))
		switch {
		case g.hit(AnomalyScoreOutlier):
			score = int64(50 + g.rand.Intn(50))
			injected[AnomalyScoreOutlier] = append(injected[AnomalyScoreOutlier], i)
		case g.hit(AnomalyMissingScore):
			score = nil
			injected[AnomalyMissingScore] = append(injected[AnomalyMissingScore], i)
		}

		offset := time.Duration(g.rand.Int63n(int64(g.config.Days) * int64(24*time.Hour)))
		cols[ColumnID][i] = fmt.Sprintf("r%07d", i)
		cols[ColumnApp][i] = pick(g.rand, g.config.Apps)
		cols[ColumnContent][i] = content
		cols[ColumnScore][i] = score
		cols[ColumnThumbs][i] = int64(g.rand.Intn(200))
		cols[ColumnVersion][i] = pick(g.rand, g.config.Versions)
		cols[ColumnDate][i] = start.Add(offset).Truncate(time.Second).Format(DateLayout)
	}

	f, err := frame.New([]string{ColumnID, ColumnApp, ColumnContent, ColumnScore, ColumnThumbs, ColumnVersion, ColumnDate}, cols)
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{"rows": n}
	for kind, rows := range injected {
		fields[kind] = len(rows)
	}
	g.logger.WithFields(fields).Debug("Generated synthetic reviews")
	return &Result{Frame: f, Injected: injected}, nil
}

// sentence builds a clean English review of at least five words.
func (g *Generator) sentence() string {
	return fmt.Sprintf("%s %s %s, %s",
		pick(g.rand, subjects), pick(g.rand, verbs), pick(g.rand, adverbs), pick(g.rand, closers))
}

func (g *Generator) hit(kind string) bool {
	rate := g.config.Anomalies[kind]
	return rate > 0 && g.rand.Float64() < rate
}

func pick(r *rand.Rand, from []string) string {
	return from[r.Intn(len(from))]
}
