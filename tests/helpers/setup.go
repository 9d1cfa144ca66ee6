package helpers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/app"
	"github.com/inferloop/reviewqa/internal/dataset"
	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/internal/synthetic"
)

// RawReviewsAsset is the asset id SeedReviews stores under by default.
const RawReviewsAsset = "dataset-raw-landing-reviews"

// TestEnvironment provides a test environment with common utilities
type TestEnvironment struct {
	Logger  *logrus.Logger
	Context context.Context
	Cancel  context.CancelFunc
	TempDir string
	T       *testing.T
}

// NewTestEnvironment creates a test environment. Logs are discarded unless
// the test runs with -v; everything is released when the test ends.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	env := &TestEnvironment{
		Logger:  GetTestLogger(t),
		Context: ctx,
		Cancel:  cancel,
		TempDir: t.TempDir(),
		T:       t,
	}
	t.Cleanup(env.Cleanup)
	return env
}

// Cleanup performs test cleanup
func (env *TestEnvironment) Cleanup() {
	if env.Cancel != nil {
		env.Cancel()
	}
}

// WriteFile writes content under the temp dir and returns its path.
func (env *TestEnvironment) WriteFile(name, content string) string {
	env.T.Helper()
	path := filepath.Join(env.TempDir, name)
	require.NoError(env.T, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(env.T, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// WriteConfig writes an application config whose workspace and profile
// database live in the temp dir. extra is appended verbatim.
func (env *TestEnvironment) WriteConfig(extra string) string {
	env.T.Helper()
	return env.WriteFile("config.yaml", fmt.Sprintf(`log:
  level: error
workspace:
  base_path: %s
profile:
  dsn: %s
%s`, filepath.Join(env.TempDir, "workspace"), filepath.Join(env.TempDir, "profile.db"), extra))
}

// NewApp builds an application from cfgFile; it is closed with the test.
func (env *TestEnvironment) NewApp(cfgFile string) *app.App {
	env.T.Helper()
	cfg, err := app.Load(cfgFile)
	require.NoError(env.T, err)
	a, err := app.New(env.Context, cfg, env.Logger)
	require.NoError(env.T, err)
	env.T.Cleanup(a.Close)
	return a
}

// SeedReviews stores f as the raw landing reviews asset.
func (env *TestEnvironment) SeedReviews(repo dataset.Repository, f *frame.Frame) *dataset.Dataset {
	env.T.Helper()
	ds, err := dataset.NewFactory(env.Logger).FromFrame("raw", "landing", "reviews", f, "", "")
	require.NoError(env.T, err)
	require.NoError(env.T, repo.Add(env.Context, ds))
	return ds
}

// GenerateReviews builds a synthetic review frame with the given anomaly rates.
func (env *TestEnvironment) GenerateReviews(rows int, anomalies map[string]float64) *synthetic.Result {
	env.T.Helper()
	cfg := synthetic.DefaultConfig()
	cfg.Rows = rows
	cfg.Anomalies = anomalies
	g, err := synthetic.NewGenerator(cfg, env.Logger)
	require.NoError(env.T, err)
	res, err := g.Generate(env.Context)
	require.NoError(env.T, err)
	return res
}

// ReviewFrame builds a one-column frame of review contents.
func ReviewFrame(contents ...interface{}) *frame.Frame {
	return frame.MustNew([]string{synthetic.ColumnContent}, map[string][]interface{}{
		synthetic.ColumnContent: contents,
	})
}

// GetTestLogger returns a logger that only writes under -v.
func GetTestLogger(t *testing.T) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	if testing.Verbose() {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetOutput(io.Discard)
	}
	return logger
}

// GetTestContext returns a context with timeout for tests
func GetTestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// SkipIfShort skips long tests under -short.
func SkipIfShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}
}
