package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/reviewqa/internal/app"
	"github.com/inferloop/reviewqa/internal/dataset"
	"github.com/inferloop/reviewqa/internal/profile"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// Migration modes.
const (
	ModeSchema   = "schema"
	ModeProfiles = "profiles"
	ModeAssets   = "assets"
)

type MigrationConfig struct {
	Mode          string           `yaml:"mode"`
	Source        profile.DBConfig `yaml:"source"`
	Target        profile.DBConfig `yaml:"target"`
	SourceApp     string           `yaml:"source_app"`
	TargetApp     string           `yaml:"target_app"`
	Phases        []string         `yaml:"phases"`
	BatchSize     int              `yaml:"batch_size"`
	Workers       int              `yaml:"workers"`
	DryRun        bool             `yaml:"dry_run"`
	ValidateAfter bool             `yaml:"validate"`
	Overwrite     bool             `yaml:"overwrite"`
}

// Validate checks the settings the selected mode needs.
func (c *MigrationConfig) Validate() error {
	switch c.Mode {
	case ModeSchema:
	case ModeProfiles:
		if c.Source.DSN == "" || c.Target.DSN == "" {
			return errors.NewValidationError(errors.CodeInvalidConfig, "profile migration requires source and target dsn")
		}
	case ModeAssets:
		if c.SourceApp == "" || c.TargetApp == "" {
			return errors.NewValidationError(errors.CodeInvalidConfig, "asset migration requires source and target app configs")
		}
	default:
		return errors.NewValidationError(errors.CodeInvalidConfig, fmt.Sprintf("unknown migration mode '%s'", c.Mode))
	}
	if c.BatchSize < 1 {
		return errors.NewValidationError(errors.CodeInvalidConfig, "batch size must be positive")
	}
	if c.Workers < 1 {
		return errors.NewValidationError(errors.CodeInvalidConfig, "workers must be positive")
	}
	return nil
}

type MigrationStats struct {
	StartTime        time.Time
	EndTime          time.Time
	RecordsProcessed int64
	RecordsSkipped   int64
	RecordsFailed    int64
}

type Migrator struct {
	config *MigrationConfig
	logger *logrus.Logger
}

func main() {
	var (
		mode      = flag.String("mode", ModeSchema, "Migration mode: schema, profiles, assets")
		srcDriver = flag.String("source-driver", "sqlite", "Source profile database driver")
		srcDSN    = flag.String("source", "", "Source profile database dsn")
		dstDriver = flag.String("target-driver", "sqlite", "Target profile database driver")
		dstDSN    = flag.String("target", "", "Target profile database dsn")
		srcApp    = flag.String("source-app", "", "Application config of the source dataset repository")
		dstApp    = flag.String("target-app", "", "Application config of the target dataset repository")
		phases    = flag.String("phases", "", "Comma separated phases to copy (default all)")
		batchSize = flag.Int("batch-size", 500, "Profiles written per transaction")
		workers   = flag.Int("workers", 4, "Parallel asset copies")
		dryRun    = flag.Bool("dry-run", false, "Report what would be copied")
		validate  = flag.Bool("validate", false, "Compare counts after migration")
		overwrite = flag.Bool("overwrite", false, "Replace assets that already exist in the target")
		cfgFile   = flag.String("config", "", "Migration config file")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	config := &MigrationConfig{
		Mode:          *mode,
		Source:        profile.DBConfig{Driver: *srcDriver, DSN: *srcDSN},
		Target:        profile.DBConfig{Driver: *dstDriver, DSN: *dstDSN},
		SourceApp:     *srcApp,
		TargetApp:     *dstApp,
		BatchSize:     *batchSize,
		Workers:       *workers,
		DryRun:        *dryRun,
		ValidateAfter: *validate,
		Overwrite:     *overwrite,
	}
	if *phases != "" {
		config.Phases = strings.Split(*phases, ",")
	}
	if *cfgFile != "" {
		if err := loadConfig(*cfgFile, config); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()
	migrator := NewMigrator(config, logger)
	logger.WithFields(logrus.Fields{
		"mode":    config.Mode,
		"source":  maskConnectionString(config.Source.DSN),
		"target":  maskConnectionString(config.Target.DSN),
		"dry_run": config.DryRun,
	}).Info("Starting migration")

	var (
		stats *MigrationStats
		err   error
	)
	switch config.Mode {
	case ModeSchema:
		err = migrator.RunSchemaMigration()
	case ModeProfiles:
		stats, err = migrator.runProfiles(ctx)
	case ModeAssets:
		stats, err = migrator.runAssets(ctx)
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	if stats != nil {
		logger.WithFields(logrus.Fields{
			"duration":  stats.EndTime.Sub(stats.StartTime),
			"processed": stats.RecordsProcessed,
			"skipped":   stats.RecordsSkipped,
			"failed":    stats.RecordsFailed,
		}).Info("Migration completed")
	}
}

func NewMigrator(config *MigrationConfig, logger *logrus.Logger) *Migrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Migrator{config: config, logger: logger}
}

// RunSchemaMigration creates or updates the profile table in the target database.
func (m *Migrator) RunSchemaMigration() error {
	if m.config.DryRun {
		m.logger.WithField("driver", m.config.Target.Driver).Info("Dry run: profile table would be migrated")
		return nil
	}
	db, err := profile.Open(m.config.Target)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	m.logger.WithField("driver", m.config.Target.Driver).Info("Profile table migrated")
	return nil
}

func (m *Migrator) runProfiles(ctx context.Context) (*MigrationStats, error) {
	srcDB, err := profile.Open(m.config.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to source: %w", err)
	}
	dstDB, err := profile.Open(m.config.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to target: %w", err)
	}
	return m.MigrateProfiles(ctx, profile.NewGormRepository(srcDB, m.logger), profile.NewGormRepository(dstDB, m.logger))
}

// MigrateProfiles copies every profile missing from dst. Existing ids are skipped.
func (m *Migrator) MigrateProfiles(ctx context.Context, src, dst *profile.GormRepository) (*MigrationStats, error) {
	stats := &MigrationStats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	profiles, err := src.GetAll(ctx)
	if err != nil {
		return stats, err
	}
	for start := 0; start < len(profiles); start += m.config.BatchSize {
		end := start + m.config.BatchSize
		if end > len(profiles) {
			end = len(profiles)
		}
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			p := profiles[i]
			if _, err := dst.Get(ctx, p.ID); err == nil {
				stats.RecordsSkipped++
				continue
			} else if !errors.HasCode(err, errors.CodeDataNotFound) {
				return stats, err
			}
			if m.config.DryRun {
				stats.RecordsProcessed++
				continue
			}
			if err := dst.Add(ctx, &p); err != nil {
				stats.RecordsFailed++
				m.logger.WithError(err).WithField("profile", p.ID).Warn("Failed to copy profile")
				continue
			}
			stats.RecordsProcessed++
		}
		m.logger.WithFields(logrus.Fields{"batch_end": end, "total": len(profiles)}).Debug("Profile batch copied")
	}

	if m.config.ValidateAfter && !m.config.DryRun {
		return stats, m.validateProfiles(ctx, src, dst)
	}
	return stats, nil
}

func (m *Migrator) validateProfiles(ctx context.Context, src, dst *profile.GormRepository) error {
	srcCount, err := src.Count(ctx)
	if err != nil {
		return err
	}
	dstCount, err := dst.Count(ctx)
	if err != nil {
		return err
	}
	if dstCount < srcCount {
		return errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("target holds %d profiles, source holds %d", dstCount, srcCount))
	}
	return nil
}

func (m *Migrator) runAssets(ctx context.Context) (*MigrationStats, error) {
	src, err := openRepository(ctx, m.config.SourceApp, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer dataset.Close(src)
	dst, err := openRepository(ctx, m.config.TargetApp, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open target: %w", err)
	}
	defer dataset.Close(dst)
	return m.MigrateAssets(ctx, src, dst)
}

func openRepository(ctx context.Context, cfgFile string, logger *logrus.Logger) (dataset.Repository, error) {
	cfg, err := app.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return dataset.NewRepository(ctx, cfg.DatasetConfig(), logger, nil)
}

// MigrateAssets copies dataset assets between repositories with a bounded
// number of concurrent copies.
func (m *Migrator) MigrateAssets(ctx context.Context, src, dst dataset.Repository) (*MigrationStats, error) {
	stats := &MigrationStats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	ids, err := src.List(ctx)
	if err != nil {
		return stats, err
	}

	var processed, skipped, failed int64
	var mu sync.Mutex
	var firstErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			copied, err := m.copyAsset(gctx, src, dst, id)
			switch {
			case err != nil:
				atomic.AddInt64(&failed, 1)
				m.logger.WithError(err).WithField("asset_id", id).Warn("Failed to copy asset")
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			case copied:
				atomic.AddInt64(&processed, 1)
			default:
				atomic.AddInt64(&skipped, 1)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.RecordsProcessed = processed
	stats.RecordsSkipped = skipped
	stats.RecordsFailed = failed
	if failed > 0 {
		return stats, fmt.Errorf("%d assets failed to copy: %w", failed, firstErr)
	}
	return stats, nil
}

func (m *Migrator) copyAsset(ctx context.Context, src, dst dataset.Repository, id string) (bool, error) {
	ds, err := src.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !m.wantsPhase(ds.Phase) {
		return false, nil
	}
	exists, err := dst.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if exists && !m.config.Overwrite {
		return false, nil
	}
	if m.config.DryRun {
		m.logger.WithField("asset_id", id).Info("Dry run: asset would be copied")
		return true, nil
	}
	if exists {
		if err := dst.Remove(ctx, id); err != nil {
			return false, err
		}
	}
	return true, dst.Add(ctx, ds)
}

func (m *Migrator) wantsPhase(phase string) bool {
	if len(m.config.Phases) == 0 {
		return true
	}
	for _, p := range m.config.Phases {
		if strings.EqualFold(strings.TrimSpace(p), phase) {
			return true
		}
	}
	return false
}

func loadConfig(path string, config *MigrationConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// maskConnectionString hides the password of a key=value or URL dsn.
func maskConnectionString(connStr string) string {
	if i := strings.Index(connStr, "://"); i >= 0 {
		if at := strings.Index(connStr, "@"); at > i {
			creds := connStr[i+3 : at]
			if colon := strings.Index(creds, ":"); colon >= 0 {
				return connStr[:i+3] + creds[:colon] + ":****" + connStr[at:]
			}
		}
		return connStr
	}
	fields := strings.Fields(connStr)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=****"
		}
	}
	return strings.Join(fields, " ")
}
