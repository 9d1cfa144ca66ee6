package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/app"
	"github.com/inferloop/reviewqa/internal/dataset"
)

type DataCleanupConfig struct {
	MaxAge        time.Duration `json:"max_age"`
	Phases        []string      `json:"phases"`
	DryRun        bool          `json:"dry_run"`
	PruneProfiles bool          `json:"prune_profiles"`
}

// ProfilePruner removes run profiles older than a cutoff.
type ProfilePruner interface {
	RemoveBefore(ctx context.Context, t time.Time) (int64, error)
}

type DataCleaner struct {
	config   *DataCleanupConfig
	repo     dataset.Repository
	profiles ProfilePruner
	logger   *logrus.Logger
	now      func() time.Time
}

type CleanupStats struct {
	AssetsProcessed int64         `json:"assets_processed"`
	AssetsDeleted   int64         `json:"assets_deleted"`
	RowsFreed       int64         `json:"rows_freed"`
	ProfilesDeleted int64         `json:"profiles_deleted"`
	Errors          int64         `json:"errors"`
	Duration        time.Duration `json:"duration"`
}

func main() {
	var (
		configFile = flag.String("config", "", "Application config file")
		maxAge     = flag.Duration("max-age", 30*24*time.Hour, "Maximum age of datasets and profiles to keep")
		phases     = flag.String("phases", "", "Comma-separated phases to clean (default all)")
		dryRun     = flag.Bool("dry-run", false, "Perform dry run without deleting anything")
		profiles   = flag.Bool("profiles", true, "Also prune run profiles")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	config := &DataCleanupConfig{
		MaxAge:        *maxAge,
		DryRun:        *dryRun,
		PruneProfiles: *profiles,
	}
	if *phases != "" {
		config.Phases = strings.Split(*phases, ",")
	}

	cfg, err := app.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Metrics.Enabled = false
	cfg.Profile.Influx.URL = ""

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	var pruner ProfilePruner
	if a.Profiles != nil {
		pruner = a.Profiles
	}
	cleaner := NewDataCleaner(config, a.Repository, pruner, logger)

	logger.WithFields(logrus.Fields{
		"storage": cfg.Storage.Type,
		"max_age": config.MaxAge.String(),
		"phases":  config.Phases,
		"dry_run": config.DryRun,
	}).Info("Starting data cleanup")

	stats, err := cleaner.Cleanup(ctx)
	if err != nil {
		log.Fatalf("Cleanup failed: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"assets_processed": stats.AssetsProcessed,
		"assets_deleted":   stats.AssetsDeleted,
		"profiles_deleted": stats.ProfilesDeleted,
		"errors":           stats.Errors,
		"duration":         stats.Duration.String(),
	}).Info("Data cleanup completed")

	if config.DryRun {
		fmt.Printf("DRY RUN - Would have processed %d assets, deleted %d assets (%d rows)\n",
			stats.AssetsProcessed, stats.AssetsDeleted, stats.RowsFreed)
	} else {
		fmt.Printf("Processed %d assets, deleted %d assets (%d rows), %d profiles\n",
			stats.AssetsProcessed, stats.AssetsDeleted, stats.RowsFreed, stats.ProfilesDeleted)
	}
}

func NewDataCleaner(config *DataCleanupConfig, repo dataset.Repository, profiles ProfilePruner, logger *logrus.Logger) *DataCleaner {
	return &DataCleaner{
		config:   config,
		repo:     repo,
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
	}
}

// Cleanup removes datasets created before the cutoff, then old profiles.
// Per-asset failures are counted and logged, not returned.
func (c *DataCleaner) Cleanup(ctx context.Context) (*CleanupStats, error) {
	start := time.Now()
	stats := &CleanupStats{}
	cutoff := c.now().Add(-c.config.MaxAge)

	ids, err := c.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ds, err := c.repo.Get(ctx, id)
		if err != nil {
			c.logger.WithField("asset_id", id).WithError(err).Error("Failed to read asset")
			stats.Errors++
			continue
		}
		if !c.selected(ds.Phase) {
			continue
		}
		stats.AssetsProcessed++
		if !ds.CreatedAt.Before(cutoff) {
			continue
		}

		rows := int64(ds.Frame.NumRows())
		if c.config.DryRun {
			c.logger.WithFields(logrus.Fields{
				"asset_id":   id,
				"created_at": ds.CreatedAt,
			}).Info("Would delete asset (dry run)")
		} else if err := c.repo.Remove(ctx, id); err != nil {
			c.logger.WithField("asset_id", id).WithError(err).Error("Failed to delete asset")
			stats.Errors++
			continue
		} else {
			c.logger.WithField("asset_id", id).Debug("Deleted asset")
		}
		stats.AssetsDeleted++
		stats.RowsFreed += rows
	}

	if c.config.PruneProfiles && c.profiles != nil && !c.config.DryRun {
		n, err := c.profiles.RemoveBefore(ctx, cutoff)
		if err != nil {
			c.logger.WithError(err).Error("Failed to prune profiles")
			stats.Errors++
		}
		stats.ProfilesDeleted = n
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

func (c *DataCleaner) selected(phase string) bool {
	if len(c.config.Phases) == 0 {
		return true
	}
	for _, p := range c.config.Phases {
		if strings.EqualFold(strings.TrimSpace(p), phase) {
			return true
		}
	}
	return false
}
