// Package app wires configuration into the running components: dataset
// repository, strategy registry, profile sinks, metrics and stage environment.
package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/anomaly"
	"github.com/inferloop/reviewqa/internal/dataset"
	"github.com/inferloop/reviewqa/internal/distributed"
	"github.com/inferloop/reviewqa/internal/language"
	"github.com/inferloop/reviewqa/internal/observability/health"
	"github.com/inferloop/reviewqa/internal/observability/metrics"
	"github.com/inferloop/reviewqa/internal/profile"
	"github.com/inferloop/reviewqa/internal/stage"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// App holds the components built from a Config.
type App struct {
	Config     *Config
	Logger     *logrus.Logger
	Metrics    *metrics.PipelineMetrics
	Repository dataset.Repository
	Registry   *anomaly.Registry
	Profiles   *profile.GormRepository
	Recorder   *profile.Recorder
	Health     *health.HealthMonitor

	influx *profile.InfluxSink
}

// New builds every component. Profiles go to the gorm repository when
// enabled and also to InfluxDB when an influx url is set.
func New(ctx context.Context, cfg *Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = SetupLogger(cfg.Log)
	}
	a := &App{Config: cfg, Logger: logger, Health: health.NewHealthMonitor(logger)}

	pm, err := metrics.NewPipelineMetrics(&metrics.PrometheusConfig{
		Enabled:   cfg.Metrics.Enabled,
		Port:      cfg.Metrics.Port,
		Path:      "/metrics",
		Namespace: constants.AppName,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.Metrics = pm

	repo, err := dataset.NewRepository(ctx, cfg.DatasetConfig(), logger, pm)
	if err != nil {
		return nil, err
	}
	a.Repository = repo
	a.Health.RegisterCheck(health.NewBasicHealthCheck("repository", true, 0, func(ctx context.Context) error {
		_, err := repo.Exists(ctx, "health-check")
		return err
	}))

	engine, err := distributed.NewEngine(cfg.Engine, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	registry, err := anomaly.NewRegistry(anomaly.Deps{
		Engine:           engine,
		Languages:        language.LazyPair(cfg.Language, logger),
		FailureWarnRatio: cfg.Language.FailureWarnRatio,
		Metrics:          pm,
		Logger:           logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Registry = registry

	var sinks []interfaces.ProfileSink
	if cfg.Profile.Enabled {
		db, err := profile.Open(profile.DBConfig{Driver: cfg.Profile.Driver, DSN: cfg.Profile.DSN})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Profiles = profile.NewGormRepository(db, logger)
		sinks = append(sinks, a.Profiles)
		a.Health.RegisterCheck(health.NewBasicHealthCheck("profiles", false, 0, func(ctx context.Context) error {
			_, err := a.Profiles.Count(ctx)
			return err
		}))
	}
	if cfg.Profile.Influx.URL != "" {
		influxCfg := cfg.Profile.Influx
		sink, err := profile.NewInfluxSink(&influxCfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := sink.Connect(ctx); err != nil {
			logger.WithError(err).Warn("InfluxDB unavailable, profiles are not written there")
			sink.Close()
		} else {
			a.influx = sink
			sinks = append(sinks, sink)
			a.Health.RegisterCheck(health.NewBasicHealthCheck("influxdb", false, 0, sink.Connect))
		}
	}
	a.Recorder = profile.NewRecorder(logger, sinks...)

	logger.WithFields(logrus.Fields{
		"storage":  cfg.DatasetConfig().Type,
		"profiles": len(sinks),
		"metrics":  cfg.Metrics.Enabled,
	}).Debug("Application ready")
	return a, nil
}

// Env returns the stage environment.
func (a *App) Env() stage.Env {
	return stage.Env{
		Repository: a.Repository,
		Builder:    stage.NewTaskBuilder(a.Registry, a.Logger),
		Recorder:   a.Recorder,
		Metrics:    a.Metrics,
		Logger:     a.Logger,
	}
}

// LoadPipeline reads a pipeline file and builds it, forcing every stage when
// force is set.
func (a *App) LoadPipeline(path string, force bool) (*stage.Pipeline, error) {
	cfg, err := stage.LoadPipeline(path)
	if err != nil {
		return nil, err
	}
	if force {
		for i := range cfg.Stages {
			cfg.Stages[i].Force = true
		}
	}
	return stage.NewPipeline(cfg, a.Env())
}

// Close releases storage connections.
func (a *App) Close() {
	if a.influx != nil {
		a.influx.Close()
	}
	if a.Repository != nil {
		if err := dataset.Close(a.Repository); err != nil {
			a.Logger.WithError(err).Warn("Failed to close dataset repository")
		}
	}
}
