package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/app"
	"github.com/inferloop/reviewqa/pkg/constants"
)

type WorkerConfig struct {
	ConfigFile      string
	WorkerID        string
	Concurrency     int
	QueueSize       int
	RunOnce         bool
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

var logger *logrus.Logger

func main() {
	config := parseFlags()

	cfg, err := app.Load(config.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if config.LogLevel != "" {
		cfg.Log.Level = config.LogLevel
	}
	if config.LogFormat != "" {
		cfg.Log.Format = config.LogFormat
	}
	logger = app.SetupLogger(cfg.Log)

	logger.WithFields(logrus.Fields{
		"workerID":    config.WorkerID,
		"concurrency": config.Concurrency,
		"schedules":   len(cfg.Schedules),
		"version":     constants.AppVersion,
	}).Info("Starting review data-quality worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	if err := a.Metrics.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start metrics server")
	}

	scheduler, err := NewScheduler(cfg.Schedules, config.QueueSize, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to register schedules")
	}
	processor := NewJobProcessor(a, config.Concurrency, logger)

	scheduler.Start(ctx)
	done := make(chan struct{})
	go func() {
		processor.Start(ctx, scheduler.GetJobQueue())
		close(done)
	}()

	if config.RunOnce {
		for _, sch := range cfg.Schedules {
			scheduler.Enqueue(sch)
		}
		scheduler.Stop()
		<-done
		logger.WithFields(logrus.Fields{
			"completedJobs": processor.CompletedJobs(),
			"failedJobs":    processor.FailedJobs(),
		}).Info("Run-once complete")
		if processor.FailedJobs() > 0 {
			os.Exit(1)
		}
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := a.Health.Check(ctx)
				logger.WithFields(logrus.Fields{
					"activeJobs":    processor.ActiveJobs(),
					"completedJobs": processor.CompletedJobs(),
					"failedJobs":    processor.FailedJobs(),
					"health":        status.OverallStatus,
				}).Debug("Worker health check")
			}
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	if err := gracefulShutdown(shutdownCtx, scheduler, processor); err != nil {
		logger.WithError(err).Error("Worker shutdown failed")
		os.Exit(1)
	}
	if err := a.Metrics.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to stop metrics server")
	}

	logger.Info("Worker stopped successfully")
}

func parseFlags() *WorkerConfig {
	config := &WorkerConfig{}

	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&config.WorkerID, "worker-id", generateWorkerID(), "Unique worker ID")
	flag.IntVar(&config.Concurrency, "concurrency", 2, "Number of concurrent pipeline runs")
	flag.IntVar(&config.QueueSize, "queue-size", 16, "Maximum queued runs")
	flag.BoolVar(&config.RunOnce, "run-once", false, "Run every schedule once and exit")
	flag.DurationVar(&config.ShutdownTimeout, "shutdown-timeout", 5*time.Minute, "Time to wait for active runs on shutdown")
	flag.StringVar(&config.LogLevel, "log-level", "", "Log level (overrides config)")
	flag.StringVar(&config.LogFormat, "log-format", "", "Log format (overrides config)")

	flag.Parse()

	return config
}

func generateWorkerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

func gracefulShutdown(ctx context.Context, scheduler *Scheduler, processor *JobProcessor) error {
	logger.Info("Starting graceful shutdown")

	// Stop accepting new jobs
	scheduler.Stop()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		if processor.ActiveJobs() == 0 {
			logger.Info("All jobs completed")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("shutdown timeout exceeded")
		case <-ticker.C:
			logger.WithField("activeJobs", processor.ActiveJobs()).Info("Waiting for jobs to complete")
		}
	}
}
