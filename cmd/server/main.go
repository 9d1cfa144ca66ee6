package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/app"
	"github.com/inferloop/reviewqa/internal/server"
)

func main() {
	flags := ParseFlags()

	cfg, err := app.Load(flags.ConfigFile)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	applyFlags(cfg, flags)

	logger := app.SetupLogger(cfg.Log)
	logger.WithFields(logrus.Fields{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
	}).Info("Starting review quality API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize components")
	}
	defer a.Close()

	srv, err := server.NewServer(&cfg.Server, server.Deps{
		Registry:   a.Registry,
		Repository: a.Repository,
		Profiles:   a.Profiles,
		Env:        a.Env(),
		Health:     a.Health,
		Metrics:    a.Metrics,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			logger.WithError(err).Error("Server failed")
		}
	}

	if err := srv.Stop(context.Background()); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	logger.Info("Server stopped")
}

func applyFlags(cfg *app.Config, flags *Flags) {
	if flags.Host != "" {
		cfg.Server.Host = flags.Host
	}
	if flags.Port != 0 {
		cfg.Server.Port = flags.Port
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.LogFormat != "" {
		cfg.Log.Format = flags.LogFormat
	}
}
