package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/reviewqa/cmd/cli/config"
	"github.com/inferloop/reviewqa/internal/app"
	"github.com/inferloop/reviewqa/pkg/constants"
)

// GlobalOptions are the persistent root flags.
type GlobalOptions struct {
	ConfigFile string
	Verbose    bool
	Output     string
}

func NewRootCmd() *cobra.Command {
	g := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: "App review data-quality pipelines",
		Long: `A command-line interface for running review data-quality pipelines,
listing anomaly strategies and inspecting stored datasets and run profiles.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.ConfigFile, "config", "", "config file (default is $HOME/.reviewqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&g.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&g.Output, "output", "o", "", "output format (text, json)")

	rootCmd.AddCommand(NewRunCmd(g))
	rootCmd.AddCommand(NewStrategiesCmd(g))
	rootCmd.AddCommand(NewPatternsCmd(g))
	rootCmd.AddCommand(NewProfileCmd(g))
	rootCmd.AddCommand(NewInspectCmd(g))

	return rootCmd
}

// session is an opened application for the duration of one command.
type session struct {
	*app.App
	prefs config.Preferences
}

func (g *GlobalOptions) open(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadConfig(g.ConfigFile)
	if err != nil {
		return nil, err
	}
	if g.Output != "" {
		cfg.Preferences.OutputFormat = g.Output
		if err := cfg.Preferences.Validate(); err != nil {
			return nil, err
		}
	}

	logger := app.SetupLogger(cfg.App.Log)
	logger.SetOutput(cmd.ErrOrStderr())
	if !g.Verbose {
		logger.SetLevel(logrus.WarnLevel)
	}

	a, err := app.New(ctx, cfg.App, logger)
	if err != nil {
		return nil, err
	}
	return &session{App: a, prefs: cfg.Preferences}, nil
}

func (s *session) json() bool {
	return s.prefs.OutputFormat == config.OutputJSON
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
