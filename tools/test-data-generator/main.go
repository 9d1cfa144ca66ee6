package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/reviewqa/internal/app"
	"github.com/inferloop/reviewqa/internal/dataset"
	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/internal/synthetic"
	"github.com/inferloop/reviewqa/pkg/constants"
)

func main() {
	var (
		configFile = flag.String("config", "", "Generator configuration file (YAML)")
		rows       = flag.Int("rows", 1000, "Number of reviews to generate")
		seed       = flag.Int64("seed", 1, "Random seed")
		output     = flag.String("output", "reviews.csv", "Output file")
		format     = flag.String("format", constants.FileFormatCSV, "Output format (csv/json)")
		asset      = flag.String("asset", "", "Also store as dataset-raw-landing-<asset> in the workspace")
		appConfig  = flag.String("app-config", "", "Application config used with -asset")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	config := synthetic.DefaultConfig()
	if *configFile != "" {
		var err error
		config, err = loadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		config.Rows = *rows
		config.Seed = *seed
	}

	generator, err := synthetic.NewGenerator(config, logger)
	if err != nil {
		log.Fatalf("Invalid generator config: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"rows":          config.Rows,
		"seed":          config.Seed,
		"output_file":   *output,
		"output_format": *format,
	}).Info("Starting test data generation")

	ctx := context.Background()
	result, err := generator.Generate(ctx)
	if err != nil {
		log.Fatalf("Failed to generate data: %v", err)
	}

	if err := saveToFile(result.Frame, *output, *format); err != nil {
		log.Fatalf("Failed to save data: %v", err)
	}

	if *asset != "" {
		if err := storeAsset(ctx, *appConfig, *asset, result.Frame, logger); err != nil {
			log.Fatalf("Failed to store dataset: %v", err)
		}
	}

	fields := logrus.Fields{"rows": result.Frame.NumRows(), "output_file": *output}
	for kind, rows := range result.Injected {
		fields[kind] = len(rows)
	}
	logger.WithFields(fields).Info("Test data generation completed")
}

func saveToFile(f *frame.Frame, filename, format string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	switch format {
	case constants.FileFormatCSV:
		return frame.WriteCSV(file, f)
	case constants.FileFormatJSON:
		return frame.WriteJSON(file, f)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// storeAsset writes the frame to the configured repository as a raw landing
// dataset, ready to be a pipeline source.
func storeAsset(ctx context.Context, cfgFile, name string, f *frame.Frame, logger *logrus.Logger) error {
	cfg, err := app.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = false
	cfg.Profile.Enabled = false

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ds, err := dataset.NewFactory(logger).FromFrame("raw", "landing", name, f, "", "")
	if err != nil {
		return err
	}
	ds.Description = fmt.Sprintf("synthetic reviews generated %s", time.Now().UTC().Format(time.RFC3339))
	if err := a.Repository.Add(ctx, ds); err != nil {
		return err
	}
	logger.WithField("asset_id", ds.ID).Info("Stored dataset")
	return nil
}

func loadConfig(filename string) (*synthetic.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := synthetic.DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}
