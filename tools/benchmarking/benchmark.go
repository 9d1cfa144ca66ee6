package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/reviewqa/internal/anomaly"
	"github.com/inferloop/reviewqa/internal/distributed"
	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/internal/language"
	"github.com/inferloop/reviewqa/internal/synthetic"
	"github.com/inferloop/reviewqa/pkg/constants"
)

type BenchmarkConfig struct {
	Name         string                   `json:"name" yaml:"name"`
	Description  string                   `json:"description" yaml:"description"`
	Sizes        []int                    `json:"sizes" yaml:"sizes"`
	Warmup       int                      `json:"warmup" yaml:"warmup"`
	Iterations   int                      `json:"iterations" yaml:"iterations"`
	Modes        []string                 `json:"modes" yaml:"modes"`
	Engine       distributed.EngineConfig `json:"engine" yaml:"engine"`
	Data         *synthetic.Config        `json:"data" yaml:"data"`
	Tasks        []anomaly.TaskConfig     `json:"tasks" yaml:"tasks"`
	Percentiles  []float64                `json:"percentiles" yaml:"percentiles"`
	ReportConfig ReportConfig             `json:"report" yaml:"report"`
}

type ReportConfig struct {
	Format     string `json:"format" yaml:"format"` // json, yaml, markdown
	OutputFile string `json:"output_file" yaml:"output_file"`
}

type Benchmark struct {
	config   *BenchmarkConfig
	logger   *logrus.Logger
	registry *anomaly.Registry
}

type BenchmarkResult struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	StartTime   time.Time         `json:"start_time" yaml:"start_time"`
	Duration    time.Duration     `json:"duration" yaml:"duration"`
	GoVersion   string            `json:"go_version" yaml:"go_version"`
	CPUs        int               `json:"cpus" yaml:"cpus"`
	Operations  []OperationResult `json:"operations" yaml:"operations"`
}

type OperationResult struct {
	Task       string          `json:"task" yaml:"task"`
	Mode       string          `json:"mode" yaml:"mode"`
	Rows       int             `json:"rows" yaml:"rows"`
	Iterations int             `json:"iterations" yaml:"iterations"`
	Errors     int             `json:"errors" yaml:"errors"`
	RowsOut    int             `json:"rows_out" yaml:"rows_out"`
	Throughput float64         `json:"throughput_rows_sec" yaml:"throughput_rows_sec"`
	AllocMB    float64         `json:"alloc_mb_per_run" yaml:"alloc_mb_per_run"`
	Latency    *LatencyMetrics `json:"latency" yaml:"latency"`
}

type LatencyMetrics struct {
	Min         time.Duration            `json:"min" yaml:"min"`
	Max         time.Duration            `json:"max" yaml:"max"`
	Mean        time.Duration            `json:"mean" yaml:"mean"`
	StdDev      time.Duration            `json:"std_dev" yaml:"std_dev"`
	Percentiles map[string]time.Duration `json:"percentiles" yaml:"percentiles"`
}

func main() {
	var (
		configFile = flag.String("config", "", "Benchmark configuration file (YAML)")
		output     = flag.String("output", "", "Report file (default stdout)")
		format     = flag.String("format", "", "Report format (json, yaml, markdown)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	config := getDefaultConfig()
	if *configFile != "" {
		var err error
		config, err = loadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *output != "" {
		config.ReportConfig.OutputFile = *output
	}
	if *format != "" {
		config.ReportConfig.Format = *format
	}

	benchmark, err := NewBenchmark(config, logger)
	if err != nil {
		log.Fatalf("Failed to create benchmark: %v", err)
	}

	result, err := benchmark.Run(context.Background())
	if err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}

	if err := generateReport(result, config.ReportConfig); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
}

func NewBenchmark(config *BenchmarkConfig, logger *logrus.Logger) (*Benchmark, error) {
	if len(config.Tasks) == 0 || len(config.Sizes) == 0 {
		return nil, fmt.Errorf("benchmark needs at least one task and one size")
	}
	if config.Iterations < 1 {
		return nil, fmt.Errorf("iterations must be positive")
	}
	for _, mode := range config.Modes {
		if mode != constants.ModeLocal && mode != constants.ModeDistributed {
			return nil, fmt.Errorf("unknown mode '%s'", mode)
		}
	}

	engine, err := distributed.NewEngine(config.Engine, logger)
	if err != nil {
		return nil, err
	}
	registry, err := anomaly.NewRegistry(anomaly.Deps{
		Engine:    engine,
		Languages: language.LazyPair(language.DefaultConfig(), logger),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &Benchmark{config: config, logger: logger, registry: registry}, nil
}

func (b *Benchmark) Run(ctx context.Context) (*BenchmarkResult, error) {
	result := &BenchmarkResult{
		Name:        b.config.Name,
		Description: b.config.Description,
		StartTime:   time.Now(),
		GoVersion:   runtime.Version(),
		CPUs:        runtime.NumCPU(),
	}

	for _, size := range b.config.Sizes {
		data := *b.config.Data
		data.Rows = size
		gen, err := synthetic.NewGenerator(&data, b.logger)
		if err != nil {
			return nil, err
		}
		generated, err := gen.Generate(ctx)
		if err != nil {
			return nil, err
		}

		for _, taskCfg := range b.config.Tasks {
			for _, mode := range b.config.Modes {
				op, err := b.runOperation(ctx, taskCfg, mode, generated.Frame)
				if err != nil {
					return nil, err
				}
				b.logger.WithFields(logrus.Fields{
					"task":       op.Task,
					"mode":       op.Mode,
					"rows":       op.Rows,
					"throughput": fmt.Sprintf("%.0f rows/s", op.Throughput),
				}).Info("Operation benchmarked")
				result.Operations = append(result.Operations, *op)
			}
		}
	}

	result.Duration = time.Since(result.StartTime)
	return result, nil
}

func (b *Benchmark) runOperation(ctx context.Context, cfg anomaly.TaskConfig, mode string, data *frame.Frame) (*OperationResult, error) {
	cfg.Distributed = mode == constants.ModeDistributed
	task, err := anomaly.NewTask(cfg, b.registry)
	if err != nil {
		return nil, fmt.Errorf("task '%s': %w", cfg.Name, err)
	}

	op := &OperationResult{Task: task.Name(), Mode: mode, Rows: data.NumRows(), Iterations: b.config.Iterations}
	for i := 0; i < b.config.Warmup; i++ {
		_, _ = task.Run(ctx, data)
	}

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	latencies := make([]time.Duration, 0, b.config.Iterations)
	for i := 0; i < b.config.Iterations; i++ {
		start := time.Now()
		out, err := task.Run(ctx, data)
		latencies = append(latencies, time.Since(start))
		if err != nil {
			op.Errors++
			continue
		}
		op.RowsOut = out.NumRows()
	}

	runtime.ReadMemStats(&after)
	op.AllocMB = float64(after.TotalAlloc-before.TotalAlloc) / float64(b.config.Iterations) / (1 << 20)
	op.Latency = calculateLatencyMetrics(latencies, b.config.Percentiles)
	if op.Latency.Mean > 0 {
		op.Throughput = float64(op.Rows) / op.Latency.Mean.Seconds()
	}
	return op, nil
}

func calculateLatencyMetrics(latencies []time.Duration, percentiles []float64) *LatencyMetrics {
	if len(latencies) == 0 {
		return &LatencyMetrics{Percentiles: map[string]time.Duration{}}
	}

	seconds := make([]float64, len(latencies))
	for i, l := range latencies {
		seconds[i] = l.Seconds()
	}
	sort.Float64s(seconds)

	mean, std := stat.MeanStdDev(seconds, nil)
	if len(seconds) < 2 {
		std = 0
	}
	metrics := &LatencyMetrics{
		Min:         toDuration(seconds[0]),
		Max:         toDuration(seconds[len(seconds)-1]),
		Mean:        toDuration(mean),
		StdDev:      toDuration(std),
		Percentiles: make(map[string]time.Duration, len(percentiles)),
	}
	for _, p := range percentiles {
		q := stat.Quantile(p/100, stat.Empirical, seconds, nil)
		metrics.Percentiles[fmt.Sprintf("p%g", p)] = toDuration(q)
	}
	return metrics
}

func toDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func loadConfig(path string) (*BenchmarkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := getDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

func getDefaultConfig() *BenchmarkConfig {
	return &BenchmarkConfig{
		Name:        "anomaly-strategies",
		Description: "Detect and repair strategies over synthetic reviews",
		Sizes:       []int{1000, 10000, 100000},
		Warmup:      1,
		Iterations:  5,
		Modes:       []string{constants.ModeLocal, constants.ModeDistributed},
		Engine:      distributed.DefaultEngineConfig(),
		Data:        synthetic.DefaultConfig(),
		Percentiles: []float64{50, 90, 99},
		Tasks: []anomaly.TaskConfig{
			{
				Name:           "short_review",
				Dimension:      constants.DimensionText,
				Column:         synthetic.ColumnContent,
				Mode:           constants.TaskModeDetect,
				DetectStrategy: constants.DetectShortReview,
			},
			{
				Name:           "email",
				Dimension:      constants.DimensionText,
				Column:         synthetic.ColumnContent,
				Mode:           constants.TaskModeRepair,
				RepairStrategy: constants.RepairRegexReplace,
				Params:         map[string]interface{}{"pattern": anomaly.PatternEmail},
			},
			{
				Name:           "unique",
				Dimension:      constants.DimensionText,
				Column:         synthetic.ColumnContent,
				Mode:           constants.TaskModeDetect,
				DetectStrategy: constants.DetectUnique,
			},
			{
				Name:           "score_zscore",
				Dimension:      constants.DimensionNumeric,
				Column:         synthetic.ColumnScore,
				Mode:           constants.TaskModeRepair,
				RepairStrategy: constants.RepairImputeMedian,
				Params:         map[string]interface{}{"detect_strategy": constants.DetectZScore},
			},
		},
		ReportConfig: ReportConfig{Format: "markdown"},
	}
}

func generateReport(result *BenchmarkResult, config ReportConfig) error {
	var content []byte
	var err error

	switch config.Format {
	case "json", "":
		content, err = json.MarshalIndent(result, "", "  ")
	case "yaml":
		content, err = yaml.Marshal(result)
	case "markdown":
		content = []byte(generateMarkdownReport(result))
	default:
		return fmt.Errorf("unsupported report format: %s", config.Format)
	}
	if err != nil {
		return err
	}

	if config.OutputFile == "" {
		_, err = os.Stdout.Write(content)
		return err
	}
	return os.WriteFile(config.OutputFile, content, 0o644)
}

func generateMarkdownReport(result *BenchmarkResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Benchmark Report: %s\n\n", result.Name))
	if result.Description != "" {
		sb.WriteString(result.Description + "\n\n")
	}
	sb.WriteString(fmt.Sprintf("- Start: %s\n", result.StartTime.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("- Duration: %s\n", result.Duration.Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("- Go: %s on %d CPUs\n\n", result.GoVersion, result.CPUs))

	sb.WriteString("| Task | Mode | Rows | Mean | Min | Max | Rows/s | Alloc MB | Errors |\n")
	sb.WriteString("|------|------|------|------|-----|-----|--------|----------|--------|\n")
	for _, op := range result.Operations {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %s | %s | %.0f | %.2f | %d |\n",
			op.Task, op.Mode, op.Rows,
			op.Latency.Mean.Round(time.Microsecond), op.Latency.Min.Round(time.Microsecond), op.Latency.Max.Round(time.Microsecond),
			op.Throughput, op.AllocMB, op.Errors))
	}
	return sb.String()
}
