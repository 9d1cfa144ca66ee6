package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/pkg/constants"
)

// PipelineMetrics provides Prometheus-based metrics for stage and strategy
// execution. A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	config   *PrometheusConfig

	stageRunsTotal      *prometheus.CounterVec
	stageDuration       *prometheus.HistogramVec
	taskDuration        *prometheus.HistogramVec
	rowsFlaggedTotal    *prometheus.CounterVec
	rowsRemovedTotal    *prometheus.CounterVec
	classifierFailures  *prometheus.CounterVec
	storageOperations   *prometheus.CounterVec
	storageDuration     *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Port      int    `json:"port" mapstructure:"port"`
	Path      string `json:"path" mapstructure:"path"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// DefaultPrometheusConfig returns the default metrics configuration
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   false,
		Port:      constants.DefaultMetricsPort,
		Path:      "/metrics",
		Namespace: constants.AppName,
	}
}

// NewPipelineMetrics creates the collectors on a private registry.
func NewPipelineMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PipelineMetrics, error) {
	if config == nil {
		config = DefaultPrometheusConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	pm := &PipelineMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}
	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return pm, nil
}

// Registry exposes the private registry, mainly for tests.
func (pm *PipelineMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start serves the metrics endpoint on its own port when enabled.
func (pm *PipelineMetrics) Start(ctx context.Context) error {
	if !pm.config.Enabled {
		pm.logger.Info("Prometheus metrics disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(pm.config.Path, pm.Handler())
	pm.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", pm.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: constants.DefaultReadTimeout,
	}

	pm.logger.WithFields(logrus.Fields{
		"port": pm.config.Port,
		"path": pm.config.Path,
	}).Info("Starting Prometheus metrics server")

	go func() {
		if err := pm.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			pm.logger.WithError(err).Error("Prometheus metrics server error")
		}
	}()
	return nil
}

// Stop stops the Prometheus metrics server
func (pm *PipelineMetrics) Stop(ctx context.Context) error {
	if pm == nil || pm.server == nil {
		return nil
	}
	pm.logger.Info("Stopping Prometheus metrics server")
	return pm.server.Shutdown(ctx)
}

// Stage metrics
func (pm *PipelineMetrics) RecordStageRun(stage, status string, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.stageRunsTotal.WithLabelValues(stage, status).Inc()
	pm.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// Task metrics
func (pm *PipelineMetrics) RecordTask(task, mode string, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.taskDuration.WithLabelValues(task, mode).Observe(duration.Seconds())
}

// RecordFlagged counts rows a detect strategy marked anomalous.
func (pm *PipelineMetrics) RecordFlagged(strategy string, rows int) {
	if pm == nil || rows <= 0 {
		return
	}
	pm.rowsFlaggedTotal.WithLabelValues(strategy).Add(float64(rows))
}

// RecordRemoved counts rows a removal repair dropped.
func (pm *PipelineMetrics) RecordRemoved(strategy string, rows int) {
	if pm == nil || rows <= 0 {
		return
	}
	pm.rowsRemovedTotal.WithLabelValues(strategy).Add(float64(rows))
}

// RecordClassifierFailures counts rows a language classifier failed on.
func (pm *PipelineMetrics) RecordClassifierFailures(classifier string, rows int) {
	if pm == nil || rows <= 0 {
		return
	}
	pm.classifierFailures.WithLabelValues(classifier).Add(float64(rows))
}

// Storage metrics
func (pm *PipelineMetrics) RecordStorageOperation(backend, operation, status string, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.storageOperations.WithLabelValues(backend, operation, status).Inc()
	pm.storageDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// HTTP metrics
func (pm *PipelineMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	pm.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (pm *PipelineMetrics) initializeMetrics() {
	namespace := pm.config.Namespace

	pm.stageRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Total number of stage runs by final status",
		},
		[]string{"stage", "status"},
	)

	pm.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Stage run duration in seconds",
			Buckets:   []float64{0.1, 1, 10, 60, 300, 1800, 3600},
		},
		[]string{"stage"},
	)

	pm.taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"task", "mode"},
	)

	pm.rowsFlaggedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_flagged_total",
			Help:      "Rows flagged as anomalous by detect strategy",
		},
		[]string{"strategy"},
	)

	pm.rowsRemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_removed_total",
			Help:      "Rows removed by repair strategy",
		},
		[]string{"strategy"},
	)

	pm.classifierFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_failures_total",
			Help:      "Rows on which a language classifier failed",
		},
		[]string{"classifier"},
	)

	pm.storageOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of dataset storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	pm.storageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Dataset storage operation duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"backend", "operation"},
	)

	pm.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
}

func (pm *PipelineMetrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		pm.stageRunsTotal,
		pm.stageDuration,
		pm.taskDuration,
		pm.rowsFlaggedTotal,
		pm.rowsRemovedTotal,
		pm.classifierFailures,
		pm.storageOperations,
		pm.storageDuration,
		pm.httpRequestsTotal,
		pm.httpRequestDuration,
	}
	for _, c := range collectors {
		if err := pm.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
