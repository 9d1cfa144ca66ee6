package profile

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/models"
)

// Measurement is the InfluxDB measurement profiles are written to.
const Measurement = "stage_profile"

// InfluxConfig contains InfluxDB-specific configuration
type InfluxConfig struct {
	URL          string        `json:"url" yaml:"url" mapstructure:"url"`
	Token        string        `json:"token" yaml:"token" mapstructure:"token"`
	Organization string        `json:"organization" yaml:"organization" mapstructure:"organization"`
	Bucket       string        `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	UseGZip      bool          `json:"use_gzip" yaml:"use_gzip" mapstructure:"use_gzip"`
}

// InfluxSink writes each profile as one point of the stage_profile measurement.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	config   *InfluxConfig
	logger   *logrus.Logger
}

// NewInfluxSink creates a sink; the server is not contacted until Connect or
// the first write.
func NewInfluxSink(config *InfluxConfig, logger *logrus.Logger) (*InfluxSink, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "InfluxDB configuration is required")
	}
	if config.URL == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "InfluxDB url is required")
	}
	if config.Bucket == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "InfluxDB bucket is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	client := influxdb2.NewClientWithOptions(
		config.URL,
		config.Token,
		influxdb2.DefaultOptions().
			SetHTTPRequestTimeout(uint(config.Timeout.Seconds())).
			SetUseGZip(config.UseGZip).
			SetPrecision(time.Millisecond),
	)

	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(config.Organization, config.Bucket),
		config:   config,
		logger:   logger,
	}, nil
}

// Connect checks server health.
func (s *InfluxSink) Connect(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return errors.NewStorageConnectionError("influxdb", s.config.URL, err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return errors.NewStorageError("CONNECTION_FAILED", fmt.Sprintf("InfluxDB health check failed: %s", msg))
	}
	s.logger.WithField("url", s.config.URL).Debug("Connected to InfluxDB")
	return nil
}

// Record implements interfaces.ProfileSink.
func (s *InfluxSink) Record(ctx context.Context, p *models.Profile) error {
	if err := s.writeAPI.WritePoint(ctx, profilePoint(p)); err != nil {
		return errors.WrapStorageError(err, "add", "influxdb").WithLocation(s.config.Bucket)
	}
	return nil
}

// Close closes the client
func (s *InfluxSink) Close() {
	s.client.Close()
}

func profilePoint(p *models.Profile) *write.Point {
	return influxdb2.NewPointWithMeasurement(Measurement).
		AddTag("process_type", p.ProcessType).
		AddTag("process_name", p.ProcessName).
		AddTag("stage", p.Stage).
		AddTag("status", p.Status).
		AddField("run_id", p.RunID).
		AddField("runtime_seconds", p.RuntimeSeconds).
		AddField("rows_in", p.RowsIn).
		AddField("rows_out", p.RowsOut).
		AddField("cpu_cores", p.CPUCores).
		AddField("memory_peak_mb", p.MemoryPeakMB).
		AddField("memory_allocations", p.MemoryAllocs).
		AddField("exceptions_raised", p.ExceptionsRaised).
		SetTime(p.StartTime)
}
