package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/inferloop/reviewqa/internal/dataset"
	"github.com/inferloop/reviewqa/internal/distributed"
	"github.com/inferloop/reviewqa/internal/language"
	"github.com/inferloop/reviewqa/internal/profile"
	"github.com/inferloop/reviewqa/internal/server"
	"github.com/inferloop/reviewqa/pkg/constants"
)

// Config is the runtime configuration shared by the cli, server and worker.
type Config struct {
	Workspace WorkspaceConfig          `mapstructure:"workspace"`
	Storage   StorageConfig            `mapstructure:"storage"`
	Profile   ProfileConfig            `mapstructure:"profile"`
	Engine    distributed.EngineConfig `mapstructure:"engine"`
	Language  language.Config          `mapstructure:"language"`
	Metrics   MetricsConfig            `mapstructure:"metrics"`
	Log       LogConfig                `mapstructure:"log"`
	Server    server.Config            `mapstructure:"server"`
	Schedules []Schedule               `mapstructure:"schedules"`
}

// WorkspaceConfig locates the file repository.
type WorkspaceConfig struct {
	BasePath    string `mapstructure:"base_path"`
	Format      string `mapstructure:"format"`
	Compression bool   `mapstructure:"compression"`
}

// StorageConfig selects the dataset backend.
type StorageConfig struct {
	Type  string              `mapstructure:"type"`
	S3    dataset.S3Config    `mapstructure:"s3"`
	Redis dataset.RedisConfig `mapstructure:"redis"`
}

// ProfileConfig configures where run profiles go.
type ProfileConfig struct {
	Enabled bool                 `mapstructure:"enabled"`
	Driver  string               `mapstructure:"driver"`
	DSN     string               `mapstructure:"dsn"`
	Influx  profile.InfluxConfig `mapstructure:"influx"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LogConfig sets logger level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Schedule runs a pipeline file on a cron spec.
type Schedule struct {
	Name     string `mapstructure:"name"`
	Cron     string `mapstructure:"cron"`
	Pipeline string `mapstructure:"pipeline"`
	Force    bool   `mapstructure:"force"`
}

// DatasetConfig maps the workspace and storage sections to a repository config.
func (c *Config) DatasetConfig() *dataset.Config {
	cfg := dataset.DefaultConfig()
	cfg.Type = c.Storage.Type
	cfg.File.BasePath = c.Workspace.BasePath
	cfg.File.Compression = c.Workspace.Compression
	cfg.S3 = c.Storage.S3
	if cfg.S3.Format == "" {
		cfg.S3.Format = c.Workspace.Format
	}
	cfg.Redis = c.Storage.Redis
	if cfg.Redis.Format == "" {
		cfg.Redis.Format = c.Workspace.Format
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workspace.base_path", constants.DefaultWorkspacePath)
	v.SetDefault("workspace.format", constants.DefaultFileFormat)
	v.SetDefault("workspace.compression", false)

	v.SetDefault("storage.type", constants.DefaultStorageType)
	v.SetDefault("storage.s3.prefix", constants.DefaultKeyPrefix)
	v.SetDefault("storage.s3.max_retries", constants.DefaultMaxRetries)
	v.SetDefault("storage.s3.timeout", constants.DefaultStorageTimeout)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.key_prefix", constants.DefaultKeyPrefix)

	v.SetDefault("profile.enabled", true)
	v.SetDefault("profile.driver", constants.ProfileDriverSQLite)
	v.SetDefault("profile.dsn", "profile.db")
	v.SetDefault("profile.influx.timeout", constants.DefaultStorageTimeout)

	engine := distributed.DefaultEngineConfig()
	v.SetDefault("engine.partitions", engine.Partitions)
	v.SetDefault("engine.max_workers", engine.MaxWorkers)
	v.SetDefault("engine.min_partition_rows", engine.MinPartitionRows)

	lang := language.DefaultConfig()
	v.SetDefault("language.target", lang.Target)
	v.SetDefault("language.failure_warn_ratio", lang.FailureWarnRatio)
	v.SetDefault("language.low_accuracy", lang.LowAccuracy)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", constants.DefaultMetricsPort)

	v.SetDefault("log.level", constants.DefaultLogLevel)
	v.SetDefault("log.format", constants.DefaultLogFormat)

	srv := server.DefaultConfig()
	v.SetDefault("server.host", srv.Host)
	v.SetDefault("server.port", srv.Port)
	v.SetDefault("server.read_timeout", srv.ReadTimeout)
	v.SetDefault("server.write_timeout", srv.WriteTimeout)
	v.SetDefault("server.idle_timeout", srv.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", srv.ShutdownTimeout)
	v.SetDefault("server.enable_metrics", srv.EnableMetrics)
	v.SetDefault("server.max_request_size", srv.MaxRequestSize)
}

// Load reads cfgFile, or $HOME/.reviewqa/config.yaml when empty, over the
// defaults. REVIEWQA_* environment variables override both; a missing
// default config file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+constants.AppName))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(strings.ToUpper(constants.AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// SetupLogger builds a logger from the log section.
func SetupLogger(cfg LogConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == constants.LogFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
