package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/observability/metrics"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// Config selects and configures a repository backend.
type Config struct {
	Type  string      `json:"type" yaml:"type" mapstructure:"type"`
	File  FileConfig  `json:"file" yaml:"file" mapstructure:"file"`
	S3    S3Config    `json:"s3" yaml:"s3" mapstructure:"s3"`
	Redis RedisConfig `json:"redis" yaml:"redis" mapstructure:"redis"`
}

// DefaultConfig returns a file repository rooted at the default workspace.
func DefaultConfig() *Config {
	return &Config{
		Type: constants.DefaultStorageType,
		File: FileConfig{
			BasePath:   constants.DefaultWorkspacePath,
			CreateDirs: true,
		},
		S3: S3Config{
			Prefix:     constants.DefaultKeyPrefix,
			MaxRetries: constants.DefaultMaxRetries,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: constants.DefaultKeyPrefix,
		},
	}
}

// Repository is a dataset repository that can also enumerate its assets.
type Repository interface {
	interfaces.DatasetRepository
	interfaces.DatasetLister
}

type connector interface {
	Connect(ctx context.Context) error
}

// NewRepository builds and connects the backend named by cfg.Type. Storage
// operations are recorded on pm when it is non-nil.
func NewRepository(ctx context.Context, cfg *Config, logger *logrus.Logger, pm *metrics.PipelineMetrics) (Repository, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	var repo Repository
	switch cfg.Type {
	case constants.StorageTypeMemory:
		repo = NewMemoryRepository()
	case constants.StorageTypeFile, "":
		fileCfg := cfg.File
		r, err := NewFileRepository(&fileCfg, logger)
		if err != nil {
			return nil, err
		}
		repo = r
	case constants.StorageTypeS3:
		s3Cfg := cfg.S3
		r, err := NewS3Repository(&s3Cfg, logger)
		if err != nil {
			return nil, err
		}
		repo = r
	case constants.StorageTypeRedis:
		redisCfg := cfg.Redis
		r, err := NewRedisRepository(&redisCfg, logger)
		if err != nil {
			return nil, err
		}
		repo = r
	default:
		return nil, errors.NewStorageError("INVALID_CONFIG", fmt.Sprintf("unsupported storage type '%s'", cfg.Type))
	}

	if c, ok := repo.(connector); ok {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	backend := cfg.Type
	if backend == "" {
		backend = constants.StorageTypeFile
	}
	logger.WithField("storage", backend).Debug("Dataset repository ready")
	return Instrument(repo, backend, pm), nil
}

// Instrument records every repository call on pm. A nil pm returns repo as is.
func Instrument(repo Repository, backend string, pm *metrics.PipelineMetrics) Repository {
	if pm == nil {
		return repo
	}
	return &instrumented{next: repo, backend: backend, metrics: pm}
}

type instrumented struct {
	next    Repository
	backend string
	metrics *metrics.PipelineMetrics
}

func (i *instrumented) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	i.metrics.RecordStorageOperation(i.backend, operation, status, time.Since(start))
}

func (i *instrumented) Exists(ctx context.Context, assetID string) (bool, error) {
	start := time.Now()
	ok, err := i.next.Exists(ctx, assetID)
	i.observe("exists", start, err)
	return ok, err
}

func (i *instrumented) Get(ctx context.Context, assetID string) (*Dataset, error) {
	start := time.Now()
	ds, err := i.next.Get(ctx, assetID)
	i.observe("get", start, err)
	return ds, err
}

func (i *instrumented) Add(ctx context.Context, ds *Dataset) error {
	start := time.Now()
	err := i.next.Add(ctx, ds)
	i.observe("add", start, err)
	return err
}

func (i *instrumented) Remove(ctx context.Context, assetID string) error {
	start := time.Now()
	err := i.next.Remove(ctx, assetID)
	i.observe("remove", start, err)
	return err
}

func (i *instrumented) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := i.next.List(ctx)
	i.observe("list", start, err)
	return ids, err
}

// Close releases the backend's connections when it holds any.
func Close(repo Repository) error {
	if i, ok := repo.(*instrumented); ok {
		repo = i.next
	}
	if c, ok := repo.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
