package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/models"
)

// RedisConfig holds configuration for the Redis repository
type RedisConfig struct {
	Addr          string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	Password      string        `json:"password" yaml:"password" mapstructure:"password"`
	DB            int           `json:"db" yaml:"db" mapstructure:"db"`
	DialTimeout   time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	PoolSize      int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns  int           `json:"min_idle_conns" yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	MaxRetries    int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	IdleTimeout   time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
	TTL           time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix     string        `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
	Format        string        `json:"format" yaml:"format" mapstructure:"format"`
	Compression   bool          `json:"compression" yaml:"compression" mapstructure:"compression"`
	UseClustering bool          `json:"use_clustering" yaml:"use_clustering" mapstructure:"use_clustering"`
	ClusterAddrs  []string      `json:"cluster_addrs" yaml:"cluster_addrs" mapstructure:"cluster_addrs"`
}

// RedisRepository keeps small intermediate datasets in Redis: the encoded
// payload under {prefix}:dataset:{id} and its metadata in the hash
// {prefix}:dataset:{id}:meta. Both share the configured TTL.
type RedisRepository struct {
	config *RedisConfig
	client redis.UniversalClient
	logger *logrus.Logger
	mu     sync.RWMutex
}

// NewRedisRepository creates a new Redis repository instance
func NewRedisRepository(config *RedisConfig, logger *logrus.Logger) (*RedisRepository, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Redis config cannot be nil")
	}
	if config.Addr == "" && len(config.ClusterAddrs) == 0 {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Redis address or cluster addresses are required")
	}
	if config.TTL < 0 {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Redis TTL cannot be negative")
	}
	if config.Format == "" {
		config.Format = constants.DefaultFileFormat
	}
	if config.Format != constants.FileFormatCSV && config.Format != constants.FileFormatJSON {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Redis format must be csv or json")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisRepository{config: config, logger: logger}, nil
}

// NewRedisRepositoryWithClient wraps an existing client, e.g. one shared with
// other components.
func NewRedisRepositoryWithClient(client redis.UniversalClient, config *RedisConfig, logger *logrus.Logger) (*RedisRepository, error) {
	repo, err := NewRedisRepository(config, logger)
	if err != nil {
		return nil, err
	}
	repo.client = client
	return repo, nil
}

// Connect establishes connection to Redis
func (r *RedisRepository) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil
	}

	var client redis.UniversalClient
	if r.config.UseClustering && len(r.config.ClusterAddrs) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        r.config.ClusterAddrs,
			Password:     r.config.Password,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MinIdleConns: r.config.MinIdleConns,
			MaxRetries:   r.config.MaxRetries,
			IdleTimeout:  r.config.IdleTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         r.config.Addr,
			Password:     r.config.Password,
			DB:           r.config.DB,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MinIdleConns: r.config.MinIdleConns,
			MaxRetries:   r.config.MaxRetries,
			IdleTimeout:  r.config.IdleTimeout,
		})
	}

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return errors.NewStorageConnectionError(constants.StorageTypeRedis, r.config.Addr, err)
	}
	r.client = client

	r.logger.WithFields(logrus.Fields{
		"addr":       r.config.Addr,
		"db":         r.config.DB,
		"clustering": r.config.UseClustering,
	}).Info("Connected to Redis")
	return nil
}

// Close closes the Redis connection
func (r *RedisRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

// Exists reports whether the asset's payload key is present.
func (r *RedisRepository) Exists(ctx context.Context, assetID string) (bool, error) {
	client, err := r.connected()
	if err != nil {
		return false, err
	}
	n, err := client.Exists(ctx, r.generateDataKey(assetID)).Result()
	if err != nil {
		return false, errors.WrapStorageError(err, "exists", constants.StorageTypeRedis).WithAssetID(assetID)
	}
	return n > 0, nil
}

// Get reads an asset's metadata hash and payload.
func (r *RedisRepository) Get(ctx context.Context, assetID string) (*Dataset, error) {
	client, err := r.connected()
	if err != nil {
		return nil, err
	}

	pipe := client.Pipeline()
	metaCmd := pipe.HGetAll(ctx, r.generateMetaKey(assetID))
	dataCmd := pipe.Get(ctx, r.generateDataKey(assetID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, errors.WrapStorageError(err, "get", constants.StorageTypeRedis).WithAssetID(assetID)
	}

	payload, err := dataCmd.Bytes()
	if err == redis.Nil {
		return nil, errors.NewDatasetNotFoundError(assetID, constants.StorageTypeRedis)
	}
	if err != nil {
		return nil, errors.WrapStorageError(err, "get", constants.StorageTypeRedis).WithAssetID(assetID)
	}
	fields, err := metaCmd.Result()
	if err != nil {
		return nil, errors.WrapStorageError(err, "get", constants.StorageTypeRedis).WithAssetID(assetID)
	}

	meta, compressed := metaFromHash(assetID, fields)
	f, err := decodeFrame(payload, r.config.Format, compressed)
	if err != nil {
		return nil, err
	}
	return models.FromMeta(meta, f), nil
}

// Add writes payload and metadata in one transaction.
func (r *RedisRepository) Add(ctx context.Context, ds *Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	client, err := r.connected()
	if err != nil {
		return err
	}

	payload, err := encodeFrame(ds.Frame, r.config.Format, r.config.Compression)
	if err != nil {
		return err
	}
	fields, err := hashFromMeta(ds.Meta(), r.config.Compression)
	if err != nil {
		return errors.WrapStorageError(err, "add", constants.StorageTypeRedis).WithAssetID(ds.ID)
	}

	dataKey, metaKey := r.generateDataKey(ds.ID), r.generateMetaKey(ds.ID)
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, dataKey, payload, r.config.TTL)
		pipe.Del(ctx, metaKey)
		pipe.HSet(ctx, metaKey, fields)
		if r.config.TTL > 0 {
			pipe.Expire(ctx, metaKey, r.config.TTL)
		}
		return nil
	})
	if err != nil {
		return errors.WrapStorageError(err, "add", constants.StorageTypeRedis).WithAssetID(ds.ID)
	}

	r.logger.WithFields(logrus.Fields{
		"asset_id": ds.ID,
		"bytes":    len(payload),
		"ttl":      r.config.TTL,
	}).Debug("Dataset cached")
	return nil
}

// Remove deletes both keys of an asset.
func (r *RedisRepository) Remove(ctx context.Context, assetID string) error {
	client, err := r.connected()
	if err != nil {
		return err
	}
	if err := client.Del(ctx, r.generateDataKey(assetID), r.generateMetaKey(assetID)).Err(); err != nil {
		return errors.WrapStorageError(err, "remove", constants.StorageTypeRedis).WithAssetID(assetID)
	}
	return nil
}

// List scans metadata hashes under the prefix.
func (r *RedisRepository) List(ctx context.Context) ([]string, error) {
	client, err := r.connected()
	if err != nil {
		return nil, err
	}

	prefix := r.generateDataKey("")
	var ids []string
	iter := client.Scan(ctx, 0, prefix+"*:meta", 100).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimSuffix(strings.TrimPrefix(iter.Val(), prefix), ":meta")
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.WrapStorageError(err, "list", constants.StorageTypeRedis)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *RedisRepository) connected() (redis.UniversalClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, errors.NewStorageError("NOT_CONNECTED", "Redis not connected")
	}
	return r.client, nil
}

func (r *RedisRepository) generateDataKey(assetID string) string {
	if r.config.KeyPrefix != "" {
		return fmt.Sprintf("%s:dataset:%s", r.config.KeyPrefix, assetID)
	}
	return fmt.Sprintf("dataset:%s", assetID)
}

func (r *RedisRepository) generateMetaKey(assetID string) string {
	return r.generateDataKey(assetID) + ":meta"
}

func hashFromMeta(meta models.DatasetMeta, compressed bool) (map[string]interface{}, error) {
	columns, err := json.Marshal(meta.Columns)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"phase":       meta.Phase,
		"stage":       meta.Stage,
		"name":        meta.Name,
		"description": meta.Description,
		"engine":      meta.Engine,
		"format":      meta.Format,
		"created_at":  meta.CreatedAt.UTC().Format(time.RFC3339Nano),
		"rows":        meta.Rows,
		"columns":     string(columns),
		"compressed":  strconv.FormatBool(compressed),
	}, nil
}

func metaFromHash(assetID string, fields map[string]string) (models.DatasetMeta, bool) {
	meta := models.DatasetMeta{
		ID:          assetID,
		Phase:       fields["phase"],
		Stage:       fields["stage"],
		Name:        fields["name"],
		Description: fields["description"],
		Engine:      fields["engine"],
		Format:      fields["format"],
	}
	if created, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		meta.CreatedAt = created
	}
	meta.Rows, _ = strconv.Atoi(fields["rows"])
	_ = json.Unmarshal([]byte(fields["columns"]), &meta.Columns)
	compressed, _ := strconv.ParseBool(fields["compressed"])
	return meta, compressed
}
