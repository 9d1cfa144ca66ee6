package dataset

import (
	"bytes"
	"context"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/models"
)

// S3Config holds configuration for S3 storage
type S3Config struct {
	Region          string        `json:"region" yaml:"region" mapstructure:"region"`
	Bucket          string        `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string        `json:"access_key_id" yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key" yaml:"secret_access_key" mapstructure:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty" yaml:"session_token" mapstructure:"session_token"`
	Endpoint        string        `json:"endpoint,omitempty" yaml:"endpoint" mapstructure:"endpoint"`
	ForcePathStyle  bool          `json:"force_path_style" yaml:"force_path_style" mapstructure:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl" yaml:"disable_ssl" mapstructure:"disable_ssl"`
	Prefix          string        `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
	Format          string        `json:"format" yaml:"format" mapstructure:"format"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	PartSize        int64         `json:"part_size" yaml:"part_size" mapstructure:"part_size"`
	UseCompression  bool          `json:"use_compression" yaml:"use_compression" mapstructure:"use_compression"`
	StorageClass    string        `json:"storage_class" yaml:"storage_class" mapstructure:"storage_class"`
}

// S3Repository stores datasets as objects under {prefix}/datasets/. Asset
// metadata travels as object metadata.
type S3Repository struct {
	config     *S3Config
	s3Client   *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	logger     *logrus.Logger
	mu         sync.RWMutex
}

// NewS3Repository creates a new S3 repository instance
func NewS3Repository(config *S3Config, logger *logrus.Logger) (*S3Repository, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "S3 config cannot be nil")
	}
	if config.Bucket == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "S3 bucket is required")
	}
	if config.Format == "" {
		config.Format = constants.DefaultFileFormat
	}
	if config.Format != constants.FileFormatCSV && config.Format != constants.FileFormatJSON {
		return nil, errors.NewStorageError("INVALID_CONFIG", "S3 format must be csv or json")
	}
	if config.Timeout <= 0 {
		config.Timeout = constants.DefaultStorageTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &S3Repository{config: config, logger: logger}, nil
}

// Connect establishes connection to S3
func (s *S3Repository) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.s3Client != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region:     aws.String(s.config.Region),
		MaxRetries: aws.Int(s.config.MaxRetries),
	}
	if s.config.AccessKeyID != "" && s.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			s.config.AccessKeyID,
			s.config.SecretAccessKey,
			s.config.SessionToken,
		)
	}
	// S3-compatible services (minio, localstack)
	if s.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(s.config.ForcePathStyle)
	}
	if s.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, "SESSION_FAILED", "Failed to create AWS session")
	}

	s.s3Client = s3.New(sess)
	s.uploader = s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
		if s.config.PartSize > 0 {
			u.PartSize = s.config.PartSize
		}
	})
	s.downloader = s3manager.NewDownloader(sess, func(d *s3manager.Downloader) {
		if s.config.PartSize > 0 {
			d.PartSize = s.config.PartSize
		}
	})

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	if _, err := s.s3Client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	}); err != nil {
		s.s3Client = nil
		return errors.NewStorageConnectionError(constants.StorageTypeS3, s.config.Bucket, err)
	}

	s.logger.WithFields(logrus.Fields{
		"bucket": s.config.Bucket,
		"region": s.config.Region,
		"prefix": s.config.Prefix,
	}).Info("Connected to S3")
	return nil
}

// Exists reports whether the asset's object is present.
func (s *S3Repository) Exists(ctx context.Context, assetID string) (bool, error) {
	if err := s.ensureConnected(); err != nil {
		return false, err
	}
	_, err := s.head(ctx, assetID)
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, errors.WrapStorageError(err, "exists", constants.StorageTypeS3).WithAssetID(assetID).WithLocation(s.config.Bucket)
}

// Get downloads and decodes an asset.
func (s *S3Repository) Get(ctx context.Context, assetID string) (*Dataset, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	head, err := s.head(ctx, assetID)
	if err != nil {
		if isS3NotFound(err) {
			return nil, errors.NewDatasetNotFoundError(assetID, constants.StorageTypeS3)
		}
		return nil, errors.WrapStorageError(err, "get", constants.StorageTypeS3).WithAssetID(assetID).WithLocation(s.config.Bucket)
	}

	buf := aws.NewWriteAtBuffer([]byte{})
	if _, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(assetID)),
	}); err != nil {
		if isS3NotFound(err) {
			return nil, errors.NewDatasetNotFoundError(assetID, constants.StorageTypeS3)
		}
		return nil, errors.WrapStorageError(err, "get", constants.StorageTypeS3).WithAssetID(assetID).WithLocation(s.config.Bucket)
	}

	compressed := aws.StringValue(head.ContentEncoding) == "gzip"
	f, err := decodeFrame(buf.Bytes(), s.config.Format, compressed)
	if err != nil {
		return nil, err
	}
	meta := metaFromObject(assetID, head.Metadata)
	return models.FromMeta(meta, f), nil
}

// Add uploads an asset, replacing any previous object.
func (s *S3Repository) Add(ctx context.Context, ds *Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if err := s.ensureConnected(); err != nil {
		return err
	}

	payload, err := encodeFrame(ds.Frame, s.config.Format, s.config.UseCompression)
	if err != nil {
		return err
	}

	input := &s3manager.UploadInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(s.generateKey(ds.ID)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType(s.config.Format)),
		Metadata:    objectMetadata(ds.Meta()),
	}
	if s.config.UseCompression {
		input.ContentEncoding = aws.String("gzip")
	}
	if s.config.StorageClass != "" {
		input.StorageClass = aws.String(s.config.StorageClass)
	}

	result, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return errors.WrapStorageError(err, "add", constants.StorageTypeS3).WithAssetID(ds.ID).WithLocation(s.config.Bucket)
	}

	s.logger.WithFields(logrus.Fields{
		"asset_id": ds.ID,
		"location": result.Location,
		"bytes":    len(payload),
	}).Debug("Dataset uploaded")
	return nil
}

// Remove deletes an asset's object. S3 deletes are idempotent.
func (s *S3Repository) Remove(ctx context.Context, assetID string) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}
	if _, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(assetID)),
	}); err != nil {
		return errors.WrapStorageError(err, "remove", constants.StorageTypeS3).WithAssetID(assetID).WithLocation(s.config.Bucket)
	}
	return nil
}

// List returns the ids of every dataset object under the prefix.
func (s *S3Repository) List(ctx context.Context) ([]string, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	prefix := s.datasetPrefix()
	suffix := "." + s.config.Format
	var ids []string
	err := s.s3Client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if !strings.HasSuffix(key, suffix) {
				continue
			}
			ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix))
		}
		return true
	})
	if err != nil {
		return nil, errors.WrapStorageError(err, "list", constants.StorageTypeS3).WithLocation(s.config.Bucket)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *S3Repository) head(ctx context.Context, assetID string) (*s3.HeadObjectOutput, error) {
	return s.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(assetID)),
	})
}

func (s *S3Repository) ensureConnected() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.s3Client == nil {
		return errors.NewStorageError("NOT_CONNECTED", "S3 repository is not connected")
	}
	return nil
}

// generateKey returns {prefix}/datasets/{id}.{format}
func (s *S3Repository) generateKey(assetID string) string {
	return s.datasetPrefix() + assetID + "." + s.config.Format
}

func (s *S3Repository) datasetPrefix() string {
	return path.Join(s.config.Prefix, "datasets") + "/"
}

func isS3NotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return strings.Contains(err.Error(), "NoSuchKey")
}

func objectMetadata(meta models.DatasetMeta) map[string]*string {
	return map[string]*string{
		"asset-id":    aws.String(meta.ID),
		"phase":       aws.String(meta.Phase),
		"stage":       aws.String(meta.Stage),
		"name":        aws.String(meta.Name),
		"engine":      aws.String(meta.Engine),
		"format":      aws.String(meta.Format),
		"created-at":  aws.String(meta.CreatedAt.UTC().Format(time.RFC3339Nano)),
		"rows":        aws.String(strconv.Itoa(meta.Rows)),
		"description": aws.String(meta.Description),
	}
}

// metaFromObject reads object metadata back. S3 canonicalizes metadata keys,
// so lookups ignore case.
func metaFromObject(assetID string, md map[string]*string) models.DatasetMeta {
	get := func(key string) string {
		for k, v := range md {
			if strings.EqualFold(k, key) {
				return aws.StringValue(v)
			}
		}
		return ""
	}
	meta := models.DatasetMeta{
		ID:          assetID,
		Phase:       get("phase"),
		Stage:       get("stage"),
		Name:        get("name"),
		Engine:      get("engine"),
		Format:      get("format"),
		Description: get("description"),
	}
	if created, err := time.Parse(time.RFC3339Nano, get("created-at")); err == nil {
		meta.CreatedAt = created
	}
	meta.Rows, _ = strconv.Atoi(get("rows"))
	return meta
}

func contentType(format string) string {
	if format == constants.FileFormatJSON {
		return constants.ContentTypeJSONLine
	}
	return constants.ContentTypeCSV
}
