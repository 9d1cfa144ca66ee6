package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/models"
)

const metaSuffix = ".meta.json"

// FileConfig holds configuration for the workspace file repository
type FileConfig struct {
	BasePath    string      `json:"base_path" yaml:"base_path" mapstructure:"base_path"`
	Compression bool        `json:"compression" yaml:"compression" mapstructure:"compression"`
	CreateDirs  bool        `json:"create_dirs" yaml:"create_dirs" mapstructure:"create_dirs"`
	Permissions os.FileMode `json:"permissions" yaml:"permissions" mapstructure:"permissions"`
}

// fileMeta is the sidecar written next to each data file.
type fileMeta struct {
	models.DatasetMeta
	Compressed bool   `json:"compressed"`
	DataFile   string `json:"data_file"`
}

// FileRepository stores datasets as files in a workspace directory. Each asset
// is written as {id}.{format}[.gz] with an {id}.meta.json sidecar.
type FileRepository struct {
	config *FileConfig
	logger *logrus.Logger
	mu     sync.RWMutex
}

// NewFileRepository creates a file-backed repository
func NewFileRepository(config *FileConfig, logger *logrus.Logger) (*FileRepository, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "file repository config cannot be nil")
	}
	if config.BasePath == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "base path is required")
	}
	if config.Permissions == 0 {
		config.Permissions = 0o644
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &FileRepository{config: config, logger: logger}, nil
}

// Connect makes sure the workspace directory exists.
func (r *FileRepository) Connect(ctx context.Context) error {
	info, err := os.Stat(r.config.BasePath)
	switch {
	case err == nil && !info.IsDir():
		return errors.NewStorageError("INVALID_CONFIG", fmt.Sprintf("base path '%s' is not a directory", r.config.BasePath))
	case err == nil:
		return nil
	case os.IsNotExist(err) && r.config.CreateDirs:
		if err := os.MkdirAll(r.config.BasePath, 0o755); err != nil {
			return errors.NewStorageConnectionError(constants.StorageTypeFile, r.config.BasePath, err)
		}
		r.logger.WithField("base_path", r.config.BasePath).Info("Created workspace directory")
		return nil
	default:
		return errors.NewStorageConnectionError(constants.StorageTypeFile, r.config.BasePath, err)
	}
}

// Exists reports whether the asset's sidecar is present.
func (r *FileRepository) Exists(ctx context.Context, assetID string) (bool, error) {
	_, err := os.Stat(r.metaPath(assetID))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.WrapStorageError(err, "exists", constants.StorageTypeFile).WithAssetID(assetID)
}

// Get reads an asset back through its sidecar.
func (r *FileRepository) Get(ctx context.Context, assetID string) (*Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	raw, err := os.ReadFile(r.metaPath(assetID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewDatasetNotFoundError(assetID, constants.StorageTypeFile)
		}
		return nil, errors.WrapStorageError(err, "get", constants.StorageTypeFile).WithAssetID(assetID)
	}
	var meta fileMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, errors.WrapStorageError(err, "get", constants.StorageTypeFile).WithAssetID(assetID)
	}

	payload, err := os.ReadFile(filepath.Join(r.config.BasePath, meta.DataFile))
	if err != nil {
		return nil, errors.WrapStorageError(err, "get", constants.StorageTypeFile).WithAssetID(assetID)
	}
	f, err := decodeFrame(payload, meta.Format, meta.Compressed)
	if err != nil {
		return nil, err
	}
	return models.FromMeta(meta.DatasetMeta, f), nil
}

// Add writes the data file first and the sidecar last, so a sidecar always
// points at complete data.
func (r *FileRepository) Add(ctx context.Context, ds *Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	payload, err := encodeFrame(ds.Frame, ds.Format, r.config.Compression)
	if err != nil {
		return err
	}

	meta := fileMeta{
		DatasetMeta: ds.Meta(),
		Compressed:  r.config.Compression,
		DataFile:    ds.ID + "." + fileExtension(ds.Format, r.config.Compression),
	}
	rawMeta, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.WrapStorageError(err, "add", constants.StorageTypeFile).WithAssetID(ds.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := writeFileAtomic(filepath.Join(r.config.BasePath, meta.DataFile), payload, r.config.Permissions); err != nil {
		return errors.WrapStorageError(err, "add", constants.StorageTypeFile).WithAssetID(ds.ID)
	}
	if err := writeFileAtomic(r.metaPath(ds.ID), rawMeta, r.config.Permissions); err != nil {
		return errors.WrapStorageError(err, "add", constants.StorageTypeFile).WithAssetID(ds.ID)
	}

	r.logger.WithFields(logrus.Fields{
		"asset_id": ds.ID,
		"file":     meta.DataFile,
		"bytes":    len(payload),
	}).Debug("Dataset written")
	return nil
}

// Remove deletes the sidecar and every data file of the asset.
func (r *FileRepository) Remove(ctx context.Context, assetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(r.config.BasePath, assetID+".*"))
	if err != nil {
		return errors.WrapStorageError(err, "remove", constants.StorageTypeFile).WithAssetID(assetID)
	}
	for _, path := range matches {
		if !r.belongsTo(assetID, filepath.Base(path)) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.WrapStorageError(err, "remove", constants.StorageTypeFile).WithAssetID(assetID)
		}
	}
	return nil
}

// List returns the ids of every asset with a sidecar.
func (r *FileRepository) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.config.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.WrapStorageError(err, "list", constants.StorageTypeFile)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), metaSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *FileRepository) metaPath(assetID string) string {
	return filepath.Join(r.config.BasePath, assetID+metaSuffix)
}

// belongsTo guards against ids that prefix other ids, e.g. "a" and "a.b".
func (r *FileRepository) belongsTo(assetID, name string) bool {
	if name == assetID+metaSuffix {
		return true
	}
	rest := strings.TrimPrefix(name, assetID+".")
	for _, format := range []string{constants.FileFormatCSV, constants.FileFormatJSON} {
		if rest == format || rest == format+".gz" {
			return true
		}
	}
	return false
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
