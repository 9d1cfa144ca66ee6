// Package dataset builds dataset assets and persists them through the
// repository backends: memory, workspace files, S3 and Redis.
package dataset

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/models"
)

// Dataset is the asset type persisted by repositories.
type Dataset = models.Dataset

// Factory builds datasets from frames.
type Factory struct {
	logger *logrus.Logger
	now    func() time.Time
}

// NewFactory creates a dataset factory
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}
	return &Factory{logger: logger, now: time.Now}
}

// FromFrame wraps f as the asset identified by phase, stage and name. Empty
// engine and format fall back to local and csv.
func (fc *Factory) FromFrame(phase, stage, name string, f *frame.Frame, engine, format string) (*Dataset, error) {
	if engine == "" {
		engine = constants.EngineLocal
	}
	if format == "" {
		format = constants.DefaultFileFormat
	}
	ds := &Dataset{
		ID:        models.AssetID(phase, stage, name),
		Phase:     phase,
		Stage:     stage,
		Name:      name,
		Engine:    engine,
		Format:    format,
		CreatedAt: fc.now().UTC(),
		Frame:     f,
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	fc.logger.WithFields(logrus.Fields{
		"asset_id": ds.ID,
		"rows":     f.NumRows(),
		"engine":   engine,
		"format":   format,
	}).Debug("Dataset created")
	return ds, nil
}
