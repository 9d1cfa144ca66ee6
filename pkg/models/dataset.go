package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/inferloop/reviewqa/internal/frame"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// AssetID derives a dataset's identity from its phase, stage and name.
func AssetID(phase, stage, name string) string {
	return strings.ToLower(fmt.Sprintf("dataset-%s-%s-%s", phase, stage, name))
}

// Dataset wraps a frame with its asset identity and storage tags. Datasets are
// never mutated in place; transformations produce new frames.
type Dataset struct {
	ID          string       `json:"asset_id"`
	Phase       string       `json:"phase"`
	Stage       string       `json:"stage"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Engine      string       `json:"engine"`
	Format      string       `json:"format"`
	CreatedAt   time.Time    `json:"created_at"`
	Frame       *frame.Frame `json:"-"`
}

// DatasetMeta is the persisted description of a dataset, without its data.
type DatasetMeta struct {
	ID          string    `json:"asset_id"`
	Phase       string    `json:"phase"`
	Stage       string    `json:"stage"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Engine      string    `json:"engine"`
	Format      string    `json:"format"`
	CreatedAt   time.Time `json:"created_at"`
	Rows        int       `json:"rows"`
	Columns     []string  `json:"columns"`
}

// Meta returns the dataset metadata.
func (d *Dataset) Meta() DatasetMeta {
	meta := DatasetMeta{
		ID:          d.ID,
		Phase:       d.Phase,
		Stage:       d.Stage,
		Name:        d.Name,
		Description: d.Description,
		Engine:      d.Engine,
		Format:      d.Format,
		CreatedAt:   d.CreatedAt,
	}
	if d.Frame != nil {
		meta.Rows = d.Frame.NumRows()
		meta.Columns = d.Frame.Names()
	}
	return meta
}

// FromMeta rebuilds a dataset around a decoded frame.
func FromMeta(meta DatasetMeta, f *frame.Frame) *Dataset {
	return &Dataset{
		ID:          meta.ID,
		Phase:       meta.Phase,
		Stage:       meta.Stage,
		Name:        meta.Name,
		Description: meta.Description,
		Engine:      meta.Engine,
		Format:      meta.Format,
		CreatedAt:   meta.CreatedAt,
		Frame:       f,
	}
}

// Validate checks identity fields and storage tags.
func (d *Dataset) Validate() error {
	if d == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "dataset is required")
	}
	if d.ID == "" {
		return errors.NewValidationError(errors.CodeInvalidInput, "dataset asset id is required")
	}
	if d.Frame == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, fmt.Sprintf("dataset '%s' has no data", d.ID))
	}
	switch d.Engine {
	case constants.EngineLocal, constants.EngineDistributed:
	default:
		return errors.NewValidationError(errors.CodeInvalidType, fmt.Sprintf("unsupported engine '%s'", d.Engine))
	}
	switch d.Format {
	case constants.FileFormatCSV, constants.FileFormatJSON:
	default:
		return errors.NewValidationError(errors.CodeInvalidFormat, fmt.Sprintf("unsupported file format '%s'", d.Format))
	}
	return nil
}
