package interfaces

import (
	"context"

	"github.com/inferloop/reviewqa/pkg/models"
)

// DatasetRepository persists dataset assets by asset id.
type DatasetRepository interface {
	Exists(ctx context.Context, assetID string) (bool, error)
	Get(ctx context.Context, assetID string) (*models.Dataset, error)
	Add(ctx context.Context, dataset *models.Dataset) error
	Remove(ctx context.Context, assetID string) error
}

// DatasetLister is implemented by repositories that can enumerate assets.
type DatasetLister interface {
	List(ctx context.Context) ([]string, error)
}

// ProfileSink receives execution profiles.
type ProfileSink interface {
	Record(ctx context.Context, profile *models.Profile) error
}
