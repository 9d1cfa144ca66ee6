package dataset

import (
	"context"
	"sort"
	"sync"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
)

// MemoryRepository keeps datasets in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{datasets: make(map[string]*Dataset)}
}

// Exists reports whether an asset is stored.
func (m *MemoryRepository) Exists(ctx context.Context, assetID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.datasets[assetID]
	return ok, nil
}

// Get returns a stored asset.
func (m *MemoryRepository) Get(ctx context.Context, assetID string) (*Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.datasets[assetID]
	if !ok {
		return nil, errors.NewDatasetNotFoundError(assetID, constants.StorageTypeMemory)
	}
	out := *ds
	return &out, nil
}

// Add stores an asset, replacing any previous version.
func (m *MemoryRepository) Add(ctx context.Context, ds *Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	stored := *ds
	m.mu.Lock()
	m.datasets[ds.ID] = &stored
	m.mu.Unlock()
	return nil
}

// Remove deletes an asset; removing a missing asset is not an error.
func (m *MemoryRepository) Remove(ctx context.Context, assetID string) error {
	m.mu.Lock()
	delete(m.datasets, assetID)
	m.mu.Unlock()
	return nil
}

// List returns the stored asset ids in order.
func (m *MemoryRepository) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.datasets))
	for id := range m.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
