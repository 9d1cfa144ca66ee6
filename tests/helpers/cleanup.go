package helpers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// TestCleanup provides utilities for cleaning up test resources
type TestCleanup struct {
	t         *testing.T
	resources []CleanupResource
	mu        sync.Mutex
}

// CleanupResource represents a resource that needs cleanup
type CleanupResource interface {
	Cleanup() error
	String() string
}

// FileCleanup represents file system cleanup
type FileCleanup struct {
	paths []string
}

// AssetCleanup removes dataset assets from a repository.
type AssetCleanup struct {
	repo interfaces.DatasetRepository
	ids  []string
}

// NewTestCleanup creates a cleanup helper that runs when the test ends.
func NewTestCleanup(t *testing.T) *TestCleanup {
	tc := &TestCleanup{t: t}
	t.Cleanup(tc.CleanupAll)
	return tc
}

// AddResource adds a resource to be cleaned up
func (tc *TestCleanup) AddResource(resource CleanupResource) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.resources = append(tc.resources, resource)
}

// CleanupAll cleans up resources in reverse registration order.
func (tc *TestCleanup) CleanupAll() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	var errs []string
	for i := len(tc.resources) - 1; i >= 0; i-- {
		resource := tc.resources[i]
		if err := resource.Cleanup(); err != nil {
			errs = append(errs, fmt.Sprintf("failed to cleanup %s: %v", resource.String(), err))
		}
	}

	if len(errs) > 0 {
		tc.t.Errorf("cleanup errors: %s", strings.Join(errs, "; "))
	}

	tc.resources = tc.resources[:0]
}

// RegisterFileCleanup registers files/directories for cleanup
func (tc *TestCleanup) RegisterFileCleanup(paths ...string) {
	tc.AddResource(&FileCleanup{paths: paths})
}

// RegisterAssetCleanup removes the assets from repo when the test ends.
func (tc *TestCleanup) RegisterAssetCleanup(repo interfaces.DatasetRepository, ids ...string) {
	tc.AddResource(&AssetCleanup{repo: repo, ids: ids})
}

func (fc *FileCleanup) Cleanup() error {
	for _, path := range fc.paths {
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	return nil
}

func (fc *FileCleanup) String() string {
	return fmt.Sprintf("files %v", fc.paths)
}

func (ac *AssetCleanup) Cleanup() error {
	for _, id := range ac.ids {
		if err := ac.repo.Remove(context.Background(), id); err != nil {
			return err
		}
	}
	return nil
}

func (ac *AssetCleanup) String() string {
	return fmt.Sprintf("assets %v", ac.ids)
}
