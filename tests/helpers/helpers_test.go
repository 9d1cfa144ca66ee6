package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/internal/synthetic"
	"github.com/inferloop/reviewqa/pkg/errors"
)

func TestEnvironmentSeedsAndCleansAssets(t *testing.T) {
	env := NewTestEnvironment(t)
	a := env.NewApp(env.WriteConfig(""))

	t.Run("seed", func(t *testing.T) {
		NewTestCleanup(t).RegisterAssetCleanup(a.Repository, RawReviewsAsset)

		ds := env.SeedReviews(a.Repository, ReviewFrame("fine", "bad"))
		assert.Equal(t, RawReviewsAsset, ds.ID)

		got, err := a.Repository.Get(env.Context, RawReviewsAsset)
		require.NoError(t, err)
		AssertColumn(t, got.Frame, synthetic.ColumnContent, []interface{}{"fine", "bad"})
	})

	exists, err := a.Repository.Exists(env.Context, RawReviewsAsset)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGenerateReviewsIsDeterministic(t *testing.T) {
	env := NewTestEnvironment(t)
	first := env.GenerateReviews(50, map[string]float64{synthetic.AnomalyShort: 0.2})
	second := env.GenerateReviews(50, map[string]float64{synthetic.AnomalyShort: 0.2})

	assert.Equal(t, 50, first.Frame.NumRows())
	assert.True(t, first.Frame.Equal(second.Frame))
	assert.Equal(t, first.Count(synthetic.AnomalyShort), second.Count(synthetic.AnomalyShort))
}

func TestAssertErrorCode(t *testing.T) {
	AssertErrorCode(t, errors.NewValidationError(errors.CodeInvalidInput, "bad"), errors.CodeInvalidInput)
}

func TestFileCleanupRemovesPaths(t *testing.T) {
	env := NewTestEnvironment(t)
	var path string

	t.Run("write", func(t *testing.T) {
		path = env.WriteFile("out/data.csv", "content\nfine\n")
		NewTestCleanup(t).RegisterFileCleanup(path)
		AssertFileExists(t, path, "fine")
	})

	assert.NoFileExists(t, path)
}
