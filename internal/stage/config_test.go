package stage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/reviewqa/pkg/errors"
)

const pipelineYAML = `
name: reviews
stages:
  - id: ingest
    phase: raw
    source:
      asset_id: dataset-raw-landing-reviews
    destination:
      name: reviews
      format: json
    tasks:
      - type: ingest.remove_newlines
        column: content
      - type: ingest.sample
        frac: 0.5
        random_state: 7
  - id: quality
    phase: dq
    destination:
      name: reviews
    tasks:
      - type: anomaly
        dimension: text
        column: content
        mode: detect
        detect_strategy: short_review
        params:
          threshold: 2
`

func TestDecodePipeline(t *testing.T) {
	cfg, err := DecodePipeline([]byte(pipelineYAML))
	require.NoError(t, err)
	require.Len(t, cfg.Stages, 2)
	assert.Equal(t, "reviews", cfg.Name)

	first := cfg.Stages[0]
	assert.Equal(t, "dataset-raw-landing-reviews", first.Source.ID())
	assert.Equal(t, "dataset-raw-ingest-reviews", first.Destination.ID())
	assert.Equal(t, "json", first.Destination.Format)
	assert.Equal(t, "local", first.Destination.Engine)
	require.Len(t, first.Tasks, 2)
	assert.Equal(t, "ingest.sample", first.Tasks[1].Type)
	assert.Equal(t, 0.5, first.Tasks[1].Options["frac"])

	second := cfg.Stages[1]
	assert.Equal(t, "dataset-raw-ingest-reviews", second.Source.ID())
	assert.Equal(t, "dataset-dq-quality-reviews", second.Destination.ID())
	assert.Equal(t, "csv", second.Destination.Format)
	assert.Equal(t, "short_review", second.Tasks[0].Options["detect_strategy"])
}

func TestDecodeConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name:    "missing id",
			doc:     "source: {asset_id: a}\ndestination: {name: b}\ntasks: [{type: x}]",
			wantErr: errors.ErrMissingKey,
		},
		{
			name:    "missing source",
			doc:     "id: s\ndestination: {name: b}\ntasks: [{type: x}]",
			wantErr: errors.ErrMissingKey,
		},
		{
			name:    "missing destination name",
			doc:     "id: s\nsource: {asset_id: a}\ntasks: [{type: x}]",
			wantErr: errors.ErrMissingKey,
		},
		{
			name:    "missing tasks",
			doc:     "id: s\nsource: {asset_id: a}\ndestination: {name: b}",
			wantErr: errors.ErrMissingKey,
		},
		{
			name:    "missing task type",
			doc:     "id: s\nsource: {asset_id: a}\ndestination: {name: b}\ntasks: [{column: c}]",
			wantErr: errors.ErrMissingKey,
		},
		{
			name:    "bad format",
			doc:     "id: s\nsource: {asset_id: a}\ndestination: {name: b, format: parquet}\ntasks: [{type: x}]",
			wantErr: errors.ErrInvalidValue,
		},
		{
			name:    "bad engine",
			doc:     "id: s\nsource: {asset_id: a}\ndestination: {name: b, engine: gpu}\ntasks: [{type: x}]",
			wantErr: errors.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, errors.IsConfigurationError(err))
			assert.True(t, errors.HasCode(err, errors.CodeStageConfiguration))
		})
	}
}

func TestDecodeConfigMalformedYAML(t *testing.T) {
	_, err := DecodeConfig([]byte("id: [unclosed"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidValue)
}

func TestConfigFromMap(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]interface{}{
		"id":          "enrich",
		"phase":       "features",
		"source":      map[string]interface{}{"phase": "dq", "stage": "quality", "name": "reviews"},
		"destination": map[string]interface{}{"name": "reviews"},
		"tasks":       []interface{}{map[string]interface{}{"type": "enrich.review_month", "column": "date"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "dataset-dq-quality-reviews", cfg.Source.ID())
	assert.Equal(t, "dataset-features-enrich-reviews", cfg.Destination.ID())
	assert.Equal(t, "date", cfg.Tasks[0].Options["column"])
}

func TestDecodePipelineRejectsDuplicates(t *testing.T) {
	doc := `
stages:
  - id: a
    source: {asset_id: x}
    destination: {name: y}
    tasks: [{type: t}]
  - id: a
    destination: {name: z}
    tasks: [{type: t}]
`
	_, err := DecodePipeline([]byte(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidValue)
}

func TestDecodePipelineRequiresStages(t *testing.T) {
	_, err := DecodePipeline([]byte("name: empty"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingKey)
}

func TestLoadPipeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pipelineYAML), 0o644))

	cfg, err := LoadPipeline(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Stages, 2)

	_, err = LoadPipeline(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}
