package stage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/models"
)

// DatasetRef names a dataset asset, either directly by id or by its phase,
// stage and name.
type DatasetRef struct {
	AssetID string `yaml:"asset_id,omitempty" json:"asset_id,omitempty"`
	Phase   string `yaml:"phase,omitempty" json:"phase,omitempty"`
	Stage   string `yaml:"stage,omitempty" json:"stage,omitempty"`
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
	Engine  string `yaml:"engine,omitempty" json:"engine,omitempty"`
	Format  string `yaml:"format,omitempty" json:"format,omitempty"`
}

// ID returns the asset id.
func (r DatasetRef) ID() string {
	if r.AssetID != "" {
		return r.AssetID
	}
	return models.AssetID(r.Phase, r.Stage, r.Name)
}

// IsZero reports whether the reference names nothing.
func (r DatasetRef) IsZero() bool {
	return r.AssetID == "" && r.Phase == "" && r.Stage == "" && r.Name == ""
}

// TaskSpec is one task entry of a stage: its type plus type-specific options.
type TaskSpec struct {
	Type    string                 `yaml:"type" json:"type"`
	Options map[string]interface{} `yaml:",inline" json:"options,omitempty"`
}

// decode re-reads the options into a typed config, rejecting unknown keys.
func (s TaskSpec) decode(out interface{}) error {
	raw, err := yaml.Marshal(s.Options)
	if err != nil {
		return errors.InvalidValue(s.Type, s.Options, err.Error())
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return errors.InvalidValue(s.Type, strings.TrimSpace(string(raw)), err.Error())
	}
	return nil
}

// Config defines one stage.
type Config struct {
	ID          string     `yaml:"id" json:"id"`
	Phase       string     `yaml:"phase" json:"phase"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Source      DatasetRef `yaml:"source" json:"source"`
	Destination DatasetRef `yaml:"destination" json:"destination"`
	Force       bool       `yaml:"force" json:"force"`
	Tasks       []TaskSpec `yaml:"tasks" json:"tasks"`
}

// PipelineConfig is a pipeline definition file: stages run in order.
type PipelineConfig struct {
	Name   string   `yaml:"name" json:"name"`
	Stages []Config `yaml:"stages" json:"stages"`
}

// normalize fills destination defaults from the stage and validates required
// keys. chained is set when the pipeline supplies the source.
func (c *Config) normalize(chained bool) error {
	if c.ID == "" {
		return errors.NewStageConfigurationError("", errors.MissingKey("id"))
	}
	if c.Source.IsZero() && !chained {
		return errors.NewStageConfigurationError(c.ID, errors.MissingKey("source"))
	}
	if c.Destination.Phase == "" {
		c.Destination.Phase = c.Phase
	}
	if c.Destination.Stage == "" {
		c.Destination.Stage = c.ID
	}
	if c.Destination.AssetID == "" && c.Destination.Name == "" {
		return errors.NewStageConfigurationError(c.ID, errors.MissingKey("destination.name"))
	}
	if c.Destination.Engine == "" {
		c.Destination.Engine = constants.EngineLocal
	}
	if c.Destination.Format == "" {
		c.Destination.Format = constants.DefaultFileFormat
	}
	switch c.Destination.Engine {
	case constants.EngineLocal, constants.EngineDistributed:
	default:
		return errors.NewStageConfigurationError(c.ID,
			errors.InvalidValue("destination.engine", c.Destination.Engine, "expected local or distributed"))
	}
	switch c.Destination.Format {
	case constants.FileFormatCSV, constants.FileFormatJSON:
	default:
		return errors.NewStageConfigurationError(c.ID,
			errors.InvalidValue("destination.format", c.Destination.Format, "expected csv or json"))
	}
	if len(c.Tasks) == 0 {
		return errors.NewStageConfigurationError(c.ID, errors.MissingKey("tasks"))
	}
	for i, task := range c.Tasks {
		if task.Type == "" {
			return errors.NewStageConfigurationError(c.ID, errors.MissingKey(fmt.Sprintf("tasks[%d].type", i)))
		}
	}
	return nil
}

// DecodeConfig parses a single stage definition.
func DecodeConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewStageConfigurationError("", errors.InvalidValue("document", "yaml", err.Error()))
	}
	if err := cfg.normalize(false); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFromMap builds a stage definition from an already decoded map.
func ConfigFromMap(m map[string]interface{}) (*Config, error) {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return nil, errors.NewStageConfigurationError(fmt.Sprint(m["id"]), errors.InvalidValue("document", m, err.Error()))
	}
	return DecodeConfig(raw)
}

// DecodePipeline parses a pipeline definition. A stage without a source reads
// the previous stage's destination.
func DecodePipeline(data []byte) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewStageConfigurationError("", errors.InvalidValue("document", "yaml", err.Error()))
	}
	if len(cfg.Stages) == 0 {
		return nil, errors.NewStageConfigurationError(cfg.Name, errors.MissingKey("stages"))
	}
	seen := make(map[string]bool, len(cfg.Stages))
	for i := range cfg.Stages {
		st := &cfg.Stages[i]
		if err := st.normalize(i > 0); err != nil {
			return nil, err
		}
		if seen[st.ID] {
			return nil, errors.NewStageConfigurationError(st.ID, errors.InvalidValue("id", st.ID, "duplicate stage id"))
		}
		seen[st.ID] = true
		if st.Source.IsZero() {
			st.Source = DatasetRef{AssetID: cfg.Stages[i-1].Destination.ID()}
		}
	}
	return &cfg, nil
}

// LoadPipeline reads and parses a pipeline file.
func LoadPipeline(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig,
			fmt.Sprintf("failed to read pipeline file '%s'", path))
	}
	return DecodePipeline(data)
}
