package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/inferloop/reviewqa/internal/app"
	"github.com/inferloop/reviewqa/pkg/constants"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

// CLIConfig is the application config plus the cli section.
type CLIConfig struct {
	App         *app.Config
	Preferences Preferences
}

type Preferences struct {
	OutputFormat string `mapstructure:"output_format"`
	HeadRows     int    `mapstructure:"head_rows"`
}

// LoadConfig reads the same file as the services; CLI preferences live under
// the cli key.
func LoadConfig(cfgFile string) (*CLIConfig, error) {
	appCfg, err := app.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("cli.output_format", OutputText)
	v.SetDefault("cli.head_rows", 5)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(GetDefaultConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(strings.ToUpper(constants.AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &CLIConfig{App: appCfg}
	if err := v.UnmarshalKey("cli", &config.Preferences); err != nil {
		return nil, fmt.Errorf("error unmarshaling cli preferences: %w", err)
	}
	if err := config.Preferences.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (p Preferences) Validate() error {
	switch p.OutputFormat {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("unsupported output format '%s'", p.OutputFormat)
	}
	if p.HeadRows < 0 {
		return fmt.Errorf("head_rows must not be negative")
	}
	return nil
}

func GetDefaultConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+constants.AppName)
}
