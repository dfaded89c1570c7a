// Package config handles configuration loading for specpilot.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for specpilot.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Packet    PacketConfig    `mapstructure:"packet"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// BackendConfig selects and configures the phase body executor.
type BackendConfig struct {
	// Kind is "api" or "cli".
	Kind string `mapstructure:"kind"`
	// Model is the model identifier, pinned at spec init and compared
	// on every run.
	Model string `mapstructure:"model"`
	// Version is the backend version string recorded in the pin.
	Version string `mapstructure:"version"`
	// Command is the executable for the cli backend.
	Command string `mapstructure:"command"`
	// UseBedrock routes api calls through AWS Bedrock.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS shared-config profile.
	AWSProfile string `mapstructure:"aws_profile"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	// Root is the directory holding all specs.
	Root string `mapstructure:"root"`
	// Timeout bounds one phase execution.
	Timeout time.Duration `mapstructure:"timeout"`
	// LockTTL is the lock staleness threshold.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// PacketConfig holds content packet budgets.
type PacketConfig struct {
	ByteBudget int `mapstructure:"byte_budget"`
	LineBudget int `mapstructure:"line_budget"`
	// PatternsFile points at extra secret patterns in YAML form.
	PatternsFile string `mapstructure:"patterns_file"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (SPECPILOT_*, ANTHROPIC_API_KEY)
// 2. Project config (.specpilot.yaml in current directory or parent)
// 3. User config (~/.config/specpilot/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("SPECPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.kind", "api")
	v.SetDefault("backend.model", "claude-sonnet-4-20250514")
	v.SetDefault("backend.version", "api-2023-06-01")
	v.SetDefault("pipeline.root", ".specpilot/specs")
	v.SetDefault("pipeline.timeout", "600s")
	v.SetDefault("pipeline.lock_ttl", "15m")
	v.SetDefault("packet.byte_budget", 256*1024)
	v.SetDefault("packet.line_budget", 8000)
}

// getUserConfigDir returns the XDG config directory for specpilot.
func getUserConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "specpilot")
}

// findProjectConfig walks up from the working directory looking for
// .specpilot.yaml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ".specpilot.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnv expands ${VAR} references in a value.
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}"))
	}
	return value
}
