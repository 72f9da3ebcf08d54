// Package config loads toolline configuration from a JSON file, with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
}

// Config is the full application configuration.
type Config struct {
	APIKey           string        `json:"api_key" mapstructure:"api_key"`
	Provider         string        `json:"provider" mapstructure:"provider"`
	Model            string        `json:"model" mapstructure:"model"`
	DataDir          string        `json:"data_dir" mapstructure:"data_dir"`
	MaxToolRounds    int           `json:"max_tool_rounds" mapstructure:"max_tool_rounds"`
	CommandTimeoutMs int           `json:"command_timeout_ms" mapstructure:"command_timeout_ms"`
	Logging          LoggingConfig `json:"logging" mapstructure:"logging"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:         "openai",
		Model:            "gpt-4o",
		MaxToolRounds:    50,
		CommandTimeoutMs: 60000,
		Logging: LoggingConfig{
			Level:   "info",
			Console: false,
		},
	}
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".toolline", "config.json")
}

// Load reads configuration from configPath, falling back to the default
// location, falling back to defaults when no file exists. TOOLLINE_*
// environment variables override file values.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("TOOLLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determine home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".toolline")
	}
	if cfg.Logging.File == "" && cfg.DataDir != "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "toolline.log")
	}
	return cfg, nil
}

// SessionsDir returns the directory session logs live in.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// providerKeyEnvVars maps provider names to their native credential
// environment variables.
var providerKeyEnvVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"groq":      "GROQ_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"ollama":    "", // local, no key
}

// ResolveAPIKey returns the model API key, in precedence order:
// TOOLLINE_API_KEY, the provider's native environment variable, then the
// config file value. An empty result means no credential is available.
func (c *Config) ResolveAPIKey() string {
	if key := os.Getenv("TOOLLINE_API_KEY"); key != "" {
		return key
	}
	if envVar, ok := providerKeyEnvVars[strings.ToLower(c.Provider)]; ok && envVar != "" {
		if key := os.Getenv(envVar); key != "" {
			return key
		}
	}
	return c.APIKey
}
