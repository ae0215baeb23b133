package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/longkey1/prepc/internal/prepc"
	"github.com/longkey1/prepc/internal/prepc/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the configuration for the client
type Config struct {
	StorageDriver      string   `toml:"storage_driver" mapstructure:"storage_driver"` // file, bolt, pebble, sqlite or memory
	StoragePath        string   `toml:"storage_path" mapstructure:"storage_path"`
	PromptDirs         []string `toml:"prompt_dirs" mapstructure:"prompt_dirs"`
	OpenAIBaseURL      string   `toml:"openai_base_url" mapstructure:"openai_base_url"`
	OpenAIAPIKey       string   `toml:"openai_api_key" mapstructure:"openai_api_key"`           // Environment default for the API key
	DefaultModel       string   `toml:"default_model" mapstructure:"default_model"`             // Environment default for the model
	DefaultTemperature string   `toml:"default_temperature" mapstructure:"default_temperature"` // Environment default, parsed as float
	LogLevel           string   `toml:"log_level" mapstructure:"log_level"`
	LogFormat          string   `toml:"log_format" mapstructure:"log_format"` // text or json
	LogFile            string   `toml:"log_file" mapstructure:"log_file"`
}

// NewDefaultConfig returns a new Config with default values
func NewDefaultConfig(dataDir string) *Config {
	return &Config{
		StorageDriver:      store.DriverFile,
		StoragePath:        filepath.Join(dataDir, "data"),
		PromptDirs:         []string{filepath.Join(dataDir, "prompts")},
		OpenAIBaseURL:      "https://api.openai.com/v1",
		OpenAIAPIKey:       "$OPENAI_API_KEY", // Default to env var
		DefaultModel:       prepc.DefaultModel,
		DefaultTemperature: strconv.FormatFloat(prepc.DefaultTemperature, 'f', -1, 64),
		LogLevel:           "warn",
		LogFormat:          "text",
		LogFile:            "",
	}
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %v", err)
	}

	// Convert prompt directories to absolute paths
	for i, promptDir := range config.PromptDirs {
		absPath, err := ResolvePath(promptDir)
		if err != nil {
			return nil, fmt.Errorf("error resolving prompt directory path '%s': %v", promptDir, err)
		}
		config.PromptDirs[i] = absPath
	}

	if config.StoragePath != "" && config.StorageDriver != store.DriverMemory {
		absPath, err := ResolvePath(config.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("error resolving storage path '%s': %v", config.StoragePath, err)
		}
		config.StoragePath = absPath
	}

	config.OpenAIAPIKey = expandEnvVar(config.OpenAIAPIKey)

	return config, nil
}

// StorageLocation returns the path handed to store.Open for the configured
// driver. Database drivers get a file inside the storage directory.
func (c *Config) StorageLocation() string {
	switch strings.ToLower(c.StorageDriver) {
	case store.DriverBolt:
		return filepath.Join(c.StoragePath, "prepc.bolt")
	case store.DriverSQLite:
		return filepath.Join(c.StoragePath, "prepc.sqlite")
	case store.DriverPebble:
		return filepath.Join(c.StoragePath, "pebble")
	default:
		return c.StoragePath
	}
}

// EnvDefaults returns the environment-sourced settings defaults
func (c *Config) EnvDefaults() EnvDefaults {
	env := EnvDefaults{
		APIKey: c.OpenAIAPIKey,
		Model:  c.DefaultModel,
	}
	if c.DefaultTemperature != "" {
		t, err := strconv.ParseFloat(strings.TrimSpace(c.DefaultTemperature), 64)
		if err != nil {
			log.Warn().Str("default_temperature", c.DefaultTemperature).Msg("Ignoring invalid default temperature")
		} else {
			env.Temperature = &t
		}
	}
	return env
}
