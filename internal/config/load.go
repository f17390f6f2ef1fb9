package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvToolPath = "GOFIT_TOOL_PATH"
	EnvLogLevel = "GOFIT_LOG_LEVEL"
)

// Load loads configuration with priority: defaults < file < environment.
// An explicit path must exist; otherwise the standard locations are searched.
// Command-line flags are applied on top by the caller.
func Load(path string) (*Config, error) {
	cfg := Default()

	configPath := path
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	applyEnv(cfg)

	if cfg.Batch.Concurrency < 1 {
		cfg.Batch.Concurrency = 1
	}

	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./gofit.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "gofit")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "gofit")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "gofit")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "gofit")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnv applies environment overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvToolPath); v != "" {
		cfg.Converter.ToolPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}
