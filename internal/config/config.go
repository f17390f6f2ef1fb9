// Package config handles gofit configuration loading and management.
package config

import (
	"runtime"
	"time"
)

// Config holds all settings.
type Config struct {
	Converter ConverterConfig `yaml:"converter"`
	Output    OutputConfig    `yaml:"output"`
	Batch     BatchConfig     `yaml:"batch"`
	Watch     WatchConfig     `yaml:"watch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ConverterConfig holds the external converter settings.
type ConverterConfig struct {
	ToolPath  string `yaml:"tool_path"`
	ScriptDir string `yaml:"script_dir"` // Empty means the OS temp directory
}

// OutputConfig holds output naming settings.
type OutputConfig struct {
	Suffix       string `yaml:"suffix"`
	SecondaryExt string `yaml:"secondary_ext"`
}

// BatchConfig holds batch processing settings.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// DefaultToolPath returns where Blender is usually installed on this OS.
func DefaultToolPath() string {
	if runtime.GOOS == "darwin" {
		return "/Applications/Blender.app/Contents/MacOS/Blender"
	}
	return "/usr/local/blender/blender"
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Converter: ConverterConfig{
			ToolPath: DefaultToolPath(),
		},
		Output: OutputConfig{
			Suffix:       "_resized",
			SecondaryExt: ".usdz",
		},
		Batch: BatchConfig{
			Concurrency: max(1, runtime.NumCPU()/2),
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
