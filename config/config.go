// Package config loads the engine's tunables from YAML, replacing the
// hardcoded constants a distilled spec would otherwise bake into the code.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"go.yaml.in/yaml/v3"
)

// EngineConfig holds every tunable named in spec §6.
type EngineConfig struct {
	PageSize       uint32        `yaml:"page_size"`
	LogBufferSize  uint32        `yaml:"log_buffer_size"`
	BufferPoolSize uint32        `yaml:"buffer_pool_size"` // number of frames
	LogTimeout     time.Duration `yaml:"log_timeout"`
	WaitTimeout    time.Duration `yaml:"wait_timeout"`

	// EnableLogging is a startup-time embedding choice: whether this
	// process runs the log manager's background flush thread at all. It
	// is unrelated to recovery.EnableLogging, the process-global runtime
	// flag recovery toggles off for the duration of Redo/Undo.
	EnableLogging bool `yaml:"enable_logging"`

	PageFilePath string `yaml:"page_file_path"`
	LogFilePath  string `yaml:"log_file_path"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in defaults, suitable for embedding this engine
// as a library without a config file on disk.
func Default() *EngineConfig {
	return &EngineConfig{
		PageSize:       4096,
		LogBufferSize:  4096 * 4,
		BufferPoolSize: 64,
		LogTimeout:     1 * time.Second,
		WaitTimeout:    1 * time.Second,
		EnableLogging:  true,
		PageFilePath:   "engine.db",
		LogFilePath:    "engine.log",
		LogLevel:       "info",
	}
}

// Load reads a YAML config file, applying Default() for any zero-valued
// field left unset in the file.
func Load(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", path)
	}

	if cfg.PageSize == 0 {
		cfg.PageSize = Default().PageSize
	}
	if cfg.LogBufferSize == 0 {
		cfg.LogBufferSize = Default().LogBufferSize
	}
	if cfg.BufferPoolSize == 0 {
		cfg.BufferPoolSize = Default().BufferPoolSize
	}
	if cfg.LogTimeout == 0 {
		cfg.LogTimeout = Default().LogTimeout
	}
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = Default().WaitTimeout
	}
	if cfg.PageFilePath == "" {
		cfg.PageFilePath = Default().PageFilePath
	}
	if cfg.LogFilePath == "" {
		cfg.LogFilePath = Default().LogFilePath
	}

	return cfg, nil
}
