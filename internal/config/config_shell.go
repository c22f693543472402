package config

import "time"

// ShellConfig controls the run_shell tool's defaults.
type ShellConfig struct {
	Enabled        bool          `yaml:"enabled"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	WorkingDir     string        `yaml:"working_dir"`
}

func applyShellDefaults(cfg *ShellConfig) {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
}

// WebConfig controls the fetch_url tool's defaults.
type WebConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxResponseBytes int64         `yaml:"max_response_bytes"`
	Timeout          time.Duration `yaml:"timeout"`
}

func applyWebDefaults(cfg *WebConfig) {
	if cfg.MaxResponseBytes == 0 {
		cfg.MaxResponseBytes = 1 << 20
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
}
