package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for sqlpilot. It is loaded from a YAML
// (or JSON5) file via Load, which resolves $include directives through
// LoadRaw before decoding into this struct.
type Config struct {
	Version int `yaml:"version"`

	Providers  ProvidersConfig  `yaml:"providers"`
	SQL        SQLConfig        `yaml:"sql"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Session    SessionConfig    `yaml:"session"`
	Tools      ToolsConfig      `yaml:"tools"`
	Shell      ShellConfig      `yaml:"shell"`
	Web        WebConfig        `yaml:"web"`
	Risk       RiskConfig       `yaml:"risk"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	HotReload  HotReloadConfig  `yaml:"hot_reload"`
}

// ConfigValidationError collects configuration problems found by
// validateConfig. All issues are reported together instead of failing on
// the first one.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return ""
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Issues, "; "))
}

// Load reads the config file at path, resolving $include directives via
// LoadRaw, applies defaults and environment overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil && cfg.Version != 0 {
		return nil, err
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	applyProvidersDefaults(&cfg.Providers)
	applySQLDefaults(&cfg.SQL)
	applyWorkspaceDefaults(&cfg.Workspace)
	applySessionDefaults(&cfg.Session)
	applyToolsDefaults(&cfg.Tools)
	applyShellDefaults(&cfg.Shell)
	applyWebDefaults(&cfg.Web)
	applyRiskDefaults(&cfg.Risk)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyHotReloadDefaults(&cfg.HotReload)
}

// applyEnvOverrides lets deployment secrets (provider API keys, the SQL
// DSN) come from the environment instead of the config file, the same
// override points the teacher exposes for its own provider credentials.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SQLPILOT_SQL_DSN"); v != "" {
		cfg.SQL.DSN = v
	}
	for name, provider := range cfg.Providers.Providers {
		envVar := "SQLPILOT_" + strings.ToUpper(name) + "_API_KEY"
		if v := os.Getenv(envVar); v != "" {
			provider.APIKey = v
			cfg.Providers.Providers[name] = provider
		}
	}
	if v := os.Getenv("SQLPILOT_WORKSPACE_PATH"); v != "" {
		cfg.Workspace.Path = v
	}
	if v := os.Getenv("SQLPILOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SQLPILOT_MAX_SESSION_TURNS"); v != "" {
		if turns, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxTurns = turns
		}
	}
	if v := os.Getenv("SQLPILOT_COMPRESSION_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Session.CompactionThreshold = threshold
		}
	}
}

func validateConfig(cfg *Config) error {
	var issues []string

	if cfg.Providers.DefaultProvider == "" {
		issues = append(issues, "providers.default_provider is required")
	} else if _, ok := cfg.Providers.Providers[cfg.Providers.DefaultProvider]; !ok {
		issues = append(issues, fmt.Sprintf("providers.default_provider %q has no matching entry under providers.providers", cfg.Providers.DefaultProvider))
	}

	if strings.TrimSpace(cfg.SQL.DSN) == "" {
		issues = append(issues, "sql.dsn is required")
	}

	if cfg.Session.MaxTurns < 0 {
		issues = append(issues, "session.max_turns must be >= 0")
	}
	if cfg.Session.CompactionThreshold < 0 || cfg.Session.CompactionThreshold > 1 {
		issues = append(issues, "session.compaction_threshold must be between 0 and 1")
	}

	if level := strings.ToLower(cfg.Logging.Level); level != "" && !validLogLevel(level) {
		issues = append(issues, fmt.Sprintf("logging.level %q is not a recognized level", cfg.Logging.Level))
	}

	if len(pluginValidationIssues(cfg)) > 0 {
		issues = append(issues, pluginValidationIssues(cfg)...)
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
}

func applyHotReloadDefaults(cfg *HotReloadConfig) {
	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
}
