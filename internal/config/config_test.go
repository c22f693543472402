package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
providers:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: test-key
sql:
  dsn: "file:test.db"
bogus_top_level_field: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	path := writeConfig(t, `
providers:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: test-key
sql:
  dsn: "file:test.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Version != CurrentVersion {
		t.Fatalf("expected version to default to %d, got %d", CurrentVersion, cfg.Version)
	}
	if cfg.SQL.MaxOpenConns != 5 {
		t.Fatalf("expected default max_open_conns, got %d", cfg.SQL.MaxOpenConns)
	}
	if cfg.Session.CompactionThreshold != 0.8 {
		t.Fatalf("expected default compaction threshold, got %v", cfg.Session.CompactionThreshold)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level, got %q", cfg.Logging.Level)
	}
}

func TestLoadRequiresMatchingDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
providers:
  default_provider: openai
  providers:
    anthropic:
      api_key: test-key
sql:
  dsn: "file:test.db"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresSQLDSN(t *testing.T) {
	path := writeConfig(t, `
providers:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: test-key
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "sql.dsn") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
providers:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: placeholder
sql:
  dsn: "file:test.db"
`)

	t.Setenv("SQLPILOT_SQL_DSN", "file:override.db")
	t.Setenv("SQLPILOT_ANTHROPIC_API_KEY", "env-key")
	t.Setenv("SQLPILOT_LOG_LEVEL", "debug")
	t.Setenv("SQLPILOT_MAX_SESSION_TURNS", "50")
	t.Setenv("SQLPILOT_COMPRESSION_THRESHOLD", "0.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SQL.DSN != "file:override.db" {
		t.Fatalf("expected dsn override, got %q", cfg.SQL.DSN)
	}
	if cfg.Providers.Providers["anthropic"].APIKey != "env-key" {
		t.Fatalf("expected api key override, got %q", cfg.Providers.Providers["anthropic"].APIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected log level override, got %q", cfg.Logging.Level)
	}
	if cfg.Session.MaxTurns != 50 {
		t.Fatalf("expected max turns override, got %d", cfg.Session.MaxTurns)
	}
	if cfg.Session.CompactionThreshold != 0.5 {
		t.Fatalf("expected compaction threshold override, got %v", cfg.Session.CompactionThreshold)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	includePath := filepath.Join(dir, "sql.yaml")
	if err := os.WriteFile(includePath, []byte("sql:\n  dsn: \"file:included.db\"\n"), 0o600); err != nil {
		t.Fatalf("write include: %v", err)
	}
	mainPath := filepath.Join(dir, "config.yaml")
	content := `
$include: sql.yaml
providers:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: test-key
`
	if err := os.WriteFile(mainPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SQL.DSN != "file:included.db" {
		t.Fatalf("expected dsn from included file, got %q", cfg.SQL.DSN)
	}
}
