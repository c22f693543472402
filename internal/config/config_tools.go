package config

import "time"

// ToolsConfig controls tool-call execution limits and confirmation policy,
// trimmed from the teacher's ToolsConfig down to what the Turn Engine's
// tool registry actually consults.
type ToolsConfig struct {
	Execution ToolExecutionConfig `yaml:"execution"`
	Approval  ApprovalConfig      `yaml:"approval"`
	Policies  ToolPoliciesConfig  `yaml:"policies"`
	Result    ToolResultGuardConfig `yaml:"result_guard"`
}

// ToolExecutionConfig controls runtime tool execution behavior.
type ToolExecutionConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	MaxToolCalls  int           `yaml:"max_tool_calls"`
}

// ApprovalConfig controls tool confirmation behavior.
type ApprovalConfig struct {
	// Allowlist contains tools that never require confirmation, regardless
	// of what ShouldConfirm returns. Supports "*" for all.
	Allowlist []string `yaml:"allowlist"`

	// Denylist contains tools that are never registered at all.
	Denylist []string `yaml:"denylist"`

	// DefaultDecision when no rule matches and ShouldConfirm returns
	// confirmation details: "ask" or "deny".
	DefaultDecision string `yaml:"default_decision"`

	// RequestTTL is how long a pending confirmation stays valid before it
	// is treated as denied.
	RequestTTL time.Duration `yaml:"request_ttl"`
}

// ToolPoliciesConfig defines default allow/deny policies for tools.
type ToolPoliciesConfig struct {
	Default string           `yaml:"default"` // "allow" or "deny"
	Rules   []ToolPolicyRule `yaml:"rules"`
}

type ToolPolicyRule struct {
	Tool   string `yaml:"tool"`
	Action string `yaml:"action"` // "allow" | "deny"
}

// ToolResultGuardConfig controls redaction of tool results before they are
// persisted into session history — useful for sql_execute results that may
// surface credentials stored in application tables.
type ToolResultGuardConfig struct {
	Enabled         bool     `yaml:"enabled"`
	MaxChars        int      `yaml:"max_chars"`
	RedactPatterns  []string `yaml:"redact_patterns"`
	RedactionText   string   `yaml:"redaction_text"`
	SanitizeSecrets bool     `yaml:"sanitize_secrets"`
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.Execution.MaxIterations == 0 {
		cfg.Execution.MaxIterations = 25
	}
	if cfg.Execution.Timeout == 0 {
		cfg.Execution.Timeout = 60 * time.Second
	}
	if cfg.Execution.MaxAttempts == 0 {
		cfg.Execution.MaxAttempts = 1
	}
	if cfg.Policies.Default == "" {
		cfg.Policies.Default = "allow"
	}
	if cfg.Approval.DefaultDecision == "" {
		cfg.Approval.DefaultDecision = "ask"
	}
	if cfg.Approval.RequestTTL == 0 {
		cfg.Approval.RequestTTL = 5 * time.Minute
	}
	if cfg.Result.RedactionText == "" {
		cfg.Result.RedactionText = "[redacted]"
	}
}
