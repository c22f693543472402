package config

// SessionConfig controls how long a turn engine session runs before it is
// force-ended or compacted.
type SessionConfig struct {
	// MaxTurns caps the number of agent turns in a session. 0 means
	// unlimited.
	MaxTurns int `yaml:"max_turns"`

	// CompactionThreshold is the fraction of the model's context window
	// (0-1) at which the session summarizes older turns instead of
	// letting the next request overflow.
	CompactionThreshold float64 `yaml:"compaction_threshold"`

	// KeepLastTurns is how many of the most recent turns are kept
	// verbatim when compaction runs; everything older is summarized.
	KeepLastTurns int `yaml:"keep_last_turns"`

	// ContextBudgetTokens is the connected model's context window, used
	// together with CompactionThreshold to decide when to compact.
	ContextBudgetTokens int `yaml:"context_budget_tokens"`
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.CompactionThreshold == 0 {
		cfg.CompactionThreshold = 0.8
	}
	if cfg.KeepLastTurns == 0 {
		cfg.KeepLastTurns = 4
	}
	if cfg.ContextBudgetTokens == 0 {
		cfg.ContextBudgetTokens = 200_000
	}
}
