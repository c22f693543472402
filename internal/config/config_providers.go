package config

import "time"

// ProvidersConfig configures the LLM providers available to the agent.
type ProvidersConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`

	// FallbackChain specifies provider IDs to try if the default provider
	// fails. Providers are tried in order until one succeeds.
	FallbackChain []string `yaml:"fallback_chain"`

	// Bedrock configures AWS Bedrock model discovery.
	Bedrock BedrockConfig `yaml:"bedrock"`

	// AutoDiscover configures local provider discovery.
	AutoDiscover ProvidersAutoDiscoverConfig `yaml:"auto_discover"`
}

type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	APIVersion   string `yaml:"api_version"`
}

// ProvidersAutoDiscoverConfig configures local provider discovery.
type ProvidersAutoDiscoverConfig struct {
	Ollama OllamaDiscoverConfig `yaml:"ollama"`
}

// OllamaDiscoverConfig configures Ollama discovery.
type OllamaDiscoverConfig struct {
	Enabled        bool     `yaml:"enabled"`
	PreferLocal    bool     `yaml:"prefer_local"`
	ProbeLocations []string `yaml:"probe_locations"`
}

// BedrockConfig configures AWS Bedrock model discovery.
type BedrockConfig struct {
	Enabled bool `yaml:"enabled"`

	// Region is the AWS region to query for models. Default: us-east-1.
	Region string `yaml:"region"`

	// RefreshInterval is how often to refresh the model list. Default: 1h.
	RefreshInterval string `yaml:"refresh_interval"`

	// ProviderFilter limits discovery to specific model providers, e.g.
	// ["anthropic", "amazon", "meta"]. Empty means all providers.
	ProviderFilter []string `yaml:"provider_filter"`

	DefaultContextWindow int `yaml:"default_context_window"`
	DefaultMaxTokens     int `yaml:"default_max_tokens"`
}

func applyProvidersDefaults(cfg *ProvidersConfig) {
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.RefreshInterval == "" {
		cfg.Bedrock.RefreshInterval = "1h"
	}
	if cfg.Bedrock.DefaultContextWindow == 0 {
		cfg.Bedrock.DefaultContextWindow = 32000
	}
	if cfg.Bedrock.DefaultMaxTokens == 0 {
		cfg.Bedrock.DefaultMaxTokens = 4096
	}
	if len(cfg.AutoDiscover.Ollama.ProbeLocations) == 0 {
		cfg.AutoDiscover.Ollama.ProbeLocations = []string{"http://localhost:11434"}
	}
}

// BedrockRefreshDuration parses RefreshInterval, returning 0 when caching is
// disabled or the value can't be parsed.
func (c BedrockConfig) BedrockRefreshDuration() time.Duration {
	if c.RefreshInterval == "" || c.RefreshInterval == "0" {
		return 0
	}
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil {
		return 0
	}
	return d
}
