package providers

import (
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterConfig configures an OpenRouter-backed provider.
type OpenRouterConfig struct {
	APIKey       string
	DefaultModel string // e.g. "anthropic/claude-3.5-sonnet"
}

// NewOpenRouterProvider builds a Provider over OpenRouter's unified API,
// which re-exposes dozens of upstream models behind the same Chat
// Completions wire protocol OpenAI proper uses. As with Azure, only the
// client's base URL and API key differ, so OpenAIProvider's streaming is
// reused unchanged.
func NewOpenRouterProvider(cfg OpenRouterConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter: API key is required")
	}
	if cfg.DefaultModel == "" {
		return nil, errors.New("openrouter: default model is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = openRouterBaseURL

	return &namedOpenAIProvider{
		name: "openrouter",
		OpenAIProvider: &OpenAIProvider{
			client:       openai.NewClientWithConfig(clientCfg),
			defaultModel: cfg.DefaultModel,
		},
	}, nil
}
