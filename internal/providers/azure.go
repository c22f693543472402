package providers

import (
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// AzureConfig configures an Azure OpenAI Service-backed provider.
type AzureConfig struct {
	Endpoint     string // https://{resource}.openai.azure.com
	APIKey       string
	APIVersion   string // default 2024-02-15-preview
	DefaultModel string // Azure deployment name, not a model ID
}

// NewAzureProvider builds a Provider over Azure OpenAI Service. Azure
// serves the same Chat Completions wire protocol as OpenAI proper, just
// behind a resource-scoped base URL and an api-version query parameter,
// so this reuses OpenAIProvider's streaming and tool-call accumulation
// wholesale rather than reimplementing it.
func NewAzureProvider(cfg AzureConfig) (Provider, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("azure: endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("azure: API key is required")
	}
	if cfg.DefaultModel == "" {
		return nil, errors.New("azure: default model (deployment name) is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-02-15-preview"
	}

	clientCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	clientCfg.APIVersion = cfg.APIVersion

	return &namedOpenAIProvider{
		name: "azure",
		OpenAIProvider: &OpenAIProvider{
			client:       openai.NewClientWithConfig(clientCfg),
			defaultModel: cfg.DefaultModel,
		},
	}, nil
}
