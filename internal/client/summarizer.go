package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/providers"
)

const summaryResultSchemaJSON = `{
	"type": "object",
	"properties": {
		"summary": {"type": "string"}
	},
	"required": ["summary"],
	"additionalProperties": false
}`

const summaryInstruction = `Summarize the conversation so far into an objective recap: the ` +
	`entities discussed, decisions made, and any open questions. Do not include ` +
	`pleasantries or meta-commentary about the summarization itself. Respond by ` +
	`calling emit_result with the recap.`

var summaryResultSchema = json.RawMessage(summaryResultSchemaJSON)

var compiledSummarySchema *jsonschema.Schema

func compiledSummary() (*jsonschema.Schema, error) {
	if compiledSummarySchema != nil {
		return compiledSummarySchema, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mem://chat_summary.json", bytes.NewReader(summaryResultSchema)); err != nil {
		return nil, fmt.Errorf("summarizer: compile schema: %w", err)
	}
	schema, err := compiler.Compile("mem://chat_summary.json")
	if err != nil {
		return nil, fmt.Errorf("summarizer: compile schema: %w", err)
	}
	compiledSummarySchema = schema
	return schema, nil
}

// ProviderSummarizer implements chat.Summarizer via a provider's
// GenerateJSON call, the same structured-output pattern the Next-Speaker
// Arbiter uses for its decision.
type ProviderSummarizer struct {
	provider providers.Provider
	model    string
}

// NewProviderSummarizer binds a chat.Summarizer to provider, using model
// (empty means provider-default).
func NewProviderSummarizer(provider providers.Provider, model string) *ProviderSummarizer {
	return &ProviderSummarizer{provider: provider, model: model}
}

func (s *ProviderSummarizer) Summarize(ctx context.Context, entries []chat.Content) (string, error) {
	schema, err := compiledSummary()
	if err != nil {
		return "", err
	}

	req := providers.TurnRequest{
		History:           entries,
		SystemInstruction: summaryInstruction,
		Model:             s.model,
	}

	raw, err := s.provider.GenerateJSON(ctx, req, summaryResultSchema)
	if err != nil {
		return "", fmt.Errorf("summarizer: generate_json: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("summarizer: result is not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return "", fmt.Errorf("summarizer: result failed schema validation: %w", err)
	}

	var result struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("summarizer: decode result: %w", err)
	}
	return result.Summary, nil
}
