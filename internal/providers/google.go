package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	APIKey       string
	DefaultModel string
}

// GoogleProvider wraps the Gemini GenerateContentStream iterator behind
// the Provider interface. Gemini's wire protocol tolerates loose call/
// response ordering, so history only gets the empty-parts cleanup
// (GeminiPassthrough), never StrictPair's reordering.
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
}

// NewGoogleProvider builds a provider from config.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	return &GoogleProvider{client: client, defaultModel: cfg.DefaultModel}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) model(req TurnRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *GoogleProvider) convertMessages(history []chat.Content) []*genai.Content {
	passthrough := GeminiPassthrough(history)
	out := make([]*genai.Content, 0, len(passthrough))
	for _, c := range passthrough {
		content := &genai.Content{}
		switch c.Role {
		case chat.RoleModel:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}
		for _, part := range c.Parts {
			switch part.Kind {
			case chat.PartText:
				if part.Text != "" {
					content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
				}
			case chat.PartFunctionCall:
				var args map[string]any
				if len(part.CallArgs) > 0 {
					_ = json.Unmarshal(part.CallArgs, &args)
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: part.CallName, Args: args},
				})
			case chat.PartFunctionResponse:
				var resp map[string]any
				if len(part.ResponseContent) > 0 {
					if err := json.Unmarshal(part.ResponseContent, &resp); err != nil {
						resp = map[string]any{"result": string(part.ResponseContent)}
					}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{Name: part.ResponseName, Response: resp},
				})
			}
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

func toGeminiSchema(raw json.RawMessage) *genai.Schema {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return schemaFromMap(m)
}

func schemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	schema := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := m["description"].(string); ok {
		schema.Description = desc
	}
	if required, ok := m["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if propMap, ok := v.(map[string]any); ok {
				schema.Properties[k] = schemaFromMap(propMap)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		schema.Items = schemaFromMap(items)
	}
	return schema
}

func (p *GoogleProvider) convertTools(tools []tool.Schema) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (p *GoogleProvider) buildConfig(req TurnRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}}
	}
	if tools := p.convertTools(req.Tools); len(tools) > 0 {
		cfg.Tools = tools
	}
	return cfg
}

func (p *GoogleProvider) StreamTurn(ctx context.Context, req TurnRequest) (<-chan Event, error) {
	contents := p.convertMessages(req.History)
	cfg := p.buildConfig(req)
	model := p.model(req)

	events := make(chan Event)
	go p.pump(ctx, model, contents, cfg, events)
	return events, nil
}

func (p *GoogleProvider) pump(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig, events chan<- Event) {
	defer close(events)

	iter := p.client.Models.GenerateContentStream(ctx, model, contents, cfg)

	var usage Usage
	usage.Model = model

	for resp, err := range iter {
		select {
		case <-ctx.Done():
			events <- Event{Kind: EventErr, ErrKind: ErrFatal, Err: ctx.Err()}
			return
		default:
		}

		if err != nil {
			kind := ErrFatal
			if IsRetryable(err) {
				kind = ErrTransient
			}
			events <- Event{Kind: EventErr, ErrKind: kind, Err: err}
			return
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					events <- Event{Kind: EventTextDelta, TextDelta: part.Text}
				}
				if part.FunctionCall != nil {
					argsJSON, marshalErr := json.Marshal(part.FunctionCall.Args)
					if marshalErr != nil {
						argsJSON = []byte("{}")
					}
					events <- Event{Kind: EventFunctionCalls, FunctionCalls: []FunctionCall{{
						ID:   functionCallID(part.FunctionCall.Name),
						Name: part.FunctionCall.Name,
						Args: argsJSON,
					}}}
				}
			}
		}
	}

	if usage.TotalTokens > 0 {
		events <- Event{Kind: EventUsage, Usage: usage}
	}
	events <- Event{Kind: EventDone}
}

// functionCallID synthesizes a call ID: Gemini, unlike Anthropic/OpenAI,
// does not assign one to function_call parts.
func functionCallID(name string) string {
	return fmt.Sprintf("gemini-%s-%s", name, uuid.NewString())
}

// GenerateJSON constrains generation to exactly one call of a single
// "emit_result" function declaration built from schema, via
// FunctionCallingConfigModeAny (§4.5 summarizer, §4.7 arbiter).
func (p *GoogleProvider) GenerateJSON(ctx context.Context, req TurnRequest, schema json.RawMessage) (json.RawMessage, error) {
	contents := p.convertMessages(req.History)
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:       "emit_result",
			Parameters: toGeminiSchema(schema),
		}}}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{"emit_result"},
			},
		},
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}}
	}

	resp, err := RetryJSONCall(ctx, func(int) (*genai.GenerateContentResponse, error) {
		return p.client.Models.GenerateContent(ctx, p.model(req), contents, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("google: generate_json: %w", err)
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.FunctionCall != nil && part.FunctionCall.Name == "emit_result" {
				return json.Marshal(part.FunctionCall.Args)
			}
		}
	}
	return nil, errors.New("google: emit_result function was not called")
}
