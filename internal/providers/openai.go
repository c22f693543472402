package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAIProvider wraps the Chat Completions streaming API behind the
// Provider interface, accumulating delta.tool_calls[].function.arguments
// fragments per call index until finish_reason == "tool_calls".
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider builds a provider from config.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) model(req TurnRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

// convertMessages turns curated history, reordered for strict call/result
// pairing, into OpenAI's flat message list: one assistant message carrying
// ToolCalls, immediately followed by one role=tool message per call.
func (p *OpenAIProvider) convertMessages(history []chat.Content, system string) []openai.ChatCompletionMessage {
	paired := StrictPair(history)
	result := make([]openai.ChatCompletionMessage, 0, len(paired)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, c := range paired {
		switch c.Role {
		case chat.RoleUser:
			if text := c.Text(); text != "" {
				result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
			}

		case chat.RoleModel:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: c.Text()}
			for _, call := range c.FunctionCalls() {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.CallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.CallName,
						Arguments: string(call.CallArgs),
					},
				})
			}
			result = append(result, msg)

		case chat.RoleTool:
			for _, resp := range c.FunctionResponses() {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    string(resp.ResponseContent),
					ToolCallID: resp.ResponseID,
				})
			}
		}
	}
	return result
}

func (p *OpenAIProvider) convertTools(tools []tool.Schema) []openai.Tool {
	return toOpenAITools(tools)
}

// toOpenAITools converts tool schemas into the OpenAI function-calling
// shape shared by every provider that speaks the Chat Completions tool
// protocol: OpenAI proper, Azure, OpenRouter, and Ollama's native API.
func toOpenAITools(tools []tool.Schema) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var params map[string]any
		if err := json.Unmarshal(t.Parameters, &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return result
}

// namedOpenAIProvider wraps an *OpenAIProvider to report a different
// Provider.Name() for hosts that speak the identical Chat Completions wire
// protocol behind a different base URL and auth scheme (Azure, OpenRouter).
type namedOpenAIProvider struct {
	*OpenAIProvider
	name string
}

func (p *namedOpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) StreamTurn(ctx context.Context, req TurnRequest) (<-chan Event, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req),
		Messages: p.convertMessages(req.History, req.SystemInstruction),
		Stream:   true,
	}
	if tools := p.convertTools(req.Tools); len(tools) > 0 {
		chatReq.Tools = tools
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: stream start: %w", err)
	}

	events := make(chan Event)
	go p.pump(stream, events)
	return events, nil
}

type pendingCall struct {
	id   string
	name string
	args string
}

func (p *OpenAIProvider) pump(stream *openai.ChatCompletionStream, events chan<- Event) {
	defer close(events)
	defer stream.Close()

	calls := make(map[int]*pendingCall)
	var order []int
	var usage Usage
	usage.Model = p.defaultModel

	flush := func() {
		for _, idx := range order {
			c := calls[idx]
			if c == nil || c.id == "" || c.name == "" {
				continue
			}
			args := c.args
			if args == "" {
				args = "{}"
			}
			events <- Event{Kind: EventFunctionCalls, FunctionCalls: []FunctionCall{
				{ID: c.id, Name: c.name, Args: json.RawMessage(args)},
			}}
		}
		calls = make(map[int]*pendingCall)
		order = nil
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				if usage.TotalTokens > 0 {
					events <- Event{Kind: EventUsage, Usage: usage}
				}
				events <- Event{Kind: EventDone}
				return
			}
			kind := ErrFatal
			if IsRetryable(err) {
				kind = ErrTransient
			}
			events <- Event{Kind: EventErr, ErrKind: kind, Err: err}
			return
		}

		if resp.Usage != nil {
			usage.PromptTokens = resp.Usage.PromptTokens
			usage.CompletionTokens = resp.Usage.CompletionTokens
			usage.TotalTokens = resp.Usage.TotalTokens
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			events <- Event{Kind: EventTextDelta, TextDelta: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if calls[idx] == nil {
				calls[idx] = &pendingCall{}
				order = append(order, idx)
			}
			if tc.ID != "" {
				calls[idx].id = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				calls[idx].args += tc.Function.Arguments
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			flush()
		}
	}
}

// GenerateJSON forces a single named tool call ("emit_result") whose schema
// is the caller's schema, reusing the same function-calling channel
// StreamTurn speaks rather than OpenAI's separate response_format mode, so
// both paths exercise one conversion surface.
func (p *OpenAIProvider) GenerateJSON(ctx context.Context, req TurnRequest, schema json.RawMessage) (json.RawMessage, error) {
	var params map[string]any
	if err := json.Unmarshal(schema, &params); err != nil {
		return nil, fmt.Errorf("openai: invalid result schema: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req),
		Messages: p.convertMessages(req.History, req.SystemInstruction),
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:       "emit_result",
				Parameters: params,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: "emit_result"},
		},
	}

	resp, err := RetryJSONCall(ctx, func(int) (openai.ChatCompletionResponse, error) {
		return p.client.CreateChatCompletion(ctx, chatReq)
	})
	if err != nil {
		return nil, fmt.Errorf("openai: generate_json: %w", err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, errors.New("openai: emit_result tool was not called")
	}
	return json.RawMessage(resp.Choices[0].Message.ToolCalls[0].Function.Arguments), nil
}
