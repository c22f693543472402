package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// maxEmptyStreamEvents bounds consecutive SSE events that produce no
// chunk before the stream is treated as malformed.
const maxEmptyStreamEvents = 300

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicProvider wraps the Anthropic Messages API behind the Provider
// interface, translating content_block_start/delta/stop events into Event
// chunks and accumulating input_json_delta fragments per tool_use block.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider builds a provider from config.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) model(req TurnRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *AnthropicProvider) convertMessages(history []chat.Content) ([]anthropic.MessageParam, error) {
	paired := StrictPair(history)
	result := make([]anthropic.MessageParam, 0, len(paired))
	for _, c := range paired {
		var blocks []anthropic.ContentBlockParamUnion
		for _, part := range c.Parts {
			switch part.Kind {
			case chat.PartText:
				if part.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				}
			case chat.PartFunctionCall:
				var input map[string]any
				if len(part.CallArgs) > 0 {
					if err := json.Unmarshal(part.CallArgs, &input); err != nil {
						return nil, fmt.Errorf("anthropic: invalid call args for %s: %w", part.CallName, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(part.CallID, input, part.CallName))
			case chat.PartFunctionResponse:
				blocks = append(blocks, anthropic.NewToolResultBlock(part.ResponseID, string(part.ResponseContent), false))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if c.Role == chat.RoleModel {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result, nil
}

func (p *AnthropicProvider) convertTools(tools []tool.Schema) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid schema for %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("anthropic: missing tool definition for %s", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		result = append(result, param)
	}
	return result, nil
}

func (p *AnthropicProvider) StreamTurn(ctx context.Context, req TurnRequest) (<-chan Event, error) {
	messages, err := p.convertMessages(req.History)
	if err != nil {
		return nil, err
	}
	tools, err := p.convertTools(req.Tools)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req)),
		Messages:  messages,
		MaxTokens: 8192,
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	events := make(chan Event)
	go p.pump(stream, events)
	return events, nil
}

func (p *AnthropicProvider) pump(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- Event) {
	defer close(events)

	var currentCallID, currentCallName string
	var currentArgs strings.Builder
	inToolUse := false
	emptyEvents := 0

	var usage Usage
	usage.Model = p.defaultModel

	for stream.Next() {
		ev := stream.Current()
		produced := false

		switch ev.Type {
		case "message_start":
			ms := ev.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				usage.PromptTokens = int(ms.Message.Usage.InputTokens)
			}
			produced = true

		case "content_block_start":
			block := ev.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				currentCallID = tu.ID
				currentCallName = tu.Name
				currentArgs.Reset()
				inToolUse = true
				produced = true
			}

		case "content_block_delta":
			delta := ev.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					events <- Event{Kind: EventTextDelta, TextDelta: delta.Text}
					produced = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentArgs.WriteString(delta.PartialJSON)
					produced = true
				}
			}

		case "content_block_stop":
			if inToolUse {
				raw := currentArgs.String()
				if raw == "" {
					raw = "{}"
				}
				events <- Event{Kind: EventFunctionCalls, FunctionCalls: []FunctionCall{{
					ID: currentCallID, Name: currentCallName, Args: json.RawMessage(raw),
				}}}
				inToolUse = false
				produced = true
			}

		case "message_delta":
			md := ev.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				usage.CompletionTokens = int(md.Usage.OutputTokens)
			}
			produced = true

		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			events <- Event{Kind: EventUsage, Usage: usage}
			events <- Event{Kind: EventDone}
			return

		case "error":
			events <- Event{Kind: EventErr, ErrKind: ErrFatal, Err: errors.New("anthropic: stream error event")}
			return
		}

		if produced {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				events <- Event{Kind: EventErr, ErrKind: ErrFatal, Err: fmt.Errorf("anthropic: stream malformed after %d empty events", emptyEvents)}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		kind := ErrFatal
		if IsRetryable(err) {
			kind = ErrTransient
		}
		events <- Event{Kind: EventErr, ErrKind: kind, Err: err}
	}
}

// GenerateJSON forces a single tool call named emit_result whose schema is
// the caller's schema, and returns its arguments — Anthropic has no native
// "constrained JSON" mode, so this is the same tool-use channel StreamTurn
// already speaks, with tool_choice pinned (§4.5 summarizer, §4.7 arbiter).
func (p *AnthropicProvider) GenerateJSON(ctx context.Context, req TurnRequest, schema json.RawMessage) (json.RawMessage, error) {
	messages, err := p.convertMessages(req.History)
	if err != nil {
		return nil, err
	}

	var toolSchema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(schema, &toolSchema); err != nil {
		return nil, fmt.Errorf("anthropic: invalid result schema: %w", err)
	}
	resultTool := anthropic.ToolUnionParamOfTool(toolSchema, "emit_result")

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req)),
		Messages:  messages,
		MaxTokens: 4096,
		Tools:     []anthropic.ToolUnionParam{resultTool},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: "emit_result"},
		},
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}

	msg, err := RetryJSONCall(ctx, func(int) (*anthropic.Message, error) {
		return p.client.Messages.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: generate_json: %w", err)
	}

	for _, block := range msg.Content {
		if tu := block.AsToolUse(); tu.Name == "emit_result" {
			return json.RawMessage(tu.Input), nil
		}
	}
	return nil, errors.New("anthropic: emit_result tool was not called")
}
