package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/riverton-labs/sqlpilot/internal/chat"
)

// OllamaConfig configures a local Ollama-backed provider.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// OllamaProvider speaks Ollama's native NDJSON /api/chat protocol directly
// over net/http rather than through the sashabaranov/go-openai client:
// Ollama's OpenAI-compatible surface doesn't stream tool-call deltas the
// way its native API does, so tool calling needs the native wire format.
type OllamaProvider struct {
	client       *http.Client
	baseURL      string
	defaultModel string
}

// NewOllamaProvider builds a provider from config.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaProvider{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) model(req TurnRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []openai.Tool       `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type ollamaChatResponse struct {
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	Error           string             `json:"error"`
	EvalCount       int                `json:"eval_count"`
	PromptEvalCount int                `json:"prompt_eval_count"`
}

// convertMessages mirrors OpenAIProvider.convertMessages but keys tool
// results by name rather than call ID, since that's what Ollama's native
// chat message shape expects on a role=tool entry.
func (p *OllamaProvider) convertMessages(history []chat.Content, system string) []ollamaChatMessage {
	paired := StrictPair(history)
	result := make([]ollamaChatMessage, 0, len(paired)+1)

	if system != "" {
		result = append(result, ollamaChatMessage{Role: "system", Content: system})
	}

	toolNames := map[string]string{}
	for _, c := range paired {
		if c.Role != chat.RoleModel {
			continue
		}
		for _, call := range c.FunctionCalls() {
			toolNames[call.CallID] = call.CallName
		}
	}

	for _, c := range paired {
		switch c.Role {
		case chat.RoleUser:
			if text := c.Text(); text != "" {
				result = append(result, ollamaChatMessage{Role: "user", Content: text})
			}

		case chat.RoleModel:
			msg := ollamaChatMessage{Role: "assistant", Content: c.Text()}
			for _, call := range c.FunctionCalls() {
				args := call.CallArgs
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				msg.ToolCalls = append(msg.ToolCalls, ollamaToolCall{
					ID:       call.CallID,
					Type:     "function",
					Function: ollamaToolFunction{Name: call.CallName, Arguments: args},
				})
			}
			result = append(result, msg)

		case chat.RoleTool:
			for _, resp := range c.FunctionResponses() {
				result = append(result, ollamaChatMessage{
					Role:     "tool",
					Content:  string(resp.ResponseContent),
					ToolName: toolNames[resp.ResponseID],
				})
			}
		}
	}
	return result
}

func (p *OllamaProvider) StreamTurn(ctx context.Context, req TurnRequest) (<-chan Event, error) {
	model := p.model(req)
	if model == "" {
		return nil, errors.New("ollama: model is required")
	}

	payload := ollamaChatRequest{
		Model:    model,
		Stream:   true,
		Messages: p.convertMessages(req.History, req.SystemInstruction),
		Tools:    toOpenAITools(req.Tools),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: stream start: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	events := make(chan Event)
	go p.pump(resp.Body, model, events)
	return events, nil
}

func (p *OllamaProvider) pump(body io.ReadCloser, model string, events chan<- Event) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	emitted := make(map[string]struct{})
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var resp ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			events <- Event{Kind: EventErr, ErrKind: ErrFatal, Err: fmt.Errorf("ollama: decode response: %w", err)}
			return
		}
		if resp.Error != "" {
			err := errors.New(resp.Error)
			kind := ErrFatal
			if IsRetryable(err) {
				kind = ErrTransient
			}
			events <- Event{Kind: EventErr, ErrKind: kind, Err: err}
			return
		}

		if resp.Message != nil {
			if resp.Message.Content != "" {
				events <- Event{Kind: EventTextDelta, TextDelta: resp.Message.Content}
			}
			for _, tc := range resp.Message.ToolCalls {
				id := tc.ID
				if id == "" {
					id = ollamaToolCallKey(tc)
					if id == "" {
						id = uuid.NewString()
					}
				}
				if _, ok := emitted[id]; ok {
					continue
				}
				emitted[id] = struct{}{}
				args := tc.Function.Arguments
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				events <- Event{Kind: EventFunctionCalls, FunctionCalls: []FunctionCall{
					{ID: id, Name: tc.Function.Name, Args: args},
				}}
			}
		}

		if resp.Done {
			if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
				events <- Event{Kind: EventUsage, Usage: Usage{
					Model:            model,
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				}}
			}
			events <- Event{Kind: EventDone}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		events <- Event{Kind: EventErr, ErrKind: ErrTransient, Err: fmt.Errorf("ollama: stream read: %w", err)}
	}
}

// ollamaToolCallKey derives a stable dedup key for a tool call that arrived
// without an ID, since Ollama's native API doesn't always assign one.
func ollamaToolCallKey(tc ollamaToolCall) string {
	if tc.ID != "" {
		return tc.ID
	}
	name := strings.TrimSpace(tc.Function.Name)
	args := strings.TrimSpace(string(tc.Function.Arguments))
	if name == "" && args == "" {
		return ""
	}
	return name + ":" + args
}

// GenerateJSON forces a single emit_result tool call over Ollama's
// non-streaming /api/chat, the same convention OpenAIProvider.GenerateJSON
// uses.
func (p *OllamaProvider) GenerateJSON(ctx context.Context, req TurnRequest, schema json.RawMessage) (json.RawMessage, error) {
	model := p.model(req)
	if model == "" {
		return nil, errors.New("ollama: model is required")
	}
	var params map[string]any
	if err := json.Unmarshal(schema, &params); err != nil {
		return nil, fmt.Errorf("ollama: invalid result schema: %w", err)
	}

	payload := ollamaChatRequest{
		Model:    model,
		Stream:   false,
		Messages: p.convertMessages(req.History, req.SystemInstruction),
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:       "emit_result",
				Parameters: params,
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	result, err := RetryJSONCall(ctx, func(int) (ollamaChatResponse, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return ollamaChatResponse{}, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := p.client.Do(httpReq)
		if err != nil {
			return ollamaChatResponse{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
			return ollamaChatResponse{}, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
		}
		var r ollamaChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
			return ollamaChatResponse{}, err
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: generate_json: %w", err)
	}
	if result.Message == nil || len(result.Message.ToolCalls) == 0 {
		return nil, errors.New("ollama: emit_result tool was not called")
	}
	return result.Message.ToolCalls[0].Function.Arguments, nil
}
