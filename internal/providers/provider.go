// Package providers implements the Model Provider abstraction: one
// interface normalizing the Gemini, Anthropic, and OpenAI wire protocols
// into a single streaming event type (§4.1).
package providers

import (
	"context"
	"encoding/json"

	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// EventKind discriminates a TurnEvent chunk. A chunk carries at most one
// of TextDelta, FunctionCalls, Usage, or Err.
type EventKind string

const (
	EventTextDelta     EventKind = "text_delta"
	EventFunctionCalls EventKind = "function_calls"
	EventUsage         EventKind = "usage"
	EventErr           EventKind = "error"
	EventDone          EventKind = "done"
)

// Usage carries token accounting for one stream (§3 TokenUsageRecord).
type Usage struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ErrKind classifies a provider-originated error per the §7 taxonomy.
type ErrKind string

const (
	ErrTransient ErrKind = "transient" // retried internally; should not normally surface
	ErrFatal     ErrKind = "fatal"
)

// Event is one chunk of a provider stream. A function-call chunk is only
// emitted once all of that call's arguments have been fully assembled —
// providers that stream JSON argument fragments buffer internally until
// their own block-complete marker (§4.1).
type Event struct {
	Kind EventKind

	TextDelta string

	FunctionCalls []FunctionCall

	Usage Usage

	ErrKind ErrKind
	Err     error
}

// FunctionCall is one complete, ready-to-dispatch tool invocation request.
type FunctionCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// TurnRequest is the input to StreamTurn/GenerateJSON: curated history,
// the registry's tool schemas, and the system instruction.
type TurnRequest struct {
	History           []chat.Content
	Tools             []tool.Schema
	SystemInstruction string
	Model             string
}

// Provider is the interface every wire-protocol adapter implements.
type Provider interface {
	Name() string

	// StreamTurn opens a lazy streaming completion. The returned channel
	// is closed when the stream ends (successfully or with a terminal
	// error); ctx cancellation must promptly stop emission.
	StreamTurn(ctx context.Context, req TurnRequest) (<-chan Event, error)

	// GenerateJSON issues a non-streaming structured call constrained by
	// schema, used by the Next-Speaker Arbiter and chat summarization.
	GenerateJSON(ctx context.Context, req TurnRequest, schema json.RawMessage) (json.RawMessage, error)
}
