package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/riverton-labs/sqlpilot/internal/abort"
	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/providers"
	"github.com/riverton-labs/sqlpilot/internal/scheduler"
	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// seqProvider scripts one stream-event list per StreamTurn call, in order,
// and one GenerateJSON result for every arbiter invocation.
type seqProvider struct {
	streams  [][]providers.Event
	call     int
	jsonResp json.RawMessage
}

func (p *seqProvider) Name() string { return "seq" }

func (p *seqProvider) StreamTurn(ctx context.Context, req providers.TurnRequest) (<-chan providers.Event, error) {
	idx := p.call
	p.call++
	ch := make(chan providers.Event)
	go func() {
		defer close(ch)
		for _, ev := range p.streams[idx] {
			ch <- ev
		}
	}()
	return ch, nil
}

func (p *seqProvider) GenerateJSON(ctx context.Context, req providers.TurnRequest, schema json.RawMessage) (json.RawMessage, error) {
	return p.jsonResp, nil
}

type schemaDiscoveryTool struct{}

func (schemaDiscoveryTool) Name() string                 { return "schema_discovery" }
func (schemaDiscoveryTool) DisplayName() string          { return "Schema Discovery" }
func (schemaDiscoveryTool) Description() string          { return "lists tables" }
func (schemaDiscoveryTool) ParameterSchema() json.RawMessage { return json.RawMessage(`{}`) }
func (schemaDiscoveryTool) Validate(json.RawMessage) error { return nil }
func (schemaDiscoveryTool) ShouldConfirm(context.Context, json.RawMessage) (*tool.ConfirmationDetails, error) {
	return nil, nil
}
func (schemaDiscoveryTool) Execute(ctx context.Context, params json.RawMessage, _ tool.ProgressFunc) (tool.Result, error) {
	return tool.Result{Summary: "ok", LLMContent: `["orders", "customers"]`}, nil
}
func (schemaDiscoveryTool) IsOutputMarkdown() bool       { return false }
func (schemaDiscoveryTool) CanUpdateOutput() bool        { return false }
func (schemaDiscoveryTool) ShouldSummarizeDisplay() bool { return false }
func (schemaDiscoveryTool) IsParallelSafe() bool         { return true }

func TestSendMessageStreamRunsToolBatchThenYieldsToUser(t *testing.T) {
	reg := tool.NewRegistry()
	if err := reg.Register(schemaDiscoveryTool{}); err != nil {
		t.Fatalf("register tool: %v", err)
	}

	provider := &seqProvider{
		streams: [][]providers.Event{
			{
				{Kind: providers.EventTextDelta, TextDelta: "let me check the schema"},
				{Kind: providers.EventFunctionCalls, FunctionCalls: []providers.FunctionCall{
					{ID: "call-1", Name: "schema_discovery", Args: json.RawMessage(`{}`)},
				}},
				{Kind: providers.EventDone},
			},
			{
				{Kind: providers.EventTextDelta, TextDelta: "there are two tables."},
				{Kind: providers.EventDone},
			},
		},
		jsonResp: json.RawMessage(`{"next_speaker":"user","reasoning":"task complete"}`),
	}

	sched := scheduler.New(reg, scheduler.Config{})
	history := chat.NewHistory()
	compressor := chat.NewCompressor(chat.CompressionConfig{}, stubSummarizer{})

	c := New(Config{Model: "fake-1"}, provider, reg, sched, history, compressor, nil, nil)

	events := c.SendMessageStream(context.Background(), "what tables do we have?", "sess-1", abort.New())

	var kinds []EventKind
	done := time.After(2 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			kinds = append(kinds, ev.Kind)
		case <-done:
			t.Fatal("timed out draining event stream")
		}
	}

	wantLast := EventDone
	if len(kinds) == 0 || kinds[len(kinds)-1] != wantLast {
		t.Fatalf("expected stream to end with %q, got %+v", wantLast, kinds)
	}

	sawToolRequest, sawToolUpdate := false, false
	for _, k := range kinds {
		if k == EventToolCallRequest {
			sawToolRequest = true
		}
		if k == EventToolCallUpdate {
			sawToolUpdate = true
		}
	}
	if !sawToolRequest || !sawToolUpdate {
		t.Fatalf("expected both a tool call request and a tool call update, got %+v", kinds)
	}

	comprehensive := history.Comprehensive()
	var sawToolResponse bool
	for _, entry := range comprehensive {
		if entry.Role == chat.RoleTool {
			sawToolResponse = true
		}
	}
	if !sawToolResponse {
		t.Fatalf("expected a role=tool Content folded back into history, got %+v", comprehensive)
	}
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(ctx context.Context, entries []chat.Content) (string, error) {
	return "", nil
}
