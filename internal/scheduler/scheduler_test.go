package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/riverton-labs/sqlpilot/internal/abort"
	"github.com/riverton-labs/sqlpilot/internal/tool"
)

type okTool struct {
	name     string
	confirm  *tool.ConfirmationDetails
	delay    time.Duration
	parallel bool
}

func (t okTool) Name() string                            { return t.name }
func (t okTool) DisplayName() string                      { return t.name }
func (t okTool) Description() string                      { return "" }
func (t okTool) ParameterSchema() json.RawMessage          { return json.RawMessage(`{}`) }
func (t okTool) Validate(json.RawMessage) error            { return nil }
func (t okTool) ShouldConfirm(context.Context, json.RawMessage) (*tool.ConfirmationDetails, error) {
	return t.confirm, nil
}
func (t okTool) Execute(ctx context.Context, params json.RawMessage, _ tool.ProgressFunc) (tool.Result, error) {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return tool.Result{}, ctx.Err()
		}
	}
	return tool.Result{Summary: "ok", LLMContent: string(params)}, nil
}
func (t okTool) IsOutputMarkdown() bool       { return false }
func (t okTool) CanUpdateOutput() bool        { return false }
func (t okTool) ShouldSummarizeDisplay() bool { return false }
func (t okTool) IsParallelSafe() bool         { return t.parallel }

func TestScheduleSafeReadRunsToSuccess(t *testing.T) {
	reg := tool.NewRegistry()
	_ = reg.Register(okTool{name: "schema_discovery", parallel: true})

	sched := New(reg, Config{})
	batch, err := sched.Schedule(context.Background(), []Request{
		{RequestID: "r1", CallID: "c1", Name: "schema_discovery", Args: json.RawMessage(`{}`)},
	}, abort.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 1 || batch[0].Status != StatusSuccess {
		t.Fatalf("expected single successful call, got %+v", batch)
	}
}

func TestScheduleConfirmationCancelSynthesizesCancelledCall(t *testing.T) {
	reg := tool.NewRegistry()
	_ = reg.Register(okTool{
		name:    "sql_execute",
		confirm: &tool.ConfirmationDetails{Title: "confirm", RiskLevel: "high"},
	})

	sched := New(reg, Config{})

	confirmed := make(chan ToolCall, 1)
	sched.SetCallbacks(nil, nil, func(call ToolCall, details tool.ConfirmationDetails) {
		confirmed <- call
	})

	done := make(chan []ToolCall, 1)
	go func() {
		batch, _ := sched.Schedule(context.Background(), []Request{
			{RequestID: "r1", CallID: "c1", Name: "sql_execute", Args: json.RawMessage(`{"sql":"DELETE FROM orders"}`)},
		}, abort.New())
		done <- batch
	}()

	select {
	case <-confirmed:
		sched.HandleConfirmation("c1", Confirmation{Outcome: OutcomeCancel})
	case <-time.After(2 * time.Second):
		t.Fatalf("expected awaiting_approval callback")
	}

	select {
	case batch := <-done:
		if len(batch) != 1 || batch[0].Status != StatusCancelled {
			t.Fatalf("expected cancelled call, got %+v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("schedule did not complete after cancel")
	}
}

func TestScheduleBatchOrderPreservedRegardlessOfCompletionOrder(t *testing.T) {
	reg := tool.NewRegistry()
	_ = reg.Register(okTool{name: "read_file", parallel: true, delay: 30 * time.Millisecond})

	sched := New(reg, Config{Concurrency: 4})

	completeCalled := make(chan []ToolCall, 1)
	sched.SetCallbacks(nil, func(batch []ToolCall) { completeCalled <- batch }, nil)

	batch, err := sched.Schedule(context.Background(), []Request{
		{RequestID: "r1", CallID: "a", Name: "read_file", Args: json.RawMessage(`{"path":"a"}`)},
		{RequestID: "r1", CallID: "b", Name: "read_file", Args: json.RawMessage(`{"path":"b"}`)},
	}, abort.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 2 || batch[0].CallID != "a" || batch[1].CallID != "b" {
		t.Fatalf("expected order [a,b], got %+v", batch)
	}
	for _, c := range batch {
		if c.Status != StatusSuccess {
			t.Fatalf("expected success for %s, got %s", c.CallID, c.Status)
		}
	}

	select {
	case got := <-completeCalled:
		if len(got) != 2 {
			t.Fatalf("expected on_all_tool_calls_complete exactly once with 2 calls, got %d", len(got))
		}
	default:
		t.Fatalf("expected on_all_tool_calls_complete to have fired")
	}
}

// TestScheduleEmitsScheduledBeforeExecuting confirms scheduled is an
// observable intermediate status on the no-confirmation-needed path,
// not just a declared-but-unreachable enum value.
func TestScheduleEmitsScheduledBeforeExecuting(t *testing.T) {
	reg := tool.NewRegistry()
	_ = reg.Register(okTool{name: "schema_discovery", parallel: true, delay: 20 * time.Millisecond})

	sched := New(reg, Config{})

	var sawScheduled, sawExecuting bool
	scheduledBeforeExecuting := false
	updates := make(chan []ToolCall, 16)
	sched.SetCallbacks(func(all []ToolCall) { updates <- all }, nil, nil)

	go func() {
		_, _ = sched.Schedule(context.Background(), []Request{
			{RequestID: "r1", CallID: "c1", Name: "schema_discovery", Args: json.RawMessage(`{}`)},
		}, abort.New())
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case batch := <-updates:
			for _, c := range batch {
				if c.CallID != "c1" {
					continue
				}
				switch c.Status {
				case StatusScheduled:
					sawScheduled = true
				case StatusExecuting:
					sawExecuting = true
					if sawScheduled {
						scheduledBeforeExecuting = true
					}
				case StatusSuccess:
					if !sawScheduled {
						t.Fatalf("call reached success without ever passing through scheduled")
					}
					if !scheduledBeforeExecuting {
						t.Fatalf("expected scheduled to be observed before executing")
					}
					return
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for call to reach a terminal state; sawScheduled=%v sawExecuting=%v", sawScheduled, sawExecuting)
		}
	}
}
