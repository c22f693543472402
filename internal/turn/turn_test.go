package turn

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/riverton-labs/sqlpilot/internal/abort"
	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/providers"
	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// fakeProvider emits a scripted sequence of events then closes its stream.
type fakeProvider struct {
	events []providers.Event
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) StreamTurn(ctx context.Context, req providers.TurnRequest) (<-chan providers.Event, error) {
	ch := make(chan providers.Event)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			ch <- ev
		}
	}()
	return ch, nil
}

func (f *fakeProvider) GenerateJSON(ctx context.Context, req providers.TurnRequest, schema json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func drain(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestRunFlushesTextOnlyMessage(t *testing.T) {
	fp := &fakeProvider{events: []providers.Event{
		{Kind: providers.EventTextDelta, TextDelta: "hello "},
		{Kind: providers.EventTextDelta, TextDelta: "world"},
		{Kind: providers.EventUsage, Usage: providers.Usage{Model: "fake-1", TotalTokens: 10}},
		{Kind: providers.EventDone},
	}}

	h := chat.NewHistory()
	reg := tool.NewRegistry()
	sig := abort.New()

	events, results := Run(context.Background(), fp, reg, h, sig, "req-1", "be helpful", "fake-1")
	drain(events)

	select {
	case result := <-results:
		if len(result.ToolCalls) != 0 {
			t.Fatalf("expected no tool calls, got %+v", result.ToolCalls)
		}
		if !result.HadText {
			t.Fatalf("expected HadText=true")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}

	comprehensive := h.Comprehensive()
	if len(comprehensive) != 1 {
		t.Fatalf("expected exactly one appended Content, got %d", len(comprehensive))
	}
	if got := comprehensive[0].Text(); got != "hello world" {
		t.Fatalf("expected flushed text %q, got %q", "hello world", got)
	}
}

func TestRunRegistersToolCalls(t *testing.T) {
	fp := &fakeProvider{events: []providers.Event{
		{Kind: providers.EventTextDelta, TextDelta: "checking the schema"},
		{Kind: providers.EventFunctionCalls, FunctionCalls: []providers.FunctionCall{
			{ID: "call-1", Name: "schema_discovery", Args: json.RawMessage(`{}`)},
		}},
		{Kind: providers.EventDone},
	}}

	h := chat.NewHistory()
	reg := tool.NewRegistry()
	sig := abort.New()

	events, results := Run(context.Background(), fp, reg, h, sig, "req-2", "", "fake-1")
	drain(events)

	result := <-results
	if len(result.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(result.ToolCalls))
	}
	if result.ToolCalls[0].CallID != "call-1" || result.ToolCalls[0].RequestID != "req-2" {
		t.Fatalf("unexpected tool call: %+v", result.ToolCalls[0])
	}

	comprehensive := h.Comprehensive()
	if len(comprehensive) != 1 || len(comprehensive[0].FunctionCalls()) != 1 {
		t.Fatalf("expected one flushed model Content carrying one function_call, got %+v", comprehensive)
	}
}

// flakyProvider fails StreamTurn until attempts reach succeedOn.
type flakyProvider struct {
	attempts  int
	succeedOn int
	events    []providers.Event
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) StreamTurn(ctx context.Context, req providers.TurnRequest) (<-chan providers.Event, error) {
	f.attempts++
	if f.attempts < f.succeedOn {
		return nil, context.DeadlineExceeded
	}
	ch := make(chan providers.Event)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			ch <- ev
		}
	}()
	return ch, nil
}

func (f *flakyProvider) GenerateJSON(ctx context.Context, req providers.TurnRequest, schema json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func TestRunRetriesTransientStreamOpenFailure(t *testing.T) {
	originalPolicy, originalAttempts := providers.StreamRetryPolicy, providers.StreamMaxAttempts
	providers.StreamRetryPolicy.InitialMs, providers.StreamRetryPolicy.MaxMs = 1, 1
	providers.StreamMaxAttempts = 3
	defer func() {
		providers.StreamRetryPolicy = originalPolicy
		providers.StreamMaxAttempts = originalAttempts
	}()

	fp := &flakyProvider{succeedOn: 2, events: []providers.Event{
		{Kind: providers.EventTextDelta, TextDelta: "ok"},
		{Kind: providers.EventDone},
	}}

	h := chat.NewHistory()
	reg := tool.NewRegistry()
	sig := abort.New()

	events, results := Run(context.Background(), fp, reg, h, sig, "req-retry", "", "fake-1")
	drain(events)

	select {
	case result := <-results:
		if !result.HadText {
			t.Fatalf("expected the retried stream to flush text, got %+v", result)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}

	if fp.attempts != 2 {
		t.Fatalf("expected StreamTurn to be retried once before succeeding, got %d attempts", fp.attempts)
	}
}

func TestRunSurfacesTransientErrorAfterExhaustingRetries(t *testing.T) {
	originalPolicy, originalAttempts := providers.StreamRetryPolicy, providers.StreamMaxAttempts
	providers.StreamRetryPolicy.InitialMs, providers.StreamRetryPolicy.MaxMs = 1, 1
	providers.StreamMaxAttempts = 2
	defer func() {
		providers.StreamRetryPolicy = originalPolicy
		providers.StreamMaxAttempts = originalAttempts
	}()

	fp := &flakyProvider{succeedOn: 99}

	h := chat.NewHistory()
	reg := tool.NewRegistry()
	sig := abort.New()

	events, _ := Run(context.Background(), fp, reg, h, sig, "req-exhaust", "", "fake-1")
	all := drain(events)

	if len(all) != 1 || all[0].Kind != EventError || all[0].ErrKind != providers.ErrTransient {
		t.Fatalf("expected a single transient EventError, got %+v", all)
	}
	if fp.attempts != 2 {
		t.Fatalf("expected exactly StreamMaxAttempts=2 attempts, got %d", fp.attempts)
	}
}

func TestRunFatalErrorStopsWithoutFlushing(t *testing.T) {
	fp := &fakeProvider{events: []providers.Event{
		{Kind: providers.EventTextDelta, TextDelta: "partial"},
		{Kind: providers.EventErr, ErrKind: providers.ErrFatal, Err: context.DeadlineExceeded},
	}}

	h := chat.NewHistory()
	reg := tool.NewRegistry()
	sig := abort.New()

	events, results := Run(context.Background(), fp, reg, h, sig, "req-3", "", "fake-1")
	all := drain(events)

	sawFatal := false
	for _, ev := range all {
		if ev.Kind == EventError && ev.ErrKind == providers.ErrFatal {
			sawFatal = true
		}
	}
	if !sawFatal {
		t.Fatalf("expected a fatal EventError, got %+v", all)
	}

	// results is closed without a value sent on the fatal path, so the
	// receive below returns the zero Result rather than blocking.
	if result := <-results; result.RequestID != "" || len(result.ToolCalls) != 0 {
		t.Fatalf("expected zero Result on fatal error, got %+v", result)
	}

	if len(h.Comprehensive()) != 0 {
		t.Fatalf("expected nothing flushed to history on fatal error")
	}
}
