package arbiter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/providers"
)

type scriptedProvider struct {
	result json.RawMessage
	err    error
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) StreamTurn(ctx context.Context, req providers.TurnRequest) (<-chan providers.Event, error) {
	ch := make(chan providers.Event)
	close(ch)
	return ch, nil
}

func (s *scriptedProvider) GenerateJSON(ctx context.Context, req providers.TurnRequest, schema json.RawMessage) (json.RawMessage, error) {
	return s.result, s.err
}

func TestDecideValidatesAndDecodesModelContinuation(t *testing.T) {
	a := New(&scriptedProvider{result: json.RawMessage(`{"next_speaker":"model","reasoning":"plan not yet executed"}`)}, "fake-1")

	history := []chat.Content{chat.NewContent(chat.RoleModel, chat.TextPart("Next I will run the query."))}
	decision, err := a.Decide(context.Background(), history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.NextSpeaker != SpeakerModel {
		t.Fatalf("expected next_speaker=model, got %q", decision.NextSpeaker)
	}
}

func TestDecideRejectsResultFailingSchema(t *testing.T) {
	a := New(&scriptedProvider{result: json.RawMessage(`{"next_speaker":"maybe"}`)}, "fake-1")

	_, err := a.Decide(context.Background(), nil)
	if err == nil {
		t.Fatal("expected schema validation error for invalid next_speaker enum value")
	}
}

func TestDecideSurfacesProviderError(t *testing.T) {
	a := New(&scriptedProvider{err: context.DeadlineExceeded}, "fake-1")

	_, err := a.Decide(context.Background(), nil)
	if err == nil {
		t.Fatal("expected provider error to surface")
	}
}
