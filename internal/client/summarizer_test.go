package client

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

func TestProviderSummarizerDecodesResult(t *testing.T) {
	s := NewProviderSummarizer(&scriptedProvider{result: json.RawMessage(`{"summary":"discussed schema, decided to add an index"}`)}, "fake-1")

	entries := []chat.Content{chat.NewContent(chat.RoleUser, chat.TextPart("should we index orders.customer_id?"))}
	summary, err := s.Summarize(context.Background(), entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "discussed schema, decided to add an index" {
		t.Fatalf("unexpected summary: %q", summary)
	}
}

func TestProviderSummarizerRejectsResultFailingSchema(t *testing.T) {
	s := NewProviderSummarizer(&scriptedProvider{result: json.RawMessage(`{"recap":"wrong field name"}`)}, "fake-1")

	_, err := s.Summarize(context.Background(), nil)
	if err == nil {
		t.Fatal("expected schema validation error for missing summary field")
	}
}

func TestProviderSummarizerSurfacesProviderError(t *testing.T) {
	s := NewProviderSummarizer(&scriptedProvider{err: context.DeadlineExceeded}, "fake-1")

	_, err := s.Summarize(context.Background(), nil)
	if err == nil {
		t.Fatal("expected provider error to surface")
	}
}
