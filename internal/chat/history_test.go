package chat

import (
	"context"
	"testing"
)

func TestCuratedFiltersUnresolvedCallTurn(t *testing.T) {
	h := NewHistory()
	h.Add(NewContent(RoleUser, TextPart("list tables")))
	h.Add(NewContent(RoleModel, FunctionCallPart("call-1", "schema_discovery", []byte(`{}`))))
	h.Add(NewContent(RoleTool, PlaceholderResponsePart("call-1", "schema_discovery")))

	curated := h.Curated()
	for _, c := range curated {
		if c.Role == RoleModel {
			t.Fatalf("expected invalid model turn to be filtered, found: %+v", c)
		}
	}
	if len(h.Comprehensive()) != 3 {
		t.Fatalf("curation must not mutate comprehensive history")
	}
}

func TestCuratedKeepsAnsweredCallTurn(t *testing.T) {
	h := NewHistory()
	h.Add(NewContent(RoleUser, TextPart("list tables")))
	h.Add(NewContent(RoleModel, FunctionCallPart("call-1", "schema_discovery", []byte(`{}`))))
	h.Add(NewContent(RoleTool, FunctionResponsePart("call-1", "schema_discovery", []byte(`["orders"]`))))

	curated := h.Curated()
	found := false
	for _, c := range curated {
		if c.Role == RoleModel {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected answered model turn to survive curation")
	}
}

func TestCurationOrderPreserving(t *testing.T) {
	h := NewHistory()
	h.Add(NewContent(RoleUser, TextPart("a")))
	h.Add(NewContent(RoleModel, TextPart("b")))
	h.Add(NewContent(RoleUser, TextPart("c")))

	first := h.Curated()
	second := h.Curated()
	if len(first) != len(second) {
		t.Fatalf("curation must be idempotent in length")
	}
	for i := range first {
		if first[i].Text() != second[i].Text() {
			t.Fatalf("curation reordered entries: %v vs %v", first, second)
		}
	}
}

func TestReconcilePendingSynthesizesPlaceholder(t *testing.T) {
	h := NewHistory()
	h.Add(NewContent(RoleUser, TextPart("run it")))
	h.Add(NewContent(RoleModel, FunctionCallPart("call-9", "sql_execute", []byte(`{"sql":"select 1"}`))))

	pending := h.PendingCallIDs()
	if len(pending) != 1 || pending[0] != "call-9" {
		t.Fatalf("expected one pending call, got %v", pending)
	}

	h.ReconcilePending()
	pending = h.PendingCallIDs()
	if len(pending) != 0 {
		t.Fatalf("expected no pending calls after reconciliation, got %v", pending)
	}
}

type stubSummarizer struct{ calls int }

func (s *stubSummarizer) Summarize(_ context.Context, entries []Content) (string, error) {
	s.calls++
	return "recap of earlier turns", nil
}

func TestCompressionIdempotent(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 10; i++ {
		h.Add(NewContent(RoleUser, TextPart("this is a reasonably long user message to accumulate tokens")))
		h.Add(NewContent(RoleModel, TextPart("this is a reasonably long model reply to accumulate tokens")))
	}

	summarizer := &stubSummarizer{}
	cfg := DefaultCompressionConfig(200) // tiny budget forces compression
	cfg.KeepRecentTurns = 6
	compressor := NewCompressor(cfg, summarizer)

	first, err := compressor.Compress(context.Background(), h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Compressed {
		t.Fatalf("expected first compression to fire")
	}
	if first.TokensAfter >= first.TokensBefore {
		t.Fatalf("expected tokens_after < tokens_before, got %d >= %d", first.TokensAfter, first.TokensBefore)
	}

	curatedAfterFirst := h.Curated()

	second, err := compressor.Compress(context.Background(), h)
	if err != nil {
		t.Fatalf("unexpected error on second compression: %v", err)
	}
	if second.Compressed {
		t.Fatalf("expected second compression to be a no-op (idempotent)")
	}
	if summarizer.calls != 1 {
		t.Fatalf("expected exactly one summarize call, got %d", summarizer.calls)
	}

	curatedAfterSecond := h.Curated()
	if len(curatedAfterFirst) != len(curatedAfterSecond) {
		t.Fatalf("idempotent compression changed curated history length: %d vs %d", len(curatedAfterFirst), len(curatedAfterSecond))
	}
}
