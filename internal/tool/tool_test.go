package tool

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeTool struct{ name string }

func (f fakeTool) Name() string        { return f.name }
func (f fakeTool) DisplayName() string { return f.name }
func (f fakeTool) Description() string { return "fake" }
func (f fakeTool) ParameterSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"x":{"type":"string"}},"required":["x"]}`)
}
func (f fakeTool) Validate(json.RawMessage) error { return nil }
func (f fakeTool) ShouldConfirm(context.Context, json.RawMessage) (*ConfirmationDetails, error) {
	return nil, nil
}
func (f fakeTool) Execute(context.Context, json.RawMessage, ProgressFunc) (Result, error) {
	return Result{Summary: "ok"}, nil
}
func (f fakeTool) IsOutputMarkdown() bool       { return false }
func (f fakeTool) CanUpdateOutput() bool        { return false }
func (f fakeTool) ShouldSummarizeDisplay() bool { return false }
func (f fakeTool) IsParallelSafe() bool         { return true }

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(fakeTool{name: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(fakeTool{name: "a"}); err == nil {
		t.Fatalf("expected error registering duplicate name")
	}
}

func TestRegistryInsertionOrder(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"c", "a", "b"} {
		if err := r.Register(fakeTool{name: n}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	got := r.Names()
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v want %v", got, want)
		}
	}
}

func TestSchemaValidatorRejectsMissingRequired(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(fakeTool{name: "t"})
	sv, err := NewSchemaValidator(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sv.Validate("t", json.RawMessage(`{}`)); err == nil {
		t.Fatalf("expected validation error for missing required field")
	}
	if err := sv.Validate("t", json.RawMessage(`{"x":"ok"}`)); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
