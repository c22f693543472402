// Package tool defines the Tool contract and the insertion-ordered
// Registry every concrete tool (SQL adapter, shell, filesystem, web) is
// registered against.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// ProgressFunc streams live output from a long-running tool body to the
// UI. Only consulted when the tool declares CanUpdateOutput.
type ProgressFunc func(chunk string)

// ConfirmationDetails is what ShouldConfirm returns when a call must be
// gated behind user approval.
type ConfirmationDetails struct {
	Title     string
	Message   string
	RiskLevel string // "low" | "medium" | "high" | "critical"
	Details   map[string]any
}

// Result is the tagged-variant ToolResult from spec §4.2.
type Result struct {
	// Summary is a one-line digest used in compressed history.
	Summary string

	// LLMContent is folded back into history as the function_response.
	LLMContent string

	// ReturnDisplay is what the UI renders; empty means "use LLMContent".
	ReturnDisplay string

	// Err is non-nil when execution failed; LLMContent should still carry
	// the error text so the model can attempt recovery (§7 ExecutionError).
	Err error
}

// Tool is the narrow interface every concrete tool implements — a value,
// not a class hierarchy: the registry holds interface values keyed by
// name (§9 "Tool polymorphism").
type Tool interface {
	Name() string
	DisplayName() string
	Description() string

	// ParameterSchema returns the tool's parameters in JSON-Schema form.
	ParameterSchema() json.RawMessage

	// Validate checks raw JSON params against the tool's own constraints,
	// beyond what the JSON-Schema validator at the registry boundary
	// already enforces.
	Validate(params json.RawMessage) error

	// ShouldConfirm decides whether this call must be gated behind user
	// approval. Returning (nil, nil) means proceed without confirmation.
	ShouldConfirm(ctx context.Context, params json.RawMessage) (*ConfirmationDetails, error)

	// Execute runs the tool. progress may be nil.
	Execute(ctx context.Context, params json.RawMessage, progress ProgressFunc) (Result, error)

	// IsOutputMarkdown reports whether ReturnDisplay should be rendered
	// as markdown.
	IsOutputMarkdown() bool

	// CanUpdateOutput reports whether Execute may call progress.
	CanUpdateOutput() bool

	// ShouldSummarizeDisplay reports whether ReturnDisplay should be
	// summarized (rather than shown verbatim) when folded into
	// compressed history.
	ShouldSummarizeDisplay() bool

	// IsParallelSafe reports whether this tool may run concurrently with
	// other calls in the same batch (§4.4).
	IsParallelSafe() bool
}

// Schema is the wire form sent to LLM providers (§6).
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Registry is an insertion-ordered, name -> Tool mapping. Name collisions
// are rejected at registration time (§4.2). Registry is built once at
// startup and is read-only thereafter (§5 "process-wide, read-only after
// init"), so no mutex guards reads; Register/Unregister are not meant to
// race with concurrent lookups in steady state.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t, failing if its name already exists.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool: %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Unregister removes a tool by name, if present.
func (r *Registry) Unregister(name string) {
	if _, exists := r.tools[name]; !exists {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in insertion order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Schemas returns the LLM-facing schema for every registered tool, in
// insertion order.
func (r *Registry) Schemas() []Schema {
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Schema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParameterSchema(),
		})
	}
	return out
}
