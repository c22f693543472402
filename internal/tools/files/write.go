package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// WriteTool implements file writes within the workspace.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *WriteTool) Name() string        { return "write_file" }
func (t *WriteTool) DisplayName() string { return "Write File" }
func (t *WriteTool) Description() string {
	return "Write content to a file in the workspace (overwrites by default)."
}

// ParameterSchema returns the JSON schema for the tool parameters.
func (t *WriteTool) ParameterSchema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to write (relative to workspace).",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "File contents to write.",
			},
			"append": map[string]interface{}{
				"type":        "boolean",
				"description": "Append instead of overwrite (default: false).",
			},
		},
		"required": []string{"path", "content"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *WriteTool) Validate(json.RawMessage) error { return nil }

// ShouldConfirm gates every write behind approval: it mutates the
// workspace, unlike read.
func (t *WriteTool) ShouldConfirm(ctx context.Context, params json.RawMessage) (*tool.ConfirmationDetails, error) {
	var input struct {
		Path   string `json:"path"`
		Append bool   `json:"append"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("files: write: %w", err)
	}
	action := "Overwrite"
	if input.Append {
		action = "Append to"
	}
	return &tool.ConfirmationDetails{
		Title:     "Write file",
		Message:   fmt.Sprintf("%s %s?", action, input.Path),
		RiskLevel: "medium",
		Details:   map[string]any{"path": input.Path, "append": input.Append},
	}, nil
}

// Execute writes file contents.
func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage, _ tool.ProgressFunc) (tool.Result, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Append  bool   `json:"append"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create directory: %v", err)), nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if input.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return toolError(fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	n, err := file.WriteString(input.Content)
	if err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}

	result := map[string]interface{}{
		"path":          input.Path,
		"bytes_written": n,
		"append":        input.Append,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return tool.Result{Summary: fmt.Sprintf("wrote %d bytes to %s", n, input.Path), LLMContent: string(payload)}, nil
}

func (t *WriteTool) IsOutputMarkdown() bool       { return false }
func (t *WriteTool) CanUpdateOutput() bool        { return false }
func (t *WriteTool) ShouldSummarizeDisplay() bool { return false }
func (t *WriteTool) IsParallelSafe() bool         { return false }
