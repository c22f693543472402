package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/riverton-labs/sqlpilot/internal/tool"
	"github.com/riverton-labs/sqlpilot/internal/tools/security"
)

// ExecTool runs shell commands.
type ExecTool struct {
	name    string
	manager *Manager
}

// NewExecTool creates an exec tool with the given name.
func NewExecTool(name string, manager *Manager) *ExecTool {
	if strings.TrimSpace(name) == "" {
		name = "run_shell"
	}
	return &ExecTool{name: name, manager: manager}
}

func (t *ExecTool) Name() string        { return t.name }
func (t *ExecTool) DisplayName() string { return "Run Shell Command" }

func (t *ExecTool) Description() string {
	return "Run a shell command in the workspace (supports optional background execution)."
}

// ParameterSchema returns the JSON schema for the tool parameters.
func (t *ExecTool) ParameterSchema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"cwd": map[string]interface{}{
				"type":        "string",
				"description": "Working directory (relative to workspace).",
			},
			"env": map[string]interface{}{
				"type":        "object",
				"description": "Environment overrides (string values).",
			},
			"input": map[string]interface{}{
				"type":        "string",
				"description": "Stdin content to pass to the command.",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (0 = no timeout).",
				"minimum":     0,
			},
			"background": map[string]interface{}{
				"type":        "boolean",
				"description": "Run in background and return a process id.",
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ExecTool) Validate(json.RawMessage) error { return nil }

// ShouldConfirm gates commands carrying shell metacharacters (chaining,
// pipes, redirects, subshells, backgrounding) behind approval — the same
// regex-gate idiom internal/risk applies to SQL statements.
func (t *ExecTool) ShouldConfirm(ctx context.Context, params json.RawMessage) (*tool.ConfirmationDetails, error) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	analysis := security.AnalyzeCommandQuoteAware(input.Command)
	if analysis.IsSafe {
		return nil, nil
	}
	return &tool.ConfirmationDetails{
		Title:     "Run shell command",
		Message:   fmt.Sprintf("Run %q? %s", input.Command, analysis.Reason),
		RiskLevel: "high",
		Details:   map[string]any{"command": input.Command, "dangerous_tokens": analysis.DangerousTokens},
	}, nil
}

// Execute runs a shell command synchronously, or starts it in the background.
func (t *ExecTool) Execute(ctx context.Context, params json.RawMessage, _ tool.ProgressFunc) (tool.Result, error) {
	if t.manager == nil {
		return toolError("exec manager unavailable"), nil
	}
	var input struct {
		Command        string            `json:"command"`
		Cwd            string            `json:"cwd"`
		Env            map[string]string `json:"env"`
		Input          string            `json:"input"`
		TimeoutSeconds int               `json:"timeout_seconds"`
		Background     bool              `json:"background"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return toolError("command is required"), nil
	}

	timeout := time.Duration(input.TimeoutSeconds) * time.Second

	if input.Background {
		proc, err := t.manager.startBackground(ctx, command, input.Cwd, input.Env, input.Input, timeout)
		if err != nil {
			return toolError(err.Error()), nil
		}
		payload, _ := json.MarshalIndent(map[string]interface{}{
			"status":     "running",
			"process_id": proc.id,
		}, "", "  ")
		return tool.Result{Summary: fmt.Sprintf("started background process %s", proc.id), LLMContent: string(payload)}, nil
	}

	result, err := t.manager.runSync(ctx, command, input.Cwd, input.Env, input.Input, timeout)
	if err != nil {
		return toolError(err.Error()), nil
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return tool.Result{Summary: fmt.Sprintf("exit code %d", result.ExitCode), LLMContent: string(payload)}, nil
}

func (t *ExecTool) IsOutputMarkdown() bool       { return false }
func (t *ExecTool) CanUpdateOutput() bool        { return true }
func (t *ExecTool) ShouldSummarizeDisplay() bool { return true }
func (t *ExecTool) IsParallelSafe() bool         { return false }

// ProcessTool inspects and manages background exec processes.
type ProcessTool struct {
	manager *Manager
}

// NewProcessTool creates a process tool.
func NewProcessTool(manager *Manager) *ProcessTool {
	return &ProcessTool{manager: manager}
}

func (t *ProcessTool) Name() string        { return "process" }
func (t *ProcessTool) DisplayName() string { return "Manage Process" }

func (t *ProcessTool) Description() string {
	return "Manage background exec processes (list, status, log, write, kill, remove)."
}

// ParameterSchema returns the JSON schema for the tool parameters.
func (t *ProcessTool) ParameterSchema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "Action: list, status, log, write, kill, remove.",
			},
			"process_id": map[string]interface{}{
				"type":        "string",
				"description": "Process id for actions that target a process.",
			},
			"input": map[string]interface{}{
				"type":        "string",
				"description": "Input for write action.",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ProcessTool) Validate(json.RawMessage) error { return nil }

// ShouldConfirm gates the kill and remove actions: they terminate or forget
// a process the user may still need.
func (t *ProcessTool) ShouldConfirm(ctx context.Context, params json.RawMessage) (*tool.ConfirmationDetails, error) {
	var input struct {
		Action    string `json:"action"`
		ProcessID string `json:"process_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action != "kill" && action != "remove" {
		return nil, nil
	}
	verb := action
	if verb != "" {
		verb = strings.ToUpper(verb[:1]) + verb[1:]
	}
	return &tool.ConfirmationDetails{
		Title:     "Manage process",
		Message:   fmt.Sprintf("%s process %s?", verb, input.ProcessID),
		RiskLevel: "medium",
		Details:   map[string]any{"action": action, "process_id": input.ProcessID},
	}, nil
}

// Execute performs the requested process management action.
func (t *ProcessTool) Execute(ctx context.Context, params json.RawMessage, _ tool.ProgressFunc) (tool.Result, error) {
	if t.manager == nil {
		return toolError("process manager unavailable"), nil
	}
	var input struct {
		Action    string `json:"action"`
		ProcessID string `json:"process_id"`
		Input     string `json:"input"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action == "" {
		return toolError("action is required"), nil
	}

	switch action {
	case "list":
		payload, _ := json.MarshalIndent(map[string]interface{}{"processes": t.manager.list()}, "", "  ")
		return tool.Result{Summary: "listed processes", LLMContent: string(payload)}, nil
	case "status", "log", "write", "kill", "remove":
		if strings.TrimSpace(input.ProcessID) == "" {
			return toolError("process_id is required"), nil
		}
		proc, ok := t.manager.get(strings.TrimSpace(input.ProcessID))
		if !ok {
			return toolError("process not found"), nil
		}
		switch action {
		case "status":
			payload, _ := json.MarshalIndent(proc.info(), "", "  ")
			return tool.Result{Summary: fmt.Sprintf("status for %s", proc.id), LLMContent: string(payload)}, nil
		case "log":
			payload, _ := json.MarshalIndent(map[string]interface{}{
				"stdout": proc.stdout.String(),
				"stderr": proc.stderr.String(),
				"status": proc.status(),
			}, "", "  ")
			return tool.Result{Summary: fmt.Sprintf("log for %s", proc.id), LLMContent: string(payload)}, nil
		case "write":
			if proc.stdin == nil {
				return toolError("process stdin unavailable"), nil
			}
			if input.Input == "" {
				return toolError("input is required"), nil
			}
			if _, err := proc.stdin.Write([]byte(input.Input)); err != nil {
				return toolError(fmt.Sprintf("write stdin: %v", err)), nil
			}
			payload, _ := json.MarshalIndent(map[string]interface{}{
				"status": "written",
			}, "", "  ")
			return tool.Result{Summary: "wrote to stdin", LLMContent: string(payload)}, nil
		case "kill":
			if proc.cmd.Process == nil {
				return toolError("process not running"), nil
			}
			if err := proc.cmd.Process.Kill(); err != nil {
				return toolError(fmt.Sprintf("kill process: %v", err)), nil
			}
			payload, _ := json.MarshalIndent(map[string]interface{}{
				"status": "killed",
			}, "", "  ")
			return tool.Result{Summary: fmt.Sprintf("killed %s", proc.id), LLMContent: string(payload)}, nil
		case "remove":
			if proc.status() == "running" {
				return toolError("process still running"), nil
			}
			if !t.manager.remove(proc.id) {
				return toolError("remove failed"), nil
			}
			payload, _ := json.MarshalIndent(map[string]interface{}{
				"status": "removed",
			}, "", "  ")
			return tool.Result{Summary: fmt.Sprintf("removed %s", proc.id), LLMContent: string(payload)}, nil
		}
	}
	return toolError("unsupported action"), nil
}

func (t *ProcessTool) IsOutputMarkdown() bool       { return false }
func (t *ProcessTool) CanUpdateOutput() bool        { return false }
func (t *ProcessTool) ShouldSummarizeDisplay() bool { return false }
func (t *ProcessTool) IsParallelSafe() bool         { return true }

func toolError(message string) tool.Result {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return tool.Result{LLMContent: message, Err: fmt.Errorf("%s", message)}
	}
	return tool.Result{LLMContent: string(payload), Err: fmt.Errorf("%s", message)}
}
