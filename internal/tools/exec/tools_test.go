package exec

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestExecToolRunsCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	execTool := NewExecTool("exec", mgr)
	params, _ := json.Marshal(map[string]interface{}{
		"command": "echo hello",
	})
	result, err := execTool.Execute(context.Background(), params, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Err != nil {
		t.Fatalf("expected success: %s", result.LLMContent)
	}
	if !strings.Contains(result.LLMContent, "hello") {
		t.Fatalf("expected stdout in result: %s", result.LLMContent)
	}
}

func TestExecToolConfirmsDangerousCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	execTool := NewExecTool("exec", mgr)
	params, _ := json.Marshal(map[string]interface{}{
		"command": "echo hi && rm -rf /tmp/nope",
	})
	details, err := execTool.ShouldConfirm(context.Background(), params)
	if err != nil {
		t.Fatalf("should confirm: %v", err)
	}
	if details == nil {
		t.Fatal("expected confirmation for a chained command")
	}
}

func TestExecToolSkipsConfirmForPlainCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	execTool := NewExecTool("exec", mgr)
	params, _ := json.Marshal(map[string]interface{}{
		"command": "echo hello",
	})
	details, err := execTool.ShouldConfirm(context.Background(), params)
	if err != nil {
		t.Fatalf("should confirm: %v", err)
	}
	if details != nil {
		t.Fatalf("expected no confirmation for a plain command, got %+v", details)
	}
}

func TestProcessToolLifecycle(t *testing.T) {
	mgr := NewManager(t.TempDir())
	execTool := NewExecTool("exec", mgr)
	procTool := NewProcessTool(mgr)

	params, _ := json.Marshal(map[string]interface{}{
		"command":    "echo background",
		"background": true,
	})
	result, err := execTool.Execute(context.Background(), params, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Err != nil {
		t.Fatalf("expected success: %s", result.LLMContent)
	}

	var payload struct {
		ProcessID string `json:"process_id"`
	}
	if err := json.Unmarshal([]byte(result.LLMContent), &payload); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if payload.ProcessID == "" {
		t.Fatalf("expected process_id")
	}

	time.Sleep(50 * time.Millisecond)
	statusParams, _ := json.Marshal(map[string]interface{}{
		"action":     "status",
		"process_id": payload.ProcessID,
	})
	statusResult, err := procTool.Execute(context.Background(), statusParams, nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if statusResult.Err != nil {
		t.Fatalf("expected status success: %s", statusResult.LLMContent)
	}

	removeParams, _ := json.Marshal(map[string]interface{}{
		"action":     "remove",
		"process_id": payload.ProcessID,
	})
	removeResult, err := procTool.Execute(context.Background(), removeParams, nil)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removeResult.Err != nil {
		t.Fatalf("expected remove success: %s", removeResult.LLMContent)
	}
}
