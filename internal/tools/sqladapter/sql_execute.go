package sqladapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/riverton-labs/sqlpilot/internal/risk"
	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// SQLExecuteTool runs an arbitrary statement against the connected
// database. Every statement is routed through the Risk Evaluator before
// ShouldConfirm decides whether the call must park in awaiting_approval.
type SQLExecuteTool struct {
	db        *DB
	riskCtx   *risk.Context
	threshold risk.Level
}

// NewSQLExecuteTool creates a sql_execute tool over db. riskCtx supplies
// caller-known foreign-key/row-count facts the evaluator cannot derive from
// the SQL string alone; nil is accepted and treated as empty.
func NewSQLExecuteTool(db *DB, riskCtx *risk.Context) *SQLExecuteTool {
	if riskCtx == nil {
		riskCtx = &risk.Context{}
	}
	return &SQLExecuteTool{db: db, riskCtx: riskCtx}
}

func (t *SQLExecuteTool) Name() string        { return "sql_execute" }
func (t *SQLExecuteTool) DisplayName() string { return "Execute SQL" }
func (t *SQLExecuteTool) Description() string {
	return "Execute a SQL statement against the connected database. Mutating or high-risk statements require confirmation."
}

// ParameterSchema returns the JSON schema for the tool parameters.
func (t *SQLExecuteTool) ParameterSchema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"sql": map[string]interface{}{
				"type":        "string",
				"description": "SQL statement to execute.",
			},
		},
		"required": []string{"sql"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *SQLExecuteTool) Validate(json.RawMessage) error { return nil }

// ShouldConfirm evaluates the statement's risk and gates it behind
// approval whenever the assessment requires confirmation.
func (t *SQLExecuteTool) ShouldConfirm(ctx context.Context, params json.RawMessage) (*tool.ConfirmationDetails, error) {
	var input struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("sql_execute: %w", err)
	}
	assessment := risk.Evaluate(input.SQL, t.riskCtx)
	if !assessment.RequiresConfirmation {
		return nil, nil
	}
	return &tool.ConfirmationDetails{
		Title:     "Execute SQL",
		Message:   fmt.Sprintf("Run this %s statement (risk: %s)? %s", assessment.OperationType, assessment.Level, strings.Join(assessment.Reasons, "; ")),
		RiskLevel: string(assessment.Level),
		Details: map[string]any{
			"sql":             input.SQL,
			"score":           assessment.Score,
			"affected_tables": assessment.AffectedTables,
			"recommendations": assessment.Recommendations,
		},
	}, nil
}

// Execute runs the statement, routing SELECT/WITH/PRAGMA/EXPLAIN to Query
// and everything else to Exec.
func (t *SQLExecuteTool) Execute(ctx context.Context, params json.RawMessage, _ tool.ProgressFunc) (tool.Result, error) {
	if t.db == nil {
		return toolError("sql adapter not configured"), nil
	}
	var input struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	stmt := strings.TrimSpace(input.SQL)
	if stmt == "" {
		return toolError("sql is required"), nil
	}

	if isQuery(stmt) {
		return t.executeQuery(ctx, stmt)
	}
	return t.executeStatement(ctx, stmt)
}

func isQuery(stmt string) bool {
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	for _, prefix := range []string{"SELECT", "WITH", "PRAGMA", "EXPLAIN", "SHOW"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

func (t *SQLExecuteTool) executeQuery(ctx context.Context, stmt string) (tool.Result, error) {
	rows, err := t.db.sql.QueryContext(ctx, stmt)
	if err != nil {
		return toolError(fmt.Sprintf("query failed: %v", err)), nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return toolError(fmt.Sprintf("read columns: %v", err)), nil
	}

	records := make([]map[string]any, 0, t.db.maxRows)
	truncated := false
	for rows.Next() {
		if len(records) >= t.db.maxRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return toolError(fmt.Sprintf("scan row: %v", err)), nil
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return toolError(fmt.Sprintf("query failed: %v", err)), nil
	}

	payload, err := json.MarshalIndent(map[string]interface{}{
		"columns":   columns,
		"rows":      records,
		"row_count": len(records),
		"truncated": truncated,
	}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return tool.Result{Summary: fmt.Sprintf("%d row(s)", len(records)), LLMContent: string(payload)}, nil
}

func (t *SQLExecuteTool) executeStatement(ctx context.Context, stmt string) (tool.Result, error) {
	result, err := t.db.sql.ExecContext(ctx, stmt)
	if err != nil {
		return toolError(fmt.Sprintf("statement failed: %v", err)), nil
	}
	rowsAffected, _ := result.RowsAffected()
	payload, err := json.MarshalIndent(map[string]interface{}{
		"rows_affected": rowsAffected,
	}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return tool.Result{Summary: fmt.Sprintf("%d row(s) affected", rowsAffected), LLMContent: string(payload)}, nil
}

// normalizeValue converts driver byte-slice scans into strings so JSON
// encoding doesn't base64 them.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func (t *SQLExecuteTool) IsOutputMarkdown() bool       { return false }
func (t *SQLExecuteTool) CanUpdateOutput() bool        { return false }
func (t *SQLExecuteTool) ShouldSummarizeDisplay() bool { return true }
func (t *SQLExecuteTool) IsParallelSafe() bool         { return false }
