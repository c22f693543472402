package sqladapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// SchemaDiscoveryTool lists tables (and, per table, column names/types)
// visible to the connected database. It never mutates state, so it is
// never gated behind confirmation.
type SchemaDiscoveryTool struct {
	db *DB
}

// NewSchemaDiscoveryTool creates a schema_discovery tool over db.
func NewSchemaDiscoveryTool(db *DB) *SchemaDiscoveryTool {
	return &SchemaDiscoveryTool{db: db}
}

func (t *SchemaDiscoveryTool) Name() string        { return "schema_discovery" }
func (t *SchemaDiscoveryTool) DisplayName() string { return "Discover Schema" }
func (t *SchemaDiscoveryTool) Description() string {
	return "List tables in the connected database, optionally with column detail for one table."
}

// ParameterSchema returns the JSON schema for the tool parameters.
func (t *SchemaDiscoveryTool) ParameterSchema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"table": map[string]interface{}{
				"type":        "string",
				"description": "Optional table name to describe columns for; omit to list all tables.",
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *SchemaDiscoveryTool) Validate(json.RawMessage) error { return nil }

// ShouldConfirm never gates a read-only discovery query.
func (t *SchemaDiscoveryTool) ShouldConfirm(context.Context, json.RawMessage) (*tool.ConfirmationDetails, error) {
	return nil, nil
}

type columnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// Execute lists tables, or describes one table's columns when requested.
func (t *SchemaDiscoveryTool) Execute(ctx context.Context, params json.RawMessage, _ tool.ProgressFunc) (tool.Result, error) {
	if t.db == nil {
		return toolError("sql adapter not configured"), nil
	}
	var input struct {
		Table string `json:"table"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}

	if input.Table != "" {
		columns, err := t.describeTable(ctx, input.Table)
		if err != nil {
			return toolError(err.Error()), nil
		}
		payload, err := json.MarshalIndent(map[string]interface{}{
			"table":   input.Table,
			"columns": columns,
		}, "", "  ")
		if err != nil {
			return toolError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return tool.Result{Summary: fmt.Sprintf("%d column(s) in %s", len(columns), input.Table), LLMContent: string(payload)}, nil
	}

	tables, err := t.listTables(ctx)
	if err != nil {
		return toolError(err.Error()), nil
	}
	payload, err := json.MarshalIndent(map[string]interface{}{"tables": tables}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return tool.Result{Summary: fmt.Sprintf("%d table(s)", len(tables)), LLMContent: string(payload)}, nil
}

func (t *SchemaDiscoveryTool) listTables(ctx context.Context) ([]string, error) {
	query := "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name"
	if t.db.driver == "sqlite" {
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	}
	rows, err := t.db.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

func (t *SchemaDiscoveryTool) describeTable(ctx context.Context, table string) ([]columnInfo, error) {
	if t.db.driver == "sqlite" {
		rows, err := t.db.sql.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdentifier(table)))
		if err != nil {
			return nil, fmt.Errorf("describe table: %w", err)
		}
		defer rows.Close()
		columns := []columnInfo{}
		for rows.Next() {
			var cid int
			var name, colType string
			var notNull int
			var dflt any
			var pk int
			if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
				return nil, fmt.Errorf("scan column: %w", err)
			}
			columns = append(columns, columnInfo{Name: name, DataType: colType})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("describe table: %w", err)
		}
		return columns, nil
	}

	rows, err := t.db.sql.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("describe table: %w", err)
	}
	defer rows.Close()
	columns := []columnInfo{}
	for rows.Next() {
		var c columnInfo
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe table: %w", err)
	}
	return columns, nil
}

func (t *SchemaDiscoveryTool) IsOutputMarkdown() bool       { return false }
func (t *SchemaDiscoveryTool) CanUpdateOutput() bool        { return false }
func (t *SchemaDiscoveryTool) ShouldSummarizeDisplay() bool { return true }
func (t *SchemaDiscoveryTool) IsParallelSafe() bool         { return true }

// quoteIdentifier wraps a bare table name for use inside PRAGMA, which does
// not accept query parameters. Table names come from schema_discovery's own
// prior listing or from the model, never from untrusted external input.
func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

func toolError(message string) tool.Result {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return tool.Result{LLMContent: message, Err: fmt.Errorf("%s", message)}
	}
	return tool.Result{LLMContent: string(payload), Err: fmt.Errorf("%s", message)}
}
