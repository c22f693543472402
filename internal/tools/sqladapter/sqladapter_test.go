package sqladapter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/riverton-labs/sqlpilot/internal/risk"
)

func TestSchemaDiscoveryListsTables(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer mockDB.Close()

	mock.ExpectQuery("SELECT table_name FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders").AddRow("customers"))

	db := NewWithDB(mockDB, "postgres", 0)
	discovery := NewSchemaDiscoveryTool(db)

	params, _ := json.Marshal(map[string]interface{}{})
	result, err := discovery.Execute(context.Background(), params, nil)
	if err != nil || result.Err != nil {
		t.Fatalf("execute failed: err=%v result.Err=%v", err, result.Err)
	}

	var payload struct {
		Tables []string `json:"tables"`
	}
	if err := json.Unmarshal([]byte(result.LLMContent), &payload); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(payload.Tables) != 2 || payload.Tables[0] != "orders" {
		t.Fatalf("unexpected tables: %+v", payload.Tables)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLExecuteRunsSelect(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer mockDB.Close()

	mock.ExpectQuery("SELECT id, name FROM customers").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "acme"))

	db := NewWithDB(mockDB, "postgres", 0)
	execTool := NewSQLExecuteTool(db, nil)

	params, _ := json.Marshal(map[string]interface{}{"sql": "SELECT id, name FROM customers"})
	result, err := execTool.Execute(context.Background(), params, nil)
	if err != nil || result.Err != nil {
		t.Fatalf("execute failed: err=%v result.Err=%v", err, result.Err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLExecuteShouldConfirmOnDestructiveStatement(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer mockDB.Close()

	db := NewWithDB(mockDB, "postgres", 0)
	execTool := NewSQLExecuteTool(db, &risk.Context{})

	params, _ := json.Marshal(map[string]interface{}{"sql": "DELETE FROM orders"})
	details, err := execTool.ShouldConfirm(context.Background(), params)
	if err != nil {
		t.Fatalf("should confirm: %v", err)
	}
	if details == nil {
		t.Fatal("expected confirmation for a no-WHERE DELETE")
	}
}

func TestSQLExecuteSkipsConfirmOnPlainSelect(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer mockDB.Close()

	db := NewWithDB(mockDB, "postgres", 0)
	execTool := NewSQLExecuteTool(db, nil)

	params, _ := json.Marshal(map[string]interface{}{"sql": "SELECT 1"})
	details, err := execTool.ShouldConfirm(context.Background(), params)
	if err != nil {
		t.Fatalf("should confirm: %v", err)
	}
	if details != nil {
		t.Fatalf("expected no confirmation for a plain select, got %+v", details)
	}
}
