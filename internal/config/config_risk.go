package config

// RiskConfig seeds the Risk Evaluator's Context with facts about the
// connected schema that it cannot derive from a SQL string alone.
type RiskConfig struct {
	// ForeignKeyTables lists tables known to be referenced by foreign
	// keys elsewhere in the schema; deletes/updates against them are
	// scored higher.
	ForeignKeyTables []string `yaml:"foreign_key_tables"`

	// TableRowCounts seeds known row counts so the evaluator can flag a
	// DELETE/UPDATE without a WHERE clause against a large table even
	// before it runs.
	TableRowCounts map[string]int64 `yaml:"table_row_counts"`

	// ConfirmBelowLevel is the lowest risk.Level ("low", "medium",
	// "high", "critical") that triggers confirmation. Anything below it
	// runs without asking.
	ConfirmBelowLevel string `yaml:"confirm_below_level"`
}

func applyRiskDefaults(cfg *RiskConfig) {
	if cfg.ConfirmBelowLevel == "" {
		cfg.ConfirmBelowLevel = "medium"
	}
	if cfg.TableRowCounts == nil {
		cfg.TableRowCounts = map[string]int64{}
	}
}
