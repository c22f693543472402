package config

import "time"

// SQLConfig configures the database connection used by the schema_discovery
// and sql_execute tools. Pool settings mirror the teacher's CockroachConfig
// shape.
type SQLConfig struct {
	// DSN selects both the driver (postgres://... or a sqlite file path)
	// and the connection target.
	DSN string `yaml:"dsn"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`

	// MaxRows caps how many rows sql_execute returns to the model in a
	// single call.
	MaxRows int `yaml:"max_rows"`
}

func applySQLDefaults(cfg *SQLConfig) {
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 5
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = 2 * time.Minute
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.MaxRows == 0 {
		cfg.MaxRows = 500
	}
}
