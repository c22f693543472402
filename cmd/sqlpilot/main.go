// Package main provides the CLI entry point for sqlpilot, a conversational
// database agent that turns natural-language requests into inspected,
// risk-scored SQL against a connected database, with filesystem and shell
// tools available alongside it.
//
// # Basic Usage
//
// Start an interactive session:
//
//	sqlpilot chat --config sqlpilot.yaml
//
// Print version information:
//
//	sqlpilot version
//
// # Environment Variables
//
//   - SQLPILOT_SQL_DSN: database connection string, overriding sql.dsn
//   - SQLPILOT_<PROVIDER>_API_KEY: e.g. SQLPILOT_ANTHROPIC_API_KEY
//   - SQLPILOT_WORKSPACE_PATH: filesystem tool root, overriding workspace.path
//   - SQLPILOT_LOG_LEVEL: overriding logging.level
//   - SQLPILOT_MAX_SESSION_TURNS: overriding session.max_turns
//   - SQLPILOT_COMPRESSION_THRESHOLD: overriding session.compaction_threshold
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/riverton-labs/sqlpilot/internal/config"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "sqlpilot",
		Short: "A conversational agent for exploring and operating on a SQL database",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "sqlpilot.yaml", "Path to YAML configuration file")

	root.AddCommand(newChatCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func newChatCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), *configPath)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "sqlpilot %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	}
}

func runChat(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := newSession(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}
	defer sess.Close()

	stopMetrics := startMetricsServer(cfg.Metrics, sess.logger)
	defer stopMetrics(context.Background())

	stopTracing, err := startTracing(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("start tracing: %w", err)
	}
	defer stopTracing(context.Background())

	if cfg.HotReload.Enabled {
		watcher := config.NewWatcher(configPath, cfg.HotReload, func(reloaded *config.Config, err error) {
			if err != nil {
				sess.logger.Error(ctx, "config reload failed", "error", err)
				return
			}
			sess.logger.Info(ctx, "config reloaded", "version", reloaded.Version)
		})
		if err := watcher.Start(ctx); err != nil {
			sess.logger.Warn(ctx, "config watcher failed to start", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	return runREPL(ctx, sess, os.Stdin, os.Stdout)
}
