package main

import (
	"context"
	"fmt"

	"github.com/riverton-labs/sqlpilot/internal/chat"
	"github.com/riverton-labs/sqlpilot/internal/client"
	"github.com/riverton-labs/sqlpilot/internal/config"
	"github.com/riverton-labs/sqlpilot/internal/observability"
	"github.com/riverton-labs/sqlpilot/internal/providers"
	"github.com/riverton-labs/sqlpilot/internal/providers/bedrock"
	"github.com/riverton-labs/sqlpilot/internal/risk"
	"github.com/riverton-labs/sqlpilot/internal/scheduler"
	"github.com/riverton-labs/sqlpilot/internal/tool"
	"github.com/riverton-labs/sqlpilot/internal/tools/exec"
	"github.com/riverton-labs/sqlpilot/internal/tools/files"
	"github.com/riverton-labs/sqlpilot/internal/tools/sqladapter"
	"github.com/riverton-labs/sqlpilot/internal/tools/webadapter"
	"github.com/riverton-labs/sqlpilot/internal/usage"
)

// session bundles everything a REPL turn needs: the Client itself, plus
// the pieces the REPL drives directly (the Scheduler, for confirmation
// replies, and the SQL DB, for a clean shutdown).
type session struct {
	client    *client.Client
	scheduler *scheduler.Scheduler
	db        *sqladapter.DB
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// newSession wires a Client out of cfg: provider selection, the four tool
// families, the scheduler, chat history and compressor, the usage
// tracker, and an observability-backed Sink.
func newSession(ctx context.Context, cfg *config.Config) (*session, error) {
	provider, model, err := buildProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	if cfg.Providers.Bedrock.Enabled {
		logBedrockModels(ctx, cfg, logger)
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	db, err := sqladapter.Open(sqladapter.Config{
		DSN:             cfg.SQL.DSN,
		MaxOpenConns:    cfg.SQL.MaxOpenConns,
		MaxIdleConns:    cfg.SQL.MaxIdleConns,
		ConnMaxLifetime: cfg.SQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.SQL.ConnMaxIdleTime,
		ConnectTimeout:  cfg.SQL.ConnectTimeout,
		MaxRows:         cfg.SQL.MaxRows,
	})
	if err != nil {
		return nil, fmt.Errorf("open sql adapter: %w", err)
	}

	registry := tool.NewRegistry()
	if err := registerTools(registry, cfg, db); err != nil {
		db.Close()
		return nil, err
	}

	sched := scheduler.New(registry, scheduler.Config{
		Concurrency:    4,
		DefaultTimeout: cfg.Tools.Execution.Timeout,
	})

	history := chat.NewHistory()
	compressionCfg := chat.DefaultCompressionConfig(cfg.Session.ContextBudgetTokens)
	compressionCfg.ThresholdPercent = cfg.Session.CompactionThreshold
	compressionCfg.KeepRecentTurns = cfg.Session.KeepLastTurns
	compressor := chat.NewCompressor(compressionCfg, client.NewProviderSummarizer(provider, model))

	tracker := usage.NewTracker(usage.DefaultTrackerConfig())

	sink := client.NewMultiSink(client.NewObservabilitySink(logger, metrics))

	c := client.New(client.Config{
		MaxSessionTurns:   cfg.Session.MaxTurns,
		Model:             model,
		SystemInstruction: systemInstruction,
	}, provider, registry, sched, history, compressor, tracker, sink)

	return &session{client: c, scheduler: sched, db: db, logger: logger, metrics: metrics}, nil
}

// logBedrockModels runs a one-shot Bedrock model discovery call and logs
// what is available, so operators can see candidate model IDs for
// providers.ProviderConfig.DefaultModel without leaving the CLI. sqlpilot
// does not invoke Bedrock-hosted models directly; discovery is advisory.
func logBedrockModels(ctx context.Context, cfg *config.Config, logger *observability.Logger) {
	refresh := cfg.Providers.Bedrock.BedrockRefreshDuration()
	models, err := bedrock.DiscoverModels(ctx, &bedrock.DiscoveryConfig{
		Region:               cfg.Providers.Bedrock.Region,
		RefreshInterval:      refresh,
		ProviderFilter:       cfg.Providers.Bedrock.ProviderFilter,
		DefaultContextWindow: cfg.Providers.Bedrock.DefaultContextWindow,
		DefaultMaxTokens:     cfg.Providers.Bedrock.DefaultMaxTokens,
	})
	if err != nil {
		logger.Warn(ctx, "bedrock model discovery failed", "error", err)
		return
	}
	logger.Info(ctx, "bedrock model discovery complete", "model_count", len(models))
}

func (s *session) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// buildProvider picks cfg.Providers.DefaultProvider and constructs its
// concrete providers.Provider, returning it alongside the model name to
// drive Turn requests with.
func buildProvider(ctx context.Context, cfg *config.Config) (providers.Provider, string, error) {
	name := cfg.Providers.DefaultProvider
	pc, ok := cfg.Providers.Providers[name]
	if !ok {
		return nil, "", fmt.Errorf("provider %q is not configured", name)
	}

	switch name {
	case "anthropic":
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
		if err != nil {
			return nil, "", fmt.Errorf("build anthropic provider: %w", err)
		}
		return p, pc.DefaultModel, nil
	case "openai":
		p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
		if err != nil {
			return nil, "", fmt.Errorf("build openai provider: %w", err)
		}
		return p, pc.DefaultModel, nil
	case "google":
		p, err := providers.NewGoogleProvider(ctx, providers.GoogleConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
		})
		if err != nil {
			return nil, "", fmt.Errorf("build google provider: %w", err)
		}
		return p, pc.DefaultModel, nil
	case "azure":
		p, err := providers.NewAzureProvider(providers.AzureConfig{
			Endpoint:     pc.BaseURL,
			APIKey:       pc.APIKey,
			APIVersion:   pc.APIVersion,
			DefaultModel: pc.DefaultModel,
		})
		if err != nil {
			return nil, "", fmt.Errorf("build azure provider: %w", err)
		}
		return p, pc.DefaultModel, nil
	case "openrouter":
		p, err := providers.NewOpenRouterProvider(providers.OpenRouterConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
		})
		if err != nil {
			return nil, "", fmt.Errorf("build openrouter provider: %w", err)
		}
		return p, pc.DefaultModel, nil
	case "ollama":
		p := providers.NewOllamaProvider(providers.OllamaConfig{
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
		return p, pc.DefaultModel, nil
	default:
		return nil, "", fmt.Errorf("unsupported provider %q", name)
	}
}

// registerTools registers the four tool families: filesystem, shell,
// the SQL adapter, and fetch_url, each gated by its own config.Enabled
// flag where the tool has one.
func registerTools(registry *tool.Registry, cfg *config.Config, db *sqladapter.DB) error {
	filesCfg := files.Config{
		Workspace:    cfg.Workspace.Path,
		MaxReadBytes: cfg.Workspace.MaxChars,
	}
	toRegister := []tool.Tool{
		files.NewReadTool(filesCfg),
		files.NewWriteTool(filesCfg),
		files.NewEditTool(filesCfg),
		files.NewApplyPatchTool(filesCfg),
	}

	if cfg.Shell.Enabled {
		manager := exec.NewManager(cfg.Workspace.Path)
		toRegister = append(toRegister, exec.NewExecTool("run_shell", manager), exec.NewProcessTool(manager))
	}

	riskCtx := &risk.Context{
		ForeignKeyTables: make(map[string]bool, len(cfg.Risk.ForeignKeyTables)),
		TableRowCounts:   cfg.Risk.TableRowCounts,
	}
	for _, table := range cfg.Risk.ForeignKeyTables {
		riskCtx.ForeignKeyTables[table] = true
	}
	toRegister = append(toRegister, sqladapter.NewSchemaDiscoveryTool(db), sqladapter.NewSQLExecuteTool(db, riskCtx))

	if cfg.Web.Enabled {
		toRegister = append(toRegister, webadapter.NewFetchURLTool(webadapter.Config{
			MaxResponseBytes: cfg.Web.MaxResponseBytes,
			Timeout:          cfg.Web.Timeout,
		}))
	}

	for _, t := range toRegister {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}
	return nil
}

const systemInstruction = `You are sqlpilot, a conversational database agent. You help the ` +
	`user explore and modify a connected SQL database and the files in their workspace. ` +
	`Use schema_discovery before writing queries against tables you have not inspected yet. ` +
	`Prefer sql_execute for reads and writes, and explain risky statements before running them.`
