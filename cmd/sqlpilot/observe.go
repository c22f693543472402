package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riverton-labs/sqlpilot/internal/config"
	"github.com/riverton-labs/sqlpilot/internal/observability"
)

// startMetricsServer exposes the process-wide Prometheus registry on
// cfg.Metrics.Path and returns a shutdown func, or a no-op if metrics are
// disabled.
func startMetricsServer(cfg config.MetricsConfig, logger *observability.Logger) func(context.Context) error {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), "metrics server stopped", "error", err)
		}
	}()

	return srv.Shutdown
}

// startTracing configures the OpenTelemetry tracer when cfg.Enabled, and
// returns its shutdown func, or a no-op otherwise.
func startTracing(cfg config.TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Endpoint,
		SamplingRate:   cfg.SamplingRate,
		EnableInsecure: cfg.Insecure,
		Attributes:     cfg.Attributes,
	})
	return shutdown, nil
}
