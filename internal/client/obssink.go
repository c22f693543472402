package client

import (
	"context"

	"github.com/riverton-labs/sqlpilot/internal/observability"
)

// ObservabilitySink folds every TurnEvent into structured logs and the
// Prometheus counters/histograms registered by observability.Metrics. It
// implements Sink so it can be passed to New alongside (or instead of) a
// UI-facing sink via NewMultiSink.
type ObservabilitySink struct {
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewObservabilitySink binds a Sink to logger/metrics. Either may be nil,
// in which case the corresponding side effect is skipped.
func NewObservabilitySink(logger *observability.Logger, metrics *observability.Metrics) *ObservabilitySink {
	return &ObservabilitySink{logger: logger, metrics: metrics}
}

func (s *ObservabilitySink) Emit(ctx context.Context, e TurnEvent) {
	switch e.Kind {
	case EventUsage:
		if s.metrics != nil {
			s.metrics.RecordContextWindow("", e.Usage.Model, e.Usage.TotalTokens)
		}
	case EventToolCallUpdate:
		s.recordToolCalls(ctx, e)
	case EventChatCompressed:
		if s.logger != nil {
			s.logger.Info(ctx, "chat history compressed",
				"compressed", e.Compress.Compressed,
				"estimated_tokens_before", e.Compress.TokensBefore,
				"estimated_tokens_after", e.Compress.TokensAfter,
			)
		}
	case EventError:
		if s.logger != nil {
			s.logger.Error(ctx, "turn error", "error", e.Err)
		}
		if s.metrics != nil {
			s.metrics.RecordError("client", "turn_error")
		}
	case EventMaxTurnsReached:
		if s.logger != nil {
			s.logger.Warn(ctx, "session hit max turns without yielding to the user")
		}
	}
}

func (s *ObservabilitySink) recordToolCalls(ctx context.Context, e TurnEvent) {
	for _, call := range e.ToolCalls {
		if !call.Status.IsTerminal() {
			continue
		}
		duration := call.FinishedAt.Sub(call.StartedAt).Seconds()
		if duration < 0 {
			duration = 0
		}
		if s.metrics != nil {
			s.metrics.RecordToolExecution(call.Name, string(call.Status), duration)
		}
		if s.logger != nil && call.Status == "error" {
			s.logger.Warn(ctx, "tool call failed", "tool", call.Name, "call_id", call.CallID)
		}
	}
}
