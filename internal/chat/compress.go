package chat

import (
	"context"
	"fmt"
)

// TokenEstimator approximates the token cost of a Content entry. The exact
// tokenizer differs per provider and is not standardized here (see
// DESIGN.md open-question notes); callers may supply a provider-precise
// estimator without changing Compressor's contract.
type TokenEstimator interface {
	EstimateTokens(c Content) int
}

// CharEstimator is the default estimator: roughly 4 characters per token,
// the same char-budget proxy the teacher's context packer uses.
type CharEstimator struct{}

func (CharEstimator) EstimateTokens(c Content) int {
	n := len(c.Text())
	for _, p := range c.Parts {
		switch p.Kind {
		case PartFunctionCall:
			n += len(p.CallName) + len(p.CallArgs)
		case PartFunctionResponse:
			n += len(p.ResponseName) + len(p.ResponseContent)
		}
	}
	if n == 0 {
		return 1
	}
	return n/4 + 1
}

// Summarizer produces an objective recap of entities, decisions, and open
// questions from a prefix of history, via a structured LLM call.
type Summarizer interface {
	Summarize(ctx context.Context, entries []Content) (string, error)
}

// CompressionConfig controls when and how Compressor folds old history
// into a summary.
type CompressionConfig struct {
	// ThresholdPercent of ContextBudgetTokens that triggers compression.
	// Default 0.70 (§4.5).
	ThresholdPercent float64

	// ContextBudgetTokens is the model's context window, in tokens.
	ContextBudgetTokens int

	// KeepRecentTurns is K: the number of most recent user-initiated
	// turns (including the current one) kept intact. Default 6.
	KeepRecentTurns int

	Estimator TokenEstimator
}

// DefaultCompressionConfig returns the spec defaults for a given context
// budget.
func DefaultCompressionConfig(contextBudgetTokens int) CompressionConfig {
	return CompressionConfig{
		ThresholdPercent:    0.70,
		ContextBudgetTokens: contextBudgetTokens,
		KeepRecentTurns:     6,
		Estimator:           CharEstimator{},
	}
}

func (c CompressionConfig) normalized() CompressionConfig {
	if c.ThresholdPercent <= 0 {
		c.ThresholdPercent = 0.70
	}
	if c.KeepRecentTurns <= 0 {
		c.KeepRecentTurns = 6
	}
	if c.Estimator == nil {
		c.Estimator = CharEstimator{}
	}
	return c
}

// Compressor applies CompressionConfig to a History.
type Compressor struct {
	config     CompressionConfig
	summarizer Summarizer
}

// NewCompressor builds a Compressor. summarizer is invoked for the
// structured recap call; config is normalized with defaults.
func NewCompressor(config CompressionConfig, summarizer Summarizer) *Compressor {
	return &Compressor{config: config.normalized(), summarizer: summarizer}
}

// ShouldCompress estimates the curated history's token count against the
// configured threshold.
func (c *Compressor) ShouldCompress(h *History) (shouldCompress bool, estimatedTokens int) {
	curated := h.Curated()
	total := 0
	for _, entry := range curated {
		total += c.config.Estimator.EstimateTokens(entry)
	}
	if c.config.ContextBudgetTokens <= 0 {
		return false, total
	}
	threshold := int(float64(c.config.ContextBudgetTokens) * c.config.ThresholdPercent)
	return total >= threshold, total
}

// CompressResult carries the before/after token counts for a ChatCompressed
// event.
type CompressResult struct {
	TokensBefore int
	TokensAfter  int
	Compressed   bool
}

// Compress checks the threshold and, if exceeded, splits the curated
// history preserving the most recent KeepRecentTurns turns, summarizes the
// older prefix, and replaces it with a single synthetic user Content
// beginning "[prior-context-summary] ". Idempotent: if the prefix to be
// summarized is empty, or consists solely of an existing summary content,
// Compress is a no-op.
func (c *Compressor) Compress(ctx context.Context, h *History) (CompressResult, error) {
	should, before := c.ShouldCompress(h)
	if !should {
		return CompressResult{TokensBefore: before, TokensAfter: before}, nil
	}

	curated := h.Curated()
	splitIdx := recentTurnsBoundary(curated, c.config.KeepRecentTurns)
	prefix := curated[:splitIdx]
	recent := curated[splitIdx:]

	if len(prefix) == 0 {
		return CompressResult{TokensBefore: before, TokensAfter: before}, nil
	}
	if len(prefix) == 1 && prefix[0].IsSummary {
		// Already compressed and nothing new follows it to summarize.
		return CompressResult{TokensBefore: before, TokensAfter: before}, nil
	}

	summary, err := c.summarizer.Summarize(ctx, prefix)
	if err != nil {
		return CompressResult{}, fmt.Errorf("chat: summarize prefix: %w", err)
	}

	summaryContent := Content{
		Role:      RoleUser,
		Parts:     []Part{TextPart("[prior-context-summary] " + summary)},
		IsSummary: true,
	}

	newHistory := make([]Content, 0, len(recent)+1)
	newHistory = append(newHistory, summaryContent)
	newHistory = append(newHistory, recent...)
	h.Replace(newHistory)

	after := 0
	for _, entry := range newHistory {
		after += c.config.Estimator.EstimateTokens(entry)
	}
	return CompressResult{TokensBefore: before, TokensAfter: after, Compressed: true}, nil
}

// recentTurnsBoundary returns the index at which the last n user-initiated
// turns begin. A turn starts at a RoleUser content (including the
// synthetic bridge/summary contents, which are also role=user) and runs
// up to, but not including, the next RoleUser content.
func recentTurnsBoundary(entries []Content, n int) int {
	if n <= 0 {
		return len(entries)
	}
	userStarts := make([]int, 0)
	for i, c := range entries {
		if c.Role == RoleUser {
			userStarts = append(userStarts, i)
		}
	}
	if len(userStarts) <= n {
		return 0
	}
	return userStarts[len(userStarts)-n]
}
