// Package webadapter implements the fetch_url tool (C14): an HTTP GET
// gated by an SSRF guard, generalized from the teacher's channel-attachment
// fetch path to general tool use.
package webadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/riverton-labs/sqlpilot/internal/net/ssrf"
	"github.com/riverton-labs/sqlpilot/internal/tool"
)

// Config controls fetch limits.
type Config struct {
	MaxResponseBytes int64
	Timeout          time.Duration
}

// FetchURLTool performs a GET request against a validated public URL.
type FetchURLTool struct {
	client  *http.Client
	maxBody int64
}

// NewFetchURLTool creates a fetch_url tool.
func NewFetchURLTool(cfg Config) *FetchURLTool {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &FetchURLTool{
		client:  &http.Client{Timeout: timeout},
		maxBody: maxBody,
	}
}

func (t *FetchURLTool) Name() string        { return "fetch_url" }
func (t *FetchURLTool) DisplayName() string { return "Fetch URL" }
func (t *FetchURLTool) Description() string {
	return "Fetch the contents of a public HTTP(S) URL."
}

// ParameterSchema returns the JSON schema for the tool parameters.
func (t *FetchURLTool) ParameterSchema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to fetch (http or https).",
			},
		},
		"required": []string{"url"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *FetchURLTool) Validate(json.RawMessage) error { return nil }

// ShouldConfirm never gates a read-only fetch — the SSRF guard in Execute
// is what blocks unsafe targets, not a user prompt.
func (t *FetchURLTool) ShouldConfirm(context.Context, json.RawMessage) (*tool.ConfirmationDetails, error) {
	return nil, nil
}

// Execute validates the URL's host against the SSRF guard, then issues a
// GET request capped at maxBody bytes.
func (t *FetchURLTool) Execute(ctx context.Context, params json.RawMessage, _ tool.ProgressFunc) (tool.Result, error) {
	var input struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}

	target := strings.TrimSpace(input.URL)
	if target == "" {
		return toolError("url is required"), nil
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return toolError(fmt.Sprintf("invalid url: %v", err)), nil
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return toolError("url must be http or https"), nil
	}

	host, err := idna.Lookup.ToASCII(parsed.Hostname())
	if err != nil {
		return toolError(fmt.Sprintf("invalid hostname: %v", err)), nil
	}
	if err := ssrf.ValidatePublicHostname(host); err != nil {
		return toolError(fmt.Sprintf("blocked url: %v", err)), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return toolError(fmt.Sprintf("build request: %v", err)), nil
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return toolError(fmt.Sprintf("fetch failed: %v", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody))
	if err != nil {
		return toolError(fmt.Sprintf("read response: %v", err)), nil
	}

	payload, err := json.MarshalIndent(map[string]interface{}{
		"url":         parsed.String(),
		"status_code": resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"body":        string(body),
		"truncated":   int64(len(body)) >= t.maxBody,
	}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return tool.Result{Summary: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, parsed.Host), LLMContent: string(payload)}, nil
}

func (t *FetchURLTool) IsOutputMarkdown() bool       { return false }
func (t *FetchURLTool) CanUpdateOutput() bool        { return false }
func (t *FetchURLTool) ShouldSummarizeDisplay() bool { return true }
func (t *FetchURLTool) IsParallelSafe() bool         { return true }

func toolError(message string) tool.Result {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return tool.Result{LLMContent: message, Err: fmt.Errorf("%s", message)}
	}
	return tool.Result{LLMContent: string(payload), Err: fmt.Errorf("%s", message)}
}
