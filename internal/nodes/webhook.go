package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flowlinehq/flowline/internal/expressions"
	"github.com/flowlinehq/flowline/pkg/schema"
)

const webhookBodyLimit = 4 << 20 // 4 MiB response cap

// executeWebhook issues one HTTP call to the configured URL. The node
// completes only on a 2xx response; in both cases the output carries
// {status, statusText, body} so downstream nodes can inspect the
// response.
func (e *Executor) executeWebhook(ctx context.Context, req Request) *schema.NodeResult {
	var cfg schema.WebhookConfig
	if len(req.Node.Data.Config) > 0 {
		if err := json.Unmarshal(req.Node.Data.Config, &cfg); err != nil {
			return failedResult(fmt.Sprintf("invalid webhook config: %s", err.Error()))
		}
	}
	if cfg.URL == "" {
		return failedResult("webhook node requires a URL")
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		template := cfg.Body
		if template == "" {
			template = "{{previous_output}}"
		}
		rendered := expressions.Interpolate(template, req.Input, req.PreviousOutput, req.Results)
		body = strings.NewReader(rendered)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, cfg.URL, body)
	if err != nil {
		return failedResult(fmt.Sprintf("invalid webhook request: %s", err.Error()))
	}

	// Fixed default first so user headers can override it.
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return failedResult(fmt.Sprintf("webhook call failed: %s", err.Error()))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, webhookBodyLimit))
	if err != nil {
		return failedResult(fmt.Sprintf("read webhook response: %s", err.Error()))
	}

	parsed := parseWebhookBody(resp.Header.Get("Content-Type"), raw)
	output := map[string]any{
		"status":     resp.StatusCode,
		"statusText": http.StatusText(resp.StatusCode),
		"body":       parsed,
	}

	if cfg.Transform != "" {
		if e.jq == nil {
			return &schema.NodeResult{
				Status: schema.NodeStatusFailed,
				Output: output,
				Error:  "response transform failed: no jq engine configured",
			}
		}
		extracted, jqErr := e.jq.EvaluateValue(ctx, cfg.Transform, parsed)
		if jqErr != nil {
			return &schema.NodeResult{
				Status: schema.NodeStatusFailed,
				Output: output,
				Error:  fmt.Sprintf("response transform failed: %s", jqErr.Error()),
			}
		}
		output["extracted"] = extracted
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &schema.NodeResult{
			Status: schema.NodeStatusFailed,
			Output: output,
			Error:  fmt.Sprintf("webhook returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	return &schema.NodeResult{
		Status: schema.NodeStatusCompleted,
		Output: output,
	}
}

// parseWebhookBody decodes JSON responses and keeps everything else as
// raw text.
func parseWebhookBody(contentType string, raw []byte) any {
	if strings.Contains(contentType, "application/json") && len(raw) > 0 {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}
