package external

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/stateflow/internal/retry"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/internal/template"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// apicallInitialDelay seeds the exponential backoff between attempts
// (0.1s, 0.2s, 0.4s, ...).
const (
	apicallInitialDelay = 100 * time.Millisecond
	apicallMaxDelay     = 10 * time.Second
)

// CallAPI executes an APICALL definition: method and body come from the
// definition's formats, with the request template substituted against
// memory. Returns the response JSON document, or nil on exhaustion or a
// non-JSON response.
func (c *Client) CallAPI(ctx context.Context, def *scenario.WebhookDefinition, mem models.Memory) []byte {
	start := time.Now()

	method := def.Method
	if method == "" {
		method = http.MethodPost
	}
	var body []byte
	if def.Formats != nil && def.Formats.RequestTemplate != "" {
		rendered := template.Render(def.Formats.RequestTemplate, mem)
		if isJSONContentType(def) && !json.Valid([]byte(rendered)) {
			// Sent verbatim anyway; the remote end owns the contract.
			c.logger.Warn("apicall request template rendered to invalid JSON",
				"apicall", def.Name)
		}
		body = []byte(rendered)
	}
	callURL := buildURL(def, mem)
	headers := buildHeaders(def, mem)

	cfg := retry.Exponential(def.Retry+1, apicallInitialDelay, apicallMaxDelay)
	data, result := retry.DoWithValue(ctx, cfg, func() ([]byte, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout(def))
		defer cancel()
		return c.doAttempt(attemptCtx, method, callURL, headers, body)
	})
	c.observe(scenario.KindAPICall, def.Name, start, result.Err)
	if result.Err != nil {
		c.logger.Warn("apicall failed",
			"apicall", def.Name, "url", callURL,
			"attempts", result.Attempts, "error", result.Err)
		return nil
	}
	if !json.Valid(data) {
		c.logger.Warn("apicall returned non-JSON response", "apicall", def.Name)
		return nil
	}
	return data
}

func isJSONContentType(def *scenario.WebhookDefinition) bool {
	if def.Formats == nil || def.Formats.ContentType == "" {
		return true
	}
	return strings.Contains(def.Formats.ContentType, "json")
}
