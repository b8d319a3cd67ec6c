// Package external executes scenario webhook and API-call definitions
// against remote HTTP services, with per-attempt timeouts, retry, and
// response mapping into session memory.
package external

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/stateflow/internal/observability"
	"github.com/haasonsaas/stateflow/internal/retry"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/internal/template"
	"github.com/haasonsaas/stateflow/pkg/models"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultContentType = "application/json"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// Client performs webhook and API-call HTTP requests. It is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a client. The per-attempt deadline comes from each
// definition, so the underlying http.Client carries no global timeout.
func NewClient(logger *slog.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{},
		logger:     logger,
		metrics:    metrics,
	}
}

// attemptTimeout resolves the per-attempt deadline for a definition.
func attemptTimeout(def *scenario.WebhookDefinition) time.Duration {
	if def.TimeoutMs > 0 {
		return time.Duration(def.TimeoutMs) * time.Millisecond
	}
	return defaultTimeout
}

// buildURL renders the definition URL and appends templated, URL-encoded
// query parameters.
func buildURL(def *scenario.WebhookDefinition, mem models.Memory) string {
	rendered := template.Render(def.URL, mem)
	if def.Formats == nil || len(def.Formats.QueryParams) == 0 {
		return rendered
	}
	values := url.Values{}
	for key, raw := range def.Formats.QueryParams {
		values.Set(key, template.Render(raw, mem))
	}
	sep := "?"
	if strings.Contains(rendered, "?") {
		sep = "&"
	}
	return rendered + sep + values.Encode()
}

// buildHeaders assembles request headers: the definition content type (or
// application/json) plus user headers, each value templated.
func buildHeaders(def *scenario.WebhookDefinition, mem models.Memory) http.Header {
	headers := http.Header{}
	contentType := defaultContentType
	if def.Formats != nil && def.Formats.ContentType != "" {
		contentType = def.Formats.ContentType
	}
	headers.Set("Content-Type", contentType)
	for key, raw := range def.Headers {
		headers.Set(key, template.Render(raw, mem))
	}
	return headers
}

// doAttempt performs a single HTTP attempt and returns the response body.
// Non-2xx statuses are errors so the retry layer can decide; 4xx statuses
// other than 408 and 429 are marked permanent since repeating the same
// request cannot fix them.
func (c *Client) doAttempt(ctx context.Context, method, callURL string, headers http.Header, body []byte) ([]byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, callURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, vals := range headers {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	return data, nil
}

func (c *Client) observe(kind, name string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.ExternalCallCounter.WithLabelValues(kind, name, status).Inc()
	c.metrics.ExternalCallDuration.WithLabelValues(kind, name).Observe(time.Since(start).Seconds())
}
