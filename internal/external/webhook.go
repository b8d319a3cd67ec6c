package external

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/haasonsaas/stateflow/internal/retry"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// webhookRetryDelay is the fixed pause between webhook attempts.
const webhookRetryDelay = time.Second

// WebhookEnvelope is the default POST body for WEBHOOK definitions.
type WebhookEnvelope struct {
	Text         string        `json:"text"`
	SessionID    string        `json:"sessionId"`
	RequestID    string        `json:"requestId"`
	CurrentState string        `json:"currentState"`
	Memory       models.Memory `json:"memory"`
}

// CallWebhook executes a WEBHOOK definition and returns the response as a
// JSON document. A non-JSON response body is wrapped as
// {"raw_response": <text>} so response mapping still has a document to
// work with. Returns nil after exhausting retries.
func (c *Client) CallWebhook(ctx context.Context, def *scenario.WebhookDefinition, env WebhookEnvelope, mem models.Memory) []byte {
	start := time.Now()

	body, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("encode webhook envelope", "webhook", def.Name, "error", err)
		c.observe(scenario.KindWebhook, def.Name, start, err)
		return nil
	}

	method := def.Method
	if method == "" {
		method = http.MethodPost
	}
	callURL := buildURL(def, mem)
	headers := buildHeaders(def, mem)

	cfg := retry.Linear(def.Retry+1, webhookRetryDelay)
	data, result := retry.DoWithValue(ctx, cfg, func() ([]byte, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout(def))
		defer cancel()
		return c.doAttempt(attemptCtx, method, callURL, headers, body)
	})
	c.observe(scenario.KindWebhook, def.Name, start, result.Err)
	if result.Err != nil {
		c.logger.Warn("webhook call failed",
			"webhook", def.Name, "url", callURL,
			"attempts", result.Attempts, "error", result.Err)
		return nil
	}

	if !json.Valid(data) {
		wrapped, err := json.Marshal(map[string]string{"raw_response": string(data)})
		if err != nil {
			return nil
		}
		return wrapped
	}
	return data
}
