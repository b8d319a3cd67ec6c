package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Info("invisible")
	logger.Warn("visible warning")

	out := buf.String()
	if strings.Contains(out, "invisible") {
		t.Fatal("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "visible warning") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})
	logger.Info("turn executed", "state", "Start")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("default format should be JSON: %v (%s)", err, buf.String())
	}
	if record["state"] != "Start" {
		t.Fatalf("attribute missing: %v", record)
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	logger.Info("calling webhook", "header", "Bearer abcdefghijklmnop1234")
	if strings.Contains(buf.String(), "abcdefghijklmnop1234") {
		t.Fatalf("bearer token leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Fatalf("redaction marker missing: %s", buf.String())
	}
}

func TestRedactionCustomPattern(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{
		Output:         &buf,
		RedactPatterns: []string{`internal-[0-9]+`},
	})
	logger.Info("custom", "id", "internal-42")
	if strings.Contains(buf.String(), "internal-42") {
		t.Fatalf("custom pattern not applied: %s", buf.String())
	}
}

func TestWithTurnCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})
	WithTurn(logger, "sess-1", "req-abc").InfoContext(context.Background(), "turn")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["session_id"] != "sess-1" || record["request_id"] != "req-abc" {
		t.Fatalf("correlation fields missing: %v", record)
	}
}

func TestMetricsRegistry(t *testing.T) {
	metrics, registry := NewMetrics()
	metrics.TurnCounter.WithLabelValues("CHAT_BOT", "ok").Inc()
	metrics.ActiveSessions.Set(3)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := map[string]bool{}
	for _, fam := range families {
		found[fam.GetName()] = true
	}
	if !found["stateflow_turns_total"] || !found["stateflow_active_sessions"] {
		t.Fatalf("expected metric families missing: %v", found)
	}

	// A second instance must not panic on registration.
	if m2, _ := NewMetrics(); m2 == nil {
		t.Fatal("second metrics instance")
	}
}
