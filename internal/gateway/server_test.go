package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/stateflow/internal/contextstore"
	"github.com/haasonsaas/stateflow/internal/engine"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/pkg/models"
)

const scenarioDoc = `{
	"name": "greeter",
	"plan": [{
		"name": "Main",
		"dialogState": [
			{
				"name": "Start",
				"intentHandlers": [
					{"intent": "Greet", "transitionTarget": {"dialogState": "Hello"}}
				]
			},
			{
				"name": "Hello",
				"entryAction": {"directives": [{"sentences": ["hi there"]}]},
				"intentHandlers": [
					{"intent": "Bye", "transitionTarget": {"dialogState": "__END_SESSION__"}}
				]
			},
			{
				"name": "Lookup",
				"apicallHandlers": [
					{"name": "lookup", "url": "http://unused.invalid", "transitionTarget": {"dialogState": "Start"}}
				]
			}
		]
	}],
	"apicalls": [
		{"name": "lookup", "url": "http://api.internal/lookup", "timeoutMs": 1000}
	]
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := scenario.NewRepository("", logger)
	if err != nil {
		t.Fatalf("repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	store := contextstore.NewMemoryStore(time.Hour)
	t.Cleanup(func() { store.Close() })

	eng := engine.New(repo, store, logger, nil, nil)
	server := httptest.NewServer(New(eng, logger, nil, nil).Handler())
	t.Cleanup(server.Close)
	return server
}

func uploadScenario(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(server.URL+"/v1/scenarios", "application/json", strings.NewReader(scenarioDoc))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["sessionId"] == "" {
		t.Fatal("upload must return a session id")
	}
	return body["sessionId"]
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestUploadExecuteRoundTrip(t *testing.T) {
	server := newTestServer(t)
	sessionID := uploadScenario(t, server)

	turn := models.ExecuteRequest{
		SessionID: sessionID,
		UserInput: "hello",
		NLU: &models.NLUResult{Results: []models.NLUHypothesis{
			{NLU: models.NLUPayload{Intents: []models.Intent{{Intent: "Greet"}}}},
		}},
	}
	payload, _ := json.Marshal(turn)
	resp, err := http.Post(server.URL+"/v1/execute", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("execute status %d", resp.StatusCode)
	}

	var result models.Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Meta.DialogState != "Hello" {
		t.Fatalf("expected Hello, got %q", result.Meta.DialogState)
	}
	found := false
	for _, d := range result.Directives {
		if d.SystemUtterance != nil && d.SystemUtterance.Speech == "hi there" {
			found = true
		}
	}
	if !found {
		t.Fatalf("entry utterance missing: %+v", result.Directives)
	}
}

func TestExecuteUnknownSession(t *testing.T) {
	server := newTestServer(t)

	payload, _ := json.Marshal(models.ExecuteRequest{SessionID: "ghost"})
	resp, err := http.Post(server.URL+"/v1/execute", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUploadMalformedScenario(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/v1/scenarios", "application/json", strings.NewReader(`{"plan": "nope"}`))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDownloadStripsTransientURLs(t *testing.T) {
	server := newTestServer(t)
	sessionID := uploadScenario(t, server)

	resp, err := http.Get(server.URL + "/v1/scenarios/" + sessionID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), "unused.invalid") {
		t.Fatal("apicall handler url must be stripped on download")
	}
	if !strings.Contains(string(body), "webhooks") {
		t.Fatalf("download must carry the unified webhooks section: %s", body)
	}
}

func TestResetAndInspectSession(t *testing.T) {
	server := newTestServer(t)
	sessionID := uploadScenario(t, server)

	resp, err := http.Post(server.URL+"/v1/sessions/"+sessionID+"/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/v1/sessions/" + sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer resp.Body.Close()
	var state engine.SessionState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.DialogState != "Start" {
		t.Fatalf("expected Start after reset, got %q", state.DialogState)
	}

	resp, err = http.Get(server.URL + "/v1/sessions")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	var listing struct {
		Sessions []string `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listing.Sessions) != 1 || listing.Sessions[0] != sessionID {
		t.Fatalf("unexpected listing %v", listing.Sessions)
	}
}

func TestIntentMappingUpdate(t *testing.T) {
	server := newTestServer(t)

	rules := `[{"intents": ["Yes"], "dmIntent": "DM_CONFIRM"}]`
	req, _ := http.NewRequest(http.MethodPut, server.URL+"/v1/intent-mapping", strings.NewReader(rules))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestWSPingPong(t *testing.T) {
	server := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "pong" {
		t.Fatalf("expected pong, got %q", data)
	}
}
