package memory

import (
	"testing"

	"github.com/haasonsaas/stateflow/pkg/models"
)

func TestHydrate(t *testing.T) {
	mem := models.Memory{}
	Hydrate(mem, "sess-1", "", &models.ExecuteRequest{
		UserID:  "u1",
		BotID:   "bot1",
		BotName: "demo",
		Context: map[string]any{"channel": "web"},
	})
	if mem["sessionId"] != "sess-1" || mem["botId"] != "bot1" || mem["channel"] != "web" {
		t.Fatalf("hydration incomplete: %v", mem)
	}
	rid, _ := mem["requestId"].(string)
	if len(rid) != len("req-")+8 {
		t.Fatalf("expected generated request id, got %q", rid)
	}
}

func TestInstallUserInputClearsStaleInput(t *testing.T) {
	mem := models.Memory{
		KeyUserTextInput:  []any{"old"},
		KeyNLUResult:      map[string]any{"stale": true},
		KeyClearUserInput: true,
	}
	InstallUserInput(mem, "new text", nil)
	if UserText(mem) != "new text" {
		t.Fatalf("UserText = %q", UserText(mem))
	}
	if _, ok := mem[KeyClearUserInput]; ok {
		t.Fatal("clear flag should be consumed")
	}
	if _, ok := mem[KeyNLUResult]; ok {
		t.Fatal("stale NLU envelope should be discarded")
	}

	// Without the flag, an empty turn keeps the prior input.
	mem = models.Memory{KeyUserTextInput: []any{"kept"}}
	InstallUserInput(mem, "", nil)
	if UserText(mem) != "kept" {
		t.Fatalf("prior input dropped without clear flag: %q", UserText(mem))
	}
}

func TestInstallUserInputClearsWebhookIntentOverride(t *testing.T) {
	mem := models.Memory{
		KeyNLUIntent:      "Weather.Inform",
		KeySTSConfidence:  0.91,
		KeyClearUserInput: true,
	}
	InstallUserInput(mem, "", nil)
	if _, ok := mem[KeyNLUIntent]; ok {
		t.Fatal("stale NLU_INTENT override should be discarded")
	}
	if _, ok := mem[KeySTSConfidence]; ok {
		t.Fatal("stale STS_CONFIDENCE should be discarded")
	}
}

func TestFreshEnvelopeSupersedesIntentOverride(t *testing.T) {
	// A webhook wrote NLU_INTENT last turn; no intent fired, so the clear
	// flag is not set. The next turn's envelope must still win.
	mem := models.Memory{KeyNLUIntent: "Weather.Inform"}
	nlu := &models.NLUResult{Results: []models.NLUHypothesis{{
		NLU: models.NLUPayload{Intents: []models.Intent{{Intent: "Help"}}},
	}}}
	InstallUserInput(mem, "help me", nlu)
	if got := ResolvedIntent(mem); got != "Help" {
		t.Fatalf("ResolvedIntent = %q, want the fresh envelope's intent", got)
	}
}

func TestInstallUserInputResetsAutoTransitionDepth(t *testing.T) {
	mem := models.Memory{KeyAutoTransitionDepth: 7}
	InstallUserInput(mem, "hi", nil)
	if _, ok := mem[KeyAutoTransitionDepth]; ok {
		t.Fatal("user input must reset the auto-transition counter")
	}

	// An input-less turn leaves the counter ticking.
	mem = models.Memory{KeyAutoTransitionDepth: 7}
	InstallUserInput(mem, "", nil)
	if got := intValue(mem[KeyAutoTransitionDepth]); got != 7 {
		t.Fatalf("input-less turn must keep the counter, got %d", got)
	}
}

func TestProjectEntities(t *testing.T) {
	mem := models.Memory{}
	nlu := &models.NLUResult{Results: []models.NLUHypothesis{{
		NLU: models.NLUPayload{Entities: []models.Entity{
			{Type: "CITY", Role: "destination", Text: "서울"},
			{Type: "DATE", Text: "tomorrow"},
		}},
	}}}
	ProjectEntities(mem, nlu)
	if mem["CITY"] != "서울" || mem["CITY:destination"] != "서울" {
		t.Fatalf("typed/role projection wrong: %v", mem)
	}
	if mem["DATE"] != "tomorrow" || mem["DATE:DATE"] != "tomorrow" {
		t.Fatalf("role should default to type: %v", mem)
	}
}

func TestResolvedIntent(t *testing.T) {
	nlu := &models.NLUResult{Results: []models.NLUHypothesis{{
		NLU: models.NLUPayload{Intents: []models.Intent{{Intent: "Weather.Inform"}}},
	}}}

	mem := models.Memory{KeyNLUResult: nlu}
	if got := ResolvedIntent(mem); got != "Weather.Inform" {
		t.Fatalf("envelope intent = %q", got)
	}

	// Explicit NLU_INTENT (e.g. from a webhook mapping) wins.
	mem[KeyNLUIntent] = "ACT_01_0235"
	if got := ResolvedIntent(mem); got != "ACT_01_0235" {
		t.Fatalf("explicit intent = %q", got)
	}

	// Envelope surviving a snapshot round-trip as a plain map still works.
	mem = models.Memory{KeyNLUResult: map[string]any{
		"results": []any{map[string]any{"nlu": map[string]any{
			"intents": []any{map[string]any{"intent": "Greeting"}},
		}}},
	}}
	if got := ResolvedIntent(mem); got != "Greeting" {
		t.Fatalf("map envelope intent = %q", got)
	}
}

func TestDeferIntentOnce(t *testing.T) {
	mem := models.Memory{}
	SetDeferIntentOnce(mem, "StateB")

	if ConsumeDeferIntent(mem, "StateA") {
		t.Fatal("defer flag for StateB must not affect StateA")
	}
	if !ConsumeDeferIntent(mem, "StateB") {
		t.Fatal("first evaluation in StateB should be deferred")
	}
	if ConsumeDeferIntent(mem, "StateB") {
		t.Fatal("defer applies exactly once")
	}
}

func TestEntryActionMarkers(t *testing.T) {
	mem := models.Memory{}
	if EntryActionExecuted(mem, "Start") {
		t.Fatal("fresh state should not be marked")
	}
	MarkEntryActionExecuted(mem, "Start")
	if !EntryActionExecuted(mem, "Start") {
		t.Fatal("marker not set")
	}
	ClearEntryActionMarker(mem, "Start")
	if EntryActionExecuted(mem, "Start") {
		t.Fatal("marker not cleared")
	}
}

func TestDepthCounters(t *testing.T) {
	mem := models.Memory{}
	for want := 1; want <= 3; want++ {
		if got := IncrementDepth(mem, KeyExecutionDepth); got != want {
			t.Fatalf("IncrementDepth = %d, want %d", got, want)
		}
	}
	// Depth restored from a JSON snapshot arrives as float64.
	mem[KeyAutoTransitionDepth] = float64(4)
	if got := IncrementDepth(mem, KeyAutoTransitionDepth); got != 5 {
		t.Fatalf("IncrementDepth after round-trip = %d", got)
	}
	ResetDepth(mem, KeyExecutionDepth)
	if got := IncrementDepth(mem, KeyExecutionDepth); got != 1 {
		t.Fatalf("depth not reset: %d", got)
	}
}

func TestPublicViewStripsControlFlags(t *testing.T) {
	mem := models.Memory{
		"CITY":                  "Seoul",
		KeyDeferIntentOnce:      "S",
		KeyPreviousState:        "Start",
		KeyUserTextInput:        []any{"hi"},
		KeySlotFillingCompleted: "",
	}
	view := PublicView(mem)
	if _, ok := view[KeyDeferIntentOnce]; ok {
		t.Fatal("control flag leaked into public view")
	}
	if _, ok := view[KeyPreviousState]; ok {
		t.Fatal("diagnostic flag leaked into public view")
	}
	if view["CITY"] != "Seoul" {
		t.Fatal("user memory missing from public view")
	}
	if _, ok := view[KeySlotFillingCompleted]; !ok {
		t.Fatal("non-underscore keys must survive")
	}
}

func TestMarkIntentTransitioned(t *testing.T) {
	mem := models.Memory{}
	MarkIntentTransitioned(mem, "Weather.Inform")
	if mem[KeyIntentTransitioned] != true || mem[KeyClearUserInput] != true {
		t.Fatalf("transition flags not set: %v", mem)
	}
	if mem[KeyPreviousIntent] != "Weather.Inform" {
		t.Fatalf("previous intent not recorded: %v", mem)
	}
}
