package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/stateflow/internal/condition"
	"github.com/haasonsaas/stateflow/internal/external"
	"github.com/haasonsaas/stateflow/internal/memory"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/internal/slots"
	"github.com/haasonsaas/stateflow/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext(t *testing.T, state *scenario.DialogState) *Context {
	t.Helper()
	logger := testLogger()
	var directives []models.Directive
	var transitions []models.StateTransition
	return &Context{
		Ctx:         context.Background(),
		Scenario:    &scenario.Scenario{Plans: []scenario.Plan{{Name: "Main", DialogStates: []scenario.DialogState{*state}}}},
		State:       state,
		PlanName:    "Main",
		Memory:      models.Memory{},
		SessionID:   "sess-1",
		RequestID:   "req-1",
		Evaluator:   condition.New(logger),
		Slots:       slots.New(logger),
		External:    external.NewClient(logger, nil),
		Logger:      logger,
		Directives:  &directives,
		Transitions: &transitions,
	}
}

func TestEntryActionRunsOncePerEntry(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Greet",
		EntryAction: &scenario.Action{
			Directives:    []scenario.ActionDirective{{Sentences: []string{"hello"}}},
			MemoryActions: []scenario.MemoryAction{{ActionType: scenario.MemoryActionAdd, MemorySlotKey: "greeted", MemorySlotValue: "Y"}},
		},
	}
	ctx := testContext(t, state)
	h := &EntryActionHandler{}

	if !h.CanHandle(ctx) {
		t.Fatal("expected entry action to apply on first entry")
	}
	result := h.Execute(ctx)
	nt, ok := result.(NoTransition)
	if !ok {
		t.Fatalf("expected NoTransition, got %T", result)
	}
	if len(nt.Messages) != 1 || nt.Messages[0] != "hello" {
		t.Fatalf("unexpected messages %v", nt.Messages)
	}
	if ctx.Memory["greeted"] != "Y" {
		t.Fatalf("memory action not applied: %v", ctx.Memory)
	}
	if h.CanHandle(ctx) {
		t.Fatal("entry action must not re-fire within the same frame")
	}
}

func TestConditionFirstMatchWins(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Route",
		ConditionHandlers: []scenario.ConditionHandler{
			{ConditionStatement: `{$flag} == "no"`, TransitionTarget: scenario.TransitionTarget{DialogState: "Wrong"}},
			{ConditionStatement: `{$flag} == "yes"`, TransitionTarget: scenario.TransitionTarget{DialogState: "Right"}},
			{ConditionStatement: "True", TransitionTarget: scenario.TransitionTarget{DialogState: "Fallback"}},
		},
	}
	ctx := testContext(t, state)
	ctx.Memory["flag"] = "yes"

	result := (&ConditionHandler{}).Execute(ctx)
	st, ok := result.(StateTransition)
	if !ok {
		t.Fatalf("expected StateTransition, got %T", result)
	}
	if st.NewState != "Right" {
		t.Fatalf("expected Right, got %q", st.NewState)
	}
	if st.HandlerIndex != 1 {
		t.Fatalf("expected handler index 1, got %d", st.HandlerIndex)
	}
}

func TestConditionResumeSkipsConsumedHandlers(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Route",
		ConditionHandlers: []scenario.ConditionHandler{
			{ConditionStatement: "True", TransitionTarget: scenario.TransitionTarget{DialogState: "First"}},
			{ConditionStatement: "True", TransitionTarget: scenario.TransitionTarget{DialogState: "Second"}},
		},
	}
	ctx := testContext(t, state)
	ctx.StartHandlerIndex = 1

	result := (&ConditionHandler{}).Execute(ctx)
	st, ok := result.(StateTransition)
	if !ok {
		t.Fatalf("expected StateTransition, got %T", result)
	}
	if st.NewState != "Second" {
		t.Fatalf("resume must skip index 0, got %q", st.NewState)
	}
}

func TestConditionEndScenarioTarget(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Done",
		ConditionHandlers: []scenario.ConditionHandler{
			{ConditionStatement: "True", TransitionTarget: scenario.TransitionTarget{DialogState: models.EndScenario}},
		},
	}
	ctx := testContext(t, state)

	result := (&ConditionHandler{}).Execute(ctx)
	if _, ok := result.(EndScenario); !ok {
		t.Fatalf("expected EndScenario, got %T", result)
	}
}

func TestConditionPlanTransitionTarget(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Hop",
		ConditionHandlers: []scenario.ConditionHandler{
			{ConditionStatement: "True", TransitionTarget: scenario.TransitionTarget{Scenario: "Checkout", DialogState: "Start"}},
		},
	}
	ctx := testContext(t, state)

	result := (&ConditionHandler{}).Execute(ctx)
	pt, ok := result.(PlanTransition)
	if !ok {
		t.Fatalf("expected PlanTransition, got %T", result)
	}
	if pt.TargetPlan != "Checkout" || pt.NewState != "Start" {
		t.Fatalf("unexpected target %+v", pt)
	}
}

func TestConditionNoMatchFallsThrough(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Route",
		ConditionHandlers: []scenario.ConditionHandler{
			{ConditionStatement: "False", TransitionTarget: scenario.TransitionTarget{DialogState: "Never"}},
		},
	}
	ctx := testContext(t, state)

	if _, ok := (&ConditionHandler{}).Execute(ctx).(NoTransition); !ok {
		t.Fatal("expected NoTransition when no condition holds")
	}
}

func TestIntentExactMatchBeatsAnyIntent(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Menu",
		IntentHandlers: []scenario.IntentHandler{
			{Intent: models.AnyIntent, TransitionTarget: scenario.TransitionTarget{DialogState: "Catchall"}},
			{Intent: "OrderPizza", TransitionTarget: scenario.TransitionTarget{DialogState: "Order"}},
		},
	}
	ctx := testContext(t, state)
	ctx.Memory[memory.KeyNLUIntent] = "OrderPizza"

	result := (&IntentHandler{}).Execute(ctx)
	st, ok := result.(StateTransition)
	if !ok {
		t.Fatalf("expected StateTransition, got %T", result)
	}
	if st.NewState != "Order" {
		t.Fatalf("exact intent must win over %s, got %q", models.AnyIntent, st.NewState)
	}
	if st.HandlerIndex != -1 {
		t.Fatalf("intent transitions carry no condition index, got %d", st.HandlerIndex)
	}
}

func TestIntentAnyIntentFallback(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Menu",
		IntentHandlers: []scenario.IntentHandler{
			{Intent: "OrderPizza", TransitionTarget: scenario.TransitionTarget{DialogState: "Order"}},
			{Intent: models.AnyIntent, TransitionTarget: scenario.TransitionTarget{DialogState: "Catchall"}},
		},
	}
	ctx := testContext(t, state)
	ctx.Memory[memory.KeyNLUIntent] = "SomethingElse"

	result := (&IntentHandler{}).Execute(ctx)
	st, ok := result.(StateTransition)
	if !ok {
		t.Fatalf("expected StateTransition, got %T", result)
	}
	if st.NewState != "Catchall" {
		t.Fatalf("expected catchall, got %q", st.NewState)
	}
}

func TestIntentTransitionSetsFlags(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Menu",
		IntentHandlers: []scenario.IntentHandler{
			{Intent: "OrderPizza", TransitionTarget: scenario.TransitionTarget{DialogState: "Order"}},
		},
	}
	ctx := testContext(t, state)
	ctx.Memory[memory.KeyNLUIntent] = "OrderPizza"

	(&IntentHandler{}).Execute(ctx)
	if ctx.Memory[memory.KeyIntentTransitioned] == nil {
		t.Fatal("intent transition must mark the request")
	}
	if ctx.Memory[memory.KeyDeferIntentOnce] != "Order" {
		t.Fatalf("defer-once flag must point at the new state, got %v", ctx.Memory[memory.KeyDeferIntentOnce])
	}
	if ctx.Memory[memory.KeyPreviousIntent] != "OrderPizza" {
		t.Fatalf("previous intent not recorded: %v", ctx.Memory[memory.KeyPreviousIntent])
	}
}

func TestIntentSuspendsWithoutInput(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Menu",
		IntentHandlers: []scenario.IntentHandler{
			{Intent: "OrderPizza", TransitionTarget: scenario.TransitionTarget{DialogState: "Order"}},
		},
	}
	ctx := testContext(t, state)

	if _, ok := (&IntentHandler{}).Execute(ctx).(Suspend); !ok {
		t.Fatal("intent state with no resolved intent must suspend")
	}
}

func TestIntentDeferredSuppressesHandler(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Order",
		IntentHandlers: []scenario.IntentHandler{
			{Intent: "OrderPizza", TransitionTarget: scenario.TransitionTarget{DialogState: "Order"}},
		},
	}
	ctx := testContext(t, state)
	ctx.IntentDeferred = true

	if (&IntentHandler{}).CanHandle(ctx) {
		t.Fatal("deferred intent must suppress the handler for this visit")
	}
}

func TestIntentMappingRewritesIntent(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Menu",
		IntentHandlers: []scenario.IntentHandler{
			{Intent: "DM_CONFIRM", TransitionTarget: scenario.TransitionTarget{DialogState: "Confirmed"}},
		},
	}
	ctx := testContext(t, state)
	ctx.Memory[memory.KeyNLUIntent] = "Yes"
	ctx.Memory["mode"] = "checkout"
	ctx.IntentMapping = []scenario.IntentMappingRule{
		{
			Scenario: "Other",
			Intents:  []string{"Yes"},
			DMIntent: "DM_WRONG",
		},
		{
			DialogState:        "Menu",
			Intents:            []string{"Yes", "Sure"},
			ConditionStatement: `{$mode} == "checkout"`,
			DMIntent:           "DM_CONFIRM",
		},
	}

	result := (&IntentHandler{}).Execute(ctx)
	st, ok := result.(StateTransition)
	if !ok {
		t.Fatalf("expected StateTransition, got %T", result)
	}
	if st.NewState != "Confirmed" {
		t.Fatalf("mapping rule must rewrite the intent, got %q", st.NewState)
	}
}

func TestEventMatchAndMiss(t *testing.T) {
	state := &scenario.DialogState{
		Name: "Wait",
		EventHandlers: []scenario.EventHandler{
			{Event: "TIMEOUT", TransitionTarget: scenario.TransitionTarget{DialogState: "Nag"}},
		},
	}
	ctx := testContext(t, state)
	ctx.EventType = "TIMEOUT"

	h := &EventHandler{}
	if !h.CanHandle(ctx) {
		t.Fatal("event handler must apply when an event arrives")
	}
	st, ok := h.Execute(ctx).(StateTransition)
	if !ok || st.NewState != "Nag" {
		t.Fatalf("expected transition to Nag, got %+v", st)
	}

	ctx.EventType = "UNRELATED"
	if _, ok := h.Execute(ctx).(NoTransition); !ok {
		t.Fatal("unmatched event must fall through")
	}

	ctx.EventType = ""
	if h.CanHandle(ctx) {
		t.Fatal("event handler must not apply without an event")
	}
}

func TestAPICallConditionsChooseTransition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	state := &scenario.DialogState{
		Name: "CheckOrder",
		ApicallHandlers: []scenario.ApicallHandler{
			{Name: "orderStatus", TransitionTarget: scenario.TransitionTarget{DialogState: "Fallback"}},
		},
		ConditionHandlers: []scenario.ConditionHandler{
			{ConditionStatement: `{$orderStatus} == "ok"`, TransitionTarget: scenario.TransitionTarget{DialogState: "Done"}},
		},
	}
	ctx := testContext(t, state)
	ctx.Scenario.Webhooks = []scenario.WebhookDefinition{
		{
			Type: scenario.KindAPICall,
			Name: "orderStatus",
			URL:  server.URL,
			Formats: &scenario.Formats{
				ResponseMappings: []scenario.MappingGroup{
					{TargetType: scenario.TargetMemory, Mappings: map[string]string{"orderStatus": "$.status"}},
				},
			},
		},
	}

	result := (&APICallHandler{}).Execute(ctx)
	st, ok := result.(StateTransition)
	if !ok {
		t.Fatalf("expected StateTransition, got %T", result)
	}
	if st.NewState != "Done" {
		t.Fatalf("condition over mapped response must win, got %q", st.NewState)
	}
	if ctx.Memory["orderStatus"] != "ok" {
		t.Fatalf("response mapping missing: %v", ctx.Memory)
	}
}

func TestAPICallFallsBackToOwnTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending"}`))
	}))
	defer server.Close()

	state := &scenario.DialogState{
		Name: "CheckOrder",
		ApicallHandlers: []scenario.ApicallHandler{
			{Name: "orderStatus", URL: server.URL, TransitionTarget: scenario.TransitionTarget{DialogState: "Retry"}},
		},
		ConditionHandlers: []scenario.ConditionHandler{
			{ConditionStatement: `"{$status}" == "ok"`, TransitionTarget: scenario.TransitionTarget{DialogState: "Done"}},
		},
	}
	ctx := testContext(t, state)

	result := (&APICallHandler{}).Execute(ctx)
	st, ok := result.(StateTransition)
	if !ok {
		t.Fatalf("expected StateTransition, got %T", result)
	}
	if st.NewState != "Retry" {
		t.Fatalf("handler's own target is the fallback, got %q", st.NewState)
	}
}

func TestResolveAPICallSynthesizesFromURL(t *testing.T) {
	s := &scenario.Scenario{}
	handler := &scenario.ApicallHandler{Name: "lookup", URL: "http://internal/api"}

	def := resolveAPICall(s, handler)
	if def == nil {
		t.Fatal("expected synthesized definition")
	}
	if def.Type != scenario.KindAPICall || def.URL != "http://internal/api" {
		t.Fatalf("unexpected definition %+v", def)
	}

	if resolveAPICall(s, &scenario.ApicallHandler{Name: "missing"}) != nil {
		t.Fatal("no definition and no URL must resolve to nil")
	}
}

func TestApplyActionAddRemove(t *testing.T) {
	mem := models.Memory{"stale": "x"}
	action := &scenario.Action{
		Directives: []scenario.ActionDirective{{Sentences: []string{"a", "b"}}},
		MemoryActions: []scenario.MemoryAction{
			{ActionType: scenario.MemoryActionAdd, MemorySlotKey: "fresh", MemorySlotValue: 1},
			{ActionType: scenario.MemoryActionRemove, MemorySlotKey: "stale"},
		},
	}

	messages := applyAction(action, mem, testLogger())
	if len(messages) != 2 {
		t.Fatalf("expected 2 sentences, got %v", messages)
	}
	if mem["fresh"] != 1 {
		t.Fatalf("ADD not applied: %v", mem)
	}
	if _, ok := mem["stale"]; ok {
		t.Fatal("REMOVE not applied")
	}
}

func TestPipelineOrder(t *testing.T) {
	want := []string{
		TypeEntryAction, TypeSlotFilling, TypeWebhook,
		TypeAPICall, TypeIntent, TypeEvent, TypeCondition,
	}
	pipeline := Pipeline()
	if len(pipeline) != len(want) {
		t.Fatalf("expected %d handlers, got %d", len(want), len(pipeline))
	}
	for i, h := range pipeline {
		if h.Type() != want[i] {
			t.Fatalf("position %d: want %s, got %s", i, want[i], h.Type())
		}
	}
}
