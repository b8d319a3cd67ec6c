package handlers

import (
	"github.com/haasonsaas/stateflow/internal/memory"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// IntentHandler matches the turn's resolved intent against the state's
// intent handlers. An exact match wins; __ANY_INTENT__ is the fallback.
// DM intent mapping rules rewrite the intent before matching.
type IntentHandler struct{}

func (h *IntentHandler) Type() string { return TypeIntent }

func (h *IntentHandler) CanHandle(ctx *Context) bool {
	return len(ctx.State.IntentHandlers) > 0 && !ctx.IntentDeferred
}

func (h *IntentHandler) Execute(ctx *Context) Result {
	intent := memory.ResolvedIntent(ctx.Memory)
	if intent == "" {
		// Intent states wait for user input.
		return Suspend{}
	}
	intent = h.remap(ctx, intent)

	matched := -1
	for i := range ctx.State.IntentHandlers {
		if ctx.State.IntentHandlers[i].Intent == intent {
			matched = i
			break
		}
	}
	if matched < 0 {
		for i := range ctx.State.IntentHandlers {
			if ctx.State.IntentHandlers[i].Intent == models.AnyIntent {
				matched = i
				break
			}
		}
	}
	if matched < 0 {
		return NoTransition{}
	}

	handler := &ctx.State.IntentHandlers[matched]
	messages := applyAction(handler.Action, ctx.Memory, ctx.Logger)
	memory.MarkIntentTransitioned(ctx.Memory, intent)
	if target := handler.TransitionTarget.DialogState; target != "" && target != models.EndScenario && target != models.EndSession {
		// The same intent must not re-fire on first entry into the new state.
		memory.SetDeferIntentOnce(ctx.Memory, target)
	}
	return transitionResult(ctx, handler.TransitionTarget, -1, messages,
		TypeIntent, "intent "+intent)
}

// remap applies the first DM intent mapping rule whose scenario, state, and
// guard condition all match.
func (h *IntentHandler) remap(ctx *Context, intent string) string {
	for i := range ctx.IntentMapping {
		rule := &ctx.IntentMapping[i]
		if rule.Scenario != "" && rule.Scenario != ctx.PlanName {
			continue
		}
		if rule.DialogState != "" && rule.DialogState != ctx.State.Name {
			continue
		}
		if !containsIntent(rule.Intents, intent) {
			continue
		}
		if rule.ConditionStatement != "" && !ctx.Evaluator.Evaluate(rule.ConditionStatement, ctx.Memory) {
			continue
		}
		ctx.Logger.Debug("dm intent mapping applied",
			"from", intent, "to", rule.DMIntent, "state", ctx.State.Name)
		return rule.DMIntent
	}
	return intent
}

func containsIntent(intents []string, intent string) bool {
	for _, candidate := range intents {
		if candidate == intent {
			return true
		}
	}
	return false
}
