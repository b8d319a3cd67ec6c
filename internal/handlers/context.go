package handlers

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/stateflow/internal/condition"
	"github.com/haasonsaas/stateflow/internal/external"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/internal/slots"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// Context carries everything a handler may consult or mutate during one
// state visit. The engine rebuilds it per visited state.
type Context struct {
	Ctx context.Context

	Scenario *scenario.Scenario
	State    *scenario.DialogState
	PlanName string

	Memory models.Memory

	SessionID string
	RequestID string

	// EventType is the external event delivered with this turn, if any.
	EventType string

	// StartHandlerIndex is the first condition handler index to evaluate,
	// non-zero when resuming after an end-scenario pop.
	StartHandlerIndex int

	// IntentDeferred is true when the defer-once flag matched this state,
	// suppressing intent handlers for this visit.
	IntentDeferred bool

	// IntentMapping is the active DM intent remap table.
	IntentMapping []scenario.IntentMappingRule

	Evaluator *condition.Evaluator
	Slots     *slots.Manager
	External  *external.Client
	Logger    *slog.Logger

	// Directives accumulates DIRECTIVE-target response mappings.
	Directives *[]models.Directive

	// Transitions accumulates the turn's diagnostic transition records.
	Transitions *[]models.StateTransition
}

// Record appends a transition record for a consumed handler.
func (c *Context) Record(toState, reason string, conditionMet bool, handlerType string) {
	if c.Transitions == nil {
		return
	}
	*c.Transitions = append(*c.Transitions, models.StateTransition{
		FromState:    c.State.Name,
		ToState:      toState,
		Reason:       reason,
		ConditionMet: conditionMet,
		HandlerType:  handlerType,
	})
}

// Handler is the dispatch contract shared by all handler kinds.
type Handler interface {
	// Type names the handler kind for records and metrics.
	Type() string
	// CanHandle reports whether the handler applies to the current state.
	CanHandle(ctx *Context) bool
	// Execute runs the handler and returns its outcome.
	Execute(ctx *Context) Result
}

// Pipeline returns the handler set in priority order. The engine executes
// the permitted handlers in this order within a cycle.
func Pipeline() []Handler {
	return []Handler{
		&EntryActionHandler{},
		&SlotFillingHandler{},
		&WebhookHandler{},
		&APICallHandler{},
		&IntentHandler{},
		&EventHandler{},
		&ConditionHandler{},
	}
}

// transitionResult converts a handler's target into the proper result
// kind, recording the transition. conditionIndex is the condition handler
// index that produced the transition, or -1 when another handler kind did;
// resume bookkeeping consumes only condition indexes.
func transitionResult(ctx *Context, target scenario.TransitionTarget, conditionIndex int, messages []string, handlerType, reason string) Result {
	ctx.Record(target.DialogState, reason, true, handlerType)
	switch {
	case target.DialogState == models.EndScenario:
		return EndScenario{Messages: messages, HandlerIndex: conditionIndex}
	case target.Scenario != "" && target.Scenario != ctx.PlanName:
		return PlanTransition{
			TargetPlan:   target.Scenario,
			NewState:     target.DialogState,
			HandlerIndex: conditionIndex,
			Messages:     messages,
		}
	default:
		return StateTransition{
			NewState:     target.DialogState,
			Messages:     messages,
			HandlerIndex: conditionIndex,
		}
	}
}
