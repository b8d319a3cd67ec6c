package engine

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/stateflow/internal/handlers"
	"github.com/haasonsaas/stateflow/internal/memory"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/internal/stack"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// diagnosticHandlerType labels engine-originated log entries.
const diagnosticHandlerType = "ENGINE"

// runCycles drives the handler cycle until the turn suspends, the state
// settles, or a loop guard fires.
func (e *Engine) runCycles(ctx context.Context, sc *scenario.Scenario, frames *stack.Manager, mem models.Memory, req *models.ExecuteRequest, requestID string, logger *slog.Logger, turn *turnState) {
	startIndex := 0
	resuming := false

	for {
		if memory.IncrementDepth(mem, memory.KeyExecutionDepth) > maxCycles {
			e.diagnostic(frames, turn, logger, "cycle limit reached")
			return
		}
		top := frames.Top()
		state, planName, err := sc.FindState(top.PlanName, top.DialogStateName)
		if err != nil {
			logger.Error("active state not found", "state", top.DialogStateName, "plan", top.PlanName)
			return
		}

		hctx := e.handlerContext(ctx, sc, state, planName, mem, req, requestID, logger, turn)
		hctx.StartHandlerIndex = startIndex
		hctx.IntentDeferred = memory.ConsumeDeferIntent(mem, state.Name)
		startIndex = 0

		result := e.runPipeline(hctx, frames, resuming, turn)
		resuming = false
		if result == nil {
			// Cycle completed with the state unchanged.
			return
		}
		if _, ok := result.(handlers.Suspend); ok {
			return
		}

		cont, nextIndex, nextResuming := e.applyTransition(ctx, sc, frames, mem, req, requestID, logger, turn, result, state.Name)
		if !cont {
			return
		}
		startIndex = nextIndex
		resuming = nextResuming
	}
}

// runPipeline executes the permitted handlers in priority order and
// returns the first result that stops the handler sequence, or nil when
// every handler yielded NoTransition. After an end-scenario resume only
// the entry action and condition handlers run.
func (e *Engine) runPipeline(hctx *handlers.Context, frames *stack.Manager, resumeOnly bool, turn *turnState) handlers.Result {
	for _, h := range e.pipeline {
		if resumeOnly && h.Type() != handlers.TypeEntryAction && h.Type() != handlers.TypeCondition {
			continue
		}
		if !h.CanHandle(hctx) {
			continue
		}
		result := h.Execute(hctx)
		turn.sentences = append(turn.sentences, result.ResultMessages()...)
		e.observeHandler(h.Type(), result)
		if _, ok := result.(handlers.NoTransition); ok {
			if h.Type() == handlers.TypeEntryAction {
				frames.MarkEntryExecuted()
			}
			continue
		}
		return result
	}
	return nil
}

// applyTransition moves the stack per the handler result. It reports
// whether the cycle continues, and if so from which condition handler
// index and whether in resume-only mode.
func (e *Engine) applyTransition(ctx context.Context, sc *scenario.Scenario, frames *stack.Manager, mem models.Memory, req *models.ExecuteRequest, requestID string, logger *slog.Logger, turn *turnState, result handlers.Result, fromState string) (bool, int, bool) {
	switch r := result.(type) {
	case handlers.StateTransition:
		if r.NewState == models.EndSession {
			turn.endSession = true
			return false, 0, false
		}
		if memory.IncrementDepth(mem, memory.KeyAutoTransitionDepth) > maxAutoDepth {
			e.diagnostic(frames, turn, logger, "auto transition depth limit reached")
			return false, 0, false
		}
		frames.RecordHandlerIndex(r.HandlerIndex)
		memory.SetPreviousState(mem, fromState)
		memory.ClearEntryActionMarker(mem, r.NewState)
		frames.UpdateCurrentState(r.NewState)
		return e.enterState(ctx, sc, frames, mem, req, requestID, logger, turn), 0, false

	case handlers.PlanTransition:
		plan, ok := sc.FindPlan(r.TargetPlan)
		if !ok || len(plan.DialogStates) == 0 {
			logger.Error("transition names unknown plan", "plan", r.TargetPlan, "from", fromState)
			return false, 0, false
		}
		targetState := r.NewState
		if targetState == "" {
			targetState = plan.DialogStates[0].Name
		}
		if memory.IncrementDepth(mem, memory.KeyAutoTransitionDepth) > maxAutoDepth {
			e.diagnostic(frames, turn, logger, "auto transition depth limit reached")
			return false, 0, false
		}
		frames.SwitchToPlan(r.TargetPlan, targetState, r.HandlerIndex, fromState)
		memory.SetPreviousState(mem, fromState)
		memory.ClearEntryActionMarker(mem, targetState)
		return e.enterState(ctx, sc, frames, mem, req, requestID, logger, turn), 0, false

	case handlers.EndScenario:
		frames.RecordHandlerIndex(r.HandlerIndex)
		resume, ok := frames.HandleEndScenario()
		if !ok {
			turn.endSession = true
			return false, 0, false
		}
		if resume.EntryExecuted {
			memory.MarkEntryActionExecuted(mem, resume.Frame.DialogStateName)
		} else {
			memory.ClearEntryActionMarker(mem, resume.Frame.DialogStateName)
		}
		return true, resume.NextHandlerIndex, true

	default:
		return false, 0, false
	}
}

// enterState runs the freshly entered state's entry action and, for slot
// states, the first prompt. It reports whether the cycle continues; intent
// and waiting slot states end the turn to await user input.
func (e *Engine) enterState(ctx context.Context, sc *scenario.Scenario, frames *stack.Manager, mem models.Memory, req *models.ExecuteRequest, requestID string, logger *slog.Logger, turn *turnState) bool {
	top := frames.Top()
	state, planName, err := sc.FindState(top.PlanName, top.DialogStateName)
	if err != nil {
		logger.Error("transition target not found", "state", top.DialogStateName, "plan", top.PlanName)
		return false
	}
	hctx := e.handlerContext(ctx, sc, state, planName, mem, req, requestID, logger, turn)

	entry := &handlers.EntryActionHandler{}
	if entry.CanHandle(hctx) {
		result := entry.Execute(hctx)
		turn.sentences = append(turn.sentences, result.ResultMessages()...)
		frames.MarkEntryExecuted()
		e.observeHandler(entry.Type(), result)
	}

	if len(state.SlotFillingForm) > 0 {
		slotHandler := &handlers.SlotFillingHandler{}
		result := slotHandler.Execute(hctx)
		turn.sentences = append(turn.sentences, result.ResultMessages()...)
		e.observeHandler(slotHandler.Type(), result)
		if _, waiting := result.(handlers.Suspend); waiting {
			return false
		}
	}
	if len(state.IntentHandlers) > 0 {
		return false
	}
	return true
}

// handlerContext builds the per-state handler context.
func (e *Engine) handlerContext(ctx context.Context, sc *scenario.Scenario, state *scenario.DialogState, planName string, mem models.Memory, req *models.ExecuteRequest, requestID string, logger *slog.Logger, turn *turnState) *handlers.Context {
	eventType := ""
	sessionID := ""
	if req != nil {
		eventType = req.EventType
		sessionID = req.SessionID
	}
	return &handlers.Context{
		Ctx:           ctx,
		Scenario:      sc,
		State:         state,
		PlanName:      planName,
		Memory:        mem,
		SessionID:     sessionID,
		RequestID:     requestID,
		EventType:     eventType,
		IntentMapping: e.repo.IntentMapping(sc),
		Evaluator:     e.evaluator,
		Slots:         e.slots,
		External:      e.external,
		Logger:        logger,
		Directives:    &turn.mapped,
		Transitions:   &turn.transitions,
	}
}

// diagnostic logs a loop-guard stop and records it in the turn log.
func (e *Engine) diagnostic(frames *stack.Manager, turn *turnState, logger *slog.Logger, reason string) {
	stateName := ""
	if top := frames.Top(); top != nil {
		stateName = top.DialogStateName
	}
	logger.Warn("handler cycle stopped", "reason", reason, "state", stateName)
	turn.transitions = append(turn.transitions, models.StateTransition{
		FromState:   stateName,
		ToState:     stateName,
		Reason:      reason,
		HandlerType: diagnosticHandlerType,
	})
}

func (e *Engine) observeHandler(handlerType string, result handlers.Result) {
	if e.metrics == nil {
		return
	}
	label := "no_transition"
	switch result.(type) {
	case handlers.Suspend:
		label = "suspend"
	case handlers.StateTransition:
		label = "state_transition"
	case handlers.PlanTransition:
		label = "plan_transition"
	case handlers.EndScenario:
		label = "end_scenario"
	}
	e.metrics.HandlerExecutions.WithLabelValues(handlerType, label).Inc()
}
