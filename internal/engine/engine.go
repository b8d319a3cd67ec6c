// Package engine drives the per-turn handler cycle: it restores the
// session snapshot, reconciles the current state, runs the handler
// pipeline until the turn suspends or settles, and persists the snapshot
// before building the response.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/stateflow/internal/condition"
	"github.com/haasonsaas/stateflow/internal/contextstore"
	"github.com/haasonsaas/stateflow/internal/external"
	"github.com/haasonsaas/stateflow/internal/handlers"
	"github.com/haasonsaas/stateflow/internal/memory"
	"github.com/haasonsaas/stateflow/internal/observability"
	"github.com/haasonsaas/stateflow/internal/response"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/internal/sessions"
	"github.com/haasonsaas/stateflow/internal/slots"
	"github.com/haasonsaas/stateflow/internal/stack"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// Loop guards. _EXECUTION_DEPTH counts handler cycles and resets every
// turn, bounding one turn at maxCycles state visits. _AUTO_TRANSITION_DEPTH
// counts automatic transitions and survives the turn boundary until user
// input arrives, so a scenario that keeps transitioning across input-less
// turns still terminates.
const (
	maxCycles    = 5
	maxAutoDepth = 10
)

// ErrSessionRequired is returned when a turn arrives without a session id.
var ErrSessionRequired = errors.New("engine: sessionId is required")

// Engine executes turns against a scenario repository and context store.
// It is safe for concurrent use; per-session serialization comes from the
// locker.
type Engine struct {
	repo      *scenario.Repository
	store     contextstore.Store
	locker    *sessions.Locker
	evaluator *condition.Evaluator
	slots     *slots.Manager
	external  *external.Client
	pipeline  []handlers.Handler
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger
}

// New wires an engine. metrics and tracer may be nil.
func New(repo *scenario.Repository, store contextstore.Store, logger *slog.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:      repo,
		store:     store,
		locker:    sessions.NewLocker(30 * time.Second),
		evaluator: condition.New(logger),
		slots:     slots.New(logger),
		external:  external.NewClient(logger, metrics),
		pipeline:  handlers.Pipeline(),
		metrics:   metrics,
		tracer:    tracer,
		logger:    logger,
	}
}

// turnState accumulates what one turn produces across cycles.
type turnState struct {
	sentences   []string
	mapped      []models.Directive
	transitions []models.StateTransition
	endSession  bool
}

// ExecuteTurn processes one user turn and returns the response record.
// Errors are returned only for request-level failures (missing session,
// unknown scenario, broken store); in-cycle failures degrade into the
// response per the recovery rules.
func (e *Engine) ExecuteTurn(ctx context.Context, req *models.ExecuteRequest) (*models.Response, error) {
	if req == nil || req.SessionID == "" {
		return nil, ErrSessionRequired
	}
	start := time.Now()

	if e.tracer != nil {
		spanCtx, span := e.tracer.Start(ctx, "engine.execute_turn",
			attribute.String("session.id", req.SessionID),
			attribute.String("bot.id", req.BotID))
		defer span.End()
		ctx = spanCtx
	}

	release, err := e.locker.Acquire(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("acquire session %s: %w", req.SessionID, err)
	}
	defer release()

	sc, err := e.repo.Resolve(req.SessionID, req.BotID, req.BotVersion)
	if err != nil {
		return nil, err
	}

	key := contextstore.SessionKey(req.SessionID)
	snap, err := e.store.Get(ctx, key)
	if errors.Is(err, contextstore.ErrNotFound) {
		snap = &models.Snapshot{Memory: models.Memory{}}
	} else if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Memory == nil {
		snap.Memory = models.Memory{}
	}
	mem := snap.Memory
	frames := stack.New(snap.Stack)

	if err := e.reconcileState(sc, frames, mem, req.CurrentState); err != nil {
		// The session is left as it was; the caller sees the failure.
		return e.buildResponse(sc, frames, mem, &turnState{}, req, err.Error()), nil
	}

	memory.Hydrate(mem, req.SessionID, req.RequestID, req)
	requestID, _ := mem["requestId"].(string)
	logger := observability.WithTurn(e.logger, req.SessionID, requestID)
	memory.InstallUserInput(mem, req.UserInput, req.NLU)
	memory.ResetDepth(mem, memory.KeyExecutionDepth)

	turn := &turnState{}
	e.runCycles(ctx, sc, frames, mem, req, requestID, logger, turn)

	snap.Stack = frames.Frames()
	if err := e.store.Set(ctx, key, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	resp := e.buildResponse(sc, frames, mem, turn, req, "")
	if e.metrics != nil {
		botType := string(models.BotTypeCall)
		if sc.BotConfig.BotType != "" {
			botType = string(sc.BotConfig.BotType)
		}
		e.metrics.TurnCounter.WithLabelValues(botType, "ok").Inc()
		e.metrics.TurnDuration.WithLabelValues(botType).Observe(time.Since(start).Seconds())
	}
	e.observeSessions(ctx)
	return resp, nil
}

// observeSessions refreshes the live-session gauge after a snapshot write.
func (e *Engine) observeSessions(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	keys, err := e.store.Keys(ctx)
	if err != nil {
		return
	}
	e.metrics.ActiveSessions.Set(float64(len(keys)))
}

// reconcileState settles the current state by priority: explicit request
// argument, then top of stack, then the scenario's initial state.
func (e *Engine) reconcileState(sc *scenario.Scenario, frames *stack.Manager, mem models.Memory, requested string) error {
	if frames.Depth() == 0 {
		state, planName, err := sc.InitialState()
		if err != nil {
			return err
		}
		frames.Initialize(sc.Name, planName, state.Name)
	}
	top := frames.Top()
	if requested == "" || requested == top.DialogStateName {
		return nil
	}
	state, planName, err := sc.FindState(top.PlanName, requested)
	if err != nil {
		return fmt.Errorf("state %q: %w", requested, err)
	}
	if planName != top.PlanName {
		frames.SwitchToPlan(planName, state.Name, top.LastHandlerIndex, top.DialogStateName)
	} else {
		frames.UpdateCurrentState(state.Name)
	}
	memory.ClearEntryActionMarker(mem, state.Name)
	return nil
}

func (e *Engine) buildResponse(sc *scenario.Scenario, frames *stack.Manager, mem models.Memory, turn *turnState, req *models.ExecuteRequest, errMsg string) *models.Response {
	planName, stateName := "", ""
	if top := frames.Top(); top != nil {
		planName, stateName = top.PlanName, top.DialogStateName
	}
	intent := ""
	if _, ok := mem[memory.KeyIntentTransitioned]; ok {
		if v, ok := mem[memory.KeyPreviousIntent].(string); ok {
			intent = v
		}
	}
	event := ""
	if req != nil {
		event = req.EventType
	}
	return response.Build(response.Input{
		Scenario:    sc,
		PlanName:    planName,
		DialogState: stateName,
		EndSession:  turn.endSession,
		Error:       errMsg,
		Sentences:   turn.sentences,
		Mapped:      turn.mapped,
		Intent:      intent,
		Event:       event,
		Memory:      mem,
		Transitions: turn.transitions,
	})
}
