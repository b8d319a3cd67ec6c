package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/stateflow/internal/contextstore"
	"github.com/haasonsaas/stateflow/internal/memory"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// SessionState is the inspection view of one session.
type SessionState struct {
	SessionID   string        `json:"sessionId"`
	Scenario    string        `json:"scenario"`
	PlanName    string        `json:"planName"`
	DialogState string        `json:"dialogState"`
	StackDepth  int           `json:"stackDepth"`
	Memory      models.Memory `json:"memory"`
}

// ErrSessionNotFound is returned when inspecting an unknown session.
var ErrSessionNotFound = errors.New("engine: session not found")

// ResetSession clears the session's memory and reinitializes its stack at
// the scenario's initial state.
func (e *Engine) ResetSession(ctx context.Context, sessionID, botID, botVersion string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	release, err := e.locker.Acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	sc, err := e.repo.Resolve(sessionID, botID, botVersion)
	if err != nil {
		return err
	}
	state, planName, err := sc.InitialState()
	if err != nil {
		return err
	}
	snap := &models.Snapshot{
		Memory: models.Memory{},
		Stack: []models.Frame{{
			ScenarioName:     sc.Name,
			PlanName:         planName,
			DialogStateName:  state.Name,
			LastHandlerIndex: -1,
		}},
	}
	key := contextstore.SessionKey(sessionID)
	if err := e.store.Set(ctx, key, snap); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	e.observeSessions(ctx)
	return nil
}

// UploadScenario stores a session-scoped scenario and initializes the
// session at its initial state.
func (e *Engine) UploadScenario(ctx context.Context, sessionID string, sc *scenario.Scenario) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	e.repo.PutSession(sessionID, sc)
	return e.ResetSession(ctx, sessionID, "", "")
}

// DownloadScenario returns the session's stored scenario, sanitized for
// export.
func (e *Engine) DownloadScenario(sessionID string) (*scenario.Scenario, error) {
	sc, ok := e.repo.GetSession(sessionID)
	if !ok {
		return nil, scenario.ErrScenarioNotFound
	}
	return scenario.SanitizeForDownload(sc), nil
}

// SetIntentMapping replaces the global DM intent mapping table for all
// subsequent turns.
func (e *Engine) SetIntentMapping(rules []scenario.IntentMappingRule) {
	e.repo.SetIntentMapping(rules)
}

// Sessions lists the session ids with a live snapshot.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	keys, err := e.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if id, ok := contextstore.SessionID(key); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Session fetches one session's current state.
func (e *Engine) Session(ctx context.Context, sessionID string) (*SessionState, error) {
	snap, err := e.store.Get(ctx, contextstore.SessionKey(sessionID))
	if errors.Is(err, contextstore.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	state := &SessionState{
		SessionID:  sessionID,
		StackDepth: len(snap.Stack),
		Memory:     memory.PublicView(snap.Memory),
	}
	if len(snap.Stack) > 0 {
		top := snap.Stack[len(snap.Stack)-1]
		state.Scenario = top.ScenarioName
		state.PlanName = top.PlanName
		state.DialogState = top.DialogStateName
	}
	return state, nil
}
