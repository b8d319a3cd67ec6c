// Package stack manages a session's plan call stack: one frame per active
// plan, with resume bookkeeping for cross-plan transitions that return via
// the end-scenario sentinel.
package stack

import (
	"github.com/haasonsaas/stateflow/pkg/models"
)

// noHandler marks a frame with no condition handler executed yet, so the
// first resume index computes to 0.
const noHandler = -1

// Manager owns the frame stack for one session during one turn. The engine
// seeds it from the restored snapshot and reads the frames back before
// persisting.
type Manager struct {
	frames []models.Frame
}

// New wraps a restored frame stack. A nil slice is a fresh session.
func New(frames []models.Frame) *Manager {
	return &Manager{frames: frames}
}

// Frames returns the stack for persistence, bottom first.
func (m *Manager) Frames() []models.Frame {
	return m.frames
}

// Depth returns the number of live frames.
func (m *Manager) Depth() int {
	return len(m.frames)
}

// Top returns the active frame, or nil for a dead session.
func (m *Manager) Top() *models.Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return &m.frames[len(m.frames)-1]
}

// Initialize resets the stack to a single frame at the scenario's entry
// point.
func (m *Manager) Initialize(scenarioName, planName, stateName string) {
	m.frames = []models.Frame{{
		ScenarioName:     scenarioName,
		PlanName:         planName,
		DialogStateName:  stateName,
		LastHandlerIndex: noHandler,
	}}
}

// UpdateCurrentState moves the top frame to a new state within the same
// plan. Handler progress restarts for the new state.
func (m *Manager) UpdateCurrentState(newState string) {
	top := m.Top()
	if top == nil {
		return
	}
	top.DialogStateName = newState
	top.LastHandlerIndex = noHandler
	top.EntryExecuted = false
}

// RecordHandlerIndex notes the condition handler index just executed on the
// top frame, the pivot for end-scenario resumption.
func (m *Manager) RecordHandlerIndex(index int) {
	if top := m.Top(); top != nil {
		top.LastHandlerIndex = index
	}
}

// MarkEntryExecuted records that the top frame's state ran its entry
// action, so resumption will not replay it.
func (m *Manager) MarkEntryExecuted() {
	if top := m.Top(); top != nil {
		top.EntryExecuted = true
	}
}

// SwitchToPlan records resume info on the current frame and pushes a frame
// for the target plan. handlerIndex is the condition handler that caused
// the switch; currentState pins the state to resume into.
func (m *Manager) SwitchToPlan(targetPlan, targetState string, handlerIndex int, currentState string) {
	if top := m.Top(); top != nil {
		top.DialogStateName = currentState
		top.LastHandlerIndex = handlerIndex
		m.frames[len(m.frames)-1] = *top
	}
	scenarioName := ""
	if top := m.Top(); top != nil {
		scenarioName = top.ScenarioName
	}
	m.frames = append(m.frames, models.Frame{
		ScenarioName:     scenarioName,
		PlanName:         targetPlan,
		DialogStateName:  targetState,
		LastHandlerIndex: noHandler,
	})
}

// HandleEndScenario pops the active plan. Contiguous frames sharing the
// popped plan's name collapse with it, so re-entered plans unwind in one
// pop. The returned resume point continues the caller's condition handlers
// strictly after the one that switched plans. ok is false when the stack
// would be empty, which ends the session.
func (m *Manager) HandleEndScenario() (models.ResumePoint, bool) {
	if len(m.frames) == 0 {
		return models.ResumePoint{}, false
	}
	popped := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	for len(m.frames) > 0 && m.frames[len(m.frames)-1].PlanName == popped.PlanName {
		m.frames = m.frames[:len(m.frames)-1]
	}
	if len(m.frames) == 0 {
		return models.ResumePoint{}, false
	}
	top := m.frames[len(m.frames)-1]
	return models.ResumePoint{
		Frame:            top,
		NextHandlerIndex: top.LastHandlerIndex + 1,
		EntryExecuted:    top.EntryExecuted,
	}, true
}
