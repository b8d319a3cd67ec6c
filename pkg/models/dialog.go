// Package models provides domain types shared across the stateflow engine.
package models

// Sentinel dialog state names understood by the execution engine.
const (
	// EndScenario pops the current plan frame and resumes the caller.
	EndScenario = "__END_SCENARIO__"

	// EndSession terminates the session.
	EndSession = "__END_SESSION__"

	// AnyIntent matches any intent when no exact handler exists.
	AnyIntent = "__ANY_INTENT__"
)

// BotType selects the outbound directive shape.
type BotType string

const (
	// BotTypeCall emits systemUtterance directives (speech + display).
	BotTypeCall BotType = "CALL_BOT"

	// BotTypeChat emits customPayload directives wrapping message lines.
	BotTypeChat BotType = "CHAT_BOT"
)

// Memory is the per-session mutable key-value store. Keys beginning with
// an underscore are engine control flags and are stripped from outbound
// responses.
type Memory = map[string]any

// Frame is one element of a session's plan call stack. The top frame names
// the currently executing plan and dialog state.
type Frame struct {
	ScenarioName     string `json:"scenarioName"`
	PlanName         string `json:"planName"`
	DialogStateName  string `json:"dialogStateName"`
	LastHandlerIndex int    `json:"lastExecutedHandlerIndex"`
	EntryExecuted    bool   `json:"entryActionExecuted"`
}

// ResumePoint is computed when a frame is popped on EndScenario. It tells
// the engine where to continue the previous state's condition handlers.
type ResumePoint struct {
	Frame            Frame
	NextHandlerIndex int
	EntryExecuted    bool
}

// Snapshot is the durable per-session state persisted by the context store.
type Snapshot struct {
	Memory Memory  `json:"memory"`
	Stack  []Frame `json:"stack"`
}

// CloneSnapshot returns a deep copy so callers never share mutable state
// with the store.
func CloneSnapshot(s *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	clone := &Snapshot{
		Memory: CloneMemory(s.Memory),
		Stack:  make([]Frame, len(s.Stack)),
	}
	copy(clone.Stack, s.Stack)
	return clone
}

// CloneMemory deep-copies a memory map, including nested maps and slices.
func CloneMemory(m Memory) Memory {
	if m == nil {
		return nil
	}
	clone := make(Memory, len(m))
	for k, v := range m {
		clone[k] = cloneValue(v)
	}
	return clone
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMemory(val)
	case []any:
		cloned := make([]any, len(val))
		for i, item := range val {
			cloned[i] = cloneValue(item)
		}
		return cloned
	case []string:
		cloned := make([]string, len(val))
		copy(cloned, val)
		return cloned
	default:
		return v
	}
}
