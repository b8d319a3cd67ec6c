// Package memory centralizes session memory mutation rules and ownership
// of the engine's underscore-prefixed control flags. Handlers mutate flags
// only through this package so the invariants around input consumption and
// entry-action idempotency stay in one place.
package memory

import (
	"encoding/json"
	"strings"

	"github.com/haasonsaas/stateflow/internal/template"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// Engine-owned memory keys. Keys starting with an underscore are control
// flags and never surface in outbound responses.
const (
	KeyUserTextInput = "USER_TEXT_INPUT"
	KeyNLUResult     = "NLU_RESULT"
	KeyNLUIntent     = "NLU_INTENT"
	KeySTSConfidence = "STS_CONFIDENCE"

	// SLOT_FILLING_COMPLETED intentionally has no underscore: scenario
	// conditions reference it by name.
	KeySlotFillingCompleted = "SLOT_FILLING_COMPLETED"

	KeyDeferIntentOnce        = "_DEFER_INTENT_ONCE_FOR_STATE"
	KeyIntentTransitioned     = "_INTENT_TRANSITIONED_THIS_REQUEST"
	KeyClearUserInput         = "_CLEAR_USER_INPUT_ON_NEXT_REQUEST"
	KeyPreviousState          = "_PREVIOUS_STATE"
	KeyPreviousIntent         = "_PREVIOUS_INTENT"
	KeyExecutionDepth         = "_EXECUTION_DEPTH"
	KeyAutoTransitionDepth    = "_AUTO_TRANSITION_DEPTH"
	KeyWaitingForSlot         = "_WAITING_FOR_SLOT"
	KeyRepromptHandlers       = "_REPROMPT_HANDLERS"
	KeyRepromptJustRegistered = "_REPROMPT_JUST_REGISTERED"

	entryActionPrefix = "_ENTRY_ACTION_EXECUTED_"
	controlPrefix     = "_"
)

// Hydrate installs per-turn identity and chatbot metadata.
func Hydrate(mem models.Memory, sessionID, requestID string, req *models.ExecuteRequest) {
	mem["sessionId"] = sessionID
	if requestID == "" {
		requestID = template.NewRequestID()
	}
	mem["requestId"] = requestID
	if req == nil {
		return
	}
	if req.UserID != "" {
		mem["userId"] = req.UserID
	}
	if req.BotID != "" {
		mem["botId"] = req.BotID
	}
	if req.BotName != "" {
		mem["botName"] = req.BotName
	}
	if req.BotVersion != "" {
		mem["botVersion"] = req.BotVersion
	}
	for k, v := range req.Context {
		mem[k] = v
	}
}

// InstallUserInput applies the cross-turn input hygiene rules, then stores
// the new turn's text and NLU envelope. When the previous turn flagged
// _CLEAR_USER_INPUT_ON_NEXT_REQUEST, stale input is discarded first,
// including any NLU_INTENT and STS_CONFIDENCE a webhook mapping wrote.
func InstallUserInput(mem models.Memory, text string, nlu *models.NLUResult) {
	if flagSet(mem, KeyClearUserInput) {
		delete(mem, KeyUserTextInput)
		delete(mem, KeyNLUResult)
		delete(mem, KeyNLUIntent)
		delete(mem, KeySTSConfidence)
		delete(mem, KeyClearUserInput)
	}
	delete(mem, KeyIntentTransitioned)
	if text != "" || nlu != nil {
		// User input breaks any chain of automatic transitions.
		ResetDepth(mem, KeyAutoTransitionDepth)
	}
	if text != "" {
		mem[KeyUserTextInput] = []any{text}
	}
	if nlu != nil {
		// A fresh envelope supersedes an NLU_INTENT override a webhook
		// wrote on an earlier turn.
		delete(mem, KeyNLUIntent)
		mem[KeyNLUResult] = nlu
		ProjectEntities(mem, nlu)
	}
}

// ProjectEntities writes each NLU entity under its type and its type:role
// composite key. Role defaults to the type when absent.
func ProjectEntities(mem models.Memory, nlu *models.NLUResult) {
	for _, entity := range nlu.AllEntities() {
		if entity.Type == "" {
			continue
		}
		role := entity.Role
		if role == "" {
			role = entity.Type
		}
		mem[entity.Type] = entity.Text
		mem[entity.Type+":"+role] = entity.Text
	}
}

// UserText returns the current turn's text input, or "".
func UserText(mem models.Memory) string {
	switch v := mem[KeyUserTextInput].(type) {
	case []any:
		if len(v) > 0 {
			return template.Stringify(v[0])
		}
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case string:
		return v
	}
	return ""
}

// HasUserText reports whether unconsumed text input exists this turn.
func HasUserText(mem models.Memory) bool {
	return UserText(mem) != ""
}

// ResolvedIntent returns the turn's intent: an explicit NLU_INTENT value
// (typically set by a webhook mapping) wins over the NLU envelope.
func ResolvedIntent(mem models.Memory) string {
	if v, ok := mem[KeyNLUIntent]; ok {
		if s := template.Stringify(v); s != "" {
			return s
		}
	}
	return envelopeIntent(mem[KeyNLUResult])
}

// envelopeIntent digs the top intent out of an NLU envelope, tolerating
// both the typed form and the map form a snapshot round-trip produces.
func envelopeIntent(v any) string {
	switch env := v.(type) {
	case nil:
		return ""
	case *models.NLUResult:
		return env.TopIntent()
	case models.NLUResult:
		return env.TopIntent()
	default:
		data, err := json.Marshal(env)
		if err != nil {
			return ""
		}
		var parsed models.NLUResult
		if err := json.Unmarshal(data, &parsed); err != nil {
			return ""
		}
		return parsed.TopIntent()
	}
}

// SetDeferIntentOnce marks a state whose intent handlers must be skipped
// exactly once, so a transition made while consuming this turn's text does
// not let the new state consume it again.
func SetDeferIntentOnce(mem models.Memory, state string) {
	mem[KeyDeferIntentOnce] = state
}

// ConsumeDeferIntent reports whether intent evaluation in state is
// deferred, clearing the flag when it matches.
func ConsumeDeferIntent(mem models.Memory, state string) bool {
	v, ok := mem[KeyDeferIntentOnce]
	if !ok {
		return false
	}
	if template.Stringify(v) != state {
		return false
	}
	delete(mem, KeyDeferIntentOnce)
	return true
}

// MarkIntentTransitioned records that an intent handler fired this turn and
// schedules stale-input cleanup for the next turn.
func MarkIntentTransitioned(mem models.Memory, intent string) {
	mem[KeyIntentTransitioned] = true
	mem[KeyClearUserInput] = true
	mem[KeyPreviousIntent] = intent
}

// EntryActionExecuted reports whether the entry action for state already
// ran for the current frame.
func EntryActionExecuted(mem models.Memory, state string) bool {
	return flagSet(mem, entryActionPrefix+state)
}

// MarkEntryActionExecuted flips the per-state idempotency marker.
func MarkEntryActionExecuted(mem models.Memory, state string) {
	mem[entryActionPrefix+state] = true
}

// ClearEntryActionMarker re-arms the entry action, used when a frame
// re-enters a state.
func ClearEntryActionMarker(mem models.Memory, state string) {
	delete(mem, entryActionPrefix+state)
}

// SetPreviousState records the diagnostic previous-state marker.
func SetPreviousState(mem models.Memory, state string) {
	mem[KeyPreviousState] = state
}

// IncrementDepth bumps a recursion guard counter and returns its new value.
func IncrementDepth(mem models.Memory, key string) int {
	depth := intValue(mem[key]) + 1
	mem[key] = depth
	return depth
}

// ResetDepth clears a recursion guard counter at turn boundaries.
func ResetDepth(mem models.Memory, key string) {
	delete(mem, key)
}

// PublicView returns a copy of memory with control flags stripped, for the
// outbound response.
func PublicView(mem models.Memory) models.Memory {
	out := make(models.Memory, len(mem))
	for k, v := range mem {
		if strings.HasPrefix(k, controlPrefix) {
			continue
		}
		out[k] = v
	}
	return out
}

func flagSet(mem models.Memory, key string) bool {
	switch v := mem[key].(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "False"
	case nil:
		return false
	default:
		return true
	}
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
