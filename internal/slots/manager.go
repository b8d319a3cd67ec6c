// Package slots drives required-slot collection for dialog states with a
// slot-filling form: prompting, waiting, and reprompt-on-no-match.
package slots

import (
	"log/slog"

	"github.com/haasonsaas/stateflow/internal/memory"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/internal/template"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// noMatchEvent names the reprompt handler replayed when the awaited slot
// stays unfilled across turns.
const noMatchEvent = "NO_MATCH_EVENT"

// Result describes one slot-filling pass over a state's form.
type Result struct {
	// Messages are prompt/reprompt sentences to emit this turn.
	Messages []string

	// Waiting is true when the engine must hold the current state and
	// await the next user turn.
	Waiting bool

	// WaitingSlot names the slot being awaited when Waiting.
	WaitingSlot string

	// Complete is true when every required slot is filled; the
	// slot-complete marker has been written and condition handlers may
	// take over.
	Complete bool

	// FilledSlots lists the form's filled slot names, for response meta.
	FilledSlots []string
}

// Manager evaluates slot-filling forms. Stateless; all progress lives in
// session memory under the engine's control flags.
type Manager struct {
	logger *slog.Logger
}

// New creates a slot-filling manager.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Process advances the form: resolves any awaited slot, prompts for the
// next unfilled required slot, or declares completion.
func (m *Manager) Process(form []scenario.Slot, mem models.Memory) Result {
	result := Result{FilledSlots: filledNames(form, mem)}

	if waiting := template.Stringify(mem[memory.KeyWaitingForSlot]); waiting != "" {
		slot := findSlot(form, waiting)
		if slot == nil || slotFilled(slot, mem) {
			clearWaitingFlags(mem)
		} else {
			result.Waiting = true
			result.WaitingSlot = waiting
			result.Messages = m.repromptMessages(slot, mem)
			return result
		}
	}

	for i := range form {
		slot := &form[i]
		if !slot.Required || slotFilled(slot, mem) {
			continue
		}
		result.Waiting = true
		result.WaitingSlot = slot.Name
		result.Messages = promptMessages(slot)
		registerWaiting(slot, mem)
		return result
	}

	mem[memory.KeySlotFillingCompleted] = ""
	clearWaitingFlags(mem)
	result.Complete = true
	result.FilledSlots = filledNames(form, mem)
	return result
}

// repromptMessages replays the fill prompt; from the second unfilled turn
// on, the NO_MATCH_EVENT reprompt is appended.
func (m *Manager) repromptMessages(slot *scenario.Slot, mem models.Memory) []string {
	messages := promptMessages(slot)
	if justRegistered(mem) {
		delete(mem, memory.KeyRepromptJustRegistered)
		return messages
	}
	if reprompt := storedReprompt(mem); len(reprompt) > 0 {
		messages = append(messages, reprompt...)
	} else {
		m.logger.Debug("no reprompt handler registered for slot", "slot", slot.Name)
	}
	return messages
}

func registerWaiting(slot *scenario.Slot, mem models.Memory) {
	mem[memory.KeyWaitingForSlot] = slot.Name
	mem[memory.KeyRepromptJustRegistered] = true
	if slot.FillBehavior != nil {
		for _, handler := range slot.FillBehavior.RepromptEventHandlers {
			if handler.Event != noMatchEvent {
				continue
			}
			sentences := handler.Action.Messages()
			stored := make([]any, len(sentences))
			for i, s := range sentences {
				stored[i] = s
			}
			mem[memory.KeyRepromptHandlers] = stored
			return
		}
	}
	delete(mem, memory.KeyRepromptHandlers)
}

func clearWaitingFlags(mem models.Memory) {
	delete(mem, memory.KeyWaitingForSlot)
	delete(mem, memory.KeyRepromptHandlers)
	delete(mem, memory.KeyRepromptJustRegistered)
}

func justRegistered(mem models.Memory) bool {
	v, ok := mem[memory.KeyRepromptJustRegistered]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func storedReprompt(mem models.Memory) []string {
	switch stored := mem[memory.KeyRepromptHandlers].(type) {
	case []any:
		out := make([]string, 0, len(stored))
		for _, v := range stored {
			out = append(out, template.Stringify(v))
		}
		return out
	case []string:
		return stored
	default:
		return nil
	}
}

func promptMessages(slot *scenario.Slot) []string {
	if slot.FillBehavior == nil {
		return nil
	}
	return slot.FillBehavior.PromptAction.Messages()
}

func findSlot(form []scenario.Slot, name string) *scenario.Slot {
	for i := range form {
		if form[i].Name == name {
			return &form[i]
		}
	}
	return nil
}

// slotFilled reports whether any of the slot's memory keys holds a
// non-blank value. A slot without declared keys checks its own name.
func slotFilled(slot *scenario.Slot, mem models.Memory) bool {
	keys := slot.MemorySlotKeys
	if len(keys) == 0 {
		keys = []string{slot.Name}
	}
	for _, key := range keys {
		if v, ok := mem[key]; ok && !template.IsBlank(v) {
			return true
		}
	}
	return false
}

func filledNames(form []scenario.Slot, mem models.Memory) []string {
	var out []string
	for i := range form {
		if slotFilled(&form[i], mem) {
			out = append(out, form[i].Name)
		}
	}
	return out
}
