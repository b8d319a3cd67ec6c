// Package response assembles the outbound turn record. The directive shape
// depends on the bot type: call-bots speak, chat-bots receive a payload
// wrapping each message line.
package response

import (
	"github.com/haasonsaas/stateflow/internal/memory"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/internal/template"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// defaultAllowFocusShift lets the surrounding dialog manager steal focus
// unless a scenario opts out via memory.
const defaultAllowFocusShift = "Y"

// allowFocusShiftKey is the memory key a scenario sets to override the
// focus-shift default.
const allowFocusShiftKey = "allowFocusShift"

// Input collects everything the engine learned during one turn.
type Input struct {
	Scenario    *scenario.Scenario
	PlanName    string
	DialogState string

	EndSession bool
	Error      string

	// Sentences are handler messages in emission order, rendered against
	// memory here so mappings applied mid-turn are visible.
	Sentences []string

	// Mapped holds DIRECTIVE-target response-mapping directives.
	Mapped []models.Directive

	Intent string
	Event  string

	Memory      models.Memory
	Transitions []models.StateTransition
}

// Build produces the turn's response record.
func Build(in Input) *models.Response {
	botType := models.BotTypeCall
	if in.Scenario != nil && in.Scenario.BotConfig.BotType != "" {
		botType = in.Scenario.BotConfig.BotType
	}

	directives := make([]models.Directive, 0, len(in.Sentences)+len(in.Mapped))
	for _, sentence := range in.Sentences {
		rendered := template.Render(sentence, in.Memory)
		directives = append(directives, messageDirective(botType, rendered))
	}
	directives = append(directives, in.Mapped...)

	endSession := "N"
	if in.EndSession {
		endSession = "Y"
	}

	scenarioName := ""
	if in.Scenario != nil {
		scenarioName = in.Scenario.Name
	}

	return &models.Response{
		EndSession:   endSession,
		Error:        in.Error,
		Directives:   directives,
		DialogResult: map[string]any{},
		Meta: models.Meta{
			Intent:          valueList(in.Intent),
			Event:           valueList(in.Event),
			Scenario:        scenarioName,
			DialogState:     in.DialogState,
			UsedSlots:       usedSlots(in),
			AllowFocusShift: allowFocusShift(in.Memory),
		},
		Log:    in.Transitions,
		Memory: memory.PublicView(in.Memory),
	}
}

// messageDirective shapes one message line for the bot type.
func messageDirective(botType models.BotType, text string) models.Directive {
	if botType == models.BotTypeChat {
		return models.Directive{
			CustomPayload: map[string]any{
				"message": map[string]any{
					"template": map[string]any{
						"outputs": []any{
							map[string]any{"text": text},
						},
					},
				},
			},
		}
	}
	return models.Directive{
		SystemUtterance: &models.SystemUtterance{
			Speech:  text,
			Display: text,
		},
	}
}

// usedSlots names the final state's form slots that hold a value.
func usedSlots(in Input) []string {
	slots := []string{}
	if in.Scenario == nil {
		return slots
	}
	state, _, err := in.Scenario.FindState(in.PlanName, in.DialogState)
	if err != nil {
		return slots
	}
	for _, slot := range state.SlotFillingForm {
		keys := slot.MemorySlotKeys
		if len(keys) == 0 {
			keys = []string{slot.Name}
		}
		for _, key := range keys {
			if v, ok := in.Memory[key]; ok && !template.IsBlank(v) {
				slots = append(slots, slot.Name)
				break
			}
		}
	}
	return slots
}

func allowFocusShift(mem models.Memory) string {
	if v, ok := mem[allowFocusShiftKey]; ok {
		if s := template.Stringify(v); s != "" {
			return s
		}
	}
	return defaultAllowFocusShift
}

func valueList(v string) []string {
	if v == "" {
		return []string{}
	}
	return []string{v}
}
