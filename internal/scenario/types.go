// Package scenario defines the normalized scenario model and the repository
// that loads, caches, and resolves scenarios for the execution engine.
package scenario

import (
	"github.com/haasonsaas/stateflow/pkg/models"
)

// Webhook definition kinds.
const (
	KindWebhook = "WEBHOOK"
	KindAPICall = "APICALL"
)

// Response mapping targets.
const (
	TargetMemory    = "MEMORY"
	TargetDirective = "DIRECTIVE"
)

// Scenario is the normalized form the engine executes. Both accepted input
// shapes (wrapper list and bare object) reduce to this.
type Scenario struct {
	Name          string              `json:"name,omitempty"`
	Plans         []Plan              `json:"plan"`
	Webhooks      []WebhookDefinition `json:"webhooks,omitempty"`
	IntentMapping []IntentMappingRule `json:"intentMapping,omitempty"`
	BotConfig     BotConfig           `json:"botConfig,omitempty"`
}

// BotConfig carries the bot-type descriptor driving directive shape.
type BotConfig struct {
	BotType models.BotType `json:"botType,omitempty"`
}

// Plan is a named sub-flow holding an ordered list of dialog states.
type Plan struct {
	Name         string        `json:"name"`
	DialogStates []DialogState `json:"dialogState"`
}

// DialogState is one node of a plan. A state that carries its own
// DialogStates acts as a nested plan-as-state.
type DialogState struct {
	Name              string             `json:"name"`
	EntryAction       *Action            `json:"entryAction,omitempty"`
	ConditionHandlers []ConditionHandler `json:"conditionHandlers,omitempty"`
	IntentHandlers    []IntentHandler    `json:"intentHandlers,omitempty"`
	EventHandlers     []EventHandler     `json:"eventHandlers,omitempty"`
	ApicallHandlers   []ApicallHandler   `json:"apicallHandlers,omitempty"`
	WebhookActions    []WebhookAction    `json:"webhookActions,omitempty"`
	SlotFillingForm   []Slot             `json:"slotFillingForm,omitempty"`
	DialogStates      []DialogState      `json:"dialogState,omitempty"`
}

// Action bundles outbound sentences with memory mutations.
type Action struct {
	Directives    []ActionDirective `json:"directives,omitempty"`
	MemoryActions []MemoryAction    `json:"memoryActions,omitempty"`
}

// ActionDirective is one utterance group emitted by an action.
type ActionDirective struct {
	Sentences []string `json:"sentences,omitempty"`
}

// Messages flattens an action's directive sentences in order.
func (a *Action) Messages() []string {
	if a == nil {
		return nil
	}
	var out []string
	for _, d := range a.Directives {
		out = append(out, d.Sentences...)
	}
	return out
}

// Memory action types.
const (
	MemoryActionAdd    = "ADD"
	MemoryActionRemove = "REMOVE"
)

// MemoryAction is one declarative memory mutation.
type MemoryAction struct {
	ActionType      string `json:"actionType"`
	MemorySlotKey   string `json:"memorySlotKey"`
	MemorySlotValue any    `json:"memorySlotValue,omitempty"`
	ActionScope     string `json:"actionScope,omitempty"`
}

// TransitionTarget names the destination of a handler. Scenario, when set,
// names a plan other than the active one.
type TransitionTarget struct {
	Scenario    string `json:"scenario,omitempty"`
	DialogState string `json:"dialogState"`
}

// ConditionHandler transitions when its condition statement holds.
type ConditionHandler struct {
	ConditionStatement string           `json:"conditionStatement"`
	Action             *Action          `json:"action,omitempty"`
	TransitionTarget   TransitionTarget `json:"transitionTarget"`
}

// IntentHandler transitions when the turn's intent matches.
type IntentHandler struct {
	Intent           string           `json:"intent"`
	Action           *Action          `json:"action,omitempty"`
	TransitionTarget TransitionTarget `json:"transitionTarget"`
}

// EventHandler transitions when the named event arrives.
type EventHandler struct {
	Event            string           `json:"event"`
	Action           *Action          `json:"action,omitempty"`
	TransitionTarget TransitionTarget `json:"transitionTarget"`
}

// ApicallHandler executes a named API call, then lets the state's condition
// handlers pick the transition; its own target is the fallback. The URL
// field is transient and stripped on download.
type ApicallHandler struct {
	Name             string           `json:"name"`
	URL              string           `json:"url,omitempty"`
	Action           *Action          `json:"action,omitempty"`
	TransitionTarget TransitionTarget `json:"transitionTarget"`
}

// WebhookAction references a webhook definition by name.
type WebhookAction struct {
	Name string `json:"name"`
}

// WebhookDefinition describes one external HTTP call, either a WEBHOOK
// (engine envelope POST) or an APICALL (fully templated request).
type WebhookDefinition struct {
	Type      string            `json:"type"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	TimeoutMs int               `json:"timeoutMs,omitempty"`
	Retry     int               `json:"retry,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Method    string            `json:"method,omitempty"`
	Formats   *Formats          `json:"formats,omitempty"`
}

// Formats holds the request/response shaping of a webhook definition.
type Formats struct {
	ContentType      string            `json:"contentType,omitempty"`
	RequestTemplate  string            `json:"requestTemplate,omitempty"`
	ResponseMappings []MappingGroup    `json:"responseMappings,omitempty"`
	QueryParams      map[string]string `json:"queryParams,omitempty"`
}

// MappingGroup maps extracted values into memory or the directive queue.
type MappingGroup struct {
	ExpressionType string            `json:"expressionType,omitempty"`
	TargetType     string            `json:"targetType"`
	Mappings       map[string]string `json:"mappings"`
}

// IntentMappingRule remaps a base NLU intent to a DM intent when the
// session is in a matching scenario/state and the guard condition holds.
type IntentMappingRule struct {
	Scenario           string   `json:"scenario,omitempty"`
	DialogState        string   `json:"dialogState,omitempty"`
	Intents            []string `json:"intents"`
	ConditionStatement string   `json:"conditionStatement,omitempty"`
	DMIntent           string   `json:"dmIntent"`
}

// Slot is one entry of a slot-filling form.
type Slot struct {
	Name           string        `json:"name"`
	Required       bool          `json:"required"`
	MemorySlotKeys []string      `json:"memorySlotKey"`
	FillBehavior   *FillBehavior `json:"fillBehavior,omitempty"`
}

// FillBehavior describes how an unfilled slot is prompted for.
type FillBehavior struct {
	PromptAction          *Action        `json:"promptAction,omitempty"`
	RepromptEventHandlers []EventHandler `json:"repromptEventHandlers,omitempty"`
}

// Webhook returns the named webhook definition, or nil.
func (s *Scenario) Webhook(name string) *WebhookDefinition {
	for i := range s.Webhooks {
		if s.Webhooks[i].Name == name {
			return &s.Webhooks[i]
		}
	}
	return nil
}
