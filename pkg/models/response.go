package models

// ExecuteRequest is one user turn handed to the execution engine by the
// transport layer.
type ExecuteRequest struct {
	UserID          string            `json:"userId,omitempty"`
	BotID           string            `json:"botId,omitempty"`
	BotVersion      string            `json:"botVersion,omitempty"`
	BotName         string            `json:"botName,omitempty"`
	BotResourcePath string            `json:"botResourcePath,omitempty"`
	SessionID       string            `json:"sessionId"`
	RequestID       string            `json:"requestId,omitempty"`
	UserInput       string            `json:"userInput,omitempty"`
	Context         map[string]any    `json:"context,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	CurrentState    string            `json:"currentState,omitempty"`
	EventType       string            `json:"eventType,omitempty"`
	NLU             *NLUResult        `json:"nluResult,omitempty"`
}

// Directive is one outbound instruction describing what to present to the
// user. Exactly one of SystemUtterance or CustomPayload is set, depending on
// the bot type; Key/Value/Source directives come from response mappings.
type Directive struct {
	Key             string           `json:"key,omitempty"`
	Value           any              `json:"value,omitempty"`
	Source          string           `json:"source,omitempty"`
	SystemUtterance *SystemUtterance `json:"systemUtterance,omitempty"`
	CustomPayload   map[string]any   `json:"customPayload,omitempty"`
}

// SystemUtterance is the call-bot directive payload.
type SystemUtterance struct {
	Speech  string `json:"speech"`
	Display string `json:"display,omitempty"`
}

// Meta describes where the turn ended up.
type Meta struct {
	Intent          []string `json:"intent"`
	Event           []string `json:"event"`
	Scenario        string   `json:"scenario"`
	DialogState     string   `json:"dialogState"`
	UsedSlots       []string `json:"usedSlots"`
	AllowFocusShift string   `json:"allowFocusShift"`
}

// StateTransition records one consumed handler for diagnostics.
type StateTransition struct {
	FromState    string `json:"fromState"`
	ToState      string `json:"toState"`
	Reason       string `json:"reason,omitempty"`
	ConditionMet bool   `json:"conditionMet"`
	HandlerType  string `json:"handlerType"`
}

// Response is the outbound record for one executed turn.
type Response struct {
	EndSession   string            `json:"endSession"`
	Error        string            `json:"error,omitempty"`
	Directives   []Directive       `json:"directives"`
	DialogResult map[string]any    `json:"dialogResult"`
	Meta         Meta              `json:"meta"`
	Log          []StateTransition `json:"log,omitempty"`
	Memory       Memory            `json:"memory"`
}
