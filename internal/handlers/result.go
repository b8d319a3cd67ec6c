// Package handlers implements the dialog state handler set: entry actions,
// slot filling, webhooks, API calls, intents, events, and conditions. Each
// handler reports whether it applies to a state and produces a tagged
// result the engine acts on.
package handlers

// Handler type names, used in transition records and metrics labels.
const (
	TypeEntryAction = "ENTRY_ACTION"
	TypeSlotFilling = "SLOT_FILLING"
	TypeWebhook     = "WEBHOOK"
	TypeAPICall     = "APICALL"
	TypeIntent      = "INTENT"
	TypeEvent       = "EVENT"
	TypeCondition   = "CONDITION"
)

// Result is the tagged outcome of one handler execution.
type Result interface {
	isResult()
	// ResultMessages returns the sentences the handler emitted.
	ResultMessages() []string
}

// NoTransition keeps the current state; the cycle continues with the next
// permitted handler.
type NoTransition struct {
	Messages []string
}

// Suspend keeps the current state and ends the turn to await the next user
// input (slot prompts, or intent states with no input yet).
type Suspend struct {
	Messages []string
}

// StateTransition moves to a new state within the active plan.
type StateTransition struct {
	NewState     string
	Messages     []string
	HandlerIndex int
}

// PlanTransition moves to a state in another plan, pushing a stack frame.
type PlanTransition struct {
	TargetPlan   string
	NewState     string
	HandlerIndex int
	Messages     []string
}

// EndScenario pops the active plan and resumes the caller.
type EndScenario struct {
	Messages     []string
	HandlerIndex int
}

func (NoTransition) isResult()    {}
func (Suspend) isResult()         {}
func (StateTransition) isResult() {}
func (PlanTransition) isResult()  {}
func (EndScenario) isResult()     {}

func (r NoTransition) ResultMessages() []string    { return r.Messages }
func (r Suspend) ResultMessages() []string         { return r.Messages }
func (r StateTransition) ResultMessages() []string { return r.Messages }
func (r PlanTransition) ResultMessages() []string  { return r.Messages }
func (r EndScenario) ResultMessages() []string     { return r.Messages }
