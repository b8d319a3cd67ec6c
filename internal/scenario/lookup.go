package scenario

import (
	"errors"
	"fmt"
)

// ErrStateNotFound indicates the requested dialog state exists in no plan.
var ErrStateNotFound = errors.New("dialog state not found")

// initialStateName is preferred as the entry point when present.
const initialStateName = "Start"

// FindPlan resolves a plan by name. A dialog state that carries nested
// dialog states is also addressable as a plan (plan-as-state).
func (s *Scenario) FindPlan(name string) (*Plan, bool) {
	for i := range s.Plans {
		if s.Plans[i].Name == name {
			return &s.Plans[i], true
		}
	}
	for i := range s.Plans {
		if nested := findNestedPlan(s.Plans[i].DialogStates, name); nested != nil {
			return nested, true
		}
	}
	return nil, false
}

func findNestedPlan(states []DialogState, name string) *Plan {
	for i := range states {
		st := &states[i]
		if len(st.DialogStates) == 0 {
			continue
		}
		if st.Name == name {
			return &Plan{Name: st.Name, DialogStates: st.DialogStates}
		}
		if nested := findNestedPlan(st.DialogStates, name); nested != nil {
			return nested
		}
	}
	return nil
}

// FindState locates a dialog state. When activePlan is non-empty that plan
// is searched first; otherwise all plans are searched in declaration order.
// The returned plan name is the plan that actually holds the state.
func (s *Scenario) FindState(activePlan, stateName string) (*DialogState, string, error) {
	if stateName == "" {
		return nil, "", fmt.Errorf("%w: empty state name", ErrStateNotFound)
	}
	if activePlan != "" {
		if plan, ok := s.FindPlan(activePlan); ok {
			if st := findStateIn(plan.DialogStates, stateName); st != nil {
				return st, plan.Name, nil
			}
		}
	}
	for i := range s.Plans {
		if st := findStateIn(s.Plans[i].DialogStates, stateName); st != nil {
			return st, s.Plans[i].Name, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %q", ErrStateNotFound, stateName)
}

func findStateIn(states []DialogState, name string) *DialogState {
	for i := range states {
		if states[i].Name == name {
			return &states[i]
		}
	}
	// Nested plan-as-state children are reachable by global search.
	for i := range states {
		if len(states[i].DialogStates) > 0 {
			if st := findStateIn(states[i].DialogStates, name); st != nil {
				return st
			}
		}
	}
	return nil
}

// InitialState resolves the scenario entry point: a state literally named
// Start anywhere, else the first state of the first plan.
func (s *Scenario) InitialState() (*DialogState, string, error) {
	for i := range s.Plans {
		if st := findStateIn(s.Plans[i].DialogStates, initialStateName); st != nil {
			return st, s.Plans[i].Name, nil
		}
	}
	if len(s.Plans) == 0 || len(s.Plans[0].DialogStates) == 0 {
		return nil, "", fmt.Errorf("%w: scenario has no states", ErrStateNotFound)
	}
	return &s.Plans[0].DialogStates[0], s.Plans[0].Name, nil
}
