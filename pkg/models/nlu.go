package models

// NLUResult is the envelope produced by the external NLU subsystem for one
// user utterance. The engine treats it as read-only input.
type NLUResult struct {
	Results []NLUHypothesis `json:"results,omitempty"`
}

// NLUHypothesis is one ranked interpretation of the utterance.
type NLUHypothesis struct {
	NLU NLUPayload `json:"nlu"`
}

// NLUPayload carries the intent and entities for a hypothesis.
type NLUPayload struct {
	Intents  []Intent `json:"intents,omitempty"`
	Entities []Entity `json:"entities,omitempty"`
}

// Intent is a recognized user intent with its confidence.
type Intent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Entity is a recognized slot value within the utterance. Role defaults to
// Type when the NLU does not distinguish roles.
type Entity struct {
	Type string `json:"type"`
	Role string `json:"role,omitempty"`
	Text string `json:"text"`
}

// TopIntent returns the first intent of the first hypothesis, or "".
func (r *NLUResult) TopIntent() string {
	if r == nil || len(r.Results) == 0 || len(r.Results[0].NLU.Intents) == 0 {
		return ""
	}
	return r.Results[0].NLU.Intents[0].Intent
}

// AllEntities flattens entities across hypotheses in rank order.
func (r *NLUResult) AllEntities() []Entity {
	if r == nil {
		return nil
	}
	var out []Entity
	for _, hyp := range r.Results {
		out = append(out, hyp.NLU.Entities...)
	}
	return out
}
