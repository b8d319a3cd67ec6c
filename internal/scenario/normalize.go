package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedScenario indicates the document was not valid JSON or matched
// neither accepted input shape.
var ErrMalformedScenario = errors.New("malformed scenario document")

// wrapper is input shape (a): a list of named scenario envelopes.
type wrapper struct {
	ID       string    `json:"id,omitempty"`
	Name     string    `json:"name,omitempty"`
	Scenario *Scenario `json:"scenario"`
}

// rawScenario is input shape (b) plus the legacy top-level apicalls list.
type rawScenario struct {
	Scenario
	APICalls []legacyAPICall `json:"apicalls,omitempty"`
}

// legacyAPICall is the pre-unification apicall entry. Its format fields sit
// at the top level rather than under formats.
type legacyAPICall struct {
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	TimeoutMs int               `json:"timeoutMs,omitempty"`
	Retry     int               `json:"retry,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Formats   *Formats          `json:"formats,omitempty"`
}

// Parse normalizes a scenario document of either accepted shape. For the
// wrapper-list shape the first entry is used; additional entries are
// rejected as ambiguous only when the first has no scenario body.
func Parse(doc []byte) (*Scenario, error) {
	trimmed := strings.TrimLeftFunc(string(doc), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	switch {
	case strings.HasPrefix(trimmed, "["):
		var wrappers []wrapper
		if err := json.Unmarshal(doc, &wrappers); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedScenario, err)
		}
		for _, w := range wrappers {
			if w.Scenario == nil {
				continue
			}
			sc := *w.Scenario
			if sc.Name == "" {
				sc.Name = w.Name
			}
			return finalize(&sc, nil)
		}
		return nil, fmt.Errorf("%w: wrapper list has no scenario body", ErrMalformedScenario)
	case strings.HasPrefix(trimmed, "{"):
		var raw rawScenario
		if err := json.Unmarshal(doc, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedScenario, err)
		}
		return finalize(&raw.Scenario, raw.APICalls)
	default:
		return nil, fmt.Errorf("%w: document is neither an object nor a list", ErrMalformedScenario)
	}
}

func finalize(sc *Scenario, legacy []legacyAPICall) (*Scenario, error) {
	if len(sc.Plans) == 0 {
		return nil, fmt.Errorf("%w: scenario has no plans", ErrMalformedScenario)
	}
	sc.Webhooks = unifyWebhooks(sc.Webhooks, legacy)
	return sc, nil
}

// unifyWebhooks folds legacy apicall entries into the webhook list as
// APICALL definitions, dropping duplicates by name. Declared webhooks win
// over legacy entries with the same name.
func unifyWebhooks(webhooks []WebhookDefinition, legacy []legacyAPICall) []WebhookDefinition {
	seen := make(map[string]bool, len(webhooks))
	out := make([]WebhookDefinition, 0, len(webhooks)+len(legacy))
	for _, wh := range webhooks {
		if wh.Name == "" || seen[wh.Name] {
			continue
		}
		if wh.Type == "" {
			wh.Type = KindWebhook
		}
		seen[wh.Name] = true
		out = append(out, wh)
	}
	for _, ac := range legacy {
		if ac.Name == "" || seen[ac.Name] {
			continue
		}
		seen[ac.Name] = true
		out = append(out, WebhookDefinition{
			Type:      KindAPICall,
			Name:      ac.Name,
			URL:       ac.URL,
			Method:    ac.Method,
			TimeoutMs: ac.TimeoutMs,
			Retry:     ac.Retry,
			Headers:   ac.Headers,
			Formats:   ac.Formats,
		})
	}
	return out
}

// SanitizeForDownload returns a copy prepared for the download endpoint:
// legacy apicalls are already unified at parse time, and transient url
// fields on apicall handlers are stripped.
func SanitizeForDownload(sc *Scenario) *Scenario {
	if sc == nil {
		return nil
	}
	out := *sc
	out.Plans = make([]Plan, len(sc.Plans))
	for i, plan := range sc.Plans {
		out.Plans[i] = plan
		out.Plans[i].DialogStates = stripHandlerURLs(plan.DialogStates)
	}
	return &out
}

func stripHandlerURLs(states []DialogState) []DialogState {
	out := make([]DialogState, len(states))
	for i, st := range states {
		out[i] = st
		if len(st.ApicallHandlers) > 0 {
			handlers := make([]ApicallHandler, len(st.ApicallHandlers))
			for j, h := range st.ApicallHandlers {
				handlers[j] = h
				handlers[j].URL = ""
			}
			out[i].ApicallHandlers = handlers
		}
		if len(st.DialogStates) > 0 {
			out[i].DialogStates = stripHandlerURLs(st.DialogStates)
		}
	}
	return out
}
