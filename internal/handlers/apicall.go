package handlers

import (
	"github.com/haasonsaas/stateflow/internal/external"
	"github.com/haasonsaas/stateflow/internal/scenario"
)

// APICallHandler executes the state's API-call handlers. After mapping the
// response, the enclosing state's condition handlers choose the
// transition; the handler's own target is the fallback when none match.
type APICallHandler struct{}

func (h *APICallHandler) Type() string { return TypeAPICall }

func (h *APICallHandler) CanHandle(ctx *Context) bool {
	return len(ctx.State.ApicallHandlers) > 0
}

func (h *APICallHandler) Execute(ctx *Context) Result {
	for i := range ctx.State.ApicallHandlers {
		handler := &ctx.State.ApicallHandlers[i]
		def := resolveAPICall(ctx.Scenario, handler)
		if def == nil {
			ctx.Logger.Warn("apicall handler names no APICALL definition", "name", handler.Name)
			continue
		}
		doc := ctx.External.CallAPI(ctx.Ctx, def, ctx.Memory)
		if doc != nil {
			var groups []scenario.MappingGroup
			if def.Formats != nil {
				groups = def.Formats.ResponseMappings
			}
			directives := external.ApplyMappings(doc, groups, ctx.Memory, def.Name, ctx.Logger)
			if ctx.Directives != nil {
				*ctx.Directives = append(*ctx.Directives, directives...)
			}
		} else {
			ctx.Record(ctx.State.Name, "apicall "+def.Name+" failed", false, TypeAPICall)
		}
		messages := applyAction(handler.Action, ctx.Memory, ctx.Logger)

		if result := evaluateConditions(ctx); !isNoTransition(result) {
			return prependMessages(result, messages)
		}
		if handler.TransitionTarget.DialogState != "" {
			return transitionResult(ctx, handler.TransitionTarget, -1, messages,
				TypeAPICall, "apicall "+def.Name)
		}
	}
	return NoTransition{}
}

// resolveAPICall finds the named APICALL definition, synthesizing one from
// the handler's transient URL when the scenario declares none.
func resolveAPICall(s *scenario.Scenario, handler *scenario.ApicallHandler) *scenario.WebhookDefinition {
	if def := s.Webhook(handler.Name); def != nil && def.Type == scenario.KindAPICall {
		return def
	}
	if handler.URL == "" {
		return nil
	}
	return &scenario.WebhookDefinition{
		Type: scenario.KindAPICall,
		Name: handler.Name,
		URL:  handler.URL,
	}
}

func isNoTransition(r Result) bool {
	_, ok := r.(NoTransition)
	return ok
}

// prependMessages puts the API-call action's sentences before the ones the
// chosen transition emitted.
func prependMessages(r Result, messages []string) Result {
	if len(messages) == 0 {
		return r
	}
	switch v := r.(type) {
	case StateTransition:
		v.Messages = append(messages, v.Messages...)
		return v
	case PlanTransition:
		v.Messages = append(messages, v.Messages...)
		return v
	case EndScenario:
		v.Messages = append(messages, v.Messages...)
		return v
	case Suspend:
		v.Messages = append(messages, v.Messages...)
		return v
	default:
		return r
	}
}
