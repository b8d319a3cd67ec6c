package handlers

import (
	"github.com/haasonsaas/stateflow/internal/external"
	"github.com/haasonsaas/stateflow/internal/memory"
	"github.com/haasonsaas/stateflow/internal/scenario"
)

// WebhookHandler executes the state's webhook actions in order, mapping
// each response into memory and the directive queue. A failed call yields
// no mapping; condition handlers decide what happens next.
type WebhookHandler struct{}

func (h *WebhookHandler) Type() string { return TypeWebhook }

func (h *WebhookHandler) CanHandle(ctx *Context) bool {
	return len(ctx.State.WebhookActions) > 0
}

func (h *WebhookHandler) Execute(ctx *Context) Result {
	for _, action := range ctx.State.WebhookActions {
		def := ctx.Scenario.Webhook(action.Name)
		if def == nil || def.Type != scenario.KindWebhook {
			ctx.Logger.Warn("webhook action names no WEBHOOK definition", "name", action.Name)
			continue
		}
		env := external.WebhookEnvelope{
			Text:         memory.UserText(ctx.Memory),
			SessionID:    ctx.SessionID,
			RequestID:    ctx.RequestID,
			CurrentState: ctx.State.Name,
			Memory:       ctx.Memory,
		}
		doc := ctx.External.CallWebhook(ctx.Ctx, def, env, ctx.Memory)
		if doc == nil {
			ctx.Record(ctx.State.Name, "webhook "+def.Name+" failed", false, TypeWebhook)
			continue
		}
		var groups []scenario.MappingGroup
		if def.Formats != nil {
			groups = def.Formats.ResponseMappings
		}
		directives := external.ApplyMappings(doc, groups, ctx.Memory, def.Name, ctx.Logger)
		if ctx.Directives != nil {
			*ctx.Directives = append(*ctx.Directives, directives...)
		}
		ctx.Record(ctx.State.Name, "webhook "+def.Name, true, TypeWebhook)
	}
	return NoTransition{}
}
