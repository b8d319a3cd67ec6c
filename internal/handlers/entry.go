package handlers

import (
	"github.com/haasonsaas/stateflow/internal/memory"
)

// EntryActionHandler runs a state's entry action exactly once per frame
// entry, guarded by the per-state idempotency marker.
type EntryActionHandler struct{}

func (h *EntryActionHandler) Type() string { return TypeEntryAction }

func (h *EntryActionHandler) CanHandle(ctx *Context) bool {
	return ctx.State.EntryAction != nil && !memory.EntryActionExecuted(ctx.Memory, ctx.State.Name)
}

func (h *EntryActionHandler) Execute(ctx *Context) Result {
	messages := applyAction(ctx.State.EntryAction, ctx.Memory, ctx.Logger)
	memory.MarkEntryActionExecuted(ctx.Memory, ctx.State.Name)
	ctx.Record(ctx.State.Name, "entry action", true, TypeEntryAction)
	return NoTransition{Messages: messages}
}
