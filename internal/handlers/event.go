package handlers

// EventHandler matches the turn's external event against the state's event
// handlers. Events are delivered once per turn; an unmatched event falls
// through to the remaining handlers.
type EventHandler struct{}

func (h *EventHandler) Type() string { return TypeEvent }

func (h *EventHandler) CanHandle(ctx *Context) bool {
	return len(ctx.State.EventHandlers) > 0 && ctx.EventType != ""
}

func (h *EventHandler) Execute(ctx *Context) Result {
	for i := range ctx.State.EventHandlers {
		handler := &ctx.State.EventHandlers[i]
		if handler.Event != ctx.EventType {
			continue
		}
		messages := applyAction(handler.Action, ctx.Memory, ctx.Logger)
		return transitionResult(ctx, handler.TransitionTarget, -1, messages,
			TypeEvent, "event "+ctx.EventType)
	}
	return NoTransition{}
}
