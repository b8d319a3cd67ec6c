package handlers

// ConditionHandler evaluates the state's condition handlers strictly in
// declaration order; the first condition that holds determines the
// transition. StartHandlerIndex skips handlers already consumed before an
// end-scenario resumption.
type ConditionHandler struct{}

func (h *ConditionHandler) Type() string { return TypeCondition }

func (h *ConditionHandler) CanHandle(ctx *Context) bool {
	return len(ctx.State.ConditionHandlers) > 0
}

func (h *ConditionHandler) Execute(ctx *Context) Result {
	return evaluateConditions(ctx)
}

// evaluateConditions is shared with the API-call handler, which reuses the
// enclosing state's condition handlers to choose its transition.
func evaluateConditions(ctx *Context) Result {
	start := ctx.StartHandlerIndex
	if start < 0 {
		start = 0
	}
	for i := start; i < len(ctx.State.ConditionHandlers); i++ {
		handler := &ctx.State.ConditionHandlers[i]
		if !ctx.Evaluator.Evaluate(handler.ConditionStatement, ctx.Memory) {
			continue
		}
		messages := applyAction(handler.Action, ctx.Memory, ctx.Logger)
		return transitionResult(ctx, handler.TransitionTarget, i, messages,
			TypeCondition, "condition "+handler.ConditionStatement)
	}
	return NoTransition{}
}
