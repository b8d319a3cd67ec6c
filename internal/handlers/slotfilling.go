package handlers

// SlotFillingHandler drives the state's slot-filling form. While a
// required slot is unfilled the turn suspends on its prompt; once the form
// completes, condition handlers take over via SLOT_FILLING_COMPLETED.
type SlotFillingHandler struct{}

func (h *SlotFillingHandler) Type() string { return TypeSlotFilling }

func (h *SlotFillingHandler) CanHandle(ctx *Context) bool {
	return len(ctx.State.SlotFillingForm) > 0
}

func (h *SlotFillingHandler) Execute(ctx *Context) Result {
	result := ctx.Slots.Process(ctx.State.SlotFillingForm, ctx.Memory)
	if result.Waiting {
		ctx.Record(ctx.State.Name, "awaiting slot "+result.WaitingSlot, false, TypeSlotFilling)
		return Suspend{Messages: result.Messages}
	}
	return NoTransition{Messages: result.Messages}
}
