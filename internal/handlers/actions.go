package handlers

import (
	"log/slog"

	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// applyAction performs an action's memory mutations and returns its
// sentences. Unknown memory action types are logged and skipped.
func applyAction(action *scenario.Action, mem models.Memory, logger *slog.Logger) []string {
	if action == nil {
		return nil
	}
	for _, ma := range action.MemoryActions {
		switch ma.ActionType {
		case scenario.MemoryActionAdd:
			mem[ma.MemorySlotKey] = ma.MemorySlotValue
		case scenario.MemoryActionRemove:
			delete(mem, ma.MemorySlotKey)
		default:
			if logger != nil {
				logger.Warn("unknown memory action type",
					"actionType", ma.ActionType, "key", ma.MemorySlotKey)
			}
		}
	}
	return action.Messages()
}
