package handlers

import (
	"context"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/services"
)

// ValidationHandler exposes the human validation queue.
type ValidationHandler struct {
	gate *services.Gate
}

// NewValidationHandler creates a new validation handler.
func NewValidationHandler(gate *services.Gate) *ValidationHandler {
	return &ValidationHandler{gate: gate}
}

// Pending returns the undecided queue items in FIFO order.
func (h *ValidationHandler) Pending(ctx context.Context) ([]*entities.PendingItem, error) {
	return h.gate.Pending(ctx)
}

// Decide applies one reviewer decision to a queue item.
func (h *ValidationHandler) Decide(ctx context.Context, itemID string, decision entities.Decision) error {
	return h.gate.Apply(ctx, itemID, decision)
}
