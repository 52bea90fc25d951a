package handlers

import (
	"context"

	"github.com/narravid/narravid/internal/domain/services"
)

// RenderHandler produces the final project video.
type RenderHandler struct {
	composer *services.Composer
}

// NewRenderHandler creates a new render handler.
func NewRenderHandler(composer *services.Composer) *RenderHandler {
	return &RenderHandler{composer: composer}
}

// Handle renders every composed chapter into the final video at outPath.
func (h *RenderHandler) Handle(ctx context.Context, outPath string) (string, error) {
	return h.composer.RenderProject(ctx, outPath)
}
