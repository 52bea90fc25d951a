package handlers

import (
	"context"
	"fmt"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// EntityHandler exposes read and curation operations on the registry.
type EntityHandler struct {
	store ports.StateStore
}

// NewEntityHandler creates a new entity handler.
func NewEntityHandler(store ports.StateStore) *EntityHandler {
	return &EntityHandler{store: store}
}

// List returns entities filtered by kind and validation status.
func (h *EntityHandler) List(ctx context.Context, kind entities.EntityKind, validation entities.ValidationStatus) ([]*entities.Entity, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	return h.store.ListEntities(ctx, kind, validation)
}

// Show returns one entity by ID.
func (h *EntityHandler) Show(ctx context.Context, id string) (*entities.Entity, error) {
	return h.store.FindEntity(ctx, id)
}

// SetVoice assigns a voice profile to an entity.
func (h *EntityHandler) SetVoice(ctx context.Context, id, voice string) error {
	return h.updateEntity(ctx, id, func(e *entities.Entity) {
		e.VoiceProfile = voice
	})
}

// SetAsset assigns a visual asset reference to an entity.
func (h *EntityHandler) SetAsset(ctx context.Context, id, assetRef string) error {
	return h.updateEntity(ctx, id, func(e *entities.Entity) {
		e.AssetRef = assetRef
	})
}

// SetDescription replaces an entity's description.
func (h *EntityHandler) SetDescription(ctx context.Context, id, description string) error {
	return h.updateEntity(ctx, id, func(e *entities.Entity) {
		e.Description = description
	})
}

func (h *EntityHandler) updateEntity(ctx context.Context, id string, mutate func(*entities.Entity)) error {
	entity, err := h.store.FindEntity(ctx, id)
	if err != nil {
		return err
	}
	mutate(entity)
	if err := h.store.SaveEntity(ctx, entity); err != nil {
		return fmt.Errorf("saving entity: %w", err)
	}
	return nil
}
