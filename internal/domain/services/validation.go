package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// ErrAlreadyDecided is returned when a decision targets an item that was
// already resolved. The gate is re-entrant: resuming a partially reviewed
// batch never re-presents or re-applies decided items.
var ErrAlreadyDecided = errors.New("pending item already decided")

// ErrAliasTaken is returned when confirming an entity would give two
// confirmed entities of the same kind a shared alias.
var ErrAliasTaken = errors.New("alias already owned by a confirmed entity")

// Gate is the human-in-the-loop checkpoint converting candidates into
// confirmed registry entries. Every decision is applied as one atomic
// registry transition under the registry writer lock: either the full
// decision commits (status, aliases, queue item together) or none of it.
type Gate struct {
	registry *Registry
	store    ports.StateStore
	logger   *slog.Logger
}

// NewGate creates a validation gate bound to the registry's writer lock.
func NewGate(registry *Registry, store ports.StateStore, logger *slog.Logger) *Gate {
	return &Gate{registry: registry, store: store, logger: logger}
}

// Pending lists undecided validation items in FIFO order.
func (g *Gate) Pending(ctx context.Context) ([]*entities.PendingItem, error) {
	return g.store.ListPending(ctx)
}

// Apply resolves one pending item with the reviewer's decision.
func (g *Gate) Apply(ctx context.Context, itemID string, decision entities.Decision) error {
	g.registry.mu.Lock()
	defer g.registry.mu.Unlock()

	item, err := g.store.FindPending(ctx, itemID)
	if err != nil {
		return fmt.Errorf("loading pending item: %w", err)
	}
	if item.Decided {
		return ErrAlreadyDecided
	}

	var affectedID string
	err = g.store.InTransaction(ctx, func(tx ports.StateStore) error {
		id, err := g.applyLocked(ctx, tx, item, decision)
		if err != nil {
			return err
		}
		affectedID = id
		return tx.MarkDecided(ctx, item.ID, decision)
	})
	if err != nil {
		return err
	}

	g.syncAliasIndex(ctx, decision, affectedID)
	return nil
}

// applyLocked dispatches the decision inside the store transaction and
// returns the ID of the entity the decision touched. Suggestion and conflict
// items materialize their entity only here, so the caller cannot read it off
// the item.
func (g *Gate) applyLocked(ctx context.Context, tx ports.StateStore, item *entities.PendingItem, decision entities.Decision) (string, error) {
	switch decision.Action {
	case entities.DecisionConfirmNew, entities.DecisionEdit:
		return g.confirm(ctx, tx, item, decision.Edit)
	case entities.DecisionMergeInto:
		return g.mergeInto(ctx, tx, item, decision.TargetEntityID)
	case entities.DecisionReject:
		return item.EntityID, g.reject(ctx, tx, item)
	default:
		return "", fmt.Errorf("unknown decision action %q", decision.Action)
	}
}

// confirm promotes the item's entity (creating it first for suggestion and
// conflict items, which carry no materialized entity) to confirmed status,
// applying reviewer edits when present.
func (g *Gate) confirm(ctx context.Context, tx ports.StateStore, item *entities.PendingItem, edit *entities.EntityEdit) (string, error) {
	ent, err := g.entityFor(ctx, tx, item)
	if err != nil {
		return "", err
	}

	if edit != nil {
		applyEdit(ent, edit)
	}

	if err := g.checkAliasFree(ctx, tx, ent); err != nil {
		return "", err
	}

	ent.Validation = entities.ValidationConfirmed
	ent.UpdatedAt = time.Now()
	if err := tx.SaveEntity(ctx, ent); err != nil {
		return "", fmt.Errorf("confirming entity %s: %w", ent.ID, err)
	}
	return ent.ID, tx.LogAction(ctx, "entity_confirmed", ent.ID, map[string]any{"name": ent.Name})
}

// mergeInto folds the item's candidate (and its pending entity, if any)
// into an existing entity chosen by the reviewer.
func (g *Gate) mergeInto(ctx context.Context, tx ports.StateStore, item *entities.PendingItem, targetID string) (string, error) {
	if targetID == "" {
		return "", errors.New("merge decision requires a target entity id")
	}
	target, err := tx.FindEntity(ctx, targetID)
	if err != nil {
		return "", fmt.Errorf("loading merge target: %w", err)
	}

	aliases := []string{item.Candidate.Surface}
	if item.EntityID != "" && item.EntityID != targetID {
		source, err := tx.FindEntity(ctx, item.EntityID)
		if err != nil {
			return "", fmt.Errorf("loading merge source: %w", err)
		}
		aliases = append([]string{source.Name}, source.Aliases...)
		if err := tx.DeleteEntity(ctx, source.ID); err != nil {
			return "", fmt.Errorf("removing merged entity %s: %w", source.ID, err)
		}
	}

	for _, alias := range aliases {
		if err := tx.AddAlias(ctx, target.ID, alias, item.Candidate.ChapterID); err != nil {
			return "", fmt.Errorf("moving alias %q to %s: %w", alias, target.ID, err)
		}
	}
	return target.ID, tx.LogAction(ctx, "entity_merged", target.ID, map[string]any{
		"surface": item.Candidate.Surface,
		"chapter": item.Candidate.ChapterID,
	})
}

// reject removes the candidate's influence entirely.
func (g *Gate) reject(ctx context.Context, tx ports.StateStore, item *entities.PendingItem) error {
	if item.EntityID != "" {
		if err := tx.DeleteEntity(ctx, item.EntityID); err != nil && !errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("removing rejected entity %s: %w", item.EntityID, err)
		}
	}
	return tx.LogAction(ctx, "candidate_rejected", item.ID, map[string]any{
		"surface": item.Candidate.Surface,
		"kind":    string(item.Candidate.Kind),
	})
}

// entityFor loads the pending entity behind a new_entity item, or builds a
// fresh one from the candidate for suggestion/conflict items.
func (g *Gate) entityFor(ctx context.Context, tx ports.StateStore, item *entities.PendingItem) (*entities.Entity, error) {
	if item.EntityID != "" {
		ent, err := tx.FindEntity(ctx, item.EntityID)
		if err != nil {
			return nil, fmt.Errorf("loading pending entity: %w", err)
		}
		return ent, nil
	}

	now := time.Now()
	return &entities.Entity{
		ID:                 uuid.New().String(),
		Kind:               item.Candidate.Kind,
		Name:               item.Candidate.Surface,
		NormalizedName:     entities.NormalizeSurface(item.Candidate.Surface),
		Aliases:            []string{item.Candidate.Surface},
		Description:        item.Candidate.Context,
		Validation:         entities.ValidationPending,
		FirstSeenChapter:   item.Candidate.ChapterID,
		LastUpdatedChapter: item.Candidate.ChapterID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// checkAliasFree enforces the registry invariant before a confirm commits:
// no confirmed entity of the same kind may already own any of the entity's
// surfaces.
func (g *Gate) checkAliasFree(ctx context.Context, tx ports.StateStore, ent *entities.Entity) error {
	surfaces := append([]string{ent.Name}, ent.Aliases...)
	for _, surface := range surfaces {
		owner, err := tx.FindEntityByAlias(ctx, ent.Kind, entities.NormalizeSurface(surface))
		if errors.Is(err, ports.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("checking alias %q: %w", surface, err)
		}
		if owner.ID != ent.ID && owner.Validation == entities.ValidationConfirmed {
			return fmt.Errorf("%w: %q belongs to %s", ErrAliasTaken, surface, owner.Name)
		}
	}
	return nil
}

// applyEdit overlays reviewer-supplied fields.
func applyEdit(ent *entities.Entity, edit *entities.EntityEdit) {
	if edit.Name != "" {
		ent.Name = edit.Name
		ent.NormalizedName = entities.NormalizeSurface(edit.Name)
		if !ent.HasAlias(edit.Name) {
			ent.Aliases = append(ent.Aliases, edit.Name)
		}
	}
	if edit.Kind != "" {
		ent.Kind = edit.Kind
	}
	if edit.Description != "" {
		ent.Description = edit.Description
	}
	if edit.VoiceProfile != "" {
		ent.VoiceProfile = edit.VoiceProfile
	}
	if edit.AssetRef != "" {
		ent.AssetRef = edit.AssetRef
	}
}

// syncAliasIndex mirrors confirmed aliases into the semantic index. Failures
// only cost suggestion quality, so they are logged, not returned.
func (g *Gate) syncAliasIndex(ctx context.Context, decision entities.Decision, entityID string) {
	if g.registry.embedder == nil || g.registry.aliasIndex == nil || entityID == "" {
		return
	}
	if decision.Action == entities.DecisionReject {
		if err := g.registry.aliasIndex.DeleteEntity(ctx, entityID); err != nil {
			g.logger.Warn("alias index cleanup failed", slog.String("entity", entityID), slog.Any("error", err))
		}
		return
	}

	ent, err := g.store.FindEntity(ctx, entityID)
	if err != nil {
		g.logger.Warn("alias index sync failed", slog.String("entity", entityID), slog.Any("error", err))
		return
	}

	surfaces := append([]string{ent.Name}, ent.Aliases...)
	embeddings, err := g.registry.embedder.EmbedBatch(ctx, surfaces)
	if err != nil {
		g.logger.Warn("alias embedding failed", slog.String("entity", entityID), slog.Any("error", err))
		return
	}
	points := make([]ports.AliasPoint, 0, len(surfaces))
	for i, surface := range surfaces {
		points = append(points, ports.AliasPoint{
			EntityID:  ent.ID,
			Kind:      ent.Kind,
			Alias:     surface,
			Embedding: embeddings[i],
		})
	}
	if err := g.registry.aliasIndex.Save(ctx, points); err != nil {
		g.logger.Warn("alias index save failed", slog.String("entity", entityID), slog.Any("error", err))
	}
}
