package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// Registry is the canonical, cross-chapter entity set and its merge engine.
// It is the only shared mutable resource in the pipeline: all merge and
// validation operations are serialized behind a single writer lock even when
// candidate extraction runs concurrently across chapters. A false merge is
// far costlier to detect than a missed merge, so nothing here ever merges
// two identities without a human decision.
type Registry struct {
	store      ports.StateStore
	embedder   ports.Embedder   // nil unless semantic matching is enabled
	aliasIndex ports.AliasIndex // nil unless semantic matching is enabled
	policy     MatchPolicy
	logger     *slog.Logger

	mu sync.Mutex
}

// NewRegistry creates the registry and merge engine. embedder and aliasIndex
// may be nil; lexical matching alone is then used for fuzzy resolution.
func NewRegistry(store ports.StateStore, embedder ports.Embedder, aliasIndex ports.AliasIndex, policy MatchPolicy, logger *slog.Logger) *Registry {
	if policy.SuggestThreshold <= 0 {
		policy = DefaultMatchPolicy()
	}
	return &Registry{
		store:      store,
		embedder:   embedder,
		aliasIndex: aliasIndex,
		policy:     policy,
		logger:     logger,
	}
}

// MergeReport summarizes one merge pass.
type MergeReport struct {
	Evidence  int // Candidates attached to existing entities
	Created   int // New pending entities
	Suggested int // Suggested merges queued
	Conflicts int // Ambiguous candidates queued
	Rejected  int // Malformed candidates dropped
	Skipped   int // Duplicates of already-queued candidates
}

// MergeCandidates folds pooled extraction candidates into the registry.
// Exact alias hits become evidence on the owning entity; plausible fuzzy
// hits are queued as suggested merges; ambiguous candidates are queued as
// conflicts for explicit human resolution; everything else becomes a new
// pending entity. The whole pass holds the writer lock.
func (r *Registry) MergeCandidates(ctx context.Context, candidates []entities.EntityCandidate) (*MergeReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := &MergeReport{}

	queued, err := r.queuedSurfaces(ctx)
	if err != nil {
		return nil, err
	}

	for _, cand := range candidates {
		if cand.Malformed() {
			report.Rejected++
			r.logger.Warn("rejecting malformed candidate",
				slog.String("surface", cand.Surface),
				slog.String("kind", string(cand.Kind)),
				slog.String("source", cand.Source))
			continue
		}

		normalized := entities.NormalizeSurface(cand.Surface)

		// Exact alias match: new evidence on the existing entity, never a
		// new identity.
		owner, err := r.store.FindEntityByAlias(ctx, cand.Kind, normalized)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("alias lookup for %q: %w", cand.Surface, err)
		}
		if owner != nil {
			if err := r.store.AddAlias(ctx, owner.ID, cand.Surface, cand.ChapterID); err != nil {
				return nil, fmt.Errorf("recording evidence on %s: %w", owner.ID, err)
			}
			report.Evidence++
			continue
		}

		key := surfaceKey(cand.Kind, normalized)
		if queued[key] {
			report.Skipped++
			continue
		}

		suggestions, err := r.resolveFuzzy(ctx, cand.Kind, normalized)
		if err != nil {
			return nil, err
		}

		switch {
		case len(suggestions) == 0:
			if err := r.createPendingEntity(ctx, cand); err != nil {
				return nil, err
			}
			report.Created++
		case ambiguous(suggestions, r.policy):
			if err := r.enqueue(ctx, entities.PendingConflict, cand, "", suggestions); err != nil {
				return nil, err
			}
			report.Conflicts++
		default:
			if err := r.enqueue(ctx, entities.PendingSuggestedMerge, cand, "", suggestions); err != nil {
				return nil, err
			}
			report.Suggested++
		}
		queued[key] = true
	}

	return report, nil
}

// queuedSurfaces indexes undecided queue items so a surface is never queued
// twice, keeping merge passes idempotent.
func (r *Registry) queuedSurfaces(ctx context.Context) (map[string]bool, error) {
	items, err := r.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pending items: %w", err)
	}
	queued := make(map[string]bool, len(items))
	for _, item := range items {
		queued[surfaceKey(item.Candidate.Kind, entities.NormalizeSurface(item.Candidate.Surface))] = true
	}
	return queued, nil
}

func surfaceKey(kind entities.EntityKind, normalized string) string {
	return string(kind) + "\x00" + normalized
}

// resolveFuzzy scores the surface against same-kind entities, lexically and,
// when enabled, semantically through the alias index. Matches are only ever
// surfaced as suggestions.
func (r *Registry) resolveFuzzy(ctx context.Context, kind entities.EntityKind, normalized string) ([]entities.MergeSuggestion, error) {
	sameKind, err := r.store.ListEntities(ctx, kind, "")
	if err != nil {
		return nil, fmt.Errorf("listing %s entities: %w", kind, err)
	}

	// Rejected entities carry no influence.
	live := sameKind[:0]
	for _, ent := range sameKind {
		if ent.Validation != entities.ValidationRejected {
			live = append(live, ent)
		}
	}

	suggestions := matchEntities(normalized, live, r.policy)

	if r.embedder != nil && r.aliasIndex != nil {
		semantic, err := r.semanticMatches(ctx, kind, normalized)
		if err != nil {
			// Semantic matching is a supplemental signal; degrade to
			// lexical results rather than failing the merge.
			r.logger.Warn("semantic alias lookup failed", slog.String("surface", normalized), slog.Any("error", err))
		} else {
			suggestions = mergeSuggestionLists(suggestions, semantic, r.policy)
		}
	}
	return suggestions, nil
}

// semanticMatches queries the alias vector index for near aliases.
func (r *Registry) semanticMatches(ctx context.Context, kind entities.EntityKind, surface string) ([]entities.MergeSuggestion, error) {
	embedding, err := r.embedder.Embed(ctx, surface)
	if err != nil {
		return nil, fmt.Errorf("embedding surface: %w", err)
	}
	limit := r.policy.MaxSuggestions
	if limit <= 0 {
		limit = 3
	}
	matches, err := r.aliasIndex.Search(ctx, embedding, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("searching alias index: %w", err)
	}

	var suggestions []entities.MergeSuggestion
	for _, m := range matches {
		if m.Score < r.policy.SuggestThreshold {
			continue
		}
		ent, err := r.store.FindEntity(ctx, m.EntityID)
		if errors.Is(err, ports.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving semantic match: %w", err)
		}
		if ent.Validation == entities.ValidationRejected {
			continue
		}
		suggestions = append(suggestions, entities.MergeSuggestion{EntityID: ent.ID, Name: ent.Name, Score: m.Score})
	}
	return suggestions, nil
}

// mergeSuggestionLists combines lexical and semantic suggestions keeping the
// best score per entity.
func mergeSuggestionLists(a, b []entities.MergeSuggestion, policy MatchPolicy) []entities.MergeSuggestion {
	best := make(map[string]entities.MergeSuggestion, len(a)+len(b))
	for _, s := range append(append([]entities.MergeSuggestion{}, a...), b...) {
		if cur, ok := best[s.EntityID]; !ok || s.Score > cur.Score {
			best[s.EntityID] = s
		}
	}
	combined := make([]entities.MergeSuggestion, 0, len(best))
	for _, s := range best {
		combined = append(combined, s)
	}
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Score > combined[j].Score
	})
	if policy.MaxSuggestions > 0 && len(combined) > policy.MaxSuggestions {
		combined = combined[:policy.MaxSuggestions]
	}
	return combined
}

// createPendingEntity materializes a brand-new entity in pending status and
// queues it for confirmation.
func (r *Registry) createPendingEntity(ctx context.Context, cand entities.EntityCandidate) error {
	now := time.Now()
	ent := &entities.Entity{
		ID:                 uuid.New().String(),
		Kind:               cand.Kind,
		Name:               cand.Surface,
		NormalizedName:     entities.NormalizeSurface(cand.Surface),
		Aliases:            []string{cand.Surface},
		Description:        cand.Context,
		Validation:         entities.ValidationPending,
		FirstSeenChapter:   cand.ChapterID,
		LastUpdatedChapter: cand.ChapterID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := r.store.InTransaction(ctx, func(tx ports.StateStore) error {
		if err := tx.SaveEntity(ctx, ent); err != nil {
			return err
		}
		item := &entities.PendingItem{
			ID:        uuid.New().String(),
			Kind:      entities.PendingNewEntity,
			Candidate: cand,
			EntityID:  ent.ID,
			CreatedAt: now,
		}
		if err := tx.EnqueuePending(ctx, item); err != nil {
			return err
		}
		return tx.LogAction(ctx, "entity_created", ent.ID, map[string]any{
			"name":    ent.Name,
			"kind":    string(ent.Kind),
			"chapter": cand.ChapterID,
			"source":  cand.Source,
		})
	})
	if err != nil {
		return fmt.Errorf("creating pending entity %q: %w", cand.Surface, err)
	}
	return nil
}

// enqueue adds a suggestion or conflict item to the validation queue.
func (r *Registry) enqueue(ctx context.Context, kind entities.PendingItemKind, cand entities.EntityCandidate, entityID string, suggestions []entities.MergeSuggestion) error {
	item := &entities.PendingItem{
		ID:          uuid.New().String(),
		Kind:        kind,
		Candidate:   cand,
		EntityID:    entityID,
		Suggestions: suggestions,
		CreatedAt:   time.Now(),
	}
	if err := r.store.EnqueuePending(ctx, item); err != nil {
		return fmt.Errorf("queueing %s for %q: %w", kind, cand.Surface, err)
	}
	return nil
}

// VerifyAliasInvariant checks that no two confirmed entities of the same
// kind share an alias or canonical name. It returns the offending surfaces,
// if any.
func (r *Registry) VerifyAliasInvariant(ctx context.Context) ([]string, error) {
	confirmed, err := r.store.ListEntities(ctx, "", entities.ValidationConfirmed)
	if err != nil {
		return nil, fmt.Errorf("listing confirmed entities: %w", err)
	}

	owners := make(map[string]string)
	var violations []string
	for _, ent := range confirmed {
		surfaces := append([]string{ent.Name}, ent.Aliases...)
		for _, surface := range surfaces {
			key := surfaceKey(ent.Kind, entities.NormalizeSurface(surface))
			if owner, ok := owners[key]; ok && owner != ent.ID {
				violations = append(violations, surface)
				continue
			}
			owners[key] = ent.ID
		}
	}
	return violations, nil
}
