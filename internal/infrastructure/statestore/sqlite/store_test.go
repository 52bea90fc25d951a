package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func testChapter(id string, ordinal int, status entities.ChapterStatus) *entities.Chapter {
	now := time.Now()
	return &entities.Chapter{
		ID:          id,
		Ordinal:     ordinal,
		Title:       id,
		Text:        "Texto de " + id,
		Fingerprint: "fp-" + id,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testEntity(id, name string, validation entities.ValidationStatus) *entities.Entity {
	now := time.Now()
	return &entities.Entity{
		ID:             id,
		Kind:           entities.KindCharacter,
		Name:           name,
		NormalizedName: entities.NormalizeSurface(name),
		Aliases:        []string{name},
		Validation:     validation,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestChapterRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, err := store.FindChapter(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, store.SaveChapter(ctx, testChapter("ch02", 2, entities.ChapterUnprocessed)))
	require.NoError(t, store.SaveChapter(ctx, testChapter("ch01", 1, entities.ChapterUnprocessed)))

	chapters, err := store.ListChapters(ctx)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, "ch01", chapters[0].ID)
	assert.Equal(t, "ch02", chapters[1].ID)

	got, err := store.FindChapter(ctx, "ch01")
	require.NoError(t, err)
	assert.Equal(t, "Texto de ch01", got.Text)
	assert.Equal(t, "fp-ch01", got.Fingerprint)
}

func TestAdvanceChapterIsGuarded(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.SaveChapter(ctx, testChapter("ch01", 1, entities.ChapterUnprocessed)))

	require.NoError(t, store.AdvanceChapter(ctx, "ch01", entities.ChapterUnprocessed, entities.ChapterExtracted))

	// Stale from-status: a concurrent writer already advanced the chapter.
	err := store.AdvanceChapter(ctx, "ch01", entities.ChapterUnprocessed, entities.ChapterExtracted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extracted")

	// Skipping a stage is rejected before touching the database.
	err = store.AdvanceChapter(ctx, "ch01", entities.ChapterExtracted, entities.ChapterComposed)
	assert.Error(t, err)

	got, err := store.FindChapter(ctx, "ch01")
	require.NoError(t, err)
	assert.Equal(t, entities.ChapterExtracted, got.Status)
}

func TestEntityAliasOwnership(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.SaveEntity(ctx, testEntity("e1", "Alexis", entities.ValidationConfirmed)))
	require.NoError(t, store.AddAlias(ctx, "e1", "La Valiente", "ch02"))

	got, err := store.FindEntity(ctx, "e1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Alexis", "La Valiente"}, got.Aliases)
	assert.Equal(t, "ch02", got.LastUpdatedChapter)

	owner, err := store.FindEntityByAlias(ctx, entities.KindCharacter, "la valiente")
	require.NoError(t, err)
	assert.Equal(t, "e1", owner.ID)

	// The UNIQUE(kind, normalized) backstop: a second entity cannot take
	// over an owned surface.
	require.NoError(t, store.SaveEntity(ctx, testEntity("e2", "Elena", entities.ValidationConfirmed)))
	require.NoError(t, store.AddAlias(ctx, "e2", "La Valiente", "ch03"))
	owner, err = store.FindEntityByAlias(ctx, entities.KindCharacter, "la valiente")
	require.NoError(t, err)
	assert.Equal(t, "e1", owner.ID, "alias ownership must not move")

	// Re-adding an owned alias is a no-op.
	require.NoError(t, store.AddAlias(ctx, "e1", "ALEXIS", ""))
	got, err = store.FindEntity(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, got.Aliases, 2)
}

func TestDeleteEntityCascadesAliases(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.SaveEntity(ctx, testEntity("e1", "Alexis", entities.ValidationConfirmed)))

	require.NoError(t, store.DeleteEntity(ctx, "e1"))
	_, err := store.FindEntity(ctx, "e1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	_, err = store.FindEntityByAlias(ctx, entities.KindCharacter, "alexis")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestListEntitiesFilters(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.SaveEntity(ctx, testEntity("e1", "Alexis", entities.ValidationConfirmed)))
	require.NoError(t, store.SaveEntity(ctx, testEntity("e2", "Elena", entities.ValidationPending)))
	loc := testEntity("e3", "Bosque Encantado", entities.ValidationConfirmed)
	loc.Kind = entities.KindLocation
	require.NoError(t, store.SaveEntity(ctx, loc))

	all, err := store.ListEntities(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	chars, err := store.ListEntities(ctx, entities.KindCharacter, entities.ValidationConfirmed)
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.Equal(t, "e1", chars[0].ID)
}

func TestPendingQueueFIFOAndReentrancy(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	base := time.Now()

	for i, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, store.EnqueuePending(ctx, &entities.PendingItem{
			ID:   id,
			Kind: entities.PendingNewEntity,
			Candidate: entities.EntityCandidate{
				Kind: entities.KindCharacter, Surface: "S" + id, ChapterID: "ch01",
			},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	items, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "p1", items[0].ID)
	assert.Equal(t, "p3", items[2].ID)

	decision := entities.Decision{Action: entities.DecisionConfirmNew}
	require.NoError(t, store.MarkDecided(ctx, "p1", decision))

	err = store.MarkDecided(ctx, "p1", decision)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already decided")

	count, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := store.FindPending(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.Decided)
	require.NotNil(t, got.Decision)
	assert.Equal(t, entities.DecisionConfirmNew, got.Decision.Action)
}

func TestScriptUnitsReplaceAndOrder(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	now := time.Now()

	units := []*entities.ScriptUnit{
		{ID: "u1", ChapterID: "ch01", Index: 0, Kind: entities.UnitNarration, Text: "uno", EstimatedDuration: 2 * time.Second, CreatedAt: now},
		{ID: "u2", ChapterID: "ch01", Index: 1, Kind: entities.UnitDialogue, Text: "dos", SpeakerID: "e1", EstimatedDuration: 3 * time.Second, CreatedAt: now},
	}
	require.NoError(t, store.ReplaceScriptUnits(ctx, "ch01", units))

	got, err := store.ListScriptUnits(ctx, "ch01")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].ID)
	assert.Equal(t, 3*time.Second, got[1].EstimatedDuration)
	assert.Equal(t, "e1", got[1].SpeakerID)

	require.NoError(t, store.ReplaceScriptUnits(ctx, "ch01", units[:1]))
	got, err = store.ListScriptUnits(ctx, "ch01")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSceneAssetVersioning(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	now := time.Now()

	_, err := store.FindActiveAsset(ctx, "u1")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	v1 := &entities.SceneAsset{
		ID: "a1", ChapterID: "ch01", UnitID: "u1", Version: 1,
		AudioPath: "/tmp/a1.wav", AudioDuration: 5 * time.Second,
		Images:    []entities.TimedImage{{Path: "/tmp/i1.png", Duration: 5 * time.Second}},
		Cues:      []entities.SubtitleCue{{Index: 0, End: 5 * time.Second, Text: "hola"}},
		CreatedAt: now,
	}
	require.NoError(t, store.SaveSceneAsset(ctx, v1))

	v1.Superseded = true
	require.NoError(t, store.SaveSceneAsset(ctx, v1))
	v2 := &entities.SceneAsset{
		ID: "a2", ChapterID: "ch01", UnitID: "u1", Version: 2,
		AudioPath: "/tmp/a2.wav", AudioDuration: 6 * time.Second, CreatedAt: now,
	}
	require.NoError(t, store.SaveSceneAsset(ctx, v2))

	active, err := store.FindActiveAsset(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a2", active.ID)
	assert.Equal(t, 6*time.Second, active.AudioDuration)

	assets, err := store.ListAssets(ctx, "ch01")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "a2", assets[0].ID)
}

func TestResetChapterDropsDerivedState(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	now := time.Now()

	require.NoError(t, store.SaveChapter(ctx, testChapter("ch01", 1, entities.ChapterScripted)))
	require.NoError(t, store.ReplaceScriptUnits(ctx, "ch01", []*entities.ScriptUnit{
		{ID: "u1", ChapterID: "ch01", Index: 0, Kind: entities.UnitNarration, Text: "uno", CreatedAt: now},
	}))
	require.NoError(t, store.SaveSceneAsset(ctx, &entities.SceneAsset{
		ID: "a1", ChapterID: "ch01", UnitID: "u1", Version: 1, CreatedAt: now,
	}))

	require.NoError(t, store.SaveEntity(ctx, testEntity("conf", "Alexis", entities.ValidationConfirmed)))
	pendingEnt := testEntity("pend", "Lunaria", entities.ValidationPending)
	pendingEnt.FirstSeenChapter = "ch01"
	require.NoError(t, store.SaveEntity(ctx, pendingEnt))
	require.NoError(t, store.EnqueuePending(ctx, &entities.PendingItem{
		ID: "p1", Kind: entities.PendingNewEntity, EntityID: "pend",
		Candidate: entities.EntityCandidate{Kind: entities.KindCharacter, Surface: "Lunaria", ChapterID: "ch01"},
		CreatedAt: now,
	}))

	require.NoError(t, store.ResetChapter(ctx, "ch01", "fp-new", "Texto nuevo."))

	chapter, err := store.FindChapter(ctx, "ch01")
	require.NoError(t, err)
	assert.Equal(t, entities.ChapterUnprocessed, chapter.Status)
	assert.Equal(t, "fp-new", chapter.Fingerprint)
	assert.Equal(t, "Texto nuevo.", chapter.Text)

	units, err := store.ListScriptUnits(ctx, "ch01")
	require.NoError(t, err)
	assert.Empty(t, units)

	_, err = store.FindActiveAsset(ctx, "u1")
	assert.ErrorIs(t, err, ports.ErrNotFound, "assets of the old text are superseded")

	count, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.FindEntity(ctx, "pend")
	assert.ErrorIs(t, err, ports.ErrNotFound, "pending entity evidenced only by this chapter goes away")

	_, err = store.FindEntity(ctx, "conf")
	assert.NoError(t, err, "confirmed entities survive a chapter rewrite")
}

func TestInTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	boom := errors.New("boom")

	err := store.InTransaction(ctx, func(tx ports.StateStore) error {
		if err := tx.SaveChapter(ctx, testChapter("ch01", 1, entities.ChapterUnprocessed)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.FindChapter(ctx, "ch01")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestInTransactionNestedJoins(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	err := store.InTransaction(ctx, func(tx ports.StateStore) error {
		// SaveEntity opens its own transaction internally; on a
		// transactional view it must join instead of deadlocking.
		return tx.SaveEntity(ctx, testEntity("e1", "Alexis", entities.ValidationConfirmed))
	})
	require.NoError(t, err)

	_, err = store.FindEntity(ctx, "e1")
	assert.NoError(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	now := time.Now()

	require.NoError(t, store.SaveChapter(ctx, testChapter("ch01", 1, entities.ChapterExtracted)))
	require.NoError(t, store.SaveEntity(ctx, testEntity("e1", "Alexis", entities.ValidationConfirmed)))
	require.NoError(t, store.EnqueuePending(ctx, &entities.PendingItem{
		ID: "p1", Kind: entities.PendingNewEntity,
		Candidate: entities.EntityCandidate{Kind: entities.KindCharacter, Surface: "Elena", ChapterID: "ch01"},
		CreatedAt: now,
	}))
	require.NoError(t, store.ReplaceScriptUnits(ctx, "ch01", []*entities.ScriptUnit{
		{ID: "u1", ChapterID: "ch01", Index: 0, Kind: entities.UnitNarration, Text: "uno", CreatedAt: now},
	}))
	require.NoError(t, store.SaveSceneAsset(ctx, &entities.SceneAsset{
		ID: "a1", ChapterID: "ch01", UnitID: "u1", Version: 1,
		AudioDuration: 4 * time.Second, CreatedAt: now,
	}))

	snap, err := store.ExportSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.SnapshotVersion, snap.Version)
	assert.Len(t, snap.Chapters, 1)
	assert.Len(t, snap.Entities, 1)
	assert.Len(t, snap.Pending, 1)

	other := openStore(t)
	require.NoError(t, other.ImportSnapshot(ctx, snap))

	chapter, err := other.FindChapter(ctx, "ch01")
	require.NoError(t, err)
	assert.Equal(t, entities.ChapterExtracted, chapter.Status)

	ent, err := other.FindEntity(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Alexis", ent.Name)
	assert.Equal(t, []string{"Alexis"}, ent.Aliases)

	count, err := other.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	asset, err := other.FindActiveAsset(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, asset.AudioDuration)
}

func TestImportSnapshotRejectsUnknownVersion(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	err := store.ImportSnapshot(ctx, &entities.ProjectSnapshot{Version: 99})
	assert.Error(t, err)
}
