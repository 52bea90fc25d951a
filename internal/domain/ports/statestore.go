package ports

import (
	"context"
	"errors"

	"github.com/narravid/narravid/internal/domain/entities"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

// StateStore is the durable record of chapter status, entity registry,
// validation queue and generated-asset manifest — the source of truth for
// resumability. Every method is atomic on its own; multi-step registry
// transitions run inside InTransaction so a stage's effects become visible
// only after a complete, consistent commit.
type StateStore interface {
	// EnsureSchema creates the storage schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close closes the underlying storage.
	Close() error

	// InTransaction runs fn against a transactional view of the store.
	// If fn returns an error nothing is committed.
	InTransaction(ctx context.Context, fn func(tx StateStore) error) error

	// Chapter operations

	// SaveChapter inserts or updates a chapter row.
	SaveChapter(ctx context.Context, chapter *entities.Chapter) error

	// FindChapter finds a chapter by ID. Returns ErrNotFound if absent.
	FindChapter(ctx context.Context, id string) (*entities.Chapter, error)

	// ListChapters returns all chapters ordered by ordinal.
	ListChapters(ctx context.Context) ([]*entities.Chapter, error)

	// AdvanceChapter moves a chapter one step forward in the lifecycle.
	// The transition fails unless the stored status still equals from.
	AdvanceChapter(ctx context.Context, id string, from, to entities.ChapterStatus) error

	// ResetChapter records new content for a modified chapter: status back
	// to unprocessed, new fingerprint and text committed, script units
	// removed and scene assets superseded, undecided validation items
	// sourced from the chapter dropped along with pending entities whose
	// only evidence was that chapter. Confirmed entities are untouched.
	ResetChapter(ctx context.Context, id, fingerprint, text string) error

	// Entity registry operations

	// SaveEntity inserts or updates an entity together with its alias set.
	SaveEntity(ctx context.Context, entity *entities.Entity) error

	// FindEntity finds an entity by ID. Returns ErrNotFound if absent.
	FindEntity(ctx context.Context, id string) (*entities.Entity, error)

	// FindEntityByAlias finds the entity of the given kind owning the
	// normalized alias. Returns ErrNotFound if no entity owns it.
	FindEntityByAlias(ctx context.Context, kind entities.EntityKind, normalized string) (*entities.Entity, error)

	// ListEntities returns entities, optionally filtered by kind ("" for
	// all) and validation status ("" for all), ordered by name.
	ListEntities(ctx context.Context, kind entities.EntityKind, validation entities.ValidationStatus) ([]*entities.Entity, error)

	// AddAlias attaches a surface form to an entity and records the chapter
	// as new evidence. Adding an alias the entity already owns is a no-op.
	AddAlias(ctx context.Context, entityID, alias, chapterID string) error

	// DeleteEntity removes an entity and its aliases.
	DeleteEntity(ctx context.Context, id string) error

	// Validation queue operations

	// EnqueuePending adds an item to the validation queue.
	EnqueuePending(ctx context.Context, item *entities.PendingItem) error

	// ListPending returns undecided queue items in FIFO order.
	ListPending(ctx context.Context) ([]*entities.PendingItem, error)

	// FindPending finds a queue item by ID. Returns ErrNotFound if absent.
	FindPending(ctx context.Context, id string) (*entities.PendingItem, error)

	// MarkDecided records the decision on a queue item. Fails if the item
	// was already decided, keeping the gate re-entrant.
	MarkDecided(ctx context.Context, id string, decision entities.Decision) error

	// CountPending returns the number of undecided queue items.
	CountPending(ctx context.Context) (int, error)

	// Script and asset operations

	// ReplaceScriptUnits swaps the chapter's script for the given units.
	ReplaceScriptUnits(ctx context.Context, chapterID string, units []*entities.ScriptUnit) error

	// ListScriptUnits returns the chapter's script in unit order.
	ListScriptUnits(ctx context.Context, chapterID string) ([]*entities.ScriptUnit, error)

	// SaveSceneAsset inserts or updates a scene asset row.
	SaveSceneAsset(ctx context.Context, asset *entities.SceneAsset) error

	// FindActiveAsset returns the non-superseded asset for a unit.
	// Returns ErrNotFound if the unit has no live asset.
	FindActiveAsset(ctx context.Context, unitID string) (*entities.SceneAsset, error)

	// ListAssets returns the chapter's non-superseded assets in unit order.
	ListAssets(ctx context.Context, chapterID string) ([]*entities.SceneAsset, error)

	// SupersedeAssets marks every asset of the chapter superseded.
	SupersedeAssets(ctx context.Context, chapterID string) error

	// Audit and snapshot operations

	// LogAction appends an entry to the audit log.
	LogAction(ctx context.Context, action, subjectID string, details map[string]any) error

	// ExportSnapshot serializes the whole project state.
	ExportSnapshot(ctx context.Context) (*entities.ProjectSnapshot, error)

	// ImportSnapshot replaces the whole project state with the snapshot.
	// The replace is atomic: on error the previous state remains.
	ImportSnapshot(ctx context.Context, snap *entities.ProjectSnapshot) error
}
