package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// LogAction appends an entry to the audit log.
func (s *Store) LogAction(ctx context.Context, action, subjectID string, details map[string]any) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshaling audit details: %w", err)
		}
	}

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO audit_log (action, subject_id, details, created_at) VALUES (?, ?, ?, ?)`,
		action, subjectID, string(detailsJSON), timeNow(),
	)
	if err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}

// ExportSnapshot serializes the whole project state into one document.
func (s *Store) ExportSnapshot(ctx context.Context) (*entities.ProjectSnapshot, error) {
	snap := &entities.ProjectSnapshot{
		Version:    entities.SnapshotVersion,
		ExportedAt: timeNow(),
	}

	chapters, err := s.ListChapters(ctx)
	if err != nil {
		return nil, err
	}
	snap.Chapters = chapters

	ents, err := s.ListEntities(ctx, "", "")
	if err != nil {
		return nil, err
	}
	snap.Entities = ents

	// All queue items, decided ones included, so the audit trail survives a
	// round trip.
	rows, err := s.q.QueryContext(ctx, pendingSelect+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying pending items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		snap.Pending = append(snap.Pending, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, chapter := range chapters {
		units, err := s.ListScriptUnits(ctx, chapter.ID)
		if err != nil {
			return nil, err
		}
		snap.Units = append(snap.Units, units...)

		assets, err := s.listAllAssets(ctx, chapter.ID)
		if err != nil {
			return nil, err
		}
		snap.Assets = append(snap.Assets, assets...)
	}
	return snap, nil
}

// ImportSnapshot replaces the whole project state with the snapshot. The
// replace runs in one transaction: on any error the previous state remains.
func (s *Store) ImportSnapshot(ctx context.Context, snap *entities.ProjectSnapshot) error {
	if snap.Version != entities.SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d (want %d)", snap.Version, entities.SnapshotVersion)
	}

	return s.InTransaction(ctx, func(tx ports.StateStore) error {
		txs := tx.(*Store)

		for _, table := range []string{"aliases", "entities", "pending_items", "script_units", "scene_assets", "chapters"} {
			if _, err := txs.q.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}

		for _, chapter := range snap.Chapters {
			if err := txs.SaveChapter(ctx, chapter); err != nil {
				return err
			}
		}
		for _, entity := range snap.Entities {
			if err := txs.SaveEntity(ctx, entity); err != nil {
				return err
			}
		}
		for _, item := range snap.Pending {
			if err := txs.importPending(ctx, item); err != nil {
				return err
			}
		}
		byChapter := make(map[string][]*entities.ScriptUnit)
		for _, unit := range snap.Units {
			byChapter[unit.ChapterID] = append(byChapter[unit.ChapterID], unit)
		}
		for chapterID, units := range byChapter {
			if err := txs.ReplaceScriptUnits(ctx, chapterID, units); err != nil {
				return err
			}
		}
		for _, asset := range snap.Assets {
			if err := txs.SaveSceneAsset(ctx, asset); err != nil {
				return err
			}
		}
		return nil
	})
}

// importPending restores a queue item including its decided state.
func (s *Store) importPending(ctx context.Context, item *entities.PendingItem) error {
	if err := s.EnqueuePending(ctx, item); err != nil {
		return err
	}
	if item.Decided && item.Decision != nil {
		if err := s.MarkDecided(ctx, item.ID, *item.Decision); err != nil {
			return err
		}
	}
	return nil
}

// listAllAssets returns every asset of the chapter, superseded included,
// for snapshot export.
func (s *Store) listAllAssets(ctx context.Context, chapterID string) ([]*entities.SceneAsset, error) {
	rows, err := s.q.QueryContext(ctx, assetSelect+` WHERE chapter_id = ? ORDER BY unit_id ASC, version ASC`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("querying scene assets: %w", err)
	}
	defer rows.Close()

	var assets []*entities.SceneAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}
