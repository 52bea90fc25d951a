package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// ReplaceScriptUnits swaps the chapter's script for the given units in one
// transaction.
func (s *Store) ReplaceScriptUnits(ctx context.Context, chapterID string, units []*entities.ScriptUnit) error {
	return s.InTransaction(ctx, func(tx ports.StateStore) error {
		txs := tx.(*Store)

		if _, err := txs.q.ExecContext(ctx, `DELETE FROM script_units WHERE chapter_id = ?`, chapterID); err != nil {
			return fmt.Errorf("clearing script units: %w", err)
		}

		query := `
			INSERT INTO script_units (id, chapter_id, idx, kind, text, speaker_id, estimated_duration_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		for _, unit := range units {
			_, err := txs.q.ExecContext(ctx, query,
				unit.ID,
				chapterID,
				unit.Index,
				string(unit.Kind),
				unit.Text,
				unit.SpeakerID,
				unit.EstimatedDuration.Milliseconds(),
				unit.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("inserting script unit: %w", err)
			}
		}
		return nil
	})
}

// ListScriptUnits returns the chapter's script in unit order.
func (s *Store) ListScriptUnits(ctx context.Context, chapterID string) ([]*entities.ScriptUnit, error) {
	query := `
		SELECT id, chapter_id, idx, kind, text, speaker_id, estimated_duration_ms, created_at
		FROM script_units
		WHERE chapter_id = ?
		ORDER BY idx ASC
	`
	rows, err := s.q.QueryContext(ctx, query, chapterID)
	if err != nil {
		return nil, fmt.Errorf("querying script units: %w", err)
	}
	defer rows.Close()

	var units []*entities.ScriptUnit
	for rows.Next() {
		var unit entities.ScriptUnit
		var kind string
		var estimatedMs int64
		err := rows.Scan(
			&unit.ID,
			&unit.ChapterID,
			&unit.Index,
			&kind,
			&unit.Text,
			&unit.SpeakerID,
			&estimatedMs,
			&unit.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning script unit: %w", err)
		}
		unit.Kind = entities.ScriptUnitKind(kind)
		unit.EstimatedDuration = time.Duration(estimatedMs) * time.Millisecond
		units = append(units, &unit)
	}
	return units, rows.Err()
}

// SaveSceneAsset inserts or updates a scene asset row.
func (s *Store) SaveSceneAsset(ctx context.Context, asset *entities.SceneAsset) error {
	images, err := json.Marshal(asset.Images)
	if err != nil {
		return fmt.Errorf("marshaling images: %w", err)
	}
	cues, err := json.Marshal(asset.Cues)
	if err != nil {
		return fmt.Errorf("marshaling cues: %w", err)
	}

	query := `
		INSERT INTO scene_assets (id, chapter_id, unit_id, version, audio_path, audio_duration_ms,
			images, clip_path, cues, degraded, degraded_note, superseded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			audio_path = excluded.audio_path,
			audio_duration_ms = excluded.audio_duration_ms,
			images = excluded.images,
			clip_path = excluded.clip_path,
			cues = excluded.cues,
			degraded = excluded.degraded,
			degraded_note = excluded.degraded_note,
			superseded = excluded.superseded
	`
	_, err = s.q.ExecContext(ctx, query,
		asset.ID,
		asset.ChapterID,
		asset.UnitID,
		asset.Version,
		asset.AudioPath,
		asset.AudioDuration.Milliseconds(),
		string(images),
		asset.ClipPath,
		string(cues),
		boolToInt(asset.Degraded),
		asset.DegradedNote,
		boolToInt(asset.Superseded),
		asset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving scene asset: %w", err)
	}
	return nil
}

// FindActiveAsset returns the non-superseded asset for a unit.
func (s *Store) FindActiveAsset(ctx context.Context, unitID string) (*entities.SceneAsset, error) {
	query := assetSelect + ` WHERE unit_id = ? AND superseded = 0 ORDER BY version DESC LIMIT 1`
	asset, err := scanAsset(s.q.QueryRowContext(ctx, query, unitID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// ListAssets returns the chapter's non-superseded assets in unit order.
func (s *Store) ListAssets(ctx context.Context, chapterID string) ([]*entities.SceneAsset, error) {
	query := `
		SELECT a.id, a.chapter_id, a.unit_id, a.version, a.audio_path, a.audio_duration_ms,
			a.images, a.clip_path, a.cues, a.degraded, a.degraded_note, a.superseded, a.created_at
		FROM scene_assets a
		LEFT JOIN script_units u ON u.id = a.unit_id
		WHERE a.chapter_id = ? AND a.superseded = 0
		ORDER BY u.idx ASC, a.version DESC
	`
	rows, err := s.q.QueryContext(ctx, query, chapterID)
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

// SupersedeAssets marks every asset of the chapter superseded.
func (s *Store) SupersedeAssets(ctx context.Context, chapterID string) error {
	if _, err := s.q.ExecContext(ctx, `UPDATE scene_assets SET superseded = 1 WHERE chapter_id = ?`, chapterID); err != nil {
		return fmt.Errorf("superseding assets: %w", err)
	}
	return nil
}

const assetSelect = `
	SELECT id, chapter_id, unit_id, version, audio_path, audio_duration_ms,
		images, clip_path, cues, degraded, degraded_note, superseded, created_at
	FROM scene_assets`

// scanAsset scans one scene asset row.
func scanAsset(row interface{ Scan(...any) error }) (*entities.SceneAsset, error) {
	var asset entities.SceneAsset
	var audioMs int64
	var images, cues string
	var degraded, superseded int

	err := row.Scan(
		&asset.ID,
		&asset.ChapterID,
		&asset.UnitID,
		&asset.Version,
		&asset.AudioPath,
		&audioMs,
		&images,
		&asset.ClipPath,
		&cues,
		&degraded,
		&asset.DegradedNote,
		&superseded,
		&asset.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	asset.AudioDuration = time.Duration(audioMs) * time.Millisecond
	asset.Degraded = degraded != 0
	asset.Superseded = superseded != 0
	if err := json.Unmarshal([]byte(images), &asset.Images); err != nil {
		return nil, fmt.Errorf("unmarshaling images: %w", err)
	}
	if err := json.Unmarshal([]byte(cues), &asset.Cues); err != nil {
		return nil, fmt.Errorf("unmarshaling cues: %w", err)
	}
	return &asset, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
