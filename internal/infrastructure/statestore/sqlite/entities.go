package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// SaveEntity inserts or updates an entity together with its alias set. The
// alias rows are replaced wholesale so the stored set always mirrors the
// entity's Aliases slice.
func (s *Store) SaveEntity(ctx context.Context, entity *entities.Entity) error {
	return s.InTransaction(ctx, func(tx ports.StateStore) error {
		txs := tx.(*Store)

		query := `
			INSERT INTO entities (id, kind, name, normalized_name, description, asset_ref, voice_profile,
				validation, first_seen_chapter, last_updated_chapter, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				name = excluded.name,
				normalized_name = excluded.normalized_name,
				description = excluded.description,
				asset_ref = excluded.asset_ref,
				voice_profile = excluded.voice_profile,
				validation = excluded.validation,
				first_seen_chapter = excluded.first_seen_chapter,
				last_updated_chapter = excluded.last_updated_chapter,
				updated_at = excluded.updated_at
		`
		_, err := txs.q.ExecContext(ctx, query,
			entity.ID,
			string(entity.Kind),
			entity.Name,
			entity.NormalizedName,
			entity.Description,
			entity.AssetRef,
			entity.VoiceProfile,
			string(entity.Validation),
			entity.FirstSeenChapter,
			entity.LastUpdatedChapter,
			entity.CreatedAt,
			entity.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("saving entity: %w", err)
		}

		if _, err := txs.q.ExecContext(ctx, `DELETE FROM aliases WHERE entity_id = ?`, entity.ID); err != nil {
			return fmt.Errorf("clearing aliases: %w", err)
		}
		for _, alias := range entity.Aliases {
			if err := txs.insertAlias(ctx, entity.ID, entity.Kind, alias, entity.LastUpdatedChapter); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindEntity finds an entity by ID.
func (s *Store) FindEntity(ctx context.Context, id string) (*entities.Entity, error) {
	query := entitySelect + ` WHERE id = ?`
	entity, err := scanEntity(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	if err := s.loadAliases(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// FindEntityByAlias finds the entity of the given kind owning the normalized
// surface form, either as its canonical name or as an alias.
func (s *Store) FindEntityByAlias(ctx context.Context, kind entities.EntityKind, normalized string) (*entities.Entity, error) {
	query := entitySelect + `
		WHERE kind = ? AND (
			normalized_name = ?
			OR id IN (SELECT entity_id FROM aliases WHERE kind = ? AND normalized = ?)
		)
	`
	entity, err := scanEntity(s.q.QueryRowContext(ctx, query, string(kind), normalized, string(kind), normalized))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	if err := s.loadAliases(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// ListEntities returns entities filtered by kind and validation status,
// ordered by name.
func (s *Store) ListEntities(ctx context.Context, kind entities.EntityKind, validation entities.ValidationStatus) ([]*entities.Entity, error) {
	query := entitySelect + ` WHERE 1=1`
	var args []any
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	if validation != "" {
		query += ` AND validation = ?`
		args = append(args, string(validation))
	}
	query += ` ORDER BY name ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var out []*entities.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		out = append(out, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, entity := range out {
		if err := s.loadAliases(ctx, entity); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AddAlias attaches a surface form to an entity and records the chapter as
// evidence. Adding an alias the entity already owns is a no-op.
func (s *Store) AddAlias(ctx context.Context, entityID, alias, chapterID string) error {
	entity, err := s.FindEntity(ctx, entityID)
	if err != nil {
		return err
	}
	if !entity.HasAlias(alias) {
		if err := s.insertAlias(ctx, entityID, entity.Kind, alias, chapterID); err != nil {
			return err
		}
	}

	_, err = s.q.ExecContext(ctx,
		`UPDATE entities SET last_updated_chapter = CASE WHEN ? != '' THEN ? ELSE last_updated_chapter END, updated_at = ? WHERE id = ?`,
		chapterID, chapterID, timeNow(), entityID,
	)
	if err != nil {
		return fmt.Errorf("recording alias evidence: %w", err)
	}
	return nil
}

// DeleteEntity removes an entity; its alias rows cascade.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	return nil
}

const entitySelect = `
	SELECT id, kind, name, normalized_name, description, asset_ref, voice_profile,
		validation, first_seen_chapter, last_updated_chapter, created_at, updated_at
	FROM entities`

// insertAlias inserts one alias row. The UNIQUE(kind, normalized) constraint
// backstops alias ownership at the schema level.
func (s *Store) insertAlias(ctx context.Context, entityID string, kind entities.EntityKind, alias, chapterID string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO aliases (entity_id, kind, surface, normalized, chapter_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entityID, string(kind), alias, entities.NormalizeSurface(alias), chapterID, timeNow(),
	)
	if err != nil {
		return fmt.Errorf("inserting alias: %w", err)
	}
	return nil
}

// loadAliases fills the entity's alias slice in insertion order.
func (s *Store) loadAliases(ctx context.Context, entity *entities.Entity) error {
	rows, err := s.q.QueryContext(ctx,
		`SELECT surface FROM aliases WHERE entity_id = ? ORDER BY created_at ASC, surface ASC`,
		entity.ID,
	)
	if err != nil {
		return fmt.Errorf("querying aliases: %w", err)
	}
	defer rows.Close()

	entity.Aliases = nil
	for rows.Next() {
		var surface string
		if err := rows.Scan(&surface); err != nil {
			return fmt.Errorf("scanning alias: %w", err)
		}
		entity.Aliases = append(entity.Aliases, surface)
	}
	return rows.Err()
}

// scanEntity scans one entity row (aliases loaded separately).
func scanEntity(row interface{ Scan(...any) error }) (*entities.Entity, error) {
	var entity entities.Entity
	var kind, validation string
	err := row.Scan(
		&entity.ID,
		&kind,
		&entity.Name,
		&entity.NormalizedName,
		&entity.Description,
		&entity.AssetRef,
		&entity.VoiceProfile,
		&validation,
		&entity.FirstSeenChapter,
		&entity.LastUpdatedChapter,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	entity.Kind = entities.EntityKind(kind)
	entity.Validation = entities.ValidationStatus(validation)
	return &entity, nil
}
