package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// SaveChapter inserts or updates a chapter row.
func (s *Store) SaveChapter(ctx context.Context, chapter *entities.Chapter) error {
	query := `
		INSERT INTO chapters (id, ordinal, title, text, fingerprint, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ordinal = excluded.ordinal,
			title = excluded.title,
			text = excluded.text,
			fingerprint = excluded.fingerprint,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := s.q.ExecContext(ctx, query,
		chapter.ID,
		chapter.Ordinal,
		chapter.Title,
		chapter.Text,
		chapter.Fingerprint,
		string(chapter.Status),
		chapter.CreatedAt,
		chapter.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving chapter: %w", err)
	}
	return nil
}

// FindChapter finds a chapter by ID.
func (s *Store) FindChapter(ctx context.Context, id string) (*entities.Chapter, error) {
	query := `
		SELECT id, ordinal, title, text, fingerprint, status, created_at, updated_at
		FROM chapters
		WHERE id = ?
	`
	chapter, err := scanChapter(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chapter: %w", err)
	}
	return chapter, nil
}

// ListChapters returns all chapters ordered by ordinal.
func (s *Store) ListChapters(ctx context.Context) ([]*entities.Chapter, error) {
	query := `
		SELECT id, ordinal, title, text, fingerprint, status, created_at, updated_at
		FROM chapters
		ORDER BY ordinal ASC
	`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*entities.Chapter
	for rows.Next() {
		chapter, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chapter: %w", err)
		}
		chapters = append(chapters, chapter)
	}
	return chapters, rows.Err()
}

// AdvanceChapter moves a chapter forward if the stored status still equals
// from. The guarded UPDATE makes concurrent advances safe: only one writer
// wins the transition.
func (s *Store) AdvanceChapter(ctx context.Context, id string, from, to entities.ChapterStatus) error {
	if !from.CanAdvanceTo(to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE chapters SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), timeNow(), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("advancing chapter: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		current, findErr := s.FindChapter(ctx, id)
		if findErr != nil {
			return findErr
		}
		return fmt.Errorf("chapter %s is %s, expected %s", id, current.Status, from)
	}
	return nil
}

// ResetChapter commits new content for a modified chapter in one
// transaction: status back to unprocessed, downstream artifacts dropped or
// superseded, undecided queue items from the chapter removed along with
// still-pending entities first seen there. Confirmed entities are untouched.
func (s *Store) ResetChapter(ctx context.Context, id, fingerprint, text string) error {
	return s.InTransaction(ctx, func(tx ports.StateStore) error {
		txs := tx.(*Store)
		now := timeNow()

		result, err := txs.q.ExecContext(ctx,
			`UPDATE chapters SET fingerprint = ?, text = ?, status = ?, updated_at = ? WHERE id = ?`,
			fingerprint, text, string(entities.ChapterUnprocessed), now, id,
		)
		if err != nil {
			return fmt.Errorf("resetting chapter: %w", err)
		}
		if affected, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("checking affected rows: %w", err)
		} else if affected == 0 {
			return ports.ErrNotFound
		}

		if _, err := txs.q.ExecContext(ctx, `DELETE FROM script_units WHERE chapter_id = ?`, id); err != nil {
			return fmt.Errorf("dropping script units: %w", err)
		}
		if _, err := txs.q.ExecContext(ctx, `UPDATE scene_assets SET superseded = 1 WHERE chapter_id = ?`, id); err != nil {
			return fmt.Errorf("superseding assets: %w", err)
		}

		// Pending entities whose only evidence was this chapter go with it.
		_, err = txs.q.ExecContext(ctx, `
			DELETE FROM entities
			WHERE validation = ? AND first_seen_chapter = ? AND id IN (
				SELECT entity_id FROM pending_items WHERE decided = 0 AND chapter_id = ? AND entity_id != ''
			)`,
			string(entities.ValidationPending), id, id,
		)
		if err != nil {
			return fmt.Errorf("dropping pending entities: %w", err)
		}

		if _, err := txs.q.ExecContext(ctx, `DELETE FROM pending_items WHERE decided = 0 AND chapter_id = ?`, id); err != nil {
			return fmt.Errorf("dropping pending items: %w", err)
		}
		return nil
	})
}

// scanChapter scans one chapter row.
func scanChapter(row interface{ Scan(...any) error }) (*entities.Chapter, error) {
	var chapter entities.Chapter
	var status string
	err := row.Scan(
		&chapter.ID,
		&chapter.Ordinal,
		&chapter.Title,
		&chapter.Text,
		&chapter.Fingerprint,
		&status,
		&chapter.CreatedAt,
		&chapter.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	chapter.Status = entities.ChapterStatus(status)
	return &chapter, nil
}
