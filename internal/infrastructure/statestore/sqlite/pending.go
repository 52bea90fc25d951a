package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// EnqueuePending adds an item to the validation queue.
func (s *Store) EnqueuePending(ctx context.Context, item *entities.PendingItem) error {
	candidate, err := json.Marshal(item.Candidate)
	if err != nil {
		return fmt.Errorf("marshaling candidate: %w", err)
	}
	suggestions, err := json.Marshal(item.Suggestions)
	if err != nil {
		return fmt.Errorf("marshaling suggestions: %w", err)
	}

	query := `
		INSERT INTO pending_items (id, kind, chapter_id, candidate, entity_id, suggestions, decided, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`
	_, err = s.q.ExecContext(ctx, query,
		item.ID,
		string(item.Kind),
		item.Candidate.ChapterID,
		string(candidate),
		item.EntityID,
		string(suggestions),
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueueing pending item: %w", err)
	}
	return nil
}

// ListPending returns undecided queue items in FIFO order.
func (s *Store) ListPending(ctx context.Context) ([]*entities.PendingItem, error) {
	query := pendingSelect + ` WHERE decided = 0 ORDER BY created_at ASC, id ASC`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying pending items: %w", err)
	}
	defer rows.Close()

	var items []*entities.PendingItem
	for rows.Next() {
		item, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FindPending finds a queue item by ID.
func (s *Store) FindPending(ctx context.Context, id string) (*entities.PendingItem, error) {
	query := pendingSelect + ` WHERE id = ?`
	item, err := scanPending(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// MarkDecided records the decision on an undecided item. The guarded UPDATE
// keeps the gate re-entrant: a second decision on the same item fails.
func (s *Store) MarkDecided(ctx context.Context, id string, decision entities.Decision) error {
	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshaling decision: %w", err)
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE pending_items SET decided = 1, decision = ?, decided_at = ? WHERE id = ? AND decided = 0`,
		string(data), timeNow(), id,
	)
	if err != nil {
		return fmt.Errorf("marking item decided: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindPending(ctx, id); findErr != nil {
			return findErr
		}
		return fmt.Errorf("item %s already decided", id)
	}
	return nil
}

// CountPending returns the number of undecided queue items.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_items WHERE decided = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting pending items: %w", err)
	}
	return count, nil
}

const pendingSelect = `
	SELECT id, kind, candidate, entity_id, suggestions, decided, decision, created_at, decided_at
	FROM pending_items`

// scanPending scans one queue item row.
func scanPending(row interface{ Scan(...any) error }) (*entities.PendingItem, error) {
	var item entities.PendingItem
	var kind, candidate, suggestions string
	var decided int
	var decision sql.NullString
	var decidedAt sql.NullTime

	err := row.Scan(
		&item.ID,
		&kind,
		&candidate,
		&item.EntityID,
		&suggestions,
		&decided,
		&decision,
		&item.CreatedAt,
		&decidedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Kind = entities.PendingItemKind(kind)
	item.Decided = decided != 0
	if err := json.Unmarshal([]byte(candidate), &item.Candidate); err != nil {
		return nil, fmt.Errorf("unmarshaling candidate: %w", err)
	}
	if err := json.Unmarshal([]byte(suggestions), &item.Suggestions); err != nil {
		return nil, fmt.Errorf("unmarshaling suggestions: %w", err)
	}
	if decision.Valid && decision.String != "" {
		item.Decision = &entities.Decision{}
		if err := json.Unmarshal([]byte(decision.String), item.Decision); err != nil {
			return nil, fmt.Errorf("unmarshaling decision: %w", err)
		}
	}
	if decidedAt.Valid {
		item.DecidedAt = decidedAt.Time
	}
	return &item, nil
}
