// Package sqlite provides a SQLite implementation of the StateStore
// interface. The database file is the project's durable source of truth;
// every stage boundary and validation decision commits through it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/narravid/narravid/internal/domain/ports"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ports.StateStore using SQLite.
type Store struct {
	q    querier
	db   *sql.DB // nil on a transactional view
	path string
}

// NewStore opens (or creates) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Enable foreign keys for referential integrity
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Store{q: db, db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// InTransaction runs fn against a transactional view of the store. A nested
// call on an already-transactional view joins the outer transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(tx ports.StateStore) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	view := &Store{q: tx, path: s.path}
	if err := fn(view); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// EnsureSchema creates the database schema if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Chapters (source text plus pipeline progress)
	CREATE TABLE IF NOT EXISTS chapters (
		id TEXT PRIMARY KEY,
		ordinal INTEGER NOT NULL,
		title TEXT NOT NULL,
		text TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chapters_ordinal ON chapters(ordinal);

	-- Entity registry
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		asset_ref TEXT NOT NULL DEFAULT '',
		voice_profile TEXT NOT NULL DEFAULT '',
		validation TEXT NOT NULL,
		first_seen_chapter TEXT NOT NULL DEFAULT '',
		last_updated_chapter TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
	CREATE INDEX IF NOT EXISTS idx_entities_normalized ON entities(kind, normalized_name);

	-- Alias ownership: one surface form belongs to at most one entity per kind
	CREATE TABLE IF NOT EXISTS aliases (
		entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		surface TEXT NOT NULL,
		normalized TEXT NOT NULL,
		chapter_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (entity_id, normalized),
		UNIQUE (kind, normalized)
	);
	CREATE INDEX IF NOT EXISTS idx_aliases_lookup ON aliases(kind, normalized);

	-- Human validation queue
	CREATE TABLE IF NOT EXISTS pending_items (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		chapter_id TEXT NOT NULL DEFAULT '',
		candidate TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		suggestions TEXT NOT NULL DEFAULT '[]',
		decided INTEGER NOT NULL DEFAULT 0,
		decision TEXT,
		created_at TIMESTAMP NOT NULL,
		decided_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_pending_undecided ON pending_items(decided, created_at);

	-- Script units per chapter
	CREATE TABLE IF NOT EXISTS script_units (
		id TEXT PRIMARY KEY,
		chapter_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		speaker_id TEXT NOT NULL DEFAULT '',
		estimated_duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (chapter_id, idx)
	);
	CREATE INDEX IF NOT EXISTS idx_script_units_chapter ON script_units(chapter_id, idx);

	-- Generated asset manifest
	CREATE TABLE IF NOT EXISTS scene_assets (
		id TEXT PRIMARY KEY,
		chapter_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		audio_path TEXT NOT NULL DEFAULT '',
		audio_duration_ms INTEGER NOT NULL DEFAULT 0,
		images TEXT NOT NULL DEFAULT '[]',
		clip_path TEXT NOT NULL DEFAULT '',
		cues TEXT NOT NULL DEFAULT '[]',
		degraded INTEGER NOT NULL DEFAULT 0,
		degraded_note TEXT NOT NULL DEFAULT '',
		superseded INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (unit_id, version)
	);
	CREATE INDEX IF NOT EXISTS idx_scene_assets_unit ON scene_assets(unit_id, superseded);
	CREATE INDEX IF NOT EXISTS idx_scene_assets_chapter ON scene_assets(chapter_id, superseded);

	-- Audit log (tracks registry and validation actions)
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		subject_id TEXT,
		details TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
	CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at);
	`

	if _, err := s.q.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
