// Package localstore provides the embedded transactional store backing the
// sync engine: per entity type a canonical cache, three offline mutation
// queues and a synced-id translation table.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/retailbase/possync/internal/models"
)

// Store wraps the SQLite database holding all sync state.
type Store struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

const schema = `
CREATE TABLE IF NOT EXISTS entity_cache (
	entity_type TEXT NOT NULL,
	id          TEXT NOT NULL,
	payload     TEXT NOT NULL,
	updated_at  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (entity_type, id)
);

CREATE TABLE IF NOT EXISTS offline_add (
	entity_type  TEXT NOT NULL,
	local_id     TEXT NOT NULL,
	payload      TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	retry_count  INTEGER NOT NULL DEFAULT 0,
	sync_error   TEXT NOT NULL DEFAULT '',
	last_attempt INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (entity_type, local_id)
);

CREATE TABLE IF NOT EXISTS offline_update (
	entity_type  TEXT NOT NULL,
	id           TEXT NOT NULL,
	payload      TEXT NOT NULL,
	queued_at    INTEGER NOT NULL,
	retry_count  INTEGER NOT NULL DEFAULT 0,
	sync_error   TEXT NOT NULL DEFAULT '',
	last_attempt INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (entity_type, id)
);

CREATE TABLE IF NOT EXISTS offline_delete (
	entity_type  TEXT NOT NULL,
	id           TEXT NOT NULL,
	deleted_at   INTEGER NOT NULL,
	actor        TEXT NOT NULL DEFAULT '',
	retry_count  INTEGER NOT NULL DEFAULT 0,
	sync_error   TEXT NOT NULL DEFAULT '',
	last_attempt INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (entity_type, id)
);

CREATE TABLE IF NOT EXISTS synced_ids (
	entity_type TEXT NOT NULL,
	local_id    TEXT NOT NULL,
	server_id   TEXT NOT NULL,
	synced_at   INTEGER NOT NULL,
	PRIMARY KEY (entity_type, local_id)
);

CREATE INDEX IF NOT EXISTS idx_synced_ids_server
	ON synced_ids (entity_type, server_id);

CREATE TABLE IF NOT EXISTS sync_meta (
	entity_type  TEXT PRIMARY KEY,
	last_pull_at INTEGER NOT NULL DEFAULT 0,
	last_sync_at INTEGER NOT NULL DEFAULT 0
);
`

// Open opens (creating if needed) the sync database under dataDir.
// The database is opened with WAL mode and a single writer connection,
// matching SQLite's concurrency model.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "possync.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes cached statements and the underlying database.
func (s *Store) Close() error {
	s.stmtCache.Range(func(key, value interface{}) bool {
		value.(*sql.Stmt).Close()
		return true
	})
	return s.db.Close()
}

// prepareStmt gets or creates a prepared statement from the cache.
func (s *Store) prepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// =====================================================
// Canonical cache
// =====================================================

// CachedRow is one entry in the canonical cache: the last-known server state
// of an entity, stored as its JSON payload.
type CachedRow struct {
	ID        string
	Payload   []byte
	UpdatedAt int64
}

// UpsertCanonical writes or replaces one canonical cache row.
func (s *Store) UpsertCanonical(ctx context.Context, typ models.EntityType, id string, payload []byte, updatedAt int64) error {
	query := `
	INSERT INTO entity_cache (entity_type, id, payload, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (entity_type, id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, typ, id, string(payload), updatedAt)
	return err
}

// GetCanonical returns one canonical row, or nil if the entity is not cached.
func (s *Store) GetCanonical(ctx context.Context, typ models.EntityType, id string) (*CachedRow, error) {
	stmt, err := s.prepareStmt(`SELECT id, payload, updated_at FROM entity_cache WHERE entity_type = ? AND id = ?`)
	if err != nil {
		return nil, err
	}

	var row CachedRow
	var payload string
	err = stmt.QueryRowContext(ctx, typ, id).Scan(&row.ID, &payload, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.Payload = []byte(payload)
	return &row, nil
}

// ListCanonical returns every canonical row for the entity type.
func (s *Store) ListCanonical(ctx context.Context, typ models.EntityType) ([]CachedRow, error) {
	stmt, err := s.prepareStmt(`SELECT id, payload, updated_at FROM entity_cache WHERE entity_type = ? ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, typ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CachedRow
	for rows.Next() {
		var row CachedRow
		var payload string
		if err := rows.Scan(&row.ID, &payload, &row.UpdatedAt); err != nil {
			return nil, err
		}
		row.Payload = []byte(payload)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ReplaceCanonical replaces the entire canonical cache for the entity type
// with the given rows, prunes synced-id translations whose server id no
// longer exists, and records the pull time. Rows with a queued tombstone are
// not imported: the delete has not reached the server yet, and re-caching the
// row would resurrect it locally while its tombstone still waits to push.
// One transaction so readers never observe a half-replaced cache.
func (s *Store) ReplaceCanonical(ctx context.Context, typ models.EntityType, rows []CachedRow, pulledAt int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tombstoned, err := pendingDeleteIDs(ctx, tx, typ)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_cache WHERE entity_type = ?`, typ); err != nil {
		return err
	}
	for _, row := range rows {
		if _, queued := tombstoned[row.ID]; queued {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entity_cache (entity_type, id, payload, updated_at) VALUES (?, ?, ?, ?)`,
			typ, row.ID, string(row.Payload), row.UpdatedAt)
		if err != nil {
			return err
		}
	}

	// Prune translations pointing at ids the server no longer has.
	// Translations for tombstoned ids survive until CompleteDelete clears
	// them alongside the tombstone.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM synced_ids
		WHERE entity_type = ?
		  AND server_id NOT IN (SELECT id FROM entity_cache WHERE entity_type = ?)
		  AND server_id NOT IN (SELECT id FROM offline_delete WHERE entity_type = ?)`,
		typ, typ, typ); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_meta (entity_type, last_pull_at) VALUES (?, ?)
		ON CONFLICT (entity_type) DO UPDATE SET last_pull_at = excluded.last_pull_at`,
		typ, pulledAt); err != nil {
		return err
	}

	return tx.Commit()
}

func pendingDeleteIDs(ctx context.Context, tx *sql.Tx, typ models.EntityType) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM offline_delete WHERE entity_type = ?`, typ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// DeleteCanonical removes one canonical row.
func (s *Store) DeleteCanonical(ctx context.Context, typ models.EntityType, id string) error {
	stmt, err := s.prepareStmt(`DELETE FROM entity_cache WHERE entity_type = ? AND id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, typ, id)
	return err
}

// =====================================================
// Sync metadata and status counts
// =====================================================

// LastPull returns when the canonical cache for the type was last replaced
// from the server, zero if never.
func (s *Store) LastPull(ctx context.Context, typ models.EntityType) (int64, error) {
	stmt, err := s.prepareStmt(`SELECT last_pull_at FROM sync_meta WHERE entity_type = ?`)
	if err != nil {
		return 0, err
	}
	var at int64
	err = stmt.QueryRowContext(ctx, typ).Scan(&at)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return at, err
}

// SetLastSync records the completion time of a sync pass.
func (s *Store) SetLastSync(ctx context.Context, typ models.EntityType, at int64) error {
	stmt, err := s.prepareStmt(`
	INSERT INTO sync_meta (entity_type, last_sync_at) VALUES (?, ?)
	ON CONFLICT (entity_type) DO UPDATE SET last_sync_at = excluded.last_sync_at`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, typ, at)
	return err
}

// LastSync returns the completion time of the last sync pass, zero if never.
func (s *Store) LastSync(ctx context.Context, typ models.EntityType) (int64, error) {
	stmt, err := s.prepareStmt(`SELECT last_sync_at FROM sync_meta WHERE entity_type = ?`)
	if err != nil {
		return 0, err
	}
	var at int64
	err = stmt.QueryRowContext(ctx, typ).Scan(&at)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return at, err
}

// Counts summarizes one entity type's store state for status reporting.
type Counts struct {
	Canonical      int
	PendingAdds    int
	PendingUpdates int
	PendingDeletes int
}

// CountAll returns row counts across the cache and queues for one type.
func (s *Store) CountAll(ctx context.Context, typ models.EntityType) (Counts, error) {
	var c Counts
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM entity_cache WHERE entity_type = ?`, &c.Canonical},
		{`SELECT COUNT(*) FROM offline_add WHERE entity_type = ?`, &c.PendingAdds},
		{`SELECT COUNT(*) FROM offline_update WHERE entity_type = ?`, &c.PendingUpdates},
		{`SELECT COUNT(*) FROM offline_delete WHERE entity_type = ?`, &c.PendingDeletes},
	}
	for _, q := range counts {
		stmt, err := s.prepareStmt(q.query)
		if err != nil {
			return c, err
		}
		if err := stmt.QueryRowContext(ctx, typ).Scan(q.dest); err != nil {
			return c, err
		}
	}
	return c, nil
}
