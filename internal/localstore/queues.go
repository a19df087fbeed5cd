package localstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/retailbase/possync/internal/models"
)

// =====================================================
// Add queue
// =====================================================

// EnqueueAdd stores a record created offline, keyed by its local id.
func (s *Store) EnqueueAdd(ctx context.Context, typ models.EntityType, localID string, payload []byte, createdAt int64) error {
	stmt, err := s.prepareStmt(`
	INSERT INTO offline_add (entity_type, local_id, payload, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, typ, localID, string(payload), createdAt)
	return err
}

// ListAdds returns the add queue in enqueue order.
func (s *Store) ListAdds(ctx context.Context, typ models.EntityType) ([]models.PendingAdd, error) {
	stmt, err := s.prepareStmt(`
	SELECT local_id, payload, created_at, retry_count, sync_error, last_attempt
	FROM offline_add WHERE entity_type = ? ORDER BY created_at, local_id`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, typ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PendingAdd
	for rows.Next() {
		var rec models.PendingAdd
		var payload string
		if err := rows.Scan(&rec.LocalID, &payload, &rec.CreatedAt, &rec.SyncRetryCount, &rec.SyncError, &rec.LastSyncAttempt); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteAdd removes one record from the add queue.
func (s *Store) DeleteAdd(ctx context.Context, typ models.EntityType, localID string) error {
	stmt, err := s.prepareStmt(`DELETE FROM offline_add WHERE entity_type = ? AND local_id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, typ, localID)
	return err
}

// UpdateAddPayload rewrites a queued add's payload in place (an edit to a
// record that has no server id yet). Returns false if the record is no
// longer queued.
func (s *Store) UpdateAddPayload(ctx context.Context, typ models.EntityType, localID string, payload []byte) (bool, error) {
	stmt, err := s.prepareStmt(`UPDATE offline_add SET payload = ? WHERE entity_type = ? AND local_id = ?`)
	if err != nil {
		return false, err
	}
	res, err := stmt.ExecContext(ctx, string(payload), typ, localID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkAddFailure records a failed push attempt and returns the new retry
// count.
func (s *Store) MarkAddFailure(ctx context.Context, typ models.EntityType, localID, syncError string, at int64) (int, error) {
	stmt, err := s.prepareStmt(`
	UPDATE offline_add SET retry_count = retry_count + 1, sync_error = ?, last_attempt = ?
	WHERE entity_type = ? AND local_id = ?`)
	if err != nil {
		return 0, err
	}
	if _, err := stmt.ExecContext(ctx, syncError, at, typ, localID); err != nil {
		return 0, err
	}

	stmt, err = s.prepareStmt(`SELECT retry_count FROM offline_add WHERE entity_type = ? AND local_id = ?`)
	if err != nil {
		return 0, err
	}
	var count int
	err = stmt.QueryRowContext(ctx, typ, localID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// CompleteAdd finalizes a confirmed creation in one transaction: the server's
// canonical row is cached, the local-to-server id translation is recorded and
// the add queue entry is cleared. A concurrent reader sees either all three
// writes or none.
func (s *Store) CompleteAdd(ctx context.Context, typ models.EntityType, localID, serverID string, payload []byte, updatedAt, syncedAt int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entity_cache (entity_type, id, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_type, id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		typ, serverID, string(payload), updatedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO synced_ids (entity_type, local_id, server_id, synced_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_type, local_id) DO UPDATE SET server_id = excluded.server_id, synced_at = excluded.synced_at`,
		typ, localID, serverID, syncedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM offline_add WHERE entity_type = ? AND local_id = ?`, typ, localID); err != nil {
		return err
	}

	return tx.Commit()
}

// =====================================================
// Update queue
// =====================================================

// EnqueueUpdate stores (or replaces) a pending update for a server id.
func (s *Store) EnqueueUpdate(ctx context.Context, typ models.EntityType, id string, payload []byte, queuedAt int64) error {
	stmt, err := s.prepareStmt(`
	INSERT INTO offline_update (entity_type, id, payload, queued_at) VALUES (?, ?, ?, ?)
	ON CONFLICT (entity_type, id) DO UPDATE SET payload = excluded.payload, queued_at = excluded.queued_at,
		retry_count = 0, sync_error = '', last_attempt = 0`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, typ, id, string(payload), queuedAt)
	return err
}

// ListUpdates returns the update queue in enqueue order.
func (s *Store) ListUpdates(ctx context.Context, typ models.EntityType) ([]models.PendingUpdate, error) {
	stmt, err := s.prepareStmt(`
	SELECT id, payload, queued_at, retry_count, sync_error, last_attempt
	FROM offline_update WHERE entity_type = ? ORDER BY queued_at, id`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, typ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PendingUpdate
	for rows.Next() {
		var rec models.PendingUpdate
		var payload string
		if err := rows.Scan(&rec.ID, &payload, &rec.QueuedAt, &rec.SyncRetryCount, &rec.SyncError, &rec.LastSyncAttempt); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteUpdate clears one pending update.
func (s *Store) DeleteUpdate(ctx context.Context, typ models.EntityType, id string) error {
	stmt, err := s.prepareStmt(`DELETE FROM offline_update WHERE entity_type = ? AND id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, typ, id)
	return err
}

// MarkUpdateFailure records a failed push attempt and returns the new retry
// count.
func (s *Store) MarkUpdateFailure(ctx context.Context, typ models.EntityType, id, syncError string, at int64) (int, error) {
	stmt, err := s.prepareStmt(`
	UPDATE offline_update SET retry_count = retry_count + 1, sync_error = ?, last_attempt = ?
	WHERE entity_type = ? AND id = ?`)
	if err != nil {
		return 0, err
	}
	if _, err := stmt.ExecContext(ctx, syncError, at, typ, id); err != nil {
		return 0, err
	}

	stmt, err = s.prepareStmt(`SELECT retry_count FROM offline_update WHERE entity_type = ? AND id = ?`)
	if err != nil {
		return 0, err
	}
	var count int
	err = stmt.QueryRowContext(ctx, typ, id).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// =====================================================
// Delete queue
// =====================================================

// EnqueueDelete writes a tombstone for a server id and clears any pending
// update for the same record in the same transaction, since pushing an
// update for a record about to be deleted is wasted work.
func (s *Store) EnqueueDelete(ctx context.Context, typ models.EntityType, id, actor string, deletedAt int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO offline_delete (entity_type, id, deleted_at, actor) VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_type, id) DO NOTHING`,
		typ, id, deletedAt, actor); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM offline_update WHERE entity_type = ? AND id = ?`, typ, id); err != nil {
		return err
	}

	return tx.Commit()
}

// ListDeletes returns the tombstone queue in enqueue order.
func (s *Store) ListDeletes(ctx context.Context, typ models.EntityType) ([]models.Tombstone, error) {
	stmt, err := s.prepareStmt(`
	SELECT id, deleted_at, actor, retry_count, sync_error, last_attempt
	FROM offline_delete WHERE entity_type = ? ORDER BY deleted_at, id`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, typ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Tombstone
	for rows.Next() {
		var rec models.Tombstone
		if err := rows.Scan(&rec.ID, &rec.DeletedAt, &rec.Actor, &rec.SyncRetryCount, &rec.SyncError, &rec.LastSyncAttempt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkDeleteFailure records a failed push attempt and returns the new retry
// count.
func (s *Store) MarkDeleteFailure(ctx context.Context, typ models.EntityType, id, syncError string, at int64) (int, error) {
	stmt, err := s.prepareStmt(`
	UPDATE offline_delete SET retry_count = retry_count + 1, sync_error = ?, last_attempt = ?
	WHERE entity_type = ? AND id = ?`)
	if err != nil {
		return 0, err
	}
	if _, err := stmt.ExecContext(ctx, syncError, at, typ, id); err != nil {
		return 0, err
	}

	stmt, err = s.prepareStmt(`SELECT retry_count FROM offline_delete WHERE entity_type = ? AND id = ?`)
	if err != nil {
		return 0, err
	}
	var count int
	err = stmt.QueryRowContext(ctx, typ, id).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// DeleteTombstone clears one tombstone without touching anything else.
func (s *Store) DeleteTombstone(ctx context.Context, typ models.EntityType, id string) error {
	stmt, err := s.prepareStmt(`DELETE FROM offline_delete WHERE entity_type = ? AND id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, typ, id)
	return err
}

// CompleteDelete finalizes a confirmed remote deletion in one transaction:
// the canonical row, the tombstone and any stale translation pointing at the
// server id are all removed together.
func (s *Store) CompleteDelete(ctx context.Context, typ models.EntityType, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entity_cache WHERE entity_type = ? AND id = ?`, typ, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM offline_delete WHERE entity_type = ? AND id = ?`, typ, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM synced_ids WHERE entity_type = ? AND server_id = ?`, typ, id); err != nil {
		return err
	}

	return tx.Commit()
}

// =====================================================
// Id translations
// =====================================================

// TranslationFor returns the local-to-server id mapping for a local id, or
// nil if the record has not been synced.
func (s *Store) TranslationFor(ctx context.Context, typ models.EntityType, localID string) (*models.SyncedID, error) {
	stmt, err := s.prepareStmt(`
	SELECT local_id, server_id, synced_at FROM synced_ids WHERE entity_type = ? AND local_id = ?`)
	if err != nil {
		return nil, err
	}

	var rec models.SyncedID
	err = stmt.QueryRowContext(ctx, typ, localID).Scan(&rec.LocalID, &rec.ServerID, &rec.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListTranslations returns every recorded translation for the entity type.
func (s *Store) ListTranslations(ctx context.Context, typ models.EntityType) ([]models.SyncedID, error) {
	stmt, err := s.prepareStmt(`
	SELECT local_id, server_id, synced_at FROM synced_ids WHERE entity_type = ? ORDER BY synced_at, local_id`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, typ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SyncedID
	for rows.Next() {
		var rec models.SyncedID
		if err := rows.Scan(&rec.LocalID, &rec.ServerID, &rec.SyncedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =====================================================
// Eviction sweep
// =====================================================

// EvictExhausted removes queue records whose retry count has reached the
// ceiling, across all three queues. Returns how many records were dropped.
func (s *Store) EvictExhausted(ctx context.Context, typ models.EntityType, ceiling int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	evicted := 0
	for _, table := range []string{"offline_add", "offline_update", "offline_delete"} {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE entity_type = ? AND retry_count >= ?`, typ, ceiling)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		evicted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return evicted, nil
}
