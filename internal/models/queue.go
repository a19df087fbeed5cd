package models

import "encoding/json"

// PendingAdd is a record created while offline, waiting for the server to
// confirm creation. Keyed by a store-local id that never collides with
// server-assigned ids.
type PendingAdd struct {
	LocalID         string          `json:"local_id"`
	Payload         json.RawMessage `json:"payload"`
	CreatedAt       int64           `json:"created_at"`
	SyncRetryCount  int             `json:"sync_retry_count"`
	SyncError       string          `json:"sync_error,omitempty"`
	LastSyncAttempt int64           `json:"last_sync_attempt,omitempty"`
}

// PendingUpdate is a field override queued against a record that already
// exists remotely, keyed by its server id.
type PendingUpdate struct {
	ID              string          `json:"id"`
	Payload         json.RawMessage `json:"payload"`
	QueuedAt        int64           `json:"queued_at"`
	SyncRetryCount  int             `json:"sync_retry_count"`
	SyncError       string          `json:"sync_error,omitempty"`
	LastSyncAttempt int64           `json:"last_sync_attempt,omitempty"`
}

// Tombstone marks a record deleted locally but not yet confirmed deleted by
// the server.
type Tombstone struct {
	ID              string `json:"id"`
	DeletedAt       int64  `json:"deleted_at"`
	Actor           string `json:"actor,omitempty"`
	SyncRetryCount  int    `json:"sync_retry_count"`
	SyncError       string `json:"sync_error,omitempty"`
	LastSyncAttempt int64  `json:"last_sync_attempt,omitempty"`
}

// SyncedID maps a local id to the server id the record received once its
// creation was confirmed. Written in the same transaction that clears the
// add queue entry.
type SyncedID struct {
	LocalID  string `json:"local_id"`
	ServerID string `json:"server_id"`
	SyncedAt int64  `json:"synced_at"`
}
