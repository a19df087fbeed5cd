package sync

import (
	"context"
	"time"

	"github.com/retailbase/possync/internal/models"
	"github.com/retailbase/possync/internal/netmon"
)

// Config holds the tunables of one sync engine.
type Config struct {
	// RetryCeiling is how many failed push attempts a queued record gets
	// before it is evicted. Eviction is deliberate data loss that bounds
	// queue growth.
	RetryCeiling int

	// DuplicateWindow is how recently a canonical entity with the same
	// natural key must have been updated for a queued add to be treated
	// as a double submission and dropped.
	DuplicateWindow time.Duration

	// PullMaxAge is how stale the canonical cache may get before a pass
	// that pushed nothing still re-pulls.
	PullMaxAge time.Duration

	// SweepInterval is how often the auto-sync sweep evicts
	// permanently-failed records.
	SweepInterval time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		RetryCeiling:    5,
		DuplicateWindow: 10 * time.Minute,
		PullMaxAge:      3 * time.Minute,
		SweepInterval:   10 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = def.RetryCeiling
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = def.DuplicateWindow
	}
	if c.PullMaxAge <= 0 {
		c.PullMaxAge = def.PullMaxAge
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	return c
}

// OpStats counts what happened to one queue during a pass.
type OpStats struct {
	Pushed  int `json:"pushed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Evicted int `json:"evicted"`
}

// SyncResult is the outcome of one sync pass. Failures are captured here and
// in per-record queue metadata; a pass never panics or returns an error to
// its caller.
type SyncResult struct {
	Success bool    `json:"success"`
	Adds    OpStats `json:"adds"`
	Updates OpStats `json:"updates"`
	Deletes OpStats `json:"deletes"`
	Pulled  bool    `json:"pulled"`
	Error   string  `json:"error,omitempty"`
}

// changed reports whether the pass mutated any queue or the cache, which is
// what gates the conditional pull.
func (r SyncResult) changed() bool {
	for _, s := range []OpStats{r.Adds, r.Updates, r.Deletes} {
		if s.Pushed > 0 || s.Skipped > 0 || s.Evicted > 0 {
			return true
		}
	}
	return false
}

// Status is a read-only snapshot of one engine. Safe to build anytime; never
// touches the network.
type Status struct {
	EntityType         models.EntityType `json:"entity_type"`
	TotalEntities      int               `json:"total_entities"`
	UnsyncedCount      int               `json:"unsynced_count"`
	PendingDeleteCount int               `json:"pending_delete_count"`
	IsOnline           bool              `json:"is_online"`
	IsSyncing          bool              `json:"is_syncing"`
	LastSync           time.Time         `json:"last_sync"`
}

// Syncer is the entity-type-agnostic face of an Engine, used by the
// scheduler and the daemon to hold engines of different entity types
// together.
type Syncer interface {
	Type() models.EntityType
	Sync(ctx context.Context) SyncResult
	ForceSync(ctx context.Context) SyncResult
	GetStatus() Status
	SetupAutoSync(focus netmon.Signal)
	Cleanup()
}
