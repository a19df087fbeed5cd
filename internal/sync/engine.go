// Package sync implements the offline-first reconciliation engine: it pushes
// the local mutation queues for one entity type to the remote service, pulls
// canonical state back down, and keeps the two from ever producing duplicate
// or lost records.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/retailbase/possync/internal/errors"
	"github.com/retailbase/possync/internal/localstore"
	"github.com/retailbase/possync/internal/logging"
	"github.com/retailbase/possync/internal/models"
	"github.com/retailbase/possync/internal/netmon"
	"github.com/retailbase/possync/internal/remote"
	"github.com/retailbase/possync/internal/sync/conflict"
	"github.com/retailbase/possync/internal/uuid"
)

// Engine reconciles one entity type's local queues with the remote service.
// At most one sync pass runs at a time per engine; concurrent callers attach
// to the in-flight pass instead of starting a duplicate.
type Engine[T models.Entity] struct {
	typ     models.EntityType
	store   *localstore.Store
	remote  remote.Client[T]
	monitor netmon.Monitor
	cfg     Config
	dup     *conflict.Detector[T]
	log     *logging.Logger

	mu       sync.Mutex
	inflight *pass

	// processing guards the pass's own iteration against re-entrant
	// scheduling inside this process. It is not a cross-process lock.
	procMu     sync.Mutex
	processing map[string]struct{}

	handlerMu sync.Mutex
	handler   EventHandler

	autoMu    sync.Mutex
	cancels   []func()
	sweepStop chan struct{}

	now func() time.Time
}

// pass is the single-slot lock for one engine: installed before any work,
// removed on every exit path. Waiters block on done and read result.
type pass struct {
	done   chan struct{}
	result SyncResult
}

// New creates an engine for one entity type. Zero Config fields fall back to
// DefaultConfig.
func New[T models.Entity](typ models.EntityType, store *localstore.Store, client remote.Client[T], monitor netmon.Monitor, cfg Config) *Engine[T] {
	cfg = cfg.withDefaults()
	return &Engine[T]{
		typ:        typ,
		store:      store,
		remote:     client,
		monitor:    monitor,
		cfg:        cfg,
		dup:        conflict.NewDetector[T](cfg.DuplicateWindow),
		log:        logging.Named("sync." + string(typ)),
		processing: make(map[string]struct{}),
		now:        time.Now,
	}
}

// Type returns the entity type this engine owns.
func (e *Engine[T]) Type() models.EntityType {
	return e.typ
}

// SetEventHandler registers the lifecycle event sink. Pass nil to detach.
func (e *Engine[T]) SetEventHandler(handler EventHandler) {
	e.handlerMu.Lock()
	e.handler = handler
	e.handlerMu.Unlock()
}

func (e *Engine[T]) emitEvent(event Event) {
	e.handlerMu.Lock()
	handler := e.handler
	e.handlerMu.Unlock()

	if handler != nil {
		go handler.OnSyncEvent(event)
	}
}

// =====================================================
// Local mutation API (the write path screens use)
// =====================================================

// Create queues a record created on this device and returns its local id.
// The record renders immediately with synced=false and is pushed on the next
// pass.
func (e *Engine[T]) Create(ctx context.Context, entity T) (string, error) {
	payload, err := json.Marshal(entity)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "encode entity", err)
	}

	localID := uuid.NewLocal()
	if err := e.store.EnqueueAdd(ctx, e.typ, localID, payload, e.now().Unix()); err != nil {
		return "", apperrors.Wrap(apperrors.ErrStore, "queue add", err)
	}
	return localID, nil
}

// Update queues field changes. An edit to a record that is still waiting for
// its server id rewrites the queued add in place; once the id translation
// exists, or for a server id, it lands in the update queue.
func (e *Engine[T]) Update(ctx context.Context, id string, entity T) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "encode entity", err)
	}

	if uuid.IsLocal(id) {
		ok, err := e.store.UpdateAddPayload(ctx, e.typ, id, payload)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStore, "rewrite queued add", err)
		}
		if ok {
			return nil
		}
		tr, err := e.store.TranslationFor(ctx, e.typ, id)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStore, "resolve local id", err)
		}
		if tr == nil {
			return apperrors.New(apperrors.ErrNotFound, "no record for local id "+id)
		}
		id = tr.ServerID
	}

	if err := e.store.EnqueueUpdate(ctx, e.typ, id, payload, e.now().Unix()); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "queue update", err)
	}
	return nil
}

// Delete queues a deletion. A record that never reached the server is simply
// dropped from the add queue; anything else gets a tombstone against its
// server id.
func (e *Engine[T]) Delete(ctx context.Context, id, actor string) error {
	if uuid.IsLocal(id) {
		tr, err := e.store.TranslationFor(ctx, e.typ, id)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStore, "resolve local id", err)
		}
		if tr == nil {
			if err := e.store.DeleteAdd(ctx, e.typ, id); err != nil {
				return apperrors.Wrap(apperrors.ErrStore, "drop queued add", err)
			}
			return nil
		}
		id = tr.ServerID
	}

	if err := e.store.EnqueueDelete(ctx, e.typ, id, actor, e.now().Unix()); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "queue delete", err)
	}
	return nil
}

// =====================================================
// Sync pass
// =====================================================

// Sync runs one full pass: push adds, push updates, push deletes, then
// conditionally pull. If a pass is already running the caller waits for its
// result instead of starting another; cancellation while waiting yields a
// no-op failure result without touching any queue. Sync never returns an
// error; failures are captured in the result and per-record metadata.
func (e *Engine[T]) Sync(ctx context.Context) SyncResult {
	e.mu.Lock()
	if e.inflight != nil {
		current := e.inflight
		e.mu.Unlock()
		select {
		case <-current.done:
			return current.result
		case <-ctx.Done():
			return SyncResult{Error: "sync already in progress"}
		}
	}
	p := &pass{done: make(chan struct{})}
	e.inflight = p
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inflight = nil
		e.mu.Unlock()
		close(p.done)
	}()

	p.result = e.runPass(ctx, false)
	return p.result
}

// ForceSync waits for any in-flight pass to finish, then runs another pass
// unconditionally (including the pull).
func (e *Engine[T]) ForceSync(ctx context.Context) SyncResult {
	for {
		e.mu.Lock()
		if e.inflight == nil {
			break
		}
		current := e.inflight
		e.mu.Unlock()
		select {
		case <-current.done:
		case <-ctx.Done():
			return SyncResult{Error: ctx.Err().Error()}
		}
	}

	p := &pass{done: make(chan struct{})}
	e.inflight = p
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inflight = nil
		e.mu.Unlock()
		close(p.done)
	}()

	p.result = e.runPass(ctx, true)
	return p.result
}

// runPass executes the fixed push-then-pull order. Deletes must not race
// adds of the same conceptual entity, and the pull replaces the canonical
// cache wholesale, which is only safe after every local queue has drained.
func (e *Engine[T]) runPass(ctx context.Context, force bool) SyncResult {
	var res SyncResult

	if e.monitor != nil && !e.monitor.Online() {
		res.Error = "offline"
		return res
	}

	e.emitEvent(Event{Type: EventSyncStarted, EntityType: e.typ})
	start := e.now()

	if err := e.pushAdds(ctx, &res); err != nil {
		return e.failPass(res, err)
	}
	if err := e.pushUpdates(ctx, &res); err != nil {
		return e.failPass(res, err)
	}
	if err := e.pushDeletes(ctx, &res); err != nil {
		return e.failPass(res, err)
	}

	e.maybePull(ctx, &res, force)

	res.Success = true
	if err := e.store.SetLastSync(ctx, e.typ, start.Unix()); err != nil {
		e.log.Warn("failed to record sync time", map[string]interface{}{"error": err.Error()})
	}

	e.emitEvent(Event{
		Type:       EventSyncCompleted,
		EntityType: e.typ,
		Detail: map[string]interface{}{
			"adds":    res.Adds.Pushed,
			"updates": res.Updates.Pushed,
			"deletes": res.Deletes.Pushed,
			"pulled":  res.Pulled,
		},
	})
	return res
}

func (e *Engine[T]) failPass(res SyncResult, err error) SyncResult {
	res.Success = false
	res.Error = err.Error()
	e.log.Error("sync pass failed", err)
	e.emitEvent(Event{
		Type:       EventSyncFailed,
		EntityType: e.typ,
		Detail:     map[string]interface{}{"error": err.Error()},
	})
	return res
}

// =====================================================
// Step 1: push adds
// =====================================================

func (e *Engine[T]) pushAdds(ctx context.Context, res *SyncResult) error {
	adds, err := e.store.ListAdds(ctx, e.typ)
	if err != nil {
		return fmt.Errorf("list add queue: %w", err)
	}
	if len(adds) == 0 {
		return nil
	}

	canonical := e.loadCanonical(ctx)

	for _, add := range adds {
		if created, ok := e.pushOneAdd(ctx, add, canonical, res); ok {
			// Later adds in the same pass must see the fresh record, or
			// two identical entries queued together would both push.
			canonical = append(canonical, created)
		}
	}
	return nil
}

// pushOneAdd returns the created entity when the push succeeded, so the
// caller can extend its duplicate-check snapshot.
func (e *Engine[T]) pushOneAdd(ctx context.Context, add models.PendingAdd, canonical []T, res *SyncResult) (T, bool) {
	var zero T

	if !e.beginProcessing(add.LocalID) {
		res.Adds.Skipped++
		return zero, false
	}
	defer e.endProcessing(add.LocalID)

	// Crash recovery: a prior pass may have created the record remotely
	// but died before clearing the queue. The translation is the proof.
	tr, err := e.store.TranslationFor(ctx, e.typ, add.LocalID)
	if err == nil && tr != nil {
		if err := e.store.DeleteAdd(ctx, e.typ, add.LocalID); err != nil {
			res.Adds.Failed++
			return zero, false
		}
		res.Adds.Skipped++
		return zero, false
	}

	var entity T
	if err := json.Unmarshal(add.Payload, &entity); err != nil {
		// A malformed payload can never push; keeping it queued would
		// fail forever.
		e.log.Warn("dropping malformed add record", map[string]interface{}{
			"local_id": add.LocalID,
			"error":    err.Error(),
		})
		_ = e.store.DeleteAdd(ctx, e.typ, add.LocalID)
		res.Adds.Evicted++
		return zero, false
	}

	if match, ok := e.dup.FindDuplicate(entity, canonical, e.now()); ok {
		e.log.Info("dropping add matching recent canonical record", map[string]interface{}{
			"local_id": add.LocalID,
			"matches":  match.EntityID(),
		})
		if err := e.store.DeleteAdd(ctx, e.typ, add.LocalID); err != nil {
			res.Adds.Failed++
			return zero, false
		}
		res.Adds.Skipped++
		return zero, false
	}

	key := IdempotencyKey(add.LocalID, add.CreatedAt, entity.NaturalKey())
	created, err := e.remote.Create(ctx, entity, key)
	if err != nil {
		if remote.IsConflict(err) {
			// The server already has this record; absence from the
			// queue is the goal state.
			if derr := e.store.DeleteAdd(ctx, e.typ, add.LocalID); derr != nil {
				res.Adds.Failed++
				return zero, false
			}
			res.Adds.Skipped++
			return zero, false
		}
		e.recordAddFailure(ctx, add.LocalID, err, res)
		return zero, false
	}

	payload, err := json.Marshal(created)
	if err != nil {
		e.recordAddFailure(ctx, add.LocalID, err, res)
		return zero, false
	}

	err = e.store.CompleteAdd(ctx, e.typ, add.LocalID, created.EntityID(), payload, created.UpdatedUnix(), e.now().Unix())
	if err != nil {
		e.recordAddFailure(ctx, add.LocalID, err, res)
		return zero, false
	}
	res.Adds.Pushed++
	return created, true
}

func (e *Engine[T]) recordAddFailure(ctx context.Context, localID string, cause error, res *SyncResult) {
	count, err := e.store.MarkAddFailure(ctx, e.typ, localID, cause.Error(), e.now().Unix())
	if err != nil {
		e.log.Error("failed to record add failure", err, map[string]interface{}{"local_id": localID})
		res.Adds.Failed++
		return
	}

	if count >= e.cfg.RetryCeiling {
		if derr := e.store.DeleteAdd(ctx, e.typ, localID); derr == nil {
			e.log.Warn("evicting add after exhausted retries", map[string]interface{}{
				"local_id": localID,
				"retries":  count,
				"error":    cause.Error(),
			})
			e.emitEvent(Event{
				Type:       EventRecordEvicted,
				EntityType: e.typ,
				Detail:     map[string]interface{}{"id": localID, "queue": "add"},
			})
			res.Adds.Evicted++
			return
		}
	}
	res.Adds.Failed++
}

// loadCanonical decodes the canonical cache for the duplicate check.
// Best effort: rows that fail to decode are skipped.
func (e *Engine[T]) loadCanonical(ctx context.Context) []T {
	rows, err := e.store.ListCanonical(ctx, e.typ)
	if err != nil {
		e.log.Warn("failed to load canonical cache for duplicate check", map[string]interface{}{"error": err.Error()})
		return nil
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var entity T
		if err := json.Unmarshal(row.Payload, &entity); err != nil {
			continue
		}
		out = append(out, entity)
	}
	return out
}

func (e *Engine[T]) beginProcessing(id string) bool {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	if _, busy := e.processing[id]; busy {
		return false
	}
	e.processing[id] = struct{}{}
	return true
}

func (e *Engine[T]) endProcessing(id string) {
	e.procMu.Lock()
	delete(e.processing, id)
	e.procMu.Unlock()
}

// =====================================================
// Step 2: push updates
// =====================================================

func (e *Engine[T]) pushUpdates(ctx context.Context, res *SyncResult) error {
	updates, err := e.store.ListUpdates(ctx, e.typ)
	if err != nil {
		return fmt.Errorf("list update queue: %w", err)
	}

	for _, up := range updates {
		var entity T
		if err := json.Unmarshal(up.Payload, &entity); err != nil {
			e.log.Warn("dropping malformed update record", map[string]interface{}{
				"id":    up.ID,
				"error": err.Error(),
			})
			_ = e.store.DeleteUpdate(ctx, e.typ, up.ID)
			res.Updates.Evicted++
			continue
		}

		updated, err := e.remote.Update(ctx, up.ID, entity)
		if err != nil {
			e.recordUpdateFailure(ctx, up.ID, err, res)
			continue
		}

		payload, err := json.Marshal(updated)
		if err != nil {
			e.recordUpdateFailure(ctx, up.ID, err, res)
			continue
		}
		if err := e.store.UpsertCanonical(ctx, e.typ, up.ID, payload, updated.UpdatedUnix()); err != nil {
			e.recordUpdateFailure(ctx, up.ID, err, res)
			continue
		}
		if err := e.store.DeleteUpdate(ctx, e.typ, up.ID); err != nil {
			res.Updates.Failed++
			continue
		}
		res.Updates.Pushed++
	}
	return nil
}

func (e *Engine[T]) recordUpdateFailure(ctx context.Context, id string, cause error, res *SyncResult) {
	count, err := e.store.MarkUpdateFailure(ctx, e.typ, id, cause.Error(), e.now().Unix())
	if err != nil {
		res.Updates.Failed++
		return
	}

	if count >= e.cfg.RetryCeiling {
		if derr := e.store.DeleteUpdate(ctx, e.typ, id); derr == nil {
			e.log.Warn("evicting update after exhausted retries", map[string]interface{}{
				"id":      id,
				"retries": count,
				"error":   cause.Error(),
			})
			e.emitEvent(Event{
				Type:       EventRecordEvicted,
				EntityType: e.typ,
				Detail:     map[string]interface{}{"id": id, "queue": "update"},
			})
			res.Updates.Evicted++
			return
		}
	}
	res.Updates.Failed++
}

// =====================================================
// Step 3: push deletes
// =====================================================

func (e *Engine[T]) pushDeletes(ctx context.Context, res *SyncResult) error {
	tombstones, err := e.store.ListDeletes(ctx, e.typ)
	if err != nil {
		return fmt.Errorf("list delete queue: %w", err)
	}

	for _, tomb := range tombstones {
		err := e.remote.Delete(ctx, tomb.ID)
		if err != nil && !remote.IsNotFound(err) {
			e.recordDeleteFailure(ctx, tomb.ID, err, res)
			continue
		}

		// Not-found counts as success: absence is the goal state.
		if err := e.store.CompleteDelete(ctx, e.typ, tomb.ID); err != nil {
			e.recordDeleteFailure(ctx, tomb.ID, err, res)
			continue
		}
		res.Deletes.Pushed++
	}
	return nil
}

func (e *Engine[T]) recordDeleteFailure(ctx context.Context, id string, cause error, res *SyncResult) {
	count, err := e.store.MarkDeleteFailure(ctx, e.typ, id, cause.Error(), e.now().Unix())
	if err != nil {
		res.Deletes.Failed++
		return
	}

	if count >= e.cfg.RetryCeiling {
		if derr := e.store.DeleteTombstone(ctx, e.typ, id); derr == nil {
			e.log.Warn("evicting tombstone after exhausted retries", map[string]interface{}{
				"id":      id,
				"retries": count,
				"error":   cause.Error(),
			})
			e.emitEvent(Event{
				Type:       EventRecordEvicted,
				EntityType: e.typ,
				Detail:     map[string]interface{}{"id": id, "queue": "delete"},
			})
			res.Deletes.Evicted++
			return
		}
	}
	res.Deletes.Failed++
}

// =====================================================
// Step 4: conditional pull
// =====================================================

// maybePull replaces the canonical cache with the server's current
// collection. Deletes may still be queued when their push failed, so the
// store keeps tombstoned ids out of the replacement. Pull failures are
// swallowed: a stale cache beats a failed pass.
func (e *Engine[T]) maybePull(ctx context.Context, res *SyncResult, force bool) {
	if !force && !res.changed() {
		lastPull, err := e.store.LastPull(ctx, e.typ)
		if err == nil && lastPull > 0 && e.now().Sub(time.Unix(lastPull, 0)) < e.cfg.PullMaxAge {
			return
		}
	}

	entities, err := e.remote.List(ctx)
	if err != nil {
		e.log.Warn("pull failed, keeping cached state", map[string]interface{}{"error": err.Error()})
		return
	}

	rows := make([]localstore.CachedRow, 0, len(entities))
	for _, entity := range entities {
		payload, err := json.Marshal(entity)
		if err != nil {
			continue
		}
		rows = append(rows, localstore.CachedRow{
			ID:        entity.EntityID(),
			Payload:   payload,
			UpdatedAt: entity.UpdatedUnix(),
		})
	}

	if err := e.store.ReplaceCanonical(ctx, e.typ, rows, e.now().Unix()); err != nil {
		e.log.Error("failed to replace canonical cache", err)
		return
	}
	res.Pulled = true
}

// =====================================================
// Status and auto-sync lifecycle
// =====================================================

// GetStatus returns a read-only snapshot. It reads only the local store and
// never blocks on the network.
func (e *Engine[T]) GetStatus() Status {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st := Status{EntityType: e.typ}

	if counts, err := e.store.CountAll(ctx, e.typ); err == nil {
		st.TotalEntities = counts.Canonical + counts.PendingAdds
		st.UnsyncedCount = counts.PendingAdds + counts.PendingUpdates
		st.PendingDeleteCount = counts.PendingDeletes
	}
	if last, err := e.store.LastSync(ctx, e.typ); err == nil && last > 0 {
		st.LastSync = time.Unix(last, 0)
	}
	if e.monitor != nil {
		st.IsOnline = e.monitor.Online()
	}

	e.mu.Lock()
	st.IsSyncing = e.inflight != nil
	e.mu.Unlock()

	return st
}

// SetupAutoSync registers the engine's triggers: a sync on connectivity
// restore, a sync on the optional focus signal, and a periodic sweep that
// evicts permanently-failed records. Idempotent; a second call without an
// intervening Cleanup is a no-op.
func (e *Engine[T]) SetupAutoSync(focus netmon.Signal) {
	e.autoMu.Lock()
	defer e.autoMu.Unlock()

	if e.sweepStop != nil {
		return
	}

	if e.monitor != nil {
		cancel := e.monitor.Subscribe(func(online bool) {
			if online {
				go e.Sync(context.Background())
			}
		})
		e.cancels = append(e.cancels, cancel)
	}
	if focus != nil {
		cancel := focus.Subscribe(func() {
			go e.Sync(context.Background())
		})
		e.cancels = append(e.cancels, cancel)
	}

	stop := make(chan struct{})
	e.sweepStop = stop
	go e.sweepLoop(stop)
}

// Cleanup undoes SetupAutoSync completely: every subscription is cancelled
// and the sweep stops. Idempotent.
func (e *Engine[T]) Cleanup() {
	e.autoMu.Lock()
	defer e.autoMu.Unlock()

	for _, cancel := range e.cancels {
		cancel()
	}
	e.cancels = nil

	if e.sweepStop != nil {
		close(e.sweepStop)
		e.sweepStop = nil
	}
}

func (e *Engine[T]) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := e.store.EvictExhausted(ctx, e.typ, e.cfg.RetryCeiling)
			cancel()
			if err != nil {
				e.log.Error("sweep failed", err)
				continue
			}
			if n > 0 {
				e.log.Warn("sweep evicted permanently failed records", map[string]interface{}{"count": n})
				e.emitEvent(Event{
					Type:       EventRecordEvicted,
					EntityType: e.typ,
					Detail:     map[string]interface{}{"count": n, "queue": "sweep"},
				})
			}
		}
	}
}
