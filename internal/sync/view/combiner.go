// Package view builds the read-side model screens render: the canonical cache
// merged with the pending queues, so every local change is visible before it
// reaches the server.
package view

import (
	"context"
	"encoding/json"

	"github.com/retailbase/possync/internal/localstore"
	"github.com/retailbase/possync/internal/models"
)

// DisplayRecord is one renderable row. Synced is false while any queued
// mutation for the record is still outstanding; LocalID is set only while the
// record exists nowhere but the add queue.
type DisplayRecord[T models.Entity] struct {
	Entity  T      `json:"entity"`
	LocalID string `json:"local_id,omitempty"`
	Synced  bool   `json:"synced"`
}

// Inputs is everything Combine consumes, already read from the store.
type Inputs[T models.Entity] struct {
	Canonical []localstore.CachedRow
	Adds      []models.PendingAdd
	Updates   []models.PendingUpdate
	Deletes   []models.Tombstone
}

// Combine merges the canonical cache with the mutation queues. Pure and
// total: malformed rows are skipped, never surfaced as errors. Queued deletes
// hide their records, queued updates overlay their canonical rows, and queued
// adds appear first so freshly-entered records sit at the top of a list.
func Combine[T models.Entity](in Inputs[T]) []DisplayRecord[T] {
	deleted := make(map[string]struct{}, len(in.Deletes))
	for _, tomb := range in.Deletes {
		deleted[tomb.ID] = struct{}{}
	}

	overlay := make(map[string]T, len(in.Updates))
	for _, up := range in.Updates {
		var entity T
		if err := json.Unmarshal(up.Payload, &entity); err != nil {
			continue
		}
		overlay[up.ID] = entity
	}

	out := make([]DisplayRecord[T], 0, len(in.Canonical)+len(in.Adds))

	for _, add := range in.Adds {
		var entity T
		if err := json.Unmarshal(add.Payload, &entity); err != nil {
			continue
		}
		out = append(out, DisplayRecord[T]{
			Entity:  entity,
			LocalID: add.LocalID,
			Synced:  false,
		})
	}

	for _, row := range in.Canonical {
		if _, gone := deleted[row.ID]; gone {
			continue
		}
		if entity, ok := overlay[row.ID]; ok {
			out = append(out, DisplayRecord[T]{Entity: entity, Synced: false})
			continue
		}
		var entity T
		if err := json.Unmarshal(row.Payload, &entity); err != nil {
			continue
		}
		out = append(out, DisplayRecord[T]{Entity: entity, Synced: true})
	}

	return out
}

// Load reads one entity type's cache and queues and combines them.
func Load[T models.Entity](ctx context.Context, store *localstore.Store, typ models.EntityType) ([]DisplayRecord[T], error) {
	canonical, err := store.ListCanonical(ctx, typ)
	if err != nil {
		return nil, err
	}
	adds, err := store.ListAdds(ctx, typ)
	if err != nil {
		return nil, err
	}
	updates, err := store.ListUpdates(ctx, typ)
	if err != nil {
		return nil, err
	}
	deletes, err := store.ListDeletes(ctx, typ)
	if err != nil {
		return nil, err
	}

	return Combine[T](Inputs[T]{
		Canonical: canonical,
		Adds:      adds,
		Updates:   updates,
		Deletes:   deletes,
	}), nil
}
