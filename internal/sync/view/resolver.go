package view

import (
	"context"
	"encoding/json"

	"github.com/retailbase/possync/internal/localstore"
	"github.com/retailbase/possync/internal/models"
)

// Resolver turns cross-entity references (a stock-in's product id, a
// product's category id) into display names. References can dangle: the
// referenced record may have been deleted on the server, evicted from a
// queue, or not pulled yet. Resolution is total; a dangling reference
// renders as "Unknown <type>", never as an error.
type Resolver struct {
	store *localstore.Store
}

// NewResolver creates a resolver backed by the local store.
func NewResolver(store *localstore.Store) *Resolver {
	return &Resolver{store: store}
}

// NameField extracts the conventional "name" field from an entity payload.
// The common pick function for category and product references.
func NameField(payload json.RawMessage) string {
	var probe struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.Name
}

// Resolve returns a display name for the referenced record, consulting the
// canonical cache first, then the id translation table, then the referenced
// type's own add queue (a reference captured before the target synced still
// carries its local id). pick extracts the name from a raw payload.
func (r *Resolver) Resolve(ctx context.Context, typ models.EntityType, id string, pick func(json.RawMessage) string) string {
	if id == "" {
		return Unknown(typ)
	}

	if row, err := r.store.GetCanonical(ctx, typ, id); err == nil && row != nil {
		if name := pick(row.Payload); name != "" {
			return name
		}
		return Unknown(typ)
	}

	if tr, err := r.store.TranslationFor(ctx, typ, id); err == nil && tr != nil {
		if row, err := r.store.GetCanonical(ctx, typ, tr.ServerID); err == nil && row != nil {
			if name := pick(row.Payload); name != "" {
				return name
			}
		}
		return Unknown(typ)
	}

	if adds, err := r.store.ListAdds(ctx, typ); err == nil {
		for _, add := range adds {
			if add.LocalID != id {
				continue
			}
			if name := pick(add.Payload); name != "" {
				return name
			}
			break
		}
	}

	return Unknown(typ)
}

// Unknown is the placeholder rendered for a dangling reference.
func Unknown(typ models.EntityType) string {
	return "Unknown " + typ.Label()
}
