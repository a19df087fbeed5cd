// Package models defines the entity types the sync engine reconciles and the
// queue records the local store keeps per entity type.
package models

import "strings"

// EntityType names one syncable collection. Each type owns its own canonical
// cache, offline queues and id translations in the local store.
type EntityType string

const (
	EntityCategory    EntityType = "category"
	EntityProduct     EntityType = "product"
	EntityStockIn     EntityType = "stock_in"
	EntityStockOut    EntityType = "stock_out"
	EntitySalesReturn EntityType = "sales_return"
)

// AllEntityTypes returns every entity type the engine knows about, in the
// order they should be synced by a full pass across types.
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityCategory,
		EntityProduct,
		EntityStockIn,
		EntityStockOut,
		EntitySalesReturn,
	}
}

// Label returns a human-readable name used in placeholder display values.
func (t EntityType) Label() string {
	switch t {
	case EntityCategory:
		return "Category"
	case EntityProduct:
		return "Product"
	case EntityStockIn:
		return "Stock-In"
	case EntityStockOut:
		return "Stock-Out"
	case EntitySalesReturn:
		return "Sales Return"
	default:
		return "Record"
	}
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCategory, EntityProduct, EntityStockIn, EntityStockOut, EntitySalesReturn:
		return true
	}
	return false
}

// Entity is the contract every syncable record satisfies. Implementations are
// plain structs with value receivers so they round-trip through JSON.
type Entity interface {
	// EntityID returns the record's id: server-assigned once canonical,
	// local (prefixed) while still queued.
	EntityID() string

	// NaturalKey returns a normalized fingerprint of the record's
	// user-entered content, used by the content-duplicate heuristic.
	NaturalKey() string

	// UpdatedUnix returns the record's last-modified time as a unix
	// timestamp in seconds.
	UpdatedUnix() int64
}

// NormalizeKey lowercases and whitespace-collapses the given fragments and
// joins them into one natural-key string. Stable across retries of the same
// logical record.
func NormalizeKey(parts ...string) string {
	out := make([]string, 0, len(parts))
	empty := true
	for _, p := range parts {
		norm := strings.Join(strings.Fields(strings.ToLower(p)), " ")
		if norm != "" {
			empty = false
		}
		out = append(out, norm)
	}
	// All-blank input has no content to fingerprint; an empty key must not
	// match other empty keys downstream.
	if empty {
		return ""
	}
	return strings.Join(out, "|")
}
