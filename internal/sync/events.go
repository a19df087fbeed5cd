package sync

import "github.com/retailbase/possync/internal/models"

// EventType names a sync lifecycle event.
type EventType string

const (
	EventSyncStarted   EventType = "sync.started"
	EventSyncCompleted EventType = "sync.completed"
	EventSyncFailed    EventType = "sync.failed"
	EventRecordEvicted EventType = "sync.record_evicted"
)

// Event is a sync lifecycle notification delivered to the registered
// handler, typically forwarded to the UI over a socket.
type Event struct {
	Type       EventType              `json:"type"`
	EntityType models.EntityType      `json:"entity_type"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
}

// EventHandler receives sync events. Handlers must not block; events are
// delivered asynchronously and dropped handlers are not retried.
type EventHandler interface {
	OnSyncEvent(event Event)
}
