package types

import "time"

// Catalog event names published after a committed write.
const (
	EventUserCreated    = "user.created"
	EventProductCreated = "product.created"
	EventProductUpdated = "product.updated"
	EventProductDeleted = "product.deleted"
)

// Event is the payload published to the catalog channel.
type Event struct {
	// Type is one of the Event* constants.
	Type string `json:"type"`

	// EntityID is the id of the user or product the event refers to.
	EntityID string `json:"entityId"`

	// OccurredAt is when the write committed.
	OccurredAt time.Time `json:"occurredAt"`
}
