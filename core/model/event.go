package model

import (
	"encoding/json"
	"time"
)

// Domain event types emitted by the core and consumed by the webhook
// dispatcher and external bridges.
const (
	EventOrderCreated          = "order.created"
	EventOrderUpdated          = "order.updated"
	EventOrderCompleted        = "order.completed"
	EventOrderCancelled        = "order.cancelled"
	EventVendorSelected        = "vendor.selected"
	EventDeliveryStatusChanged = "delivery.status_changed"
)

// DomainEvent is the unit published on the internal event bus. Payload must
// be JSON-serializable.
type DomainEvent struct {
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlation_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	Payload       any       `json:"payload"`
}

// MarshalPayload returns the JSON encoding of the event payload.
func (e DomainEvent) MarshalPayload() ([]byte, error) {
	return json.Marshal(e.Payload)
}
