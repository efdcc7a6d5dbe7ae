package model

import (
	"encoding/json"
	"time"
)

// DeliveryStatus is the state of one webhook delivery record.
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliverySuccess  DeliveryStatus = "success"
	DeliveryRetrying DeliveryStatus = "retrying"
	DeliveryFailed   DeliveryStatus = "failed"
)

// Terminal reports whether the status ends the delivery lifecycle.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySuccess || s == DeliveryFailed
}

// Delivery is a webhook delivery record. One record is mutated in place
// across retries; Attempt starts at 1 and increments per attempt.
type Delivery struct {
	ID        string          `json:"id"`
	WebhookID string          `json:"webhook_id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	Status    DeliveryStatus  `json:"status"`

	ResponseCode    int               `json:"response_code,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	Error           string            `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}
