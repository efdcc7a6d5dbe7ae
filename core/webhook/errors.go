package webhook

import (
	"errors"
	"fmt"
)

var (
	ErrWebhookNotFound  = errors.New("webhook: not found")
	ErrDeliveryNotFound = errors.New("webhook: delivery not found")
	ErrWebhookDisabled  = errors.New("webhook: not active")
)

// DeliveryError is a single failed delivery attempt. It drives the retry
// state machine and is never raised to event producers.
type DeliveryError struct {
	DeliveryID string
	WebhookID  string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook: delivery %s to %s failed: %v", e.DeliveryID, e.WebhookID, e.Err)
	}
	return fmt.Sprintf("webhook: delivery %s to %s failed with status %d", e.DeliveryID, e.WebhookID, e.StatusCode)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// PermanentFailureError marks a delivery that exhausted its retry budget.
// It is terminal for the delivery only; other deliveries are unaffected.
type PermanentFailureError struct {
	DeliveryID string
	WebhookID  string
	Attempts   int
}

func (e *PermanentFailureError) Error() string {
	return fmt.Sprintf("webhook: delivery %s to %s permanently failed after %d attempts", e.DeliveryID, e.WebhookID, e.Attempts)
}
