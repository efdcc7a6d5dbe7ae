package metrics

import (
	"time"

	"github.com/restaurant-platform/courierbroker/core/model"
)

// SelectionEvent represents one completed (or failed) vendor selection.
type SelectionEvent struct {
	CompanyID    string
	BranchID     string
	ProviderType model.ProviderType
	TotalScore   float64
	Evaluated    int
	Eliminated   int
	Elapsed      time.Duration
	// Outcome is "selected", "no_eligible" or "no_viable".
	Outcome string
}

// MetricsSink records selection results for observability purposes.
type MetricsSink interface {
	RecordSelection(ev SelectionEvent) error
}

// WebhookDeliveryEvent captures one webhook delivery attempt.
type WebhookDeliveryEvent struct {
	WebhookID  string
	Event      string
	Attempt    int
	Success    bool
	StatusCode int
	Latency    time.Duration
	Time       time.Time
}

// WebhookDeliveryRecorder is implemented by sinks able to record webhook
// delivery attempts.
type WebhookDeliveryRecorder interface {
	RecordWebhookDelivery(ev WebhookDeliveryEvent) error
}

// RetryQueueRecorder records the depth of the retry queue.
type RetryQueueRecorder interface {
	RecordRetryQueueDepth(depth int) error
}

// CapacityRecorder records reserve/release outcomes on the availability
// tracker.
type CapacityRecorder interface {
	RecordCapacityReservation(pt model.ProviderType, reserved bool) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSelection(SelectionEvent) error                     { return nil }
func (NopSink) RecordWebhookDelivery(WebhookDeliveryEvent) error         { return nil }
func (NopSink) RecordRetryQueueDepth(int) error                          { return nil }
func (NopSink) RecordCapacityReservation(model.ProviderType, bool) error { return nil }
