package metrics

import (
	coremetrics "github.com/restaurant-platform/courierbroker/core/metrics"
	"github.com/restaurant-platform/courierbroker/core/model"
)

// MultiSink fans broker events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSelection forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordSelection(ev coremetrics.SelectionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSelection(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordWebhookDelivery forwards delivery attempts when supported by the sink.
func (m *MultiSink) RecordWebhookDelivery(ev coremetrics.WebhookDeliveryEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.WebhookDeliveryRecorder); ok {
			if err := rec.RecordWebhookDelivery(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordRetryQueueDepth forwards queue depth when supported by the sink.
func (m *MultiSink) RecordRetryQueueDepth(depth int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.RetryQueueRecorder); ok {
			if err := rec.RecordRetryQueueDepth(depth); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCapacityReservation forwards reserve outcomes when supported by the sink.
func (m *MultiSink) RecordCapacityReservation(pt model.ProviderType, reserved bool) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.CapacityRecorder); ok {
			if err := rec.RecordCapacityReservation(pt, reserved); err != nil {
				return err
			}
		}
	}
	return nil
}
