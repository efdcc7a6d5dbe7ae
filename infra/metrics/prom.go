package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/restaurant-platform/courierbroker/core/metrics"
	"github.com/restaurant-platform/courierbroker/core/model"
)

// PromSink records selection and webhook delivery events in Prometheus
// metrics.
type PromSink struct {
	selections   *prometheus.CounterVec
	scores       *prometheus.HistogramVec
	deliveries   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	retryQueue   prometheus.Gauge
	reservations *prometheus.CounterVec
}

// NewPromSink registers broker metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	selections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendor_selections_total",
		Help: "Total number of vendor selection requests",
	}, []string{"company_id", "provider_type", "outcome"})
	scores := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vendor_selection_score",
		Help:    "Total score of the selected vendor",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	}, []string{"provider_type"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Total number of webhook delivery attempts",
	}, []string{"event", "success"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_delivery_latency_seconds",
		Help:    "Time between webhook send and endpoint response",
		Buckets: prometheus.DefBuckets,
	}, []string{"event", "success"})
	retryQueue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "webhook_retry_queue_depth",
		Help: "Number of deliveries waiting for a retry",
	})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_reservations_total",
		Help: "Capacity reservation attempts on provider fleets",
	}, []string{"provider_type", "reserved"})

	if err := reg.Register(selections); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			selections = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(scores); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			scores = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(deliveries); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			deliveries = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(retryQueue); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			retryQueue = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(reservations); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			reservations = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		selections:   selections,
		scores:       scores,
		deliveries:   deliveries,
		latency:      latency,
		retryQueue:   retryQueue,
		reservations: reservations,
	}, nil
}

// RecordSelection increments the selection counter and, for winning
// selections, observes the total score.
func (s *PromSink) RecordSelection(ev coremetrics.SelectionEvent) error {
	s.selections.WithLabelValues(ev.CompanyID, string(ev.ProviderType), ev.Outcome).Inc()
	if ev.Outcome == "selected" {
		s.scores.WithLabelValues(string(ev.ProviderType)).Observe(ev.TotalScore)
	}
	return nil
}

// RecordWebhookDelivery records one delivery attempt.
func (s *PromSink) RecordWebhookDelivery(ev coremetrics.WebhookDeliveryEvent) error {
	ok := strconv.FormatBool(ev.Success)
	s.deliveries.WithLabelValues(ev.Event, ok).Inc()
	s.latency.WithLabelValues(ev.Event, ok).Observe(ev.Latency.Seconds())
	return nil
}

// RecordRetryQueueDepth sets the retry queue gauge.
func (s *PromSink) RecordRetryQueueDepth(depth int) error {
	if s.retryQueue != nil {
		s.retryQueue.Set(float64(depth))
	}
	return nil
}

// RecordCapacityReservation counts reserve outcomes per provider type.
func (s *PromSink) RecordCapacityReservation(pt model.ProviderType, reserved bool) error {
	s.reservations.WithLabelValues(string(pt), strconv.FormatBool(reserved)).Inc()
	return nil
}
