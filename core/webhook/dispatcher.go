package webhook

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/restaurant-platform/courierbroker/core/logger"
	"github.com/restaurant-platform/courierbroker/core/metrics"
	"github.com/restaurant-platform/courierbroker/core/model"
)

// DefaultFailureThreshold is the number of consecutive permanently-failed
// deliveries after which a webhook transitions to the failed state.
const DefaultFailureThreshold = 5

// Response is the snapshot of an endpoint's reply to a delivery attempt.
type Response struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// Sender performs one signed HTTP delivery attempt within a bounded
// timeout.
type Sender interface {
	Send(ctx context.Context, w model.Webhook, d model.Delivery) (Response, error)
}

// Dispatcher fans domain events out to matching webhook subscriptions and
// drives the per-delivery retry state machine.
type Dispatcher struct {
	webhooks   WebhookStore
	deliveries DeliveryStore
	sender     Sender
	scheduler  *RetryScheduler
	log        logger.Logger
	metrics    metrics.MetricsSink
	threshold  int
	now        func() time.Time
}

// NewDispatcher creates a dispatcher. threshold of zero uses
// DefaultFailureThreshold.
func NewDispatcher(webhooks WebhookStore, deliveries DeliveryStore, sender Sender, threshold int, log logger.Logger, sink metrics.MetricsSink) (*Dispatcher, error) {
	if webhooks == nil || deliveries == nil || sender == nil {
		return nil, fmt.Errorf("webhook: nil parameter provided to NewDispatcher")
	}
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Dispatcher{
		webhooks:   webhooks,
		deliveries: deliveries,
		sender:     sender,
		log:        log,
		metrics:    sink,
		threshold:  threshold,
		now:        time.Now,
	}, nil
}

// SetScheduler wires the retry scheduler. Without one, failed deliveries
// fail permanently on the first attempt past the policy.
func (d *Dispatcher) SetScheduler(s *RetryScheduler) { d.scheduler = s }

// Run consumes domain events from the channel until the context is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context, events <-chan model.DomainEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.HandleEvent(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// HandleEvent fans the event out to every matching active webhook. Each
// delivery runs in its own goroutine; one endpoint's failure never affects
// the others.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev model.DomainEvent) {
	body, err := ev.MarshalPayload()
	if err != nil {
		d.log.Errorf("event %s payload not serializable: %v", ev.Type, err)
		return
	}
	hooks, err := d.webhooks.List(ctx, "")
	if err != nil {
		d.log.Errorf("webhook listing failed for event %s: %v", ev.Type, err)
		return
	}
	for _, w := range hooks {
		if w.Status != model.WebhookActive || !w.Matches(ev.Type) {
			continue
		}
		delivery := model.Delivery{
			ID:        uuid.NewString(),
			WebhookID: w.ID,
			Event:     ev.Type,
			Payload:   body,
			Attempt:   1,
			Status:    model.DeliveryPending,
			CreatedAt: d.now(),
		}
		if err := d.deliveries.Save(ctx, delivery); err != nil {
			d.log.Errorf("delivery record for webhook %s: %v", w.ID, err)
			continue
		}
		go d.attempt(ctx, delivery)
	}
}

// Redeliver is the RetryScheduler callback: it re-runs the attempt for a
// previously failed delivery.
func (d *Dispatcher) Redeliver(ctx context.Context, deliveryID string) {
	delivery, err := d.deliveries.Get(ctx, deliveryID)
	if err != nil {
		d.log.Warnf("redeliver %s: %v", deliveryID, err)
		return
	}
	if delivery.Status.Terminal() {
		return
	}
	delivery.Status = model.DeliveryPending
	delivery.NextRetryAt = nil
	if err := d.deliveries.Save(ctx, delivery); err != nil {
		d.log.Errorf("redeliver %s: %v", deliveryID, err)
		return
	}
	d.attempt(ctx, delivery)
}

// attempt performs one delivery attempt and applies the state machine:
// pending -> success | retrying -> pending | failed.
func (d *Dispatcher) attempt(ctx context.Context, delivery model.Delivery) {
	w, err := d.webhooks.Get(ctx, delivery.WebhookID)
	if err != nil {
		d.log.Warnf("delivery %s: webhook gone: %v", delivery.ID, err)
		return
	}
	// A failed or deactivated webhook stops receiving attempts until it is
	// reactivated. The delivery stays in its current state.
	if w.Status != model.WebhookActive {
		d.log.Debugf("delivery %s skipped: webhook %s is %s", delivery.ID, w.ID, w.Status)
		return
	}

	start := d.now()
	resp, sendErr := d.sender.Send(ctx, w, delivery)
	latency := d.now().Sub(start)

	success := sendErr == nil && resp.StatusCode >= 200 && resp.StatusCode < 300
	d.recordAttempt(delivery, resp, success, latency)

	if success {
		d.completeDelivery(ctx, w, delivery, resp)
		return
	}
	d.failAttempt(ctx, w, delivery, resp, sendErr)
}

func (d *Dispatcher) completeDelivery(ctx context.Context, w model.Webhook, delivery model.Delivery, resp Response) {
	now := d.now()
	delivery.Status = model.DeliverySuccess
	delivery.ResponseCode = resp.StatusCode
	delivery.ResponseBody = resp.Body
	delivery.ResponseHeaders = resp.Headers
	delivery.DeliveredAt = &now
	delivery.NextRetryAt = nil
	if err := d.deliveries.Save(ctx, delivery); err != nil {
		d.log.Errorf("delivery %s: save: %v", delivery.ID, err)
	}

	w.LastTriggeredAt = &now
	w.FailureCount = 0
	if err := d.webhooks.Save(ctx, w); err != nil {
		d.log.Errorf("webhook %s: save: %v", w.ID, err)
	}
}

func (d *Dispatcher) failAttempt(ctx context.Context, w model.Webhook, delivery model.Delivery, resp Response, sendErr error) {
	delivery.ResponseCode = resp.StatusCode
	delivery.ResponseBody = resp.Body
	delivery.ResponseHeaders = resp.Headers
	if sendErr != nil {
		delivery.Error = sendErr.Error()
	} else {
		delivery.Error = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	}
	derr := &DeliveryError{DeliveryID: delivery.ID, WebhookID: w.ID, StatusCode: resp.StatusCode, Err: sendErr}
	d.log.Warnf("%v (attempt %d)", derr, delivery.Attempt)

	// The attempt that just failed. Retries remain while it has not yet
	// consumed the policy budget: maxRetries=3 allows four attempts total.
	failedAttempt := delivery.Attempt
	if d.scheduler != nil && failedAttempt <= w.RetryPolicy.MaxRetries {
		delay := retryDelay(w.RetryPolicy, failedAttempt)
		next := d.now().Add(delay)
		delivery.Attempt = failedAttempt + 1
		delivery.Status = model.DeliveryRetrying
		delivery.NextRetryAt = &next
		if err := d.deliveries.Save(ctx, delivery); err != nil {
			d.log.Errorf("delivery %s: save: %v", delivery.ID, err)
			return
		}
		d.scheduler.Schedule(delivery.ID, w.ID, next)
		return
	}

	// Retry budget exhausted: terminal failure for this delivery.
	delivery.Status = model.DeliveryFailed
	delivery.NextRetryAt = nil
	if err := d.deliveries.Save(ctx, delivery); err != nil {
		d.log.Errorf("delivery %s: save: %v", delivery.ID, err)
	}
	perm := &PermanentFailureError{DeliveryID: delivery.ID, WebhookID: w.ID, Attempts: failedAttempt}
	d.log.Errorf("%v", perm)

	w.FailureCount++
	if w.FailureCount >= d.threshold && w.Status == model.WebhookActive {
		w.Status = model.WebhookFailed
		d.log.Errorf("webhook %s disabled after %d consecutive failures", w.ID, w.FailureCount)
		if d.scheduler != nil {
			d.scheduler.CancelWebhook(w.ID)
		}
	}
	if err := d.webhooks.Save(ctx, w); err != nil {
		d.log.Errorf("webhook %s: save: %v", w.ID, err)
	}
}

// maxRetryDelay caps the exponential backoff so aggressive multipliers
// cannot push a redelivery out by days.
const maxRetryDelay = time.Hour

// retryDelay computes the exponential backoff for the n-th failed attempt
// (1-based): retryDelay × backoffMultiplier^(n−1), capped at maxRetryDelay.
func retryDelay(p model.RetryPolicy, failedAttempt int) time.Duration {
	mult := math.Pow(p.BackoffMultiplier, float64(failedAttempt-1))
	delay := time.Duration(float64(p.RetryDelay) * mult)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// TestDelivery sends one signed out-of-band attempt with the sample
// payload and returns the mutated record. It never schedules retries.
func (d *Dispatcher) TestDelivery(ctx context.Context, webhookID string, payload []byte) (model.Delivery, error) {
	w, err := d.webhooks.Get(ctx, webhookID)
	if err != nil {
		return model.Delivery{}, err
	}
	if w.Status == model.WebhookInactive {
		return model.Delivery{}, ErrWebhookDisabled
	}
	delivery := model.Delivery{
		ID:        uuid.NewString(),
		WebhookID: w.ID,
		Event:     "webhook.test",
		Payload:   payload,
		Attempt:   1,
		Status:    model.DeliveryPending,
		CreatedAt: d.now(),
	}
	resp, sendErr := d.sender.Send(ctx, w, delivery)
	now := d.now()
	delivery.ResponseCode = resp.StatusCode
	delivery.ResponseBody = resp.Body
	delivery.ResponseHeaders = resp.Headers
	if sendErr == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		delivery.Status = model.DeliverySuccess
		delivery.DeliveredAt = &now
	} else {
		delivery.Status = model.DeliveryFailed
		if sendErr != nil {
			delivery.Error = sendErr.Error()
		} else {
			delivery.Error = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
		}
	}
	if err := d.deliveries.Save(ctx, delivery); err != nil {
		d.log.Errorf("test delivery %s: save: %v", delivery.ID, err)
	}
	return delivery, nil
}

// ListDeliveries exposes the delivery history for a webhook.
func (d *Dispatcher) ListDeliveries(ctx context.Context, webhookID string, f DeliveryFilter) ([]model.Delivery, error) {
	if _, err := d.webhooks.Get(ctx, webhookID); err != nil {
		return nil, err
	}
	return d.deliveries.List(ctx, webhookID, f)
}

func (d *Dispatcher) recordAttempt(delivery model.Delivery, resp Response, success bool, latency time.Duration) {
	if wr, ok := d.metrics.(metrics.WebhookDeliveryRecorder); ok {
		err := wr.RecordWebhookDelivery(metrics.WebhookDeliveryEvent{
			WebhookID:  delivery.WebhookID,
			Event:      delivery.Event,
			Attempt:    delivery.Attempt,
			Success:    success,
			StatusCode: resp.StatusCode,
			Latency:    latency,
			Time:       d.now(),
		})
		if err != nil {
			d.log.Errorf("delivery metrics: %v", err)
		}
	}
}
