package webhook

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/infra/logger"
)

// scriptedSender returns canned responses per webhook id, failing by
// default.
type scriptedSender struct {
	mu        sync.Mutex
	responses map[string][]Response
	errs      map[string]error
	calls     []model.Delivery
}

func newScriptedSender() *scriptedSender {
	return &scriptedSender{responses: make(map[string][]Response), errs: make(map[string]error)}
}

func (s *scriptedSender) respond(webhookID string, resp ...Response) {
	s.mu.Lock()
	s.responses[webhookID] = append(s.responses[webhookID], resp...)
	s.mu.Unlock()
}

func (s *scriptedSender) Send(_ context.Context, w model.Webhook, d model.Delivery) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	if err := s.errs[w.ID]; err != nil {
		return Response{}, err
	}
	queue := s.responses[w.ID]
	if len(queue) == 0 {
		return Response{StatusCode: 500, Body: "boom"}, nil
	}
	resp := queue[0]
	s.responses[w.ID] = queue[1:]
	return resp, nil
}

func (s *scriptedSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fixture struct {
	dispatcher *Dispatcher
	scheduler  *RetryScheduler
	webhooks   *MemoryWebhookStore
	deliveries *MemoryDeliveryStore
	sender     *scriptedSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		webhooks:   NewMemoryWebhookStore(),
		deliveries: NewMemoryDeliveryStore(),
		sender:     newScriptedSender(),
	}
	d, err := NewDispatcher(f.webhooks, f.deliveries, f.sender, 0, logger.NopLogger{}, nil)
	require.NoError(t, err)
	s, err := NewRetryScheduler(d.Redeliver, time.Second, logger.NopLogger{}, nil)
	require.NoError(t, err)
	d.SetScheduler(s)
	f.dispatcher = d
	f.scheduler = s
	return f
}

func (f *fixture) addWebhook(t *testing.T, id string, events []string, policy model.RetryPolicy) model.Webhook {
	t.Helper()
	w := model.Webhook{
		ID:          id,
		CompanyID:   "c1",
		Name:        id,
		URL:         "https://partner.example.com/" + id,
		Secret:      "s3cret",
		Events:      events,
		RetryPolicy: policy,
		Status:      model.WebhookActive,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, f.webhooks.Save(context.Background(), w))
	return w
}

func (f *fixture) singleDelivery(t *testing.T, webhookID string) model.Delivery {
	t.Helper()
	list, err := f.deliveries.List(context.Background(), webhookID, DeliveryFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func orderEvent() model.DomainEvent {
	return model.DomainEvent{
		Type:       model.EventOrderCreated,
		OccurredAt: time.Now(),
		Payload:    map[string]any{"order_id": "o1"},
	}
}

func TestDispatcher_FansOutToMatchingWebhooks(t *testing.T) {
	f := newFixture(t)
	f.addWebhook(t, "wh-orders", []string{"order.*"}, model.DefaultRetryPolicy())
	f.addWebhook(t, "wh-vendor", []string{model.EventVendorSelected}, model.DefaultRetryPolicy())
	inactive := f.addWebhook(t, "wh-off", []string{"order.*"}, model.DefaultRetryPolicy())
	inactive.Status = model.WebhookInactive
	require.NoError(t, f.webhooks.Save(context.Background(), inactive))

	f.sender.respond("wh-orders", Response{StatusCode: 200, Body: "ok"})
	f.dispatcher.HandleEvent(context.Background(), orderEvent())

	require.Eventually(t, func() bool { return f.sender.callCount() == 1 }, time.Second, 5*time.Millisecond)

	d := f.singleDelivery(t, "wh-orders")
	assert.Equal(t, model.DeliverySuccess, d.Status)
	assert.Equal(t, 200, d.ResponseCode)
	assert.NotNil(t, d.DeliveredAt)

	others, err := f.deliveries.List(context.Background(), "wh-vendor", DeliveryFilter{})
	require.NoError(t, err)
	assert.Empty(t, others, "non-matching webhook receives nothing")
	offs, err := f.deliveries.List(context.Background(), "wh-off", DeliveryFilter{})
	require.NoError(t, err)
	assert.Empty(t, offs, "inactive webhook receives nothing")
}

func TestDispatcher_SuccessResetsFailureCount(t *testing.T) {
	f := newFixture(t)
	w := f.addWebhook(t, "wh1", nil, model.DefaultRetryPolicy())
	w.FailureCount = 3
	require.NoError(t, f.webhooks.Save(context.Background(), w))

	f.sender.respond("wh1", Response{StatusCode: 204})
	delivery := model.Delivery{ID: "d1", WebhookID: "wh1", Event: model.EventOrderCreated, Attempt: 1, Status: model.DeliveryPending, CreatedAt: time.Now()}
	require.NoError(t, f.deliveries.Save(context.Background(), delivery))
	f.dispatcher.attempt(context.Background(), delivery)

	got, err := f.webhooks.Get(context.Background(), "wh1")
	require.NoError(t, err)
	assert.Zero(t, got.FailureCount)
	assert.NotNil(t, got.LastTriggeredAt)
}

func TestDispatcher_FailureSchedulesRetryWithBackoff(t *testing.T) {
	f := newFixture(t)
	policy := model.RetryPolicy{MaxRetries: 3, RetryDelay: 60 * time.Second, BackoffMultiplier: 2}
	f.addWebhook(t, "wh1", nil, policy)

	base := time.Now()
	f.dispatcher.now = func() time.Time { return base }

	delivery := model.Delivery{ID: "d1", WebhookID: "wh1", Event: model.EventOrderCreated, Attempt: 1, Status: model.DeliveryPending, CreatedAt: base}
	require.NoError(t, f.deliveries.Save(context.Background(), delivery))

	// First failure: retry at +60s.
	f.dispatcher.attempt(context.Background(), delivery)
	got, _ := f.deliveries.Get(context.Background(), "d1")
	assert.Equal(t, model.DeliveryRetrying, got.Status)
	assert.Equal(t, 2, got.Attempt)
	require.NotNil(t, got.NextRetryAt)
	assert.Equal(t, base.Add(60*time.Second), *got.NextRetryAt)
	assert.Equal(t, 1, f.scheduler.Len())

	// Second failure: +120s.
	f.dispatcher.attempt(context.Background(), got)
	got, _ = f.deliveries.Get(context.Background(), "d1")
	assert.Equal(t, 3, got.Attempt)
	assert.Equal(t, base.Add(120*time.Second), *got.NextRetryAt)

	// Third failure: +240s.
	f.dispatcher.attempt(context.Background(), got)
	got, _ = f.deliveries.Get(context.Background(), "d1")
	assert.Equal(t, 4, got.Attempt)
	assert.Equal(t, base.Add(240*time.Second), *got.NextRetryAt)

	// Fourth failure exhausts the budget: terminal, never rescheduled.
	f.scheduler.Cancel("d1")
	f.dispatcher.attempt(context.Background(), got)
	got, _ = f.deliveries.Get(context.Background(), "d1")
	assert.Equal(t, model.DeliveryFailed, got.Status)
	assert.Nil(t, got.NextRetryAt)
	assert.Zero(t, f.scheduler.Len())

	w, _ := f.webhooks.Get(context.Background(), "wh1")
	assert.Equal(t, 1, w.FailureCount)
}

func TestRetryDelayCappedAtOneHour(t *testing.T) {
	policy := model.RetryPolicy{MaxRetries: 10, RetryDelay: 30 * time.Minute, BackoffMultiplier: 4}
	assert.Equal(t, 30*time.Minute, retryDelay(policy, 1))
	assert.Equal(t, time.Hour, retryDelay(policy, 2))
	assert.Equal(t, time.Hour, retryDelay(policy, 8))
}

func TestDispatcher_ZeroRetriesFailImmediately(t *testing.T) {
	f := newFixture(t)
	policy := model.RetryPolicy{MaxRetries: 0, RetryDelay: 60 * time.Second, BackoffMultiplier: 2}
	f.addWebhook(t, "wh1", nil, policy)

	delivery := model.Delivery{ID: "d1", WebhookID: "wh1", Event: model.EventOrderCreated, Attempt: 1, Status: model.DeliveryPending, CreatedAt: time.Now()}
	require.NoError(t, f.deliveries.Save(context.Background(), delivery))
	f.dispatcher.attempt(context.Background(), delivery)

	got, _ := f.deliveries.Get(context.Background(), "d1")
	assert.Equal(t, model.DeliveryFailed, got.Status)
	assert.Zero(t, f.scheduler.Len())
}

func TestDispatcher_WebhookTripsAfterThreshold(t *testing.T) {
	f := newFixture(t)
	policy := model.RetryPolicy{MaxRetries: 0, RetryDelay: 60 * time.Second, BackoffMultiplier: 2}
	f.addWebhook(t, "wh1", nil, policy)

	for i := 0; i < DefaultFailureThreshold; i++ {
		id := fmt.Sprintf("d%d", i)
		delivery := model.Delivery{ID: id, WebhookID: "wh1", Event: model.EventOrderCreated, Attempt: 1, Status: model.DeliveryPending, CreatedAt: time.Now()}
		require.NoError(t, f.deliveries.Save(context.Background(), delivery))
		f.dispatcher.attempt(context.Background(), delivery)
	}

	w, _ := f.webhooks.Get(context.Background(), "wh1")
	assert.Equal(t, model.WebhookFailed, w.Status)

	// Tripped webhooks receive no new deliveries.
	before := f.sender.callCount()
	f.dispatcher.HandleEvent(context.Background(), orderEvent())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, f.sender.callCount())
}

func TestDispatcher_TransportErrorCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	f.addWebhook(t, "wh1", nil, model.DefaultRetryPolicy())
	f.sender.errs["wh1"] = fmt.Errorf("dial tcp: connection refused")

	delivery := model.Delivery{ID: "d1", WebhookID: "wh1", Event: model.EventOrderCreated, Attempt: 1, Status: model.DeliveryPending, CreatedAt: time.Now()}
	require.NoError(t, f.deliveries.Save(context.Background(), delivery))
	f.dispatcher.attempt(context.Background(), delivery)

	got, _ := f.deliveries.Get(context.Background(), "d1")
	assert.Equal(t, model.DeliveryRetrying, got.Status)
	assert.Contains(t, got.Error, "connection refused")
}

func TestDispatcher_TestDelivery(t *testing.T) {
	f := newFixture(t)
	f.addWebhook(t, "wh1", []string{"order.*"}, model.DefaultRetryPolicy())
	f.sender.respond("wh1", Response{StatusCode: 200, Body: "pong"})

	d, err := f.dispatcher.TestDelivery(context.Background(), "wh1", []byte(`{"ping":true}`))
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySuccess, d.Status)
	assert.Equal(t, "webhook.test", d.Event)
	assert.Zero(t, f.scheduler.Len(), "test deliveries never schedule retries")

	// Failing test delivery reports failure synchronously.
	d2, err := f.dispatcher.TestDelivery(context.Background(), "wh1", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryFailed, d2.Status)
	assert.Zero(t, f.scheduler.Len())
}

func TestDispatcher_ListDeliveriesFilters(t *testing.T) {
	f := newFixture(t)
	f.addWebhook(t, "wh1", nil, model.DefaultRetryPolicy())
	now := time.Now()
	for i, st := range []model.DeliveryStatus{model.DeliverySuccess, model.DeliveryFailed, model.DeliverySuccess} {
		require.NoError(t, f.deliveries.Save(context.Background(), model.Delivery{
			ID: fmt.Sprintf("d%d", i), WebhookID: "wh1", Event: model.EventOrderCreated,
			Attempt: 1, Status: st, CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	out, err := f.dispatcher.ListDeliveries(context.Background(), "wh1", DeliveryFilter{Status: model.DeliverySuccess})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.True(t, out[0].CreatedAt.After(out[1].CreatedAt), "newest first")

	_, err = f.dispatcher.ListDeliveries(context.Background(), "missing", DeliveryFilter{})
	assert.ErrorIs(t, err, ErrWebhookNotFound)
}

func TestDispatcher_RedeliverSkipsTerminal(t *testing.T) {
	f := newFixture(t)
	f.addWebhook(t, "wh1", nil, model.DefaultRetryPolicy())
	require.NoError(t, f.deliveries.Save(context.Background(), model.Delivery{
		ID: "d1", WebhookID: "wh1", Event: model.EventOrderCreated, Attempt: 4,
		Status: model.DeliveryFailed, CreatedAt: time.Now(),
	}))

	f.dispatcher.Redeliver(context.Background(), "d1")
	assert.Zero(t, f.sender.callCount(), "terminal deliveries are never re-attempted")
}
