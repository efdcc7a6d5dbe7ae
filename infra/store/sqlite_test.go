package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/webhook"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_WebhookRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ws := s.Webhooks()

	w := model.Webhook{
		ID:          "w1",
		CompanyID:   "c1",
		Name:        "orders",
		URL:         "https://partner.example.com/hooks",
		Secret:      "topsecret",
		Events:      []string{"order.*"},
		RetryPolicy: model.DefaultRetryPolicy(),
		Status:      model.WebhookActive,
		CreatedAt:   time.Now().Truncate(time.Second),
	}
	require.NoError(t, ws.Save(ctx, w))

	got, err := ws.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "topsecret", got.Secret, "secret survives the json:\"-\" tag via its own column")
	assert.Equal(t, w.Events, got.Events)
	assert.Equal(t, w.RetryPolicy, got.RetryPolicy)

	w.Status = model.WebhookFailed
	require.NoError(t, ws.Save(ctx, w))
	got, err = ws.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, model.WebhookFailed, got.Status)

	_, err = ws.Get(ctx, "missing")
	assert.ErrorIs(t, err, webhook.ErrWebhookNotFound)
}

func TestSQLite_WebhookListByCompany(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ws := s.Webhooks()
	base := time.Now()
	for i, company := range []string{"c1", "c1", "c2"} {
		require.NoError(t, ws.Save(ctx, model.Webhook{
			ID: string(rune('a' + i)), CompanyID: company, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	list, err := ws.List(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	all, err := ws.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, ws.Delete(ctx, "a"))
	list, err = ws.List(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLite_DeliveryFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ds := s.Deliveries()
	base := time.Now().Truncate(time.Second)

	saves := []model.Delivery{
		{ID: "d1", WebhookID: "w1", Status: model.DeliverySuccess, CreatedAt: base},
		{ID: "d2", WebhookID: "w1", Status: model.DeliveryFailed, CreatedAt: base.Add(time.Minute)},
		{ID: "d3", WebhookID: "w1", Status: model.DeliverySuccess, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "d4", WebhookID: "w2", Status: model.DeliverySuccess, CreatedAt: base},
	}
	for _, d := range saves {
		require.NoError(t, ds.Save(ctx, d))
	}

	all, err := ds.List(ctx, "w1", webhook.DeliveryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "d3", all[0].ID, "newest first")

	failed, err := ds.List(ctx, "w1", webhook.DeliveryFilter{Status: model.DeliveryFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "d2", failed[0].ID)

	limited, err := ds.List(ctx, "w1", webhook.DeliveryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	since, err := ds.List(ctx, "w1", webhook.DeliveryFilter{Since: base.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	_, err = ds.Get(ctx, "missing")
	assert.ErrorIs(t, err, webhook.ErrDeliveryNotFound)
}

func TestSQLite_DeliveryUpdateInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ds := s.Deliveries()

	d := model.Delivery{ID: "d1", WebhookID: "w1", Attempt: 1, Status: model.DeliveryPending, CreatedAt: time.Now()}
	require.NoError(t, ds.Save(ctx, d))
	d.Attempt = 2
	d.Status = model.DeliveryRetrying
	require.NoError(t, ds.Save(ctx, d))

	got, err := ds.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempt)
	assert.Equal(t, model.DeliveryRetrying, got.Status)
}
