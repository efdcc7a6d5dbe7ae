package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/webhook"
	"github.com/restaurant-platform/courierbroker/infra/logger"
)

type okSender struct{}

func (okSender) Send(_ context.Context, _ model.Webhook, _ model.Delivery) (webhook.Response, error) {
	return webhook.Response{StatusCode: http.StatusOK}, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	ws := webhook.NewMemoryWebhookStore()
	ds := webhook.NewMemoryDeliveryStore()
	registry, err := webhook.NewRegistry(ws, logger.NopLogger{})
	require.NoError(t, err)
	dispatcher, err := webhook.NewDispatcher(ws, ds, okSender{}, 0, logger.NopLogger{}, nil)
	require.NoError(t, err)
	return NewHandler(registry, dispatcher)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, h *Handler) model.Webhook {
	t.Helper()
	rec := do(h, http.MethodPost, "/api/webhooks",
		`{"company_id":"c1","name":"orders","url":"https://partner.example.com/hooks","events":["order.*"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		model.Webhook
		Secret string `json:"secret"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Secret)
	created.Webhook.Secret = created.Secret
	return created.Webhook
}

func TestHandler_RegisterExposesSecretOnce(t *testing.T) {
	h := newTestHandler(t)
	w := register(t, h)

	rec := do(h, http.MethodGet, "/api/webhooks/"+w.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), w.Secret)
}

func TestHandler_ListByCompany(t *testing.T) {
	h := newTestHandler(t)
	register(t, h)
	rec := do(h, http.MethodGet, "/api/webhooks?company_id=c1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Webhook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestHandler_Lifecycle(t *testing.T) {
	h := newTestHandler(t)
	w := register(t, h)

	assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, "/api/webhooks/"+w.ID+"/deactivate", "").Code)
	assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, "/api/webhooks/"+w.ID+"/reactivate", "").Code)
	assert.Equal(t, http.StatusNoContent, do(h, http.MethodPut, "/api/webhooks/"+w.ID+"/retry-policy",
		`{"max_retries":5,"retry_delay":30000000000,"backoff_multiplier":1.5}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/api/webhooks/"+w.ID+"/retry-policy",
		`{"max_retries":99,"retry_delay":30000000000,"backoff_multiplier":1.5}`).Code)
	assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, "/api/webhooks/"+w.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/webhooks/"+w.ID, "").Code)
}

func TestHandler_RejectsInvalidRegistration(t *testing.T) {
	h := newTestHandler(t)
	rec := do(h, http.MethodPost, "/api/webhooks", `{"name":"x","url":"ftp://nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_TestDelivery(t *testing.T) {
	h := newTestHandler(t)
	w := register(t, h)
	rec := do(h, http.MethodPost, "/api/webhooks/"+w.ID+"/test", `{"hello":"world"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var d model.Delivery
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, model.DeliverySuccess, d.Status)
	assert.Equal(t, "webhook.test", d.Event)
}

func TestHandler_Deliveries(t *testing.T) {
	h := newTestHandler(t)
	w := register(t, h)
	do(h, http.MethodPost, "/api/webhooks/"+w.ID+"/test", "")

	rec := do(h, http.MethodGet, "/api/webhooks/"+w.ID+"/deliveries?status=success&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Delivery
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestHandler_UnknownAction(t *testing.T) {
	h := newTestHandler(t)
	w := register(t, h)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodPost, "/api/webhooks/"+w.ID+"/frobnicate", "").Code)
}
