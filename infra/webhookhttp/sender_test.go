package webhookhttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/webhook"
)

func TestSender_SignedDelivery(t *testing.T) {
	payload := []byte(`{"order_id":"o1"}`)
	var gotSig, gotEvent, gotID, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, payload, body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotSig = r.Header.Get("X-Signature")
		gotEvent = r.Header.Get("X-Event-Type")
		gotID = r.Header.Get("X-Delivery-ID")
		gotCustom = r.Header.Get("X-Partner-Token")
		rw.Header().Set("X-Request-Id", "r1")
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewSender(0)
	w := model.Webhook{
		URL:     srv.URL,
		Secret:  "topsecret",
		Headers: map[string]string{"X-Partner-Token": "tok"},
	}
	d := model.Delivery{ID: "d1", Event: "order.created", Payload: payload, Attempt: 1}

	resp, err := s.Send(context.Background(), w, d)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, resp.Body)
	assert.Equal(t, "r1", resp.Headers["X-Request-Id"])
	assert.True(t, webhook.VerifySignature("topsecret", payload, gotSig))
	assert.Equal(t, "order.created", gotEvent)
	assert.Equal(t, "d1", gotID)
	assert.Equal(t, "tok", gotCustom)
}

func TestSender_Non2xxIsReturnedNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSender(0)
	resp, err := s.Send(context.Background(), model.Webhook{URL: srv.URL}, model.Delivery{Payload: []byte("{}")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSender_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	s := NewSender(50 * time.Millisecond)
	_, err := s.Send(context.Background(), model.Webhook{URL: srv.URL}, model.Delivery{Payload: []byte("{}")})
	assert.Error(t, err)
}

func TestSender_TruncatesLargeResponse(t *testing.T) {
	big := make([]byte, 64<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write(big)
	}))
	defer srv.Close()

	s := NewSender(0)
	resp, err := s.Send(context.Background(), model.Webhook{URL: srv.URL}, model.Delivery{Payload: []byte("{}")})
	require.NoError(t, err)
	assert.Len(t, resp.Body, maxResponseBody)
}

func TestSender_OAuthBearerToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"access_token":"tok-xyz","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(0)
	w := model.Webhook{
		ID:     "w1",
		URL:    srv.URL,
		Secret: "topsecret",
		OAuth:  &model.OAuthConfig{TokenURL: tokenSrv.URL, ClientID: "id", ClientSecret: "secret"},
	}
	resp, err := s.Send(context.Background(), w, model.Delivery{ID: "d1", Payload: []byte("{}")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer tok-xyz", gotAuth)
}
