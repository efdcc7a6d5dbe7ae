package webhookhttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/webhook"
	"github.com/restaurant-platform/courierbroker/infra/auth"
	"github.com/restaurant-platform/courierbroker/infra/logger"
)

const (
	defaultTimeout = 30 * time.Second
	// maxResponseBody bounds how much of the endpoint's reply is kept on the
	// delivery record.
	maxResponseBody = 4 << 10
)

// Sender delivers signed webhook payloads over HTTP POST. Endpoints with an
// OAuth config additionally get a client-credentials bearer token; token
// clients are cached per webhook.
type Sender struct {
	client *http.Client
	log    logger.Logger

	mu     sync.Mutex
	tokens map[string]*auth.ClientCred
}

// NewSender creates a sender. A zero timeout defaults to 30 seconds.
func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Sender{
		client: &http.Client{Timeout: timeout},
		log:    logger.New("webhook-sender"),
		tokens: make(map[string]*auth.ClientCred),
	}
}

func (s *Sender) tokenClient(w model.Webhook) *auth.ClientCred {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.tokens[w.ID]
	if !ok {
		cred = auth.NewClientCred(*w.OAuth)
		s.tokens[w.ID] = cred
	}
	return cred
}

// Send posts the delivery payload to the webhook URL with the HMAC
// signature and delivery headers attached.
func (s *Sender) Send(ctx context.Context, w model.Webhook, d model.Delivery) (webhook.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return webhook.Response{}, fmt.Errorf("webhookhttp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", webhook.Sign(w.Secret, d.Payload))
	req.Header.Set("X-Event-Type", d.Event)
	req.Header.Set("X-Delivery-ID", d.ID)
	req.Header.Set("X-Delivery-Attempt", fmt.Sprintf("%d", d.Attempt))
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}
	if w.OAuth != nil {
		if err := s.tokenClient(w).SetAuthHeader(req); err != nil {
			return webhook.Response{}, fmt.Errorf("webhookhttp: %w", err)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return webhook.Response{}, fmt.Errorf("webhookhttp: post %s: %w", w.URL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.log.Debugf("close response body: %v", cerr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return webhook.Response{StatusCode: resp.StatusCode}, fmt.Errorf("webhookhttp: read response: %w", err)
	}
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return webhook.Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Headers:    headers,
	}, nil
}
