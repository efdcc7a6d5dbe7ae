package webhook

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/restaurant-platform/courierbroker/core/model"
)

// WebhookStore persists webhook subscription records.
type WebhookStore interface {
	Save(ctx context.Context, w model.Webhook) error
	Get(ctx context.Context, id string) (model.Webhook, error)
	// List returns the company's webhooks; an empty companyID lists all.
	List(ctx context.Context, companyID string) ([]model.Webhook, error)
	Delete(ctx context.Context, id string) error
}

// DeliveryFilter narrows a delivery listing.
type DeliveryFilter struct {
	Status model.DeliveryStatus
	Since  time.Time
	Until  time.Time
	Limit  int
}

// DeliveryStore persists webhook delivery records.
type DeliveryStore interface {
	Save(ctx context.Context, d model.Delivery) error
	Get(ctx context.Context, id string) (model.Delivery, error)
	// List returns deliveries for the webhook, newest first.
	List(ctx context.Context, webhookID string, f DeliveryFilter) ([]model.Delivery, error)
}

// MemoryWebhookStore is the in-memory WebhookStore used by tests and
// single-process deployments.
type MemoryWebhookStore struct {
	mu sync.RWMutex
	m  map[string]model.Webhook
}

func NewMemoryWebhookStore() *MemoryWebhookStore {
	return &MemoryWebhookStore{m: make(map[string]model.Webhook)}
}

func (s *MemoryWebhookStore) Save(_ context.Context, w model.Webhook) error {
	s.mu.Lock()
	s.m[w.ID] = w
	s.mu.Unlock()
	return nil
}

func (s *MemoryWebhookStore) Get(_ context.Context, id string) (model.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.m[id]
	if !ok {
		return model.Webhook{}, ErrWebhookNotFound
	}
	return w, nil
}

func (s *MemoryWebhookStore) List(_ context.Context, companyID string) ([]model.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Webhook, 0, len(s.m))
	for _, w := range s.m {
		if companyID == "" || w.CompanyID == companyID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryWebhookStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
	return nil
}

// MemoryDeliveryStore is the in-memory DeliveryStore.
type MemoryDeliveryStore struct {
	mu sync.RWMutex
	m  map[string]model.Delivery
}

func NewMemoryDeliveryStore() *MemoryDeliveryStore {
	return &MemoryDeliveryStore{m: make(map[string]model.Delivery)}
}

func (s *MemoryDeliveryStore) Save(_ context.Context, d model.Delivery) error {
	s.mu.Lock()
	s.m[d.ID] = d
	s.mu.Unlock()
	return nil
}

func (s *MemoryDeliveryStore) Get(_ context.Context, id string) (model.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.m[id]
	if !ok {
		return model.Delivery{}, ErrDeliveryNotFound
	}
	return d, nil
}

func (s *MemoryDeliveryStore) List(_ context.Context, webhookID string, f DeliveryFilter) ([]model.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Delivery, 0)
	for _, d := range s.m {
		if d.WebhookID != webhookID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && d.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && d.CreatedAt.After(f.Until) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
