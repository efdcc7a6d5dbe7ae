package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/restaurant-platform/courierbroker/core/logger"
	"github.com/restaurant-platform/courierbroker/core/model"
)

// RegistrationSpec describes a new webhook subscription.
type RegistrationSpec struct {
	CompanyID   string             `json:"company_id"`
	Name        string             `json:"name"`
	URL         string             `json:"url"`
	Events      []string           `json:"events"`
	Headers     map[string]string  `json:"headers,omitempty"`
	OAuth       *model.OAuthConfig `json:"oauth,omitempty"`
	RetryPolicy *model.RetryPolicy `json:"retry_policy,omitempty"`
}

// Registry owns webhook subscription records and their lifecycle.
type Registry struct {
	store WebhookStore
	log   logger.Logger
	now   func() time.Time
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store WebhookStore, log logger.Logger) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("webhook: nil store provided to NewRegistry")
	}
	return &Registry{store: store, log: log, now: time.Now}, nil
}

// Register creates the subscription and returns it with the secret set.
// This is the only time the secret leaves the registry.
func (r *Registry) Register(ctx context.Context, spec RegistrationSpec) (model.Webhook, error) {
	if spec.CompanyID == "" || spec.Name == "" {
		return model.Webhook{}, fmt.Errorf("webhook: company id and name are required")
	}
	u, err := url.Parse(spec.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.Webhook{}, fmt.Errorf("webhook: invalid target url %q", spec.URL)
	}
	policy := model.DefaultRetryPolicy()
	if spec.RetryPolicy != nil {
		policy = *spec.RetryPolicy
	}
	if err := policy.Validate(); err != nil {
		return model.Webhook{}, fmt.Errorf("webhook: %w", err)
	}
	if spec.OAuth != nil {
		if err := spec.OAuth.Validate(); err != nil {
			return model.Webhook{}, fmt.Errorf("webhook: %w", err)
		}
	}
	secret, err := newSecret()
	if err != nil {
		return model.Webhook{}, fmt.Errorf("webhook: secret generation: %w", err)
	}

	w := model.Webhook{
		ID:          uuid.NewString(),
		CompanyID:   spec.CompanyID,
		Name:        spec.Name,
		URL:         spec.URL,
		Secret:      secret,
		Events:      spec.Events,
		Headers:     spec.Headers,
		OAuth:       spec.OAuth,
		RetryPolicy: policy,
		Status:      model.WebhookActive,
		CreatedAt:   r.now(),
	}
	if err := r.store.Save(ctx, w); err != nil {
		return model.Webhook{}, fmt.Errorf("webhook: save: %w", err)
	}
	r.log.Infof("webhook %s registered for company %s (%d events)", w.ID, w.CompanyID, len(w.Events))
	return w, nil
}

// Get returns the webhook with the secret redacted.
func (r *Registry) Get(ctx context.Context, id string) (model.Webhook, error) {
	w, err := r.store.Get(ctx, id)
	if err != nil {
		return model.Webhook{}, err
	}
	redact(&w)
	return w, nil
}

// List returns the company's webhooks with secrets redacted.
func (r *Registry) List(ctx context.Context, companyID string) ([]model.Webhook, error) {
	ws, err := r.store.List(ctx, companyID)
	if err != nil {
		return nil, err
	}
	for i := range ws {
		redact(&ws[i])
	}
	return ws, nil
}

// redact strips credentials before a record leaves the registry.
func redact(w *model.Webhook) {
	w.Secret = ""
	if w.OAuth != nil {
		o := *w.OAuth
		o.ClientSecret = ""
		w.OAuth = &o
	}
}

// Deactivate suspends the webhook. No new deliveries are dispatched to it.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	return r.transition(ctx, id, func(w *model.Webhook) {
		w.Status = model.WebhookInactive
	})
}

// Reactivate resets a failed or inactive webhook to active and clears its
// failure count.
func (r *Registry) Reactivate(ctx context.Context, id string) error {
	return r.transition(ctx, id, func(w *model.Webhook) {
		w.Status = model.WebhookActive
		w.FailureCount = 0
	})
}

// UpdateRetryPolicy replaces the retry policy after validating it.
func (r *Registry) UpdateRetryPolicy(ctx context.Context, id string, policy model.RetryPolicy) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return r.transition(ctx, id, func(w *model.Webhook) {
		w.RetryPolicy = policy
	})
}

// Delete removes the subscription. The caller is responsible for cancelling
// any scheduled retries for its deliveries.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if _, err := r.store.Get(ctx, id); err != nil {
		return err
	}
	return r.store.Delete(ctx, id)
}

func (r *Registry) transition(ctx context.Context, id string, mutate func(*model.Webhook)) error {
	w, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	mutate(&w)
	return r.store.Save(ctx, w)
}

func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
