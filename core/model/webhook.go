package model

import (
	"fmt"
	"strings"
	"time"
)

// WebhookStatus is the lifecycle state of a webhook subscription.
type WebhookStatus string

const (
	WebhookActive   WebhookStatus = "active"
	WebhookInactive WebhookStatus = "inactive"
	WebhookFailed   WebhookStatus = "failed"
)

// RetryPolicy controls redelivery of failed webhook attempts.
type RetryPolicy struct {
	// MaxRetries is the number of redeliveries after the initial attempt,
	// 0 to 10.
	MaxRetries int `json:"max_retries"`
	// RetryDelay is the base delay before the first retry, 10s to 1h.
	RetryDelay time.Duration `json:"retry_delay"`
	// BackoffMultiplier grows the delay per attempt. Values below 1 are
	// rejected.
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

// DefaultRetryPolicy mirrors the defaults applied when a webhook is
// registered without an explicit policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, RetryDelay: 60 * time.Second, BackoffMultiplier: 2}
}

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 || p.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be within [0,10], got %d", p.MaxRetries)
	}
	if p.RetryDelay < 10*time.Second || p.RetryDelay > time.Hour {
		return fmt.Errorf("retry_delay must be within [10s,1h], got %s", p.RetryDelay)
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1, got %v", p.BackoffMultiplier)
	}
	return nil
}

// OAuthConfig holds client-credentials settings for partner endpoints that
// require a bearer token on top of the payload signature.
type OAuthConfig struct {
	TokenURL     string   `json:"token_url"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// Validate checks the minimum fields needed to fetch a token.
func (c OAuthConfig) Validate() error {
	if c.TokenURL == "" || c.ClientID == "" {
		return fmt.Errorf("oauth requires token_url and client_id")
	}
	return nil
}

// Webhook is a partner endpoint subscription. The secret is set on creation
// and never re-exposed through the registry.
type Webhook struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Secret    string `json:"-"`
	// Events is the subscribed event filter. A trailing ".*" acts as a
	// wildcard: "order.*" matches every order event.
	Events          []string          `json:"events"`
	Headers         map[string]string `json:"headers,omitempty"`
	OAuth           *OAuthConfig      `json:"oauth,omitempty"`
	RetryPolicy     RetryPolicy       `json:"retry_policy"`
	Status          WebhookStatus     `json:"status"`
	FailureCount    int               `json:"failure_count"`
	LastTriggeredAt *time.Time        `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Matches reports whether the webhook subscribes to the given event type.
// An empty filter matches everything.
func (w Webhook) Matches(eventType string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, ev := range w.Events {
		if ev == eventType {
			return true
		}
		if prefix, ok := strings.CutSuffix(ev, ".*"); ok && strings.HasPrefix(eventType, prefix+".") {
			return true
		}
	}
	return false
}
