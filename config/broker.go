package config

import (
	"fmt"
	"time"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/infra/quote"
)

// WebhookConfig tunes the delivery subsystem.
type WebhookConfig struct {
	// Store selects delivery persistence: "memory" or "sqlite".
	Store string `json:"store"`
	// Path is the sqlite database location when Store is "sqlite".
	Path string `json:"path"`
	// FailureThreshold is the number of consecutive permanently-failed
	// deliveries before a webhook is disabled.
	FailureThreshold int `json:"failure_threshold"`
	// SenderTimeoutSec bounds one delivery attempt.
	SenderTimeoutSec int `json:"sender_timeout_sec"`
	// SchedulerTickMS is the retry queue polling interval.
	SchedulerTickMS int `json:"scheduler_tick_ms"`
}

func (c *WebhookConfig) SetDefaults() {
	if c.Store == "" {
		c.Store = "memory"
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SenderTimeoutSec <= 0 {
		c.SenderTimeoutSec = 30
	}
	if c.SchedulerTickMS <= 0 {
		c.SchedulerTickMS = 1000
	}
}

func (c WebhookConfig) Validate() error {
	if c.Store != "memory" && c.Store != "sqlite" {
		return fmt.Errorf("unknown webhook store %s", c.Store)
	}
	if c.Store == "sqlite" && c.Path == "" {
		return fmt.Errorf("webhook store path is required for sqlite")
	}
	return nil
}

// SenderTimeout returns the configured attempt timeout.
func (c WebhookConfig) SenderTimeout() time.Duration {
	return time.Duration(c.SenderTimeoutSec) * time.Second
}

// SchedulerTick returns the retry queue polling interval.
func (c WebhookConfig) SchedulerTick() time.Duration {
	return time.Duration(c.SchedulerTickMS) * time.Millisecond
}

// AvailabilityConfig seeds the capacity tracker.
type AvailabilityConfig struct {
	// ReservationTTLSec expires stale reservations. Zero keeps them until
	// released.
	ReservationTTLSec int `json:"reservation_ttl_sec"`
	// Capacities seeds total driver counts per provider type.
	Capacities map[string]int `json:"capacities"`
}

// ReservationTTL returns the configured reservation expiry.
func (c AvailabilityConfig) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLSec) * time.Second
}

// QuoteConfig configures the fee-schedule quoter.
type QuoteConfig struct {
	Currency  string                       `json:"currency"`
	Schedules map[string]quote.FeeSchedule `json:"schedules"`
}

func (c *QuoteConfig) SetDefaults() {
	if c.Currency == "" {
		c.Currency = "SAR"
	}
}

func (c QuoteConfig) Validate() error {
	for pt, s := range c.Schedules {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("schedule %s: %w", pt, err)
		}
	}
	return nil
}

// ProviderSchedules converts the string-keyed map to provider types.
func (c QuoteConfig) ProviderSchedules() map[model.ProviderType]quote.FeeSchedule {
	if len(c.Schedules) == 0 {
		return nil
	}
	out := make(map[model.ProviderType]quote.FeeSchedule, len(c.Schedules))
	for pt, s := range c.Schedules {
		out[model.ProviderType(pt)] = s
	}
	return out
}

// APIConfig configures the management HTTP surface.
type APIConfig struct {
	// Addr is the listen address of the API server.
	Addr string `json:"addr"`
	// AuditToken guards the selection audit endpoint when non-empty.
	AuditToken string `json:"audit_token"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// DirectoryConfig seeds the in-memory provider directory.
type DirectoryConfig struct {
	Providers []model.Provider `json:"providers"`
	Branches  []model.Branch   `json:"branches"`
}
