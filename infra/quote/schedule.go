package quote

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/selection"
)

// FeeSchedule is the pricing configuration of one provider fleet.
type FeeSchedule struct {
	BaseFee             float64 `json:"base_fee"`
	PerKmFee            float64 `json:"per_km_fee"`
	UrgencySurchargePct float64 `json:"urgency_surcharge_pct"`
	SmallOrderFee       float64 `json:"small_order_fee"`
	SmallOrderBelow     float64 `json:"small_order_below"`
	AvgSpeedKmh         float64 `json:"avg_speed_kmh"`
	PickupMinutes       int     `json:"pickup_minutes"`
}

// Validate rejects schedules that would produce nonsensical quotes.
func (f FeeSchedule) Validate() error {
	if f.BaseFee < 0 || f.PerKmFee < 0 || f.SmallOrderFee < 0 {
		return fmt.Errorf("quote: negative fee in schedule")
	}
	if f.UrgencySurchargePct < 0 || f.UrgencySurchargePct > 100 {
		return fmt.Errorf("quote: urgency surcharge must be within [0,100], got %.2f", f.UrgencySurchargePct)
	}
	if f.AvgSpeedKmh < 0 {
		return fmt.Errorf("quote: negative average speed")
	}
	return nil
}

// ScheduleQuoter prices deliveries from static per-fleet fee schedules.
type ScheduleQuoter struct {
	mu        sync.RWMutex
	schedules map[model.ProviderType]FeeSchedule
	currency  string
	now       func() time.Time
}

// DefaultSchedules returns the built-in pricing table.
func DefaultSchedules() map[model.ProviderType]FeeSchedule {
	return map[model.ProviderType]FeeSchedule{
		model.ProviderCareem:    {BaseFee: 8, PerKmFee: 1.5, UrgencySurchargePct: 20, SmallOrderFee: 3, SmallOrderBelow: 30, AvgSpeedKmh: 28, PickupMinutes: 6},
		model.ProviderTalabat:   {BaseFee: 7, PerKmFee: 1.4, UrgencySurchargePct: 15, SmallOrderFee: 2, SmallOrderBelow: 25, AvgSpeedKmh: 26, PickupMinutes: 7},
		model.ProviderJahez:     {BaseFee: 7.5, PerKmFee: 1.3, UrgencySurchargePct: 15, SmallOrderFee: 2.5, SmallOrderBelow: 25, AvgSpeedKmh: 27, PickupMinutes: 7},
		model.ProviderDeliveroo: {BaseFee: 9, PerKmFee: 1.7, UrgencySurchargePct: 25, SmallOrderFee: 3, SmallOrderBelow: 35, AvgSpeedKmh: 25, PickupMinutes: 8},
		model.ProviderDhub:      {BaseFee: 6, PerKmFee: 1.2, UrgencySurchargePct: 10, SmallOrderFee: 2, SmallOrderBelow: 20, AvgSpeedKmh: 24, PickupMinutes: 9},
		model.ProviderOwnFleet:  {BaseFee: 4, PerKmFee: 1.0, UrgencySurchargePct: 0, SmallOrderFee: 0, SmallOrderBelow: 0, AvgSpeedKmh: 22, PickupMinutes: 5},
	}
}

// NewScheduleQuoter creates a quoter. Empty currency defaults to SAR and
// nil schedules fall back to DefaultSchedules.
func NewScheduleQuoter(schedules map[model.ProviderType]FeeSchedule, currency string) (*ScheduleQuoter, error) {
	if schedules == nil {
		schedules = DefaultSchedules()
	}
	for pt, s := range schedules {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("schedule for %s: %w", pt, err)
		}
	}
	if currency == "" {
		currency = "SAR"
	}
	return &ScheduleQuoter{schedules: schedules, currency: currency, now: time.Now}, nil
}

// SetSchedule replaces the schedule for one fleet at runtime.
func (q *ScheduleQuoter) SetSchedule(pt model.ProviderType, s FeeSchedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	q.schedules[pt] = s
	q.mu.Unlock()
	return nil
}

// Quote prices one delivery request against the fleet's schedule.
func (q *ScheduleQuoter) Quote(_ context.Context, req selection.QuoteRequest) (model.Quote, error) {
	q.mu.RLock()
	s, ok := q.schedules[req.ProviderType]
	q.mu.RUnlock()
	if !ok {
		return model.Quote{}, fmt.Errorf("quote: no fee schedule for provider type %q", req.ProviderType)
	}
	if req.DistanceKm < 0 {
		return model.Quote{}, fmt.Errorf("quote: negative distance %.2f", req.DistanceKm)
	}

	base := s.BaseFee
	distance := s.PerKmFee * req.DistanceKm
	var surcharge float64
	if req.Urgent {
		surcharge += (base + distance) * s.UrgencySurchargePct / 100
	}
	if s.SmallOrderBelow > 0 && req.OrderValue < s.SmallOrderBelow {
		surcharge += s.SmallOrderFee
	}

	speed := s.AvgSpeedKmh
	if speed <= 0 {
		speed = 25
	}
	travel := time.Duration(req.DistanceKm / speed * float64(time.Hour))
	estimate := time.Duration(s.PickupMinutes)*time.Minute + travel

	return model.Quote{
		Reference:   uuid.NewString(),
		TotalFee:    round2(base + distance + surcharge),
		BaseFee:     round2(base),
		DistanceFee: round2(distance),
		Surcharge:   round2(surcharge),
		Currency:    q.currency,
		EstimatedAt: q.now(),
		Delivery:    estimate,
	}, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
