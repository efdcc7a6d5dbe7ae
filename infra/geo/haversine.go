package geo

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/selection"
)

const earthRadiusKm = 6371.0

// Default courier speeds in km/h per provider fleet, plus a fixed pickup
// overhead added to every estimate.
var defaultSpeeds = map[model.ProviderType]float64{
	model.ProviderCareem:    28,
	model.ProviderTalabat:   26,
	model.ProviderJahez:     27,
	model.ProviderDeliveroo: 25,
	model.ProviderDhub:      24,
	model.ProviderOwnFleet:  22,
}

const defaultSpeedKmh = 25.0

// HaversineEstimator estimates routes from great-circle distance and a
// per-fleet average speed. It never leaves the process, so estimates are
// available even when routing providers are down.
type HaversineEstimator struct {
	speeds         map[model.ProviderType]float64
	pickupOverhead time.Duration
}

// Option configures a HaversineEstimator.
type Option func(*HaversineEstimator)

// WithSpeeds overrides the per-fleet speed table (km/h).
func WithSpeeds(speeds map[model.ProviderType]float64) Option {
	return func(e *HaversineEstimator) { e.speeds = speeds }
}

// WithPickupOverhead sets the fixed time added to every estimate for
// courier assignment and pickup.
func WithPickupOverhead(d time.Duration) Option {
	return func(e *HaversineEstimator) { e.pickupOverhead = d }
}

// NewHaversineEstimator creates an estimator with the default speed table
// and a 7 minute pickup overhead.
func NewHaversineEstimator(opts ...Option) *HaversineEstimator {
	e := &HaversineEstimator{
		speeds:         defaultSpeeds,
		pickupOverhead: 7 * time.Minute,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Route returns the great-circle route between the two coordinates.
func (e *HaversineEstimator) Route(_ context.Context, from, to model.Coordinates) (selection.Route, error) {
	if !valid(from) || !valid(to) {
		return selection.Route{}, fmt.Errorf("geo: coordinates out of range: %+v -> %+v", from, to)
	}
	dist := haversineKm(from, to)
	return selection.Route{
		DistanceKm: dist,
		TravelTime: e.travelTime(model.ProviderType(""), dist),
	}, nil
}

// RouteFor is like Route but applies the fleet-specific speed.
func (e *HaversineEstimator) RouteFor(_ context.Context, pt model.ProviderType, from, to model.Coordinates) (selection.Route, error) {
	if !valid(from) || !valid(to) {
		return selection.Route{}, fmt.Errorf("geo: coordinates out of range: %+v -> %+v", from, to)
	}
	dist := haversineKm(from, to)
	return selection.Route{
		DistanceKm: dist,
		TravelTime: e.travelTime(pt, dist),
	}, nil
}

func (e *HaversineEstimator) travelTime(pt model.ProviderType, distKm float64) time.Duration {
	speed := defaultSpeedKmh
	if s, ok := e.speeds[pt]; ok && s > 0 {
		speed = s
	}
	hours := distKm / speed
	return e.pickupOverhead + time.Duration(hours*float64(time.Hour))
}

func haversineKm(from, to model.Coordinates) float64 {
	lat1 := from.Latitude * math.Pi / 180
	lat2 := to.Latitude * math.Pi / 180
	dLat := (to.Latitude - from.Latitude) * math.Pi / 180
	dLon := (to.Longitude - from.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func valid(c model.Coordinates) bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}
