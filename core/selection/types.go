package selection

import (
	"context"
	"time"

	"github.com/restaurant-platform/courierbroker/core/model"
)

// Route is a distance and travel-time estimate between two coordinates.
type Route struct {
	DistanceKm float64
	TravelTime time.Duration
}

// GeoDistance estimates routes. How the estimate is computed (haversine,
// road network, third-party API) is up to the implementation.
type GeoDistance interface {
	Route(ctx context.Context, from, to model.Coordinates) (Route, error)
}

// QuoteRequest carries the inputs a cost quote depends on.
type QuoteRequest struct {
	ProviderType model.ProviderType
	DistanceKm   float64
	OrderValue   float64
	Urgent       bool
}

// CostQuoter produces a fee breakdown and delivery estimate for a provider.
type CostQuoter interface {
	Quote(ctx context.Context, req QuoteRequest) (model.Quote, error)
}

// ProviderDirectory is the read-only view over provider and branch records
// owned by the persistence layer.
type ProviderDirectory interface {
	// EligibleProviders returns active, non-deleted providers configured
	// for the company/branch pair.
	EligibleProviders(ctx context.Context, companyID, branchID string) ([]model.Provider, error)
	Branch(ctx context.Context, companyID, branchID string) (model.Branch, error)
}
