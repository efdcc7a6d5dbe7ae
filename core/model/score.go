package model

import "time"

// RecommendationThreshold is the total score above which a vendor is
// flagged as recommended.
const RecommendationThreshold = 70.0

// Scoring weights. They form a convex combination: the five values sum to 1.
const (
	WeightProximity   = 0.30
	WeightCapacity    = 0.25
	WeightCost        = 0.20
	WeightPerformance = 0.15
	WeightPriority    = 0.10
)

// Quote is a snapshot of the fee and time estimate attached to a score.
type Quote struct {
	Reference   string        `json:"reference"`
	TotalFee    float64       `json:"total_fee"`
	BaseFee     float64       `json:"base_fee"`
	DistanceFee float64       `json:"distance_fee"`
	Surcharge   float64       `json:"surcharge"`
	Currency    string        `json:"currency"`
	EstimatedAt time.Time     `json:"estimated_at"`
	Delivery    time.Duration `json:"delivery_estimate"`
}

// VendorScore is the weighted multi-criteria score computed for one
// provider during a selection. Sub-scores are always within [0,100].
type VendorScore struct {
	ProviderID   string       `json:"provider_id"`
	ProviderType ProviderType `json:"provider_type"`
	ProviderName string       `json:"provider_name"`

	Proximity   float64 `json:"proximity_score"`
	Capacity    float64 `json:"capacity_score"`
	Cost        float64 `json:"cost_score"`
	Performance float64 `json:"performance_score"`
	Priority    float64 `json:"priority_score"`
	Total       float64 `json:"total_score"`

	DistanceKm  float64 `json:"distance_km"`
	Quote       Quote   `json:"quote"`
	Recommended bool    `json:"recommended"`
}

// SelectionResult captures one vendor selection decision. It is immutable
// once created and is what the audit store persists.
type SelectionResult struct {
	CorrelationID string        `json:"correlation_id"`
	OrderID       string        `json:"order_id"`
	CompanyID     string        `json:"company_id"`
	BranchID      string        `json:"branch_id"`
	Selected      VendorScore   `json:"selected"`
	Alternatives  []VendorScore `json:"alternatives"`
	Evaluated     int           `json:"providers_evaluated"`
	Eliminated    int           `json:"providers_eliminated"`
	Elapsed       time.Duration `json:"elapsed"`
	SelectedAt    time.Time     `json:"selected_at"`
	ValidUntil    time.Time     `json:"valid_until"`
}

// SelectionValidity is how long a persisted selection decision remains
// actionable.
const SelectionValidity = 30 * time.Minute
