package model

import "time"

// ProviderType identifies a third-party delivery or POS integration.
type ProviderType string

const (
	ProviderCareem    ProviderType = "careem"
	ProviderTalabat   ProviderType = "talabat"
	ProviderJahez     ProviderType = "jahez"
	ProviderDeliveroo ProviderType = "deliveroo"
	ProviderDhub      ProviderType = "dhub"
	ProviderOwnFleet  ProviderType = "own_fleet"
)

func (t ProviderType) String() string { return string(t) }

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Provider is a delivery provider configured for a company. Records are
// owned by the admin layer; the core treats them as read-only.
type Provider struct {
	ID            string       `json:"id"`
	Type          ProviderType `json:"type"`
	Name          string       `json:"name"`
	CompanyID     string       `json:"company_id"`
	BranchID      string       `json:"branch_id"`
	MaxDistanceKm float64      `json:"max_distance_km"`
	// Priority ranks the provider 1-10 from the company's perspective.
	Priority  int       `json:"priority"`
	Active    bool      `json:"active"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// Eligible reports whether the provider may be considered for selection at
// all: active, not deleted and belonging to the requesting company.
func (p Provider) Eligible(companyID string) bool {
	return p.Active && !p.Deleted && p.CompanyID == companyID
}

// Branch holds the subset of branch configuration the core needs: its
// location and its own priority weighting.
type Branch struct {
	ID        string      `json:"id"`
	CompanyID string      `json:"company_id"`
	Name      string      `json:"name"`
	Location  Coordinates `json:"location"`
	// Priority ranks the branch 1-10; averaged with the provider priority
	// during scoring.
	Priority   int  `json:"priority"`
	Configured bool `json:"configured"`
}
