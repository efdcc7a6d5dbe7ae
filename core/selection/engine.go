package selection

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/restaurant-platform/courierbroker/core/availability"
	"github.com/restaurant-platform/courierbroker/core/logger"
	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/performance"
)

// ScoringEngine computes the weighted multi-criteria score for a provider.
// The five sub-scores are each within [0,100]; the total is their convex
// combination using the fixed model weights.
type ScoringEngine struct {
	geo    GeoDistance
	quoter CostQuoter
	avail  availability.Tracker
	perf   performance.Reader
	log    logger.Logger
}

// NewScoringEngine creates an engine. All collaborators are required.
func NewScoringEngine(geo GeoDistance, quoter CostQuoter, avail availability.Tracker, perf performance.Reader, log logger.Logger) (*ScoringEngine, error) {
	if geo == nil || quoter == nil || avail == nil || perf == nil {
		return nil, fmt.Errorf("selection: nil parameter provided to NewScoringEngine")
	}
	return &ScoringEngine{geo: geo, quoter: quoter, avail: avail, perf: perf, log: log}, nil
}

// Score builds one VendorScore. A failure anywhere yields a ScoringError;
// the caller excludes the provider rather than aborting the selection.
func (e *ScoringEngine) Score(ctx context.Context, provider model.Provider, branch model.Branch, criteria model.SelectionCriteria) (model.VendorScore, error) {
	if !branch.Configured || (branch.Location == model.Coordinates{}) {
		return model.VendorScore{}, &ScoringError{ProviderID: provider.ID, Err: fmt.Errorf("branch %s location not configured", criteria.BranchID)}
	}

	route, err := e.geo.Route(ctx, branch.Location, criteria.CustomerLocation)
	if err != nil {
		return model.VendorScore{}, &ScoringError{ProviderID: provider.ID, Err: fmt.Errorf("route: %w", err)}
	}

	// The remaining capability reads are independent of each other.
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		snap  availability.Snapshot
		stats performance.Stats
		quote model.Quote
		errs  []error
	)
	record := func(err error) {
		mu.Lock()
		if err != nil {
			errs = append(errs, err)
		}
		mu.Unlock()
	}
	wg.Add(3)
	go func() {
		defer wg.Done()
		s, err := e.avail.GetAvailability(ctx, criteria.CompanyID, provider.Type, criteria.BranchID)
		mu.Lock()
		snap = s
		mu.Unlock()
		record(err)
	}()
	go func() {
		defer wg.Done()
		s, err := e.perf.Snapshot(ctx, criteria.CompanyID, provider.Type, criteria.BranchID)
		mu.Lock()
		stats = s
		mu.Unlock()
		record(err)
	}()
	go func() {
		defer wg.Done()
		q, err := e.quoter.Quote(ctx, QuoteRequest{
			ProviderType: provider.Type,
			DistanceKm:   route.DistanceKm,
			OrderValue:   criteria.OrderValue,
			Urgent:       criteria.Urgent,
		})
		mu.Lock()
		quote = q
		mu.Unlock()
		record(err)
	}()
	wg.Wait()
	if len(errs) > 0 {
		return model.VendorScore{}, &ScoringError{ProviderID: provider.ID, Err: errs[0]}
	}

	score := model.VendorScore{
		ProviderID:   provider.ID,
		ProviderType: provider.Type,
		ProviderName: provider.Name,
		DistanceKm:   route.DistanceKm,
		Quote:        quote,
		Proximity:    proximityScore(route.DistanceKm, provider.MaxDistanceKm),
		Capacity:     capacityScore(snap),
		Cost:         costScore(quote.TotalFee, criteria.OrderValue),
		Performance:  performanceScore(stats),
		Priority:     priorityScore(branch.Priority, provider.Priority),
	}
	score.Total = round2(score.Proximity*model.WeightProximity +
		score.Capacity*model.WeightCapacity +
		score.Cost*model.WeightCost +
		score.Performance*model.WeightPerformance +
		score.Priority*model.WeightPriority)
	score.Recommended = score.Total >= model.RecommendationThreshold
	if e.log != nil {
		e.log.Debugw("provider scored", map[string]any{
			"provider": provider.ID,
			"type":     provider.Type,
			"total":    score.Total,
			"distance": route.DistanceKm,
		})
	}
	return score, nil
}

// proximityScore decays linearly from 100 at the branch door to 0 at the
// provider's maximum service distance.
func proximityScore(distanceKm, maxDistanceKm float64) float64 {
	if maxDistanceKm <= 0 || distanceKm > maxDistanceKm {
		return 0
	}
	s := 100 - (distanceKm/maxDistanceKm)*100
	if s < 0 {
		s = 0
	}
	return round2(s)
}

// capacityScore combines driver headroom, a utilization penalty above 70%
// and a responsiveness bonus.
func capacityScore(snap availability.Snapshot) float64 {
	if !snap.Available || snap.AvailableDrivers == 0 {
		return 0
	}
	driverScore := math.Min(50, float64(snap.AvailableDrivers)*10)
	utilPenalty := math.Max(0, snap.UtilizationRate-70) * 0.5
	respBonus := math.Max(0, 20-(snap.AvgResponseTime.Seconds()/60)*2)
	s := driverScore - utilPenalty + respBonus
	if s < 0 {
		s = 0
	}
	return round2(s)
}

// costScore is 100 while the fee stays within 5% of the order value and
// decays 4 points per extra percent beyond that.
func costScore(totalFee, orderValue float64) float64 {
	if totalFee == 0 || orderValue == 0 {
		return 0
	}
	costRatio := totalFee / orderValue * 100
	if costRatio <= 5 {
		return 100
	}
	return round2(math.Max(0, 100-(costRatio-5)*4))
}

// performanceScore blends on-time rate, completion rate and rating.
func performanceScore(st performance.Stats) float64 {
	return round2(st.OnTimeRate*0.4 + st.CompletionRate*0.3 + (st.Rating/5*100)*0.3)
}

// priorityScore maps the averaged 1-10 branch/company priorities onto the
// 0-100 scale.
func priorityScore(branchPriority, providerPriority int) float64 {
	s := (float64(branchPriority) + float64(providerPriority)) / 2 * 10
	if s > 100 {
		s = 100
	}
	return round2(s)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
