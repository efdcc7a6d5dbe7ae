package selection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/restaurant-platform/courierbroker/core/availability"
	"github.com/restaurant-platform/courierbroker/core/logger"
	"github.com/restaurant-platform/courierbroker/core/metrics"
	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/selection/audit"
	"github.com/restaurant-platform/courierbroker/internal/eventbus"
)

// Viability thresholds applied after scoring. Providers below any of them
// are eliminated before ranking.
const (
	minPerformanceScore = 60.0
	minProximityScore   = 20.0
	maxAlternatives     = 3
)

// Selector orchestrates one vendor selection: eligibility lookup, concurrent
// scoring, viability filtering, deterministic ranking, capacity reservation
// and audit persistence.
type Selector struct {
	directory ProviderDirectory
	engine    *ScoringEngine
	avail     availability.Tracker
	audit     audit.Store
	bus       eventbus.EventBus
	metrics   metrics.MetricsSink
	log       logger.Logger
	now       func() time.Time
}

// NewSelector creates a selector. audit, bus and metrics may be nil; the
// corresponding side effects are skipped.
func NewSelector(directory ProviderDirectory, engine *ScoringEngine, avail availability.Tracker, auditStore audit.Store, bus eventbus.EventBus, sink metrics.MetricsSink, log logger.Logger) (*Selector, error) {
	if directory == nil || engine == nil || avail == nil {
		return nil, fmt.Errorf("selection: nil parameter provided to NewSelector")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Selector{
		directory: directory,
		engine:    engine,
		avail:     avail,
		audit:     auditStore,
		bus:       bus,
		metrics:   sink,
		log:       log,
		now:       time.Now,
	}, nil
}

type scored struct {
	score    model.VendorScore
	priority int
}

// SelectOptimalVendor runs the selection pipeline. Only the two global
// preconditions are terminal; every per-provider failure is logged and the
// provider excluded.
func (s *Selector) SelectOptimalVendor(ctx context.Context, criteria model.SelectionCriteria) (*model.SelectionResult, error) {
	start := s.now()

	providers, err := s.directory.EligibleProviders(ctx, criteria.CompanyID, criteria.BranchID)
	if err != nil {
		return nil, fmt.Errorf("selection: eligible providers: %w", err)
	}
	if len(providers) == 0 {
		s.recordOutcome(criteria, nil, 0, 0, s.now().Sub(start), "no_eligible")
		return nil, ErrNoEligibleProviders
	}

	branch, err := s.directory.Branch(ctx, criteria.CompanyID, criteria.BranchID)
	if err != nil {
		// Scoring will fail per provider with a ScoringError; the branch
		// lookup failure itself is not terminal.
		s.log.Warnf("branch lookup failed for %s/%s: %v", criteria.CompanyID, criteria.BranchID, err)
		branch = model.Branch{}
	}

	candidates := s.scoreAll(ctx, providers, branch, criteria)

	viable := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if s.viable(c.score, criteria) {
			viable = append(viable, c)
		}
	}
	eliminated := len(providers) - len(viable)
	if len(viable) == 0 {
		s.recordOutcome(criteria, nil, len(providers), eliminated, s.now().Sub(start), "no_viable")
		return nil, ErrNoViableProviders
	}

	// Deterministic ranking: total score descending, then provider
	// priority descending, then provider id ascending.
	sort.SliceStable(viable, func(i, j int) bool {
		if viable[i].score.Total != viable[j].score.Total {
			return viable[i].score.Total > viable[j].score.Total
		}
		if viable[i].priority != viable[j].priority {
			return viable[i].priority > viable[j].priority
		}
		return viable[i].score.ProviderID < viable[j].score.ProviderID
	})

	selected := viable[0].score
	alternatives := make([]model.VendorScore, 0, maxAlternatives)
	for _, c := range viable[1:] {
		if len(alternatives) == maxAlternatives {
			break
		}
		alternatives = append(alternatives, c.score)
	}

	if err := s.avail.ReserveCapacity(ctx, criteria.CompanyID, selected.ProviderType, criteria.OrderID, criteria.BranchID); err != nil {
		s.log.Warnf("capacity reservation failed for order %s on %s: %v", criteria.OrderID, selected.ProviderType, err)
		if cr, ok := s.metrics.(metrics.CapacityRecorder); ok {
			_ = cr.RecordCapacityReservation(selected.ProviderType, false)
		}
	} else if cr, ok := s.metrics.(metrics.CapacityRecorder); ok {
		_ = cr.RecordCapacityReservation(selected.ProviderType, true)
	}

	elapsed := s.now().Sub(start)
	result := &model.SelectionResult{
		CorrelationID: uuid.NewString(),
		OrderID:       criteria.OrderID,
		CompanyID:     criteria.CompanyID,
		BranchID:      criteria.BranchID,
		Selected:      selected,
		Alternatives:  alternatives,
		Evaluated:     len(providers),
		Eliminated:    eliminated,
		Elapsed:       elapsed,
		SelectedAt:    start,
		ValidUntil:    start.Add(model.SelectionValidity),
	}

	if s.audit != nil {
		if err := s.audit.Append(ctx, *result); err != nil {
			s.log.Errorf("audit write failed for order %s: %v", criteria.OrderID, err)
		}
	}
	if s.bus != nil {
		s.bus.Publish(model.DomainEvent{
			Type:          model.EventVendorSelected,
			CorrelationID: result.CorrelationID,
			OccurredAt:    s.now(),
			Payload:       result,
		})
	}
	s.recordOutcome(criteria, result, len(providers), eliminated, elapsed, "selected")
	return result, nil
}

// scoreAll fans out the scoring of each provider. Failures are logged and
// the provider skipped.
func (s *Selector) scoreAll(ctx context.Context, providers []model.Provider, branch model.Branch, criteria model.SelectionCriteria) []scored {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	out := make([]scored, 0, len(providers))
	for _, p := range providers {
		wg.Add(1)
		go func(p model.Provider) {
			defer wg.Done()
			sc, err := s.engine.Score(ctx, p, branch, criteria)
			if err != nil {
				s.log.Warnf("scoring failed, excluding provider: %v", err)
				return
			}
			mu.Lock()
			out = append(out, scored{score: sc, priority: p.Priority})
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return out
}

// viable applies the post-scoring threshold filter and the caller's quote
// constraints.
func (s *Selector) viable(sc model.VendorScore, criteria model.SelectionCriteria) bool {
	if sc.Capacity == 0 {
		return false
	}
	if sc.Performance < minPerformanceScore {
		return false
	}
	if sc.Proximity < minProximityScore {
		return false
	}
	if criteria.MaxDeliveryTime > 0 && sc.Quote.Delivery > criteria.MaxDeliveryTime {
		return false
	}
	if criteria.MaxDeliveryFee > 0 && sc.Quote.TotalFee > criteria.MaxDeliveryFee {
		return false
	}
	return true
}

func (s *Selector) recordOutcome(criteria model.SelectionCriteria, result *model.SelectionResult, evaluated, eliminated int, elapsed time.Duration, outcome string) {
	ev := metrics.SelectionEvent{
		CompanyID:  criteria.CompanyID,
		BranchID:   criteria.BranchID,
		Evaluated:  evaluated,
		Eliminated: eliminated,
		Elapsed:    elapsed,
		Outcome:    outcome,
	}
	if result != nil {
		ev.ProviderType = result.Selected.ProviderType
		ev.TotalScore = result.Selected.Total
	}
	if err := s.metrics.RecordSelection(ev); err != nil {
		s.log.Errorf("metrics error: %v", err)
	}
}

// ReserveProviderCapacity exposes manual reservation to the admin layer.
func (s *Selector) ReserveProviderCapacity(ctx context.Context, companyID string, pt model.ProviderType, orderID, branchID string) error {
	return s.avail.ReserveCapacity(ctx, companyID, pt, orderID, branchID)
}

// ReleaseProviderCapacity exposes manual release to the admin layer.
func (s *Selector) ReleaseProviderCapacity(ctx context.Context, companyID string, pt model.ProviderType, orderID, branchID string) error {
	return s.avail.ReleaseCapacity(ctx, companyID, pt, orderID, branchID)
}
