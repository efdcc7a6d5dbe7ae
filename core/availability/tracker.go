package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/restaurant-platform/courierbroker/core/model"
)

// Snapshot is a point-in-time view of provider capacity for one branch.
type Snapshot struct {
	Available        bool `json:"available"`
	TotalDrivers     int  `json:"total_drivers"`
	AvailableDrivers int  `json:"available_drivers"`
	// UtilizationRate is a percentage in [0,100].
	UtilizationRate float64       `json:"utilization_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// Tracker exposes real-time capacity reads and reservation of delivery
// slots tied to an order.
type Tracker interface {
	GetAvailability(ctx context.Context, companyID string, pt model.ProviderType, branchID string) (Snapshot, error)
	ReserveCapacity(ctx context.Context, companyID string, pt model.ProviderType, orderID, branchID string) error
	ReleaseCapacity(ctx context.Context, companyID string, pt model.ProviderType, orderID, branchID string) error
}

type key struct {
	company string
	pt      model.ProviderType
	branch  string
}

type entry struct {
	totalDrivers    int
	avgResponseTime time.Duration
	// reservations maps orderID to reservation time. At most one active
	// reservation per order per provider key.
	reservations map[string]time.Time
}

// MemoryTracker is the in-memory Tracker implementation. All state is owned
// by the instance; reserve and release are atomic under a single mutex.
type MemoryTracker struct {
	mu sync.Mutex
	m  map[key]*entry
	// ttl expires reservations that were never released. Zero disables
	// expiry.
	ttl time.Duration
	now func() time.Time
}

// NewMemoryTracker creates a tracker. ttl of zero keeps reservations until
// they are explicitly released.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{m: make(map[key]*entry), ttl: ttl, now: time.Now}
}

// SetCapacity seeds or updates the driver pool for a provider/branch. It is
// fed by provider status callbacks from the integration layer.
func (t *MemoryTracker) SetCapacity(companyID string, pt model.ProviderType, branchID string, drivers int, avgResponse time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.ensure(key{companyID, pt, branchID})
	e.totalDrivers = drivers
	e.avgResponseTime = avgResponse
}

func (t *MemoryTracker) ensure(k key) *entry {
	e, ok := t.m[k]
	if !ok {
		e = &entry{reservations: make(map[string]time.Time)}
		t.m[k] = e
	}
	return e
}

// prune drops reservations older than the TTL. Caller holds the lock.
func (t *MemoryTracker) prune(e *entry) {
	if t.ttl <= 0 {
		return
	}
	cutoff := t.now().Add(-t.ttl)
	for id, ts := range e.reservations {
		if ts.Before(cutoff) {
			delete(e.reservations, id)
		}
	}
}

// GetAvailability returns the current capacity snapshot. Unknown keys yield
// an unavailable snapshot rather than an error.
func (t *MemoryTracker) GetAvailability(_ context.Context, companyID string, pt model.ProviderType, branchID string) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[key{companyID, pt, branchID}]
	if !ok {
		return Snapshot{}, nil
	}
	t.prune(e)
	return t.snapshot(e), nil
}

func (t *MemoryTracker) snapshot(e *entry) Snapshot {
	avail := e.totalDrivers - len(e.reservations)
	if avail < 0 {
		avail = 0
	}
	util := 0.0
	if e.totalDrivers > 0 {
		util = float64(e.totalDrivers-avail) / float64(e.totalDrivers) * 100
	}
	return Snapshot{
		Available:        avail > 0,
		TotalDrivers:     e.totalDrivers,
		AvailableDrivers: avail,
		UtilizationRate:  util,
		AvgResponseTime:  e.avgResponseTime,
	}
}

// ReserveCapacity takes one delivery slot for the order. Reserving twice
// for the same order is a no-op success.
func (t *MemoryTracker) ReserveCapacity(_ context.Context, companyID string, pt model.ProviderType, orderID, branchID string) error {
	if orderID == "" {
		return fmt.Errorf("availability: order id is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.ensure(key{companyID, pt, branchID})
	t.prune(e)
	if _, ok := e.reservations[orderID]; ok {
		return nil
	}
	if len(e.reservations) >= e.totalDrivers {
		return fmt.Errorf("availability: no capacity for %s/%s at branch %s", companyID, pt, branchID)
	}
	e.reservations[orderID] = t.now()
	return nil
}

// ReleaseCapacity frees the slot held for the order. Releasing an unknown
// order is a no-op success so duplicate or out-of-order cleanup calls are
// tolerated.
func (t *MemoryTracker) ReleaseCapacity(_ context.Context, companyID string, pt model.ProviderType, orderID, branchID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[key{companyID, pt, branchID}]
	if !ok {
		return nil
	}
	delete(e.reservations, orderID)
	return nil
}

// Sweep releases every expired reservation across all keys. Intended to run
// periodically when a TTL is configured.
func (t *MemoryTracker) Sweep() int {
	if t.ttl <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	cutoff := t.now().Add(-t.ttl)
	for _, e := range t.m {
		for id, ts := range e.reservations {
			if ts.Before(cutoff) {
				delete(e.reservations, id)
				n++
			}
		}
	}
	return n
}
