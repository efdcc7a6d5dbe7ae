package performance

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/restaurant-platform/courierbroker/core/model"
)

// Defaults applied when a provider has no recorded history yet.
const (
	DefaultOnTimeRate     = 85.0
	DefaultCompletionRate = 90.0
	DefaultRating         = 4.0
)

// Stats is the rolling historical performance of a provider at a branch.
type Stats struct {
	// OnTimeRate and CompletionRate are percentages in [0,100].
	OnTimeRate     float64 `json:"on_time_rate"`
	CompletionRate float64 `json:"completion_rate"`
	// Rating is the average customer rating on a 0-5 scale.
	Rating  float64 `json:"rating"`
	Samples int     `json:"samples"`
}

// Sample is one completed (or abandoned) delivery outcome.
type Sample struct {
	OnTime    bool
	Completed bool
	// Rating is 0-5; negative means the customer left none.
	Rating float64
}

// Reader exposes performance snapshots to the scoring engine.
type Reader interface {
	Snapshot(ctx context.Context, companyID string, pt model.ProviderType, branchID string) (Stats, error)
}

// Recorder ingests delivery outcomes.
type Recorder interface {
	Record(companyID string, pt model.ProviderType, branchID string, s Sample)
}

type key struct {
	company string
	pt      model.ProviderType
	branch  string
}

type window struct {
	samples []Sample
	next    int
	full    bool
}

func (w *window) add(s Sample, size int) {
	if len(w.samples) < size {
		w.samples = append(w.samples, s)
		return
	}
	w.samples[w.next] = s
	w.next = (w.next + 1) % size
	w.full = true
}

// Tracker keeps a bounded ring of recent outcomes per provider/branch and
// derives rates from it. State is instance-owned; no package globals.
type Tracker struct {
	mu         sync.RWMutex
	windows    map[key]*window
	windowSize int
}

// NewTracker creates a tracker keeping up to windowSize samples per key.
func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = 200
	}
	return &Tracker{windows: make(map[key]*window), windowSize: windowSize}
}

// Record adds one outcome to the rolling window.
func (t *Tracker) Record(companyID string, pt model.ProviderType, branchID string, s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key{companyID, pt, branchID}
	w, ok := t.windows[k]
	if !ok {
		w = &window{}
		t.windows[k] = w
	}
	w.add(s, t.windowSize)
}

// Snapshot computes the rolling rates. Keys without history return the
// documented defaults.
func (t *Tracker) Snapshot(_ context.Context, companyID string, pt model.ProviderType, branchID string) (Stats, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.windows[key{companyID, pt, branchID}]
	if !ok || len(w.samples) == 0 {
		return Stats{OnTimeRate: DefaultOnTimeRate, CompletionRate: DefaultCompletionRate, Rating: DefaultRating}, nil
	}

	onTime := make([]float64, 0, len(w.samples))
	completed := make([]float64, 0, len(w.samples))
	var ratings []float64
	for _, s := range w.samples {
		onTime = append(onTime, boolToRate(s.OnTime))
		completed = append(completed, boolToRate(s.Completed))
		if s.Rating >= 0 {
			ratings = append(ratings, s.Rating)
		}
	}

	st := Stats{
		OnTimeRate:     stat.Mean(onTime, nil),
		CompletionRate: stat.Mean(completed, nil),
		Rating:         DefaultRating,
		Samples:        len(w.samples),
	}
	if len(ratings) > 0 {
		st.Rating = stat.Mean(ratings, nil)
	}
	return st, nil
}

func boolToRate(b bool) float64 {
	if b {
		return 100
	}
	return 0
}
