package webhook

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/restaurant-platform/courierbroker/core/logger"
	"github.com/restaurant-platform/courierbroker/core/metrics"
)

// RedeliverFunc re-submits a delivery to the dispatcher.
type RedeliverFunc func(ctx context.Context, deliveryID string)

type retryEntry struct {
	deliveryID string
	webhookID  string
	at         time.Time
	index      int
}

type retryHeap []*retryEntry

func (h retryHeap) Len() int           { return len(h) }
func (h retryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h retryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *retryHeap) Push(x any)        { e := x.(*retryEntry); e.index = len(*h); *h = append(*h, e) }
func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// RetryScheduler keeps a time-ordered queue of delayed redeliveries. A
// background loop pops due entries and hands them back to the dispatcher.
// At most one attempt per delivery id is in flight at any time.
type RetryScheduler struct {
	mu       sync.Mutex
	heap     retryHeap
	entries  map[string]*retryEntry
	inFlight map[string]struct{}

	redeliver RedeliverFunc
	tick      time.Duration
	log       logger.Logger
	metrics   metrics.MetricsSink
	now       func() time.Time
}

// NewRetryScheduler creates a scheduler. tick of zero defaults to one
// second.
func NewRetryScheduler(redeliver RedeliverFunc, tick time.Duration, log logger.Logger, sink metrics.MetricsSink) (*RetryScheduler, error) {
	if redeliver == nil {
		return nil, fmt.Errorf("webhook: nil redeliver provided to NewRetryScheduler")
	}
	if tick <= 0 {
		tick = time.Second
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &RetryScheduler{
		entries:   make(map[string]*retryEntry),
		inFlight:  make(map[string]struct{}),
		redeliver: redeliver,
		tick:      tick,
		log:       log,
		metrics:   sink,
		now:       time.Now,
	}, nil
}

// Schedule inserts or updates the retry entry for the delivery.
func (s *RetryScheduler) Schedule(deliveryID, webhookID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[deliveryID]; ok {
		e.at = at
		heap.Fix(&s.heap, e.index)
	} else {
		e := &retryEntry{deliveryID: deliveryID, webhookID: webhookID, at: at}
		heap.Push(&s.heap, e)
		s.entries[deliveryID] = e
	}
	s.recordDepth()
}

// Cancel removes the entry for the delivery, if any.
func (s *RetryScheduler) Cancel(deliveryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(deliveryID)
	s.recordDepth()
}

// CancelWebhook removes every entry belonging to the webhook.
func (s *RetryScheduler) CancelWebhook(webhookID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.webhookID == webhookID {
			s.remove(id)
		}
	}
	s.recordDepth()
}

// remove expects the lock to be held.
func (s *RetryScheduler) remove(deliveryID string) {
	e, ok := s.entries[deliveryID]
	if !ok {
		return
	}
	heap.Remove(&s.heap, e.index)
	delete(s.entries, deliveryID)
}

// Len returns the number of queued entries.
func (s *RetryScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Due pops every entry due at or before now and marks it in flight.
// Deliveries with an active attempt stay queued and are revisited on a
// later tick.
func (s *RetryScheduler) Due(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []string
	var deferred []*retryEntry
	for s.heap.Len() > 0 && !s.heap[0].at.After(now) {
		e := heap.Pop(&s.heap).(*retryEntry)
		if _, busy := s.inFlight[e.deliveryID]; busy {
			deferred = append(deferred, e)
			continue
		}
		delete(s.entries, e.deliveryID)
		s.inFlight[e.deliveryID] = struct{}{}
		due = append(due, e.deliveryID)
	}
	for _, e := range deferred {
		heap.Push(&s.heap, e)
	}
	s.recordDepth()
	return due
}

func (s *RetryScheduler) done(deliveryID string) {
	s.mu.Lock()
	delete(s.inFlight, deliveryID)
	s.mu.Unlock()
}

// Run drives redeliveries until the context is cancelled.
func (s *RetryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, id := range s.Due(s.now()) {
				go func(id string) {
					defer s.done(id)
					s.redeliver(ctx, id)
				}(id)
			}
		case <-ctx.Done():
			return
		}
	}
}

// recordDepth expects the lock to be held.
func (s *RetryScheduler) recordDepth() {
	if rr, ok := s.metrics.(metrics.RetryQueueRecorder); ok {
		if err := rr.RecordRetryQueueDepth(len(s.entries)); err != nil && s.log != nil {
			s.log.Errorf("retry queue metrics: %v", err)
		}
	}
}
