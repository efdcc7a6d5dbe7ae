package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/restaurant-platform/courierbroker/core/model"
)

// MemoryDirectory is an in-memory ProviderDirectory. Provider and branch
// records are owned by the platform's main database; the broker only needs
// a read view, seeded at startup or kept fresh by the caller.
type MemoryDirectory struct {
	mu        sync.RWMutex
	providers map[string]model.Provider
	branches  map[string]model.Branch
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		providers: make(map[string]model.Provider),
		branches:  make(map[string]model.Branch),
	}
}

// PutProvider inserts or replaces a provider record.
func (d *MemoryDirectory) PutProvider(p model.Provider) {
	d.mu.Lock()
	d.providers[p.ID] = p
	d.mu.Unlock()
}

// PutBranch inserts or replaces a branch record.
func (d *MemoryDirectory) PutBranch(b model.Branch) {
	d.mu.Lock()
	d.branches[branchKey(b.CompanyID, b.ID)] = b
	d.mu.Unlock()
}

// RemoveProvider marks the provider deleted so it stops being eligible
// without losing the record.
func (d *MemoryDirectory) RemoveProvider(id string) {
	d.mu.Lock()
	if p, ok := d.providers[id]; ok {
		p.Deleted = true
		d.providers[id] = p
	}
	d.mu.Unlock()
}

// EligibleProviders returns active, non-deleted providers configured for
// the company. Providers bound to a specific branch are filtered to it.
func (d *MemoryDirectory) EligibleProviders(_ context.Context, companyID, branchID string) ([]model.Provider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []model.Provider
	for _, p := range d.providers {
		if !p.Eligible(companyID) {
			continue
		}
		if p.BranchID != "" && p.BranchID != branchID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (d *MemoryDirectory) Branch(_ context.Context, companyID, branchID string) (model.Branch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.branches[branchKey(companyID, branchID)]
	if !ok {
		return model.Branch{}, fmt.Errorf("store: branch %s/%s not found", companyID, branchID)
	}
	return b, nil
}

func branchKey(companyID, branchID string) string {
	return companyID + "/" + branchID
}
