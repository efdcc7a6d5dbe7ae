package audit

import (
	"context"
	"time"

	"github.com/restaurant-platform/courierbroker/core/model"
)

// Query defines filters for retrieving selection records.
type Query struct {
	Start     time.Time
	End       time.Time
	CompanyID string
	OrderID   string
}

// Store persists selection decisions for audit and supports querying.
// Appends are best-effort from the selector's point of view: a failed audit
// write is logged, never surfaced to the selection caller.
type Store interface {
	Append(ctx context.Context, rec model.SelectionResult) error
	Query(ctx context.Context, q Query) ([]model.SelectionResult, error)
	Close() error
}

func matches(r model.SelectionResult, q Query) bool {
	if !q.Start.IsZero() && r.SelectedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.SelectedAt.After(q.End) {
		return false
	}
	if q.CompanyID != "" && r.CompanyID != q.CompanyID {
		return false
	}
	if q.OrderID != "" && r.OrderID != q.OrderID {
		return false
	}
	return true
}
