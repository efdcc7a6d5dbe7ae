package selection

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/selection"
	"github.com/restaurant-platform/courierbroker/core/selection/audit"
)

// selectRequest is the wire form of a selection call. Durations arrive in
// minutes to keep partner integrations unit-unambiguous.
type selectRequest struct {
	CompanyID        string            `json:"company_id"`
	BranchID         string            `json:"branch_id"`
	OrderID          string            `json:"order_id"`
	CustomerLocation model.Coordinates `json:"customer_location"`
	OrderValue       float64           `json:"order_value"`
	Urgent           bool              `json:"urgent"`
	MaxDeliveryMin   int               `json:"max_delivery_min"`
	MaxDeliveryFee   float64           `json:"max_delivery_fee"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewSelectHandler returns an HTTP handler running vendor selection via
// POST /api/selection/select.
func NewSelectHandler(sel *selection.Selector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req selectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.CompanyID == "" || req.BranchID == "" || req.OrderID == "" {
			writeError(w, http.StatusBadRequest, "company_id, branch_id and order_id are required")
			return
		}
		criteria := model.SelectionCriteria{
			CompanyID:        req.CompanyID,
			BranchID:         req.BranchID,
			OrderID:          req.OrderID,
			CustomerLocation: req.CustomerLocation,
			OrderValue:       req.OrderValue,
			Urgent:           req.Urgent,
			MaxDeliveryTime:  time.Duration(req.MaxDeliveryMin) * time.Minute,
			MaxDeliveryFee:   req.MaxDeliveryFee,
		}
		result, err := sel.SelectOptimalVendor(r.Context(), criteria)
		if err != nil {
			switch {
			case errors.Is(err, selection.ErrNoEligibleProviders):
				writeError(w, http.StatusUnprocessableEntity, "no delivery provider is configured for this branch")
			case errors.Is(err, selection.ErrNoViableProviders):
				writeError(w, http.StatusConflict, "no provider can currently take this order")
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		writeJSON(w, http.StatusOK, result)
	})
}

type capacityRequest struct {
	CompanyID    string             `json:"company_id"`
	BranchID     string             `json:"branch_id"`
	OrderID      string             `json:"order_id"`
	ProviderType model.ProviderType `json:"provider_type"`
}

// NewCapacityHandler exposes manual reserve/release via
// POST /api/selection/capacity/{reserve,release}.
func NewCapacityHandler(sel *selection.Selector, release bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req capacityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		var err error
		if release {
			err = sel.ReleaseProviderCapacity(r.Context(), req.CompanyID, req.ProviderType, req.OrderID, req.BranchID)
		} else {
			err = sel.ReserveProviderCapacity(r.Context(), req.CompanyID, req.ProviderType, req.OrderID, req.BranchID)
		}
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// NewAuditHandler returns an HTTP handler exposing selection history via
// GET /api/selection/audit. Requests must include an Authorization header
// with "Bearer <token>" when token is non-empty.
func NewAuditHandler(store audit.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := audit.Query{}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		q.CompanyID = r.URL.Query().Get("company_id")
		q.OrderID = r.URL.Query().Get("order_id")
		records, err := store.Query(r.Context(), q)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, records)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
