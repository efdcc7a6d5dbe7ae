package events

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/internal/eventbus"
)

var knownTypes = map[string]struct{}{
	model.EventOrderCreated:          {},
	model.EventOrderUpdated:          {},
	model.EventOrderCompleted:        {},
	model.EventOrderCancelled:        {},
	model.EventDeliveryStatusChanged: {},
}

type ingestRequest struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

// NewIngestHandler accepts order lifecycle events from the platform via
// POST /api/events and publishes them on the internal bus. Accepted events
// fan out to webhooks and bridges asynchronously, so the handler replies
// 202 before any delivery happens.
func NewIngestHandler(bus eventbus.EventBus) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if _, ok := knownTypes[req.Type]; !ok {
			http.Error(w, "unknown event type", http.StatusBadRequest)
			return
		}
		if req.CorrelationID == "" {
			req.CorrelationID = uuid.NewString()
		}
		bus.Publish(model.DomainEvent{
			Type:          req.Type,
			CorrelationID: req.CorrelationID,
			OccurredAt:    time.Now(),
			Payload:       req.Payload,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"correlation_id": req.CorrelationID})
	})
}
