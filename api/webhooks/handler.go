package webhooks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/webhook"
)

// Handler serves the webhook management surface under /api/webhooks.
//
//	POST   /api/webhooks                  register
//	GET    /api/webhooks?company_id=...   list
//	GET    /api/webhooks/{id}             get
//	DELETE /api/webhooks/{id}             delete
//	POST   /api/webhooks/{id}/deactivate
//	POST   /api/webhooks/{id}/reactivate
//	PUT    /api/webhooks/{id}/retry-policy
//	POST   /api/webhooks/{id}/test
//	GET    /api/webhooks/{id}/deliveries
type Handler struct {
	registry   *webhook.Registry
	dispatcher *webhook.Dispatcher
}

func NewHandler(registry *webhook.Registry, dispatcher *webhook.Dispatcher) *Handler {
	return &Handler{registry: registry, dispatcher: dispatcher}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/webhooks"), "/")
	switch {
	case rest == "":
		h.collection(w, r)
	default:
		parts := strings.SplitN(rest, "/", 2)
		id := parts[0]
		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}
		h.item(w, r, id, action)
	}
}

func (h *Handler) collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var spec webhook.RegistrationSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		created, err := h.registry.Register(r.Context(), spec)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// The secret is included exactly once, in this response.
		writeJSON(w, http.StatusCreated, struct {
			model.Webhook
			Secret string `json:"secret"`
		}{Webhook: created, Secret: created.Secret})
	case http.MethodGet:
		list, err := h.registry.List(r.Context(), r.URL.Query().Get("company_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) item(w http.ResponseWriter, r *http.Request, id, action string) {
	var err error
	switch {
	case action == "" && r.Method == http.MethodGet:
		var got model.Webhook
		if got, err = h.registry.Get(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, got)
			return
		}
	case action == "" && r.Method == http.MethodDelete:
		if err = h.registry.Delete(r.Context(), id); err == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	case action == "deactivate" && r.Method == http.MethodPost:
		if err = h.registry.Deactivate(r.Context(), id); err == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	case action == "reactivate" && r.Method == http.MethodPost:
		if err = h.registry.Reactivate(r.Context(), id); err == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	case action == "retry-policy" && r.Method == http.MethodPut:
		var policy model.RetryPolicy
		if derr := json.NewDecoder(r.Body).Decode(&policy); derr != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err = h.registry.UpdateRetryPolicy(r.Context(), id, policy); err == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	case action == "test" && r.Method == http.MethodPost:
		h.test(w, r, id)
		return
	case action == "deliveries" && r.Method == http.MethodGet:
		h.deliveries(w, r, id)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeStoreError(w, err)
}

func (h *Handler) test(w http.ResponseWriter, r *http.Request, id string) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload) == 0 {
		payload = []byte(`{"test":true}`)
	}
	d, err := h.dispatcher.TestDelivery(r.Context(), id, payload)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) deliveries(w http.ResponseWriter, r *http.Request, id string) {
	f := webhook.DeliveryFilter{
		Status: model.DeliveryStatus(r.URL.Query().Get("status")),
	}
	if s := r.URL.Query().Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			f.Since = t
		}
	}
	if s := r.URL.Query().Get("until"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			f.Until = t
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			f.Limit = n
		}
	}
	list, err := h.dispatcher.ListDeliveries(r.Context(), id, f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, webhook.ErrWebhookNotFound), errors.Is(err, webhook.ErrDeliveryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, webhook.ErrWebhookDisabled):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
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
