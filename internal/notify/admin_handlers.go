package notify

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/PILOTO-ORG/cunha-sub000/internal/common"
)

// AdminHandler exposes monitoring endpoints for webhook deliveries.
type AdminHandler struct {
	Store Store
	Disp  *Dispatcher
}

// ListDeliveries handles GET /api/v1/admin/webhooks/deliveries.
func (h *AdminHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook store unavailable", nil)
		return
	}
	page, limit := common.ParsePagination(r, 20)
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", DeliveryPending, DeliveryDelivering, DeliveryDelivered, DeliveryFailed, DeliveryDead:
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown delivery status", nil)
		return
	}
	deliveries, total, err := h.Store.ListDeliveries(r.Context(), status, limit, (page-1)*limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list deliveries", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       deliveries,
		"pagination": common.Pagination{Page: page, PerPage: limit, TotalItems: total},
	})
}

// ReplayDelivery handles POST /api/v1/admin/webhooks/deliveries/{deliveryID}/replay.
// It resets the delivery and pushes it back onto the task queue.
func (h *AdminHandler) ReplayDelivery(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook store unavailable", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "deliveryID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid delivery id", nil)
		return
	}
	delivery, err := h.Store.ResetForReplay(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrDeliveryNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "delivery not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to reset delivery", nil)
		return
	}
	if h.Disp != nil {
		if err := h.Disp.EnqueueDelivery(r.Context(), delivery.ID.String(), 0, delivery.MaxAttempt); err != nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to requeue delivery", nil)
			return
		}
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": delivery})
}
