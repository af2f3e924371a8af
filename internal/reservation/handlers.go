package reservation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/PILOTO-ORG/cunha-sub000/internal/budget"
	"github.com/PILOTO-ORG/cunha-sub000/internal/common"
)

// Handler exposes confirmation and cancellation endpoints.
type Handler struct {
	Service *Service
}

// Confirm handles POST /api/v1/reservas/{reservationID}/confirmar.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.Confirm(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"id_reserva": id,
		"status":     budget.StatusConfirmed,
	}})
}

// Cancel handles POST /api/v1/reservas/{reservationID}/cancelar.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.Cancel(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"id_reserva": id,
		"status":     budget.StatusCancelled,
	}})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "reservation service not configured", nil)
		return 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "reservationID"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid reservation id", nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var stockErr *InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		common.JSONError(w, http.StatusConflict, "INSUFFICIENT_STOCK", stockErr.Error(), map[string]any{
			"id_produto":            stockErr.ProductID,
			"quantidade_solicitada": stockErr.Requested,
			"quantidade_disponivel": stockErr.Available,
		})
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "reservation not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_TRANSITION", "status transition not allowed", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}
