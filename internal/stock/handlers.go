package stock

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/PILOTO-ORG/cunha-sub000/internal/common"
)

// Handler exposes REST endpoints for the stock ledger.
type Handler struct {
	Service *Service
}

// Availability handles GET /api/v1/estoque/{productID}/disponibilidade.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	av, err := h.Service.Availability(r.Context(), id, q.Get("data_inicio"), q.Get("data_fim"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": av})
}

// Movements handles GET /api/v1/estoque/{productID}/movimentacoes.
func (h *Handler) Movements(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	page, limit := common.ParsePagination(r, 20)
	result, err := h.Service.Movements(r.Context(), id, page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: result.Total},
	})
}

type movementRequest struct {
	Kind     string  `json:"tipo"`
	Quantity int     `json:"quantidade"`
	Notes    *string `json:"observacoes"`
}

// Record handles POST /api/v1/estoque/{productID}/movimentacoes for manual adjustments.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	m, err := h.Service.Record(r.Context(), Movement{
		ProductID: id,
		Kind:      req.Kind,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": m})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "stock service not configured", nil)
		return 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}
