package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/techhaven/backend-pos/internal/common"
	"github.com/techhaven/backend-pos/internal/store"
)

// Handler exposes cart endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{service: service, validate: validate}
}

type lineRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// Get handles GET /api/v1/customers/{id}/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, ok := parseCustomerID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Estimate handles GET /api/v1/customers/{id}/cart/estimate.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	customerID, ok := parseCustomerID(w, r)
	if !ok {
		return
	}
	totals, err := h.service.Estimate(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": totals})
}

// Add handles POST /api/v1/customers/{id}/cart.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	customerID, ok := parseCustomerID(w, r)
	if !ok {
		return
	}
	var req lineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid cart line", err.Error())
		return
	}
	if err := h.service.Add(r.Context(), customerID, req.ProductID, req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetQuantity handles PUT /api/v1/customers/{id}/cart/{productID}.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	customerID, ok := parseCustomerID(w, r)
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid quantity", err.Error())
		return
	}
	if err := h.service.SetQuantity(r.Context(), customerID, productID, req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Remove handles DELETE /api/v1/customers/{id}/cart/{productID}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	customerID, ok := parseCustomerID(w, r)
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	if err := h.service.Remove(r.Context(), customerID, productID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/v1/customers/{id}/cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	customerID, ok := parseCustomerID(w, r)
	if !ok {
		return
	}
	if err := h.service.Clear(r.Context(), customerID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, store.ErrCustomerNotFound):
		common.JSONError(w, http.StatusNotFound, "CUSTOMER_NOT_FOUND", "customer not found", nil)
	case errors.Is(err, store.ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	case errors.Is(err, store.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart line not found", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

func parseCustomerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return 0, false
	}
	return id, true
}
