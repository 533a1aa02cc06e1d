package loyalty

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/techhaven/backend-pos/internal/common"
	"github.com/techhaven/backend-pos/internal/obs"
	"github.com/techhaven/backend-pos/internal/store"
)

// Handler exposes loyalty endpoints.
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

type redeemRequest struct {
	Points int64 `json:"points" validate:"required,gt=0"`
}

// Redeem handles POST /api/v1/customers/{id}/redeem.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "loyalty service not configured", nil)
		return
	}
	customerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || customerID <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return
	}
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid redemption request", err.Error())
		return
	}
	customer, err := h.service.RedeemPoints(r.Context(), customerID, req.Points)
	if err != nil {
		if obs.RedemptionsTotal != nil {
			obs.RedemptionsTotal.WithLabelValues("error").Inc()
		}
		h.writeError(w, err)
		return
	}
	if obs.RedemptionsTotal != nil {
		obs.RedemptionsTotal.WithLabelValues("ok").Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": customer})
}

// ReconcileTier handles POST /api/v1/customers/{id}/reconcile-tier.
func (h *Handler) ReconcileTier(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "loyalty service not configured", nil)
		return
	}
	customerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || customerID <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return
	}
	customer, err := h.service.ReconcileTier(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": customer})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidRedemptionAmount):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_REDEMPTION", "points must be a positive multiple of 100", nil)
	case errors.Is(err, store.ErrInsufficientPoints):
		common.JSONError(w, http.StatusConflict, "INSUFFICIENT_POINTS", "not enough loyalty points", nil)
	case errors.Is(err, store.ErrCustomerNotFound):
		common.JSONError(w, http.StatusNotFound, "CUSTOMER_NOT_FOUND", "customer not found", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
