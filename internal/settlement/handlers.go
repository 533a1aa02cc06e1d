package settlement

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

// Handler exposes settlement endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service  *Service
	Validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validate
	if v == nil {
		v = validator.New()
	}
	return &Handler{service: cfg.Service, validate: v}
}

// SettleSale handles POST /api/v1/sales.
func (h *Handler) SettleSale(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settlement service not configured", nil)
		return
	}
	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid sale request", err.Error())
		return
	}
	if req.StaffID == nil {
		if staffID, ok := common.StaffID(r.Context()); ok {
			req.StaffID = &staffID
		}
	}
	result, err := h.service.SettleSale(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": result})
}

// SettleReturn handles POST /api/v1/returns.
func (h *Handler) SettleReturn(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settlement service not configured", nil)
		return
	}
	var req ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid return request", err.Error())
		return
	}
	if req.StaffID == nil {
		if staffID, ok := common.StaffID(r.Context()); ok {
			req.StaffID = &staffID
		}
	}
	result, err := h.service.SettleReturn(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": result})
}

// Receipt handles GET /api/v1/transactions/{id}.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settlement service not configured", nil)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid transaction id", nil)
		return
	}
	receipt, err := h.service.Receipt(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": receipt})
}

// Returns handles GET /api/v1/returns.
func (h *Handler) Returns(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settlement service not configured", nil)
		return
	}
	var customerID *int64
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
			return
		}
		customerID = &id
	}
	rows, err := h.service.ReturnHistory(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptySale), errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, store.ErrInsufficientStock):
		common.JSONError(w, http.StatusConflict, "INSUFFICIENT_STOCK", "not enough stock to settle the sale", nil)
	case errors.Is(err, store.ErrInvalidReturn):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_RETURN", "return exceeds the original sale", nil)
	case errors.Is(err, store.ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	case errors.Is(err, store.ErrCustomerNotFound):
		common.JSONError(w, http.StatusNotFound, "CUSTOMER_NOT_FOUND", "customer not found", nil)
	case errors.Is(err, store.ErrTransactionNotFound):
		common.JSONError(w, http.StatusNotFound, "TRANSACTION_NOT_FOUND", "transaction not found", nil)
	case errors.Is(err, store.ErrSerialization):
		common.JSONError(w, http.StatusConflict, "CONFLICT", "settlement conflicted with a concurrent transaction", nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusInternalServerError
			}
			common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
