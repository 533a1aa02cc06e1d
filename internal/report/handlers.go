package report

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/techhaven/backend-pos/internal/common"
)

// Handler exposes report endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Daily handles GET /api/v1/reports/daily?date=YYYY-MM-DD.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "date must be YYYY-MM-DD", nil)
			return
		}
		day = parsed
	}
	summary, err := h.service.Daily(r.Context(), day)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}

// Range handles GET /api/v1/reports/range?from=...&to=...
func (h *Handler) Range(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Range(r.Context(), from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// ByTier handles GET /api/v1/reports/tiers?from=...&to=...
func (h *Handler) ByTier(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	rows, err := h.service.ByTier(r.Context(), from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Inventory handles GET /api/v1/reports/inventory.
func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Inventory(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": status})
}

// ExportCSV handles GET /api/v1/reports/export?kind=range|tiers&from=...&to=...
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = "range"
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=report-%s-%s-%s.csv",
		kind, from.Format("2006-01-02"), to.Format("2006-01-02")))
	var err error
	switch kind {
	case "range":
		err = h.service.WriteRangeCSV(r.Context(), w, from, to)
	case "tiers":
		err = h.service.WriteTierCSV(r.Context(), w, from, to)
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "kind must be range or tiers", nil)
		return
	}
	if err != nil {
		// Headers are already written; log-and-abort is all that is left.
		h.service.Log.Error().Err(err).Str("kind", kind).Msg("csv export failed")
	}
}

func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	fromRaw := strings.TrimSpace(q.Get("from"))
	toRaw := strings.TrimSpace(q.Get("to"))
	if fromRaw == "" || toRaw == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from and to are required (YYYY-MM-DD)", nil)
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse("2006-01-02", fromRaw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from must be YYYY-MM-DD", nil)
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse("2006-01-02", toRaw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "to must be YYYY-MM-DD", nil)
		return time.Time{}, time.Time{}, false
	}
	if to.Before(from) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "to must not precede from", nil)
		return time.Time{}, time.Time{}, false
	}
	// Make the range inclusive of the final day.
	to = to.Add(24*time.Hour - time.Nanosecond)
	return from, to, true
}
