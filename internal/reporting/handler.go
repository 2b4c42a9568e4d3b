package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for reporting reads and CSV exports.
type Handler struct {
	logger  *slog.Logger
	service *Service
	exports singleflight.Group
}

// NewHandler constructs the reporting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes. Exports are rate limited per IP
// since they hit the heaviest queries.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/overview", h.handleOverview)
	r.Get("/valuation", h.handleValuation)
	r.Get("/valuation/categories", h.handleCategoryValuation)
	r.Get("/movements/summary", h.handleMovementSummary)
	r.Get("/waste/reasons", h.handleWasteByReason)
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Get("/export/valuation.csv", h.handleExportValuation)
		r.Get("/export/waste.csv", h.handleExportWaste)
	})
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.branchFor(w, r)
	if !ok {
		return
	}
	period, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	overview, err := h.service.BuildOverview(r.Context(), branchID, period)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overview)
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.branchFor(w, r)
	if !ok {
		return
	}
	report, err := h.service.Valuation(r.Context(), branchID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleCategoryValuation(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.branchFor(w, r)
	if !ok {
		return
	}
	rows, err := h.service.CategoryValuation(r.Context(), branchID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": rows})
}

func (h *Handler) handleMovementSummary(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.branchFor(w, r)
	if !ok {
		return
	}
	period, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rows, err := h.service.MovementSummary(r.Context(), branchID, period)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": rows})
}

func (h *Handler) handleWasteByReason(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.branchFor(w, r)
	if !ok {
		return
	}
	period, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rows, err := h.service.WasteByReason(r.Context(), branchID, period)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"waste": rows})
}

func (h *Handler) handleExportValuation(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.branchFor(w, r)
	if !ok {
		return
	}
	// Concurrent identical exports share one build.
	key := fmt.Sprintf("valuation:%d", branchID)
	result, err, _ := h.exports.Do(key, func() (interface{}, error) {
		return h.service.Valuation(context.WithoutCancel(r.Context()), branchID)
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	report := result.(ValuationReport)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="valuation-branch-%d.csv"`, branchID))
	if err := WriteValuationCSV(w, report); err != nil {
		h.logger.Error("valuation export", slog.Any("error", err))
	}
}

func (h *Handler) handleExportWaste(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.branchFor(w, r)
	if !ok {
		return
	}
	period, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	key := fmt.Sprintf("waste:%d:%d:%d", branchID, period.From.Unix(), period.To.Unix())
	result, err, _ := h.exports.Do(key, func() (interface{}, error) {
		return h.service.WasteByReason(context.WithoutCancel(r.Context()), branchID, period)
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	rows := result.([]WasteReasonRow)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="waste-branch-%d.csv"`, branchID))
	if err := WriteWasteCSV(w, branchID, period, rows); err != nil {
		h.logger.Error("waste export", slog.Any("error", err))
	}
}

// branchFor resolves the branch under report and enforces branch affinity.
func (h *Handler) branchFor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actor := shared.ActorFromContext(r.Context())
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branch_id"), 10, 64)
	if err != nil || branchID == 0 {
		branchID = actor.BranchID
	}
	if branchID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch_id is required")
		return 0, false
	}
	if !actor.CanAccessBranch(branchID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "branch not permitted")
		return 0, false
	}
	return branchID, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("reporting handler", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// parseRange reads from/to query dates, defaulting to the last 30 days.
func parseRange(r *http.Request) (Range, error) {
	now := time.Now().UTC()
	period := Range{From: now.AddDate(0, 0, -30), To: now}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Range{}, errors.New("invalid from date")
		}
		period.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Range{}, errors.New("invalid to date")
		}
		period.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	return period, nil
}
