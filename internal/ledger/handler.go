package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for ledger reads and manual adjustments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entries", h.handleListEntries)
	r.Get("/entries/{productID}", h.handleGetEntry)
	r.Get("/movements", h.handleListMovements)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(shared.RoleAdmin))
		r.Post("/adjustments", h.handleAdjustment)
	})
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	branchID, err := queryInt64(r, "branch_id")
	if err != nil || branchID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch_id is required")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if !actor.CanAccessBranch(branchID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "branch not permitted")
		return
	}
	entries, err := h.service.ListEntries(r.Context(), branchID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	branchID, err := queryInt64(r, "branch_id")
	if err != nil || branchID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch_id is required")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if !actor.CanAccessBranch(branchID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "branch not permitted")
		return
	}
	entry, err := h.service.GetEntry(r.Context(), productID, branchID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMovementFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if filter.BranchID == 0 && actor.Role != shared.RoleAdmin {
		filter.BranchID = actor.BranchID
	}
	if filter.BranchID != 0 && !actor.CanAccessBranch(filter.BranchID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "branch not permitted")
		return
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

type adjustmentRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	BranchID  int64   `json:"branch_id" validate:"required,gt=0"`
	NewQty    float64 `json:"new_qty" validate:"gte=0"`
	Note      string  `json:"note" validate:"max=500"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	entry, err := h.service.SetQuantity(r.Context(), AdjustmentInput{
		ProductID: req.ProductID,
		BranchID:  req.BranchID,
		NewQty:    req.NewQty,
		Note:      req.Note,
		ActorID:   actor.ID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("ledger handler", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseMovementFilter(r *http.Request) (MovementFilter, error) {
	q := r.URL.Query()
	filter := MovementFilter{Kind: MovementKind(q.Get("kind"))}
	var err error
	if filter.ProductID, err = queryInt64(r, "product_id"); err != nil {
		return MovementFilter{}, errors.New("invalid product_id")
	}
	if filter.BranchID, err = queryInt64(r, "branch_id"); err != nil {
		return MovementFilter{}, errors.New("invalid branch_id")
	}
	if raw := q.Get("from"); raw != "" {
		if filter.From, err = time.Parse("2006-01-02", raw); err != nil {
			return MovementFilter{}, errors.New("invalid from date")
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return MovementFilter{}, errors.New("invalid to date")
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return MovementFilter{}, errors.New("invalid limit")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
