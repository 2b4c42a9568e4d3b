package stockaudit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for stock audits.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stockaudit handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{auditID}", h.handleGet)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(shared.RoleAdmin, shared.RoleBranchManager))
		r.Post("/", h.handleCreate)
		r.Post("/{auditID}/populate", h.handlePopulate)
		r.Post("/{auditID}/complete", h.handleComplete)
		r.Post("/{auditID}/cancel", h.handleCancel)
		r.Put("/items/{itemID}/count", h.handleRecordCount)
	})
}

type createRequest struct {
	BranchID  int64  `json:"branch_id" validate:"required,gt=0"`
	AuditDate string `json:"audit_date" validate:"required"`
	Notes     string `json:"notes" validate:"max=500"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	auditDate, err := time.Parse("2006-01-02", req.AuditDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "audit_date must be YYYY-MM-DD")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if !actor.CanAccessBranch(req.BranchID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "branch not permitted")
		return
	}
	audit, err := h.service.Create(r.Context(), CreateInput{
		BranchID:  req.BranchID,
		AuditDate: auditDate,
		Notes:     req.Notes,
		ActorID:   actor.ID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, audit)
}

func (h *Handler) handlePopulate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Populate)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Complete)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, auditID, actorID int64) (Audit, error)) {
	auditID, err := strconv.ParseInt(chi.URLParam(r, "auditID"), 10, 64)
	if err != nil || auditID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid audit id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	audit, err := h.service.repo.GetAudit(r.Context(), auditID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !actor.CanAccessBranch(audit.BranchID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "branch not permitted")
		return
	}
	result, err := fn(r.Context(), auditID, actor.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleRecordCount(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	var req struct {
		ActualQty *float64 `json:"actual_qty" validate:"required"`
		Notes     string   `json:"notes" validate:"max=500"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	item, err := h.service.RecordCount(r.Context(), itemID, *req.ActualQty, req.Notes, actor.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	auditID, err := strconv.ParseInt(chi.URLParam(r, "auditID"), 10, 64)
	if err != nil || auditID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid audit id")
		return
	}
	audit, items, err := h.service.GetAudit(r.Context(), auditID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if !actor.CanAccessBranch(audit.BranchID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "branch not permitted")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"audit": audit, "items": items})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branch_id"), 10, 64)
	if err != nil || branchID == 0 {
		branchID = actor.BranchID
	}
	if branchID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch_id is required")
		return
	}
	if !actor.CanAccessBranch(branchID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "branch not permitted")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	audits, err := h.service.ListAudits(r.Context(), branchID, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"audits": audits})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ledger.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateAudit):
		httpx.Problem(w, http.StatusConflict, "Duplicate Audit", err.Error())
	case errors.Is(err, ErrIncompleteAudit):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Incomplete Audit", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ledger.ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("stockaudit handler", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
