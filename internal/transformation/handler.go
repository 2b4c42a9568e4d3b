package transformation

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for transformations.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the transformation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transformation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{transformationID}", h.handleGet)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(shared.RoleAdmin, shared.RoleBranchManager))
		r.Post("/", h.handleRecord)
		r.Post("/{transformationID}/reverse", h.handleReverse)
	})
}

type sourceRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
}

type recordRequest struct {
	Number          string          `json:"number" validate:"max=64"`
	BranchID        int64           `json:"branch_id" validate:"required,gt=0"`
	TargetProductID int64           `json:"target_product_id" validate:"required,gt=0"`
	TargetQty       float64         `json:"target_qty" validate:"required,gt=0"`
	Sources         []sourceRequest `json:"sources" validate:"required,min=1,dive"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if !actor.CanAccessBranch(req.BranchID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "branch not permitted")
		return
	}

	input := RecordTransformationInput{
		Number:          req.Number,
		BranchID:        req.BranchID,
		TargetProductID: req.TargetProductID,
		TargetQty:       req.TargetQty,
		ActorID:         actor.ID,
	}
	for _, src := range req.Sources {
		input.Sources = append(input.Sources, SourceInput{ProductID: src.ProductID, Qty: src.Qty})
	}

	doc, err := h.service.RecordTransformation(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "transformationID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transformation id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	doc, _, err := h.service.GetTransformation(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !actor.CanAccessBranch(doc.BranchID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "branch not permitted")
		return
	}
	reversed, err := h.service.ReverseTransformation(r.Context(), id, actor.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reversed)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "transformationID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transformation id")
		return
	}
	doc, sources, err := h.service.GetTransformation(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if !actor.CanAccessBranch(doc.BranchID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "branch not permitted")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transformation": doc, "sources": sources})
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
	docs, err := h.service.ListTransformations(r.Context(), branchID, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transformations": docs})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ledger.ErrInvalidQuantity), errors.Is(err, ledger.ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ledger.ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("transformation handler", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
