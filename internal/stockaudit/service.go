package stockaudit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateAudit(ctx context.Context, audit Audit) (int64, error)
	GetAudit(ctx context.Context, id int64) (Audit, error)
	ListAudits(ctx context.Context, branchID int64, limit int) ([]Audit, error)
	GetItem(ctx context.Context, itemID int64) (Item, error)
	ListItems(ctx context.Context, auditID int64) ([]Item, error)
	UpdateItemCount(ctx context.Context, itemID int64, actualQty, difference float64, notes string) error
}

// LedgerPort reads ledger entries when an audit is populated.
type LedgerPort interface {
	ListEntries(ctx context.Context, branchID int64) ([]ledger.Entry, error)
}

// AuditPort abstracts activity logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportsPort invalidates cached reporting projections after a posting.
type ReportsPort interface {
	Bump(ctx context.Context, branchID int64) error
}

// Service drives the audit lifecycle.
type Service struct {
	repo    RepositoryPort
	stocks  LedgerPort
	audit   AuditPort
	reports ReportsPort
}

// NewService constructs the stockaudit service.
func NewService(repo RepositoryPort, stocks LedgerPort, audit AuditPort) *Service {
	return &Service{repo: repo, stocks: stocks, audit: audit}
}

// SetReportsCache wires the reporting cache so completing an audit drops the
// stale branch projections.
func (s *Service) SetReportsCache(reports ReportsPort) {
	s.reports = reports
}

// CreateInput describes a new audit session.
type CreateInput struct {
	BranchID  int64
	AuditDate time.Time
	Notes     string
	ActorID   int64
}

// Create opens a draft audit. Only one non-cancelled audit may exist per
// branch and date.
func (s *Service) Create(ctx context.Context, input CreateInput) (Audit, error) {
	if input.BranchID == 0 {
		return Audit{}, fmt.Errorf("%w: branch required", ErrValidation)
	}
	if input.AuditDate.IsZero() {
		return Audit{}, fmt.Errorf("%w: audit date required", ErrValidation)
	}
	audit := Audit{
		BranchID:  input.BranchID,
		AuditDate: input.AuditDate.Truncate(24 * time.Hour),
		Status:    StatusDraft,
		Notes:     input.Notes,
		CreatedBy: input.ActorID,
		CreatedAt: time.Now().UTC(),
	}
	id, err := s.repo.CreateAudit(ctx, audit)
	if err != nil {
		return Audit{}, err
	}
	audit.ID = id
	s.recordAudit(ctx, input.ActorID, "stockaudit:create", audit, nil)
	return audit, nil
}

// Populate snapshots every ledger entry of the branch into audit items and
// moves the audit to in_progress. Calling it again after items exist is a
// no-op, so a retried request cannot duplicate the snapshot.
func (s *Service) Populate(ctx context.Context, auditID, actorID int64) (Audit, error) {
	audit, err := s.repo.GetAudit(ctx, auditID)
	if err != nil {
		return Audit{}, err
	}
	switch audit.Status {
	case StatusDraft:
	case StatusInProgress:
		return audit, nil
	default:
		return Audit{}, ErrInvalidState
	}

	entries, err := s.stocks.ListEntries(ctx, audit.BranchID)
	if err != nil {
		return Audit{}, err
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].ProductID < entries[b].ProductID })

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Claim the draft before writing anything: a concurrent populate
		// that got there first fails the guarded transition and no item
		// is inserted twice.
		if err := tx.UpdateAuditStatus(ctx, auditID, StatusDraft, StatusInProgress); err != nil {
			return err
		}
		for _, entry := range entries {
			if err := tx.InsertItem(ctx, Item{
				AuditID:     auditID,
				ProductID:   entry.ProductID,
				ExpectedQty: entry.Qty,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			// Lost the race to another populate: settle on its snapshot.
			if current, readErr := s.repo.GetAudit(ctx, auditID); readErr == nil && current.Status == StatusInProgress {
				return current, nil
			}
		}
		return Audit{}, err
	}

	audit.Status = StatusInProgress
	s.recordAudit(ctx, actorID, "stockaudit:populate", audit, map[string]any{"items": len(entries)})
	return audit, nil
}

// RecordCount stores a counted quantity on an item and computes the
// difference immediately.
func (s *Service) RecordCount(ctx context.Context, itemID int64, actualQty float64, notes string, actorID int64) (Item, error) {
	if actualQty < 0 {
		return Item{}, ledger.ErrInvalidQuantity
	}
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	audit, err := s.repo.GetAudit(ctx, item.AuditID)
	if err != nil {
		return Item{}, err
	}
	// Items only exist once Populate moved the audit to in_progress.
	if audit.Status != StatusInProgress {
		return Item{}, ErrInvalidState
	}
	difference := actualQty - item.ExpectedQty
	if err := s.repo.UpdateItemCount(ctx, itemID, actualQty, difference, notes); err != nil {
		return Item{}, err
	}
	item.ActualQty = &actualQty
	item.Difference = difference
	item.Notes = notes
	return item, nil
}

// Complete closes the audit: every counted difference becomes an AUDIT
// movement through a single transaction. Any item still uncounted aborts
// with ErrIncompleteAudit before the ledger is touched.
func (s *Service) Complete(ctx context.Context, auditID, actorID int64) (Audit, error) {
	audit, err := s.repo.GetAudit(ctx, auditID)
	if err != nil {
		return Audit{}, err
	}
	if audit.Status != StatusInProgress {
		return Audit{}, ErrInvalidState
	}
	items, err := s.repo.ListItems(ctx, auditID)
	if err != nil {
		return Audit{}, err
	}
	for _, item := range items {
		if item.ActualQty == nil {
			return Audit{}, ErrIncompleteAudit
		}
	}
	sort.Slice(items, func(a, b int) bool { return items[a].ProductID < items[b].ProductID })

	now := time.Now().UTC()
	refID := uuid.New().String()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		mutator := ledger.NewMutator(tx.Ledger())
		for _, item := range items {
			if item.Difference == 0 {
				continue
			}
			_, _, err := mutator.SetAbsolute(ctx, item.ProductID, audit.BranchID, *item.ActualQty, ledger.MovementMeta{
				Kind:      ledger.KindAudit,
				RefModule: "STOCKAUDIT",
				RefID:     refID,
				Note:      fmt.Sprintf("Audit #%d reconciliation", auditID),
				ActorID:   actorID,
				PostedAt:  now,
			})
			if err != nil {
				return err
			}
		}
		return tx.CompleteAudit(ctx, auditID, actorID, now)
	})
	if err != nil {
		return Audit{}, err
	}

	audit.Status = StatusCompleted
	audit.CompletedBy = actorID
	audit.CompletedAt = &now
	if s.reports != nil {
		_ = s.reports.Bump(ctx, audit.BranchID)
	}
	s.recordAudit(ctx, actorID, "stockaudit:complete", audit, map[string]any{"items": len(items)})
	return audit, nil
}

// Cancel abandons an open audit. Items stay on record for review; the
// ledger is untouched.
func (s *Service) Cancel(ctx context.Context, auditID, actorID int64) (Audit, error) {
	audit, err := s.repo.GetAudit(ctx, auditID)
	if err != nil {
		return Audit{}, err
	}
	if audit.Status != StatusDraft && audit.Status != StatusInProgress {
		return Audit{}, ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateAuditStatus(ctx, auditID, audit.Status, StatusCancelled)
	})
	if err != nil {
		return Audit{}, err
	}
	audit.Status = StatusCancelled
	s.recordAudit(ctx, actorID, "stockaudit:cancel", audit, nil)
	return audit, nil
}

// GetAudit loads an audit with its items.
func (s *Service) GetAudit(ctx context.Context, id int64) (Audit, []Item, error) {
	audit, err := s.repo.GetAudit(ctx, id)
	if err != nil {
		return Audit{}, nil, err
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return Audit{}, nil, err
	}
	return audit, items, nil
}

// ListAudits lists audits of a branch, newest first.
func (s *Service) ListAudits(ctx context.Context, branchID int64, limit int) ([]Audit, error) {
	if branchID == 0 {
		return nil, fmt.Errorf("%w: branch required", ErrValidation)
	}
	return s.repo.ListAudits(ctx, branchID, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, audit Audit, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_audit",
		EntityID: fmt.Sprintf("%d", audit.ID),
		BranchID: audit.BranchID,
		Meta:     meta,
	})
}
