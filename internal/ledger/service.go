package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, productID, branchID int64) (Entry, error)
	ListEntries(ctx context.Context, branchID int64) ([]Entry, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts activity logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportsPort invalidates cached reporting projections after a posting.
type ReportsPort interface {
	Bump(ctx context.Context, branchID int64) error
}

// Service exposes ledger reads and the manual adjustment path. All other
// mutations happen through the movement processors, which compose the
// Mutator into their own transactions.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	reports ReportsPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// SetReportsCache wires the reporting cache so adjustments drop the stale
// branch projections.
func (s *Service) SetReportsCache(reports ReportsPort) {
	s.reports = reports
}

// GetEntry returns the entry for the key, zero-initialized when absent.
func (s *Service) GetEntry(ctx context.Context, productID, branchID int64) (Entry, error) {
	if productID == 0 || branchID == 0 {
		return Entry{}, errors.New("ledger: product and branch required")
	}
	return s.repo.GetEntry(ctx, productID, branchID)
}

// ListEntries lists every entry of a branch.
func (s *Service) ListEntries(ctx context.Context, branchID int64) ([]Entry, error) {
	if branchID == 0 {
		return nil, errors.New("ledger: branch required")
	}
	return s.repo.ListEntries(ctx, branchID)
}

// ListMovements returns movement history matching the filter.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// AdjustmentInput describes a manual absolute quantity override.
type AdjustmentInput struct {
	ProductID int64
	BranchID  int64
	NewQty    float64
	Note      string
	ActorID   int64
}

// SetQuantity replaces the entry quantity directly. The compensating ADJUST
// movement keeps the fold invariant; average cost is untouched.
func (s *Service) SetQuantity(ctx context.Context, input AdjustmentInput) (Entry, error) {
	if input.ProductID == 0 || input.BranchID == 0 {
		return Entry{}, errors.New("ledger: product and branch required")
	}
	if input.NewQty < 0 {
		return Entry{}, ErrInvalidQuantity
	}
	var result Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		mutator := NewMutator(tx)
		entry, _, err := mutator.SetAbsolute(ctx, input.ProductID, input.BranchID, input.NewQty, MovementMeta{
			Kind:      KindAdjust,
			RefModule: "LEDGER",
			Note:      input.Note,
			ActorID:   input.ActorID,
		})
		if err != nil {
			return err
		}
		result = entry
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if s.reports != nil {
		_ = s.reports.Bump(ctx, input.BranchID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "ledger:adjust",
			Entity:   "stock_ledger",
			EntityID: fmt.Sprintf("%d:%d", input.ProductID, input.BranchID),
			BranchID: input.BranchID,
			Meta: map[string]any{
				"product_id": input.ProductID,
				"branch_id":  input.BranchID,
				"new_qty":    input.NewQty,
				"note":       input.Note,
			},
		})
	}
	return result, nil
}
