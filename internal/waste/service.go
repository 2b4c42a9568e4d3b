package waste

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRecord(ctx context.Context, id int64) (Record, error)
	ListRecords(ctx context.Context, branchID int64, limit int) ([]Record, error)
}

// AuditPort abstracts activity logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportsPort invalidates cached reporting projections after a posting.
type ReportsPort interface {
	Bump(ctx context.Context, branchID int64) error
}

// Service orchestrates waste posting and reversal.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	reports ReportsPort
}

// NewService constructs the waste service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// SetReportsCache wires the reporting cache so successful postings drop the
// stale branch projections.
func (s *Service) SetReportsCache(reports ReportsPort) {
	s.reports = reports
}

// RecordWasteInput describes a write-off request.
type RecordWasteInput struct {
	BranchID  int64
	ProductID int64
	Qty       float64
	Reason    Reason
	Note      string
	ActorID   int64
}

// RecordWaste posts the write-off in one transaction. The charge is the
// quantity times the moving average captured under lock, so two concurrent
// write-offs never overdraw the entry.
func (s *Service) RecordWaste(ctx context.Context, input RecordWasteInput) (Record, error) {
	if input.BranchID == 0 || input.ProductID == 0 {
		return Record{}, fmt.Errorf("%w: branch and product required", ErrValidation)
	}
	if input.Qty <= 0 {
		return Record{}, ledger.ErrInvalidQuantity
	}
	if !ValidReason(input.Reason) {
		return Record{}, ErrInvalidReason
	}

	now := time.Now().UTC()
	record := Record{
		RefID:     uuid.New().String(),
		BranchID:  input.BranchID,
		ProductID: input.ProductID,
		Qty:       input.Qty,
		Reason:    input.Reason,
		Note:      input.Note,
		Status:    StatusPosted,
		PostedBy:  input.ActorID,
		PostedAt:  now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		mutator := ledger.NewMutator(tx.Ledger())
		_, movement, err := mutator.ApplyNegative(ctx, input.ProductID, input.BranchID, input.Qty, ledger.MovementMeta{
			Kind:      ledger.KindWaste,
			RefModule: "WASTE",
			RefID:     record.RefID,
			Note:      fmt.Sprintf("Waste (%s)", input.Reason),
			ActorID:   input.ActorID,
			PostedAt:  now,
		})
		if err != nil {
			return err
		}
		record.CostPerUnit = movement.UnitCost
		record.TotalCost = input.Qty * movement.UnitCost
		id, err := tx.InsertRecord(ctx, record)
		if err != nil {
			return err
		}
		record.ID = id
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	s.bumpReports(ctx, record.BranchID)
	s.recordAudit(ctx, input.ActorID, "waste:post", record, map[string]any{
		"reason":     string(record.Reason),
		"qty":        record.Qty,
		"total_cost": record.TotalCost,
	})
	return record, nil
}

// ReverseWaste puts the written-off quantity back at the recorded cost.
func (s *Service) ReverseWaste(ctx context.Context, id, actorID int64) (Record, error) {
	record, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if record.Status != StatusPosted {
		return Record{}, ErrInvalidState
	}

	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		mutator := ledger.NewMutator(tx.Ledger())
		_, _, err := mutator.ApplyPositive(ctx, record.ProductID, record.BranchID, record.Qty, record.CostPerUnit, ledger.MovementMeta{
			Kind:      ledger.KindReversal,
			RefModule: "WASTE",
			RefID:     record.RefID,
			Note:      "Waste reversal",
			ActorID:   actorID,
			PostedAt:  now,
		})
		if err != nil {
			return err
		}
		return tx.UpdateRecordStatus(ctx, id, StatusPosted, StatusReversed)
	})
	if err != nil {
		return Record{}, err
	}

	record.Status = StatusReversed
	s.bumpReports(ctx, record.BranchID)
	s.recordAudit(ctx, actorID, "waste:reverse", record, nil)
	return record, nil
}

// GetRecord loads a write-off.
func (s *Service) GetRecord(ctx context.Context, id int64) (Record, error) {
	return s.repo.GetRecord(ctx, id)
}

// ListRecords lists write-offs of a branch, newest first.
func (s *Service) ListRecords(ctx context.Context, branchID int64, limit int) ([]Record, error) {
	if branchID == 0 {
		return nil, fmt.Errorf("%w: branch required", ErrValidation)
	}
	return s.repo.ListRecords(ctx, branchID, limit)
}

func (s *Service) bumpReports(ctx context.Context, branchID int64) {
	if s.reports == nil {
		return
	}
	_ = s.reports.Bump(ctx, branchID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, record Record, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "waste_record",
		EntityID: fmt.Sprintf("%d", record.ID),
		BranchID: record.BranchID,
		Meta:     meta,
	})
}
