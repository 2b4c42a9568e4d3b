package transformation

import (
	"context"
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
	GetTransformation(ctx context.Context, id int64) (Transformation, []Source, error)
	ListTransformations(ctx context.Context, branchID int64, limit int) ([]Transformation, error)
}

// AuditPort abstracts activity logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportsPort invalidates cached reporting projections after a posting.
type ReportsPort interface {
	Bump(ctx context.Context, branchID int64) error
}

// Service orchestrates transformation posting and reversal.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	reports     ReportsPort
}

// NewService constructs the transformation service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// SetReportsCache wires the reporting cache so successful postings drop the
// stale branch projections.
func (s *Service) SetReportsCache(reports ReportsPort) {
	s.reports = reports
}

// SourceInput is one consumed product in a request. Cost is never supplied;
// the ledger's moving average at commit time is authoritative.
type SourceInput struct {
	ProductID int64
	Qty       float64
}

// RecordTransformationInput describes a transformation group.
type RecordTransformationInput struct {
	Number          string
	BranchID        int64
	TargetProductID int64
	TargetQty       float64
	ActorID         int64
	Sources         []SourceInput
}

// RecordTransformation posts the whole group as one unit of work. Every
// source is verified against locked ledger state before any mutation, so a
// single short source rejects the entire group.
func (s *Service) RecordTransformation(ctx context.Context, input RecordTransformationInput) (Transformation, error) {
	if input.BranchID == 0 {
		return Transformation{}, fmt.Errorf("%w: branch required", ErrValidation)
	}
	if input.TargetProductID == 0 {
		return Transformation{}, fmt.Errorf("%w: target product required", ErrValidation)
	}
	if input.TargetQty <= 0 {
		return Transformation{}, ledger.ErrInvalidQuantity
	}
	if len(input.Sources) == 0 {
		return Transformation{}, fmt.Errorf("%w: at least one source required", ErrValidation)
	}
	seen := make(map[int64]bool, len(input.Sources))
	for _, src := range input.Sources {
		if src.ProductID == 0 {
			return Transformation{}, fmt.Errorf("%w: source product required", ErrValidation)
		}
		if src.ProductID == input.TargetProductID {
			return Transformation{}, fmt.Errorf("%w: target cannot be a source", ErrValidation)
		}
		if seen[src.ProductID] {
			return Transformation{}, fmt.Errorf("%w: duplicate source product %d", ErrValidation, src.ProductID)
		}
		seen[src.ProductID] = true
		if src.Qty <= 0 {
			return Transformation{}, ledger.ErrInvalidQuantity
		}
	}

	now := time.Now().UTC()
	number := input.Number
	if number == "" {
		number = fmt.Sprintf("TRF-%d", now.UnixNano())
	}
	refID := uuid.New().String()

	sources := make([]SourceInput, len(input.Sources))
	copy(sources, input.Sources)
	// Lock order is ascending product ID across the whole group, target
	// included, so concurrent groups cannot deadlock each other.
	sort.Slice(sources, func(a, b int) bool { return sources[a].ProductID < sources[b].ProductID })

	idemKey := fmt.Sprintf("TRANSFORM:%s:%d", number, input.BranchID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "transformation"); err != nil {
			return Transformation{}, err
		}
		insertedKey = true
	}

	doc := Transformation{
		Number:          number,
		RefID:           refID,
		BranchID:        input.BranchID,
		TargetProductID: input.TargetProductID,
		TargetQty:       input.TargetQty,
		Status:          StatusPosted,
		PostedBy:        input.ActorID,
		PostedAt:        now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		mutator := ledger.NewMutator(tx.Ledger())

		// Phase one: lock every source and verify availability before any
		// mutation happens.
		lines := make([]Source, 0, len(sources))
		for _, src := range sources {
			entry, err := mutator.GetOrCreate(ctx, src.ProductID, input.BranchID)
			if err != nil {
				return err
			}
			if src.Qty > entry.Qty {
				return ledger.ErrInsufficientStock
			}
			lines = append(lines, Source{
				ProductID:   src.ProductID,
				Qty:         src.Qty,
				CostPerUnit: entry.AvgCost,
				LineCost:    src.Qty * entry.AvgCost,
			})
			doc.TotalCost += src.Qty * entry.AvgCost
		}
		doc.UnitCost = doc.TotalCost / doc.TargetQty

		id, err := tx.InsertTransformation(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id

		meta := ledger.MovementMeta{
			RefModule: "TRANSFORMATION",
			RefID:     refID,
			Note:      fmt.Sprintf("Transformation %s", number),
			ActorID:   input.ActorID,
			PostedAt:  now,
		}
		for i := range lines {
			lines[i].TransformationID = id
			if err := tx.InsertSource(ctx, lines[i]); err != nil {
				return err
			}
			meta.Kind = ledger.KindTransformOut
			if _, _, err := mutator.ApplyNegative(ctx, lines[i].ProductID, input.BranchID, lines[i].Qty, meta); err != nil {
				return err
			}
		}
		meta.Kind = ledger.KindTransformIn
		_, _, err = mutator.ApplyPositive(ctx, input.TargetProductID, input.BranchID, input.TargetQty, doc.UnitCost, meta)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return Transformation{}, err
	}

	s.bumpReports(ctx, doc.BranchID)
	s.recordAudit(ctx, input.ActorID, "transformation:post", doc, map[string]any{
		"number":     doc.Number,
		"total_cost": doc.TotalCost,
		"sources":    len(input.Sources),
	})
	return doc, nil
}

// ReverseTransformation undoes the group at the recorded cost basis: the
// target is withdrawn at its produced unit cost and every source comes back
// at the cost it was consumed at.
func (s *Service) ReverseTransformation(ctx context.Context, id, actorID int64) (Transformation, error) {
	doc, sources, err := s.repo.GetTransformation(ctx, id)
	if err != nil {
		return Transformation{}, err
	}
	if doc.Status != StatusPosted {
		return Transformation{}, ErrInvalidState
	}

	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		mutator := ledger.NewMutator(tx.Ledger())
		meta := ledger.MovementMeta{
			Kind:      ledger.KindReversal,
			RefModule: "TRANSFORMATION",
			RefID:     doc.RefID,
			Note:      fmt.Sprintf("Reversal of transformation %s", doc.Number),
			ActorID:   actorID,
			PostedAt:  now,
		}
		if _, _, err := mutator.ApplyNegativeAtCost(ctx, doc.TargetProductID, doc.BranchID, doc.TargetQty, doc.UnitCost, meta); err != nil {
			return err
		}
		for _, src := range sources {
			if _, _, err := mutator.ApplyPositive(ctx, src.ProductID, doc.BranchID, src.Qty, src.CostPerUnit, meta); err != nil {
				return err
			}
		}
		return tx.UpdateTransformationStatus(ctx, id, StatusPosted, StatusReversed)
	})
	if err != nil {
		return Transformation{}, err
	}

	doc.Status = StatusReversed
	s.bumpReports(ctx, doc.BranchID)
	s.recordAudit(ctx, actorID, "transformation:reverse", doc, map[string]any{"number": doc.Number})
	return doc, nil
}

// GetTransformation loads a transformation with its sources.
func (s *Service) GetTransformation(ctx context.Context, id int64) (Transformation, []Source, error) {
	return s.repo.GetTransformation(ctx, id)
}

// ListTransformations lists transformations of a branch, newest first.
func (s *Service) ListTransformations(ctx context.Context, branchID int64, limit int) ([]Transformation, error) {
	if branchID == 0 {
		return nil, fmt.Errorf("%w: branch required", ErrValidation)
	}
	return s.repo.ListTransformations(ctx, branchID, limit)
}

func (s *Service) bumpReports(ctx context.Context, branchID int64) {
	if s.reports == nil {
		return
	}
	_ = s.reports.Bump(ctx, branchID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, doc Transformation, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "transformation",
		EntityID: fmt.Sprintf("%d", doc.ID),
		BranchID: doc.BranchID,
		Meta:     meta,
	})
}
