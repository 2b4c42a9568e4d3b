package purchasing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/costing"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, []Line, error)
	ListInvoices(ctx context.Context, branchID int64, limit int) ([]Invoice, error)
}

// AuditPort abstracts activity logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportsPort invalidates cached reporting projections after a posting.
type ReportsPort interface {
	Bump(ctx context.Context, branchID int64) error
}

// Service orchestrates purchase posting and reversal.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	reports     ReportsPort
}

// NewService constructs the purchasing service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// SetReportsCache wires the reporting cache so successful postings drop the
// stale branch projections.
func (s *Service) SetReportsCache(reports ReportsPort) {
	s.reports = reports
}

// LineInput is one received product on a purchase.
type LineInput struct {
	ProductID int64
	Qty       float64
	UnitPrice float64
	VATPct    float64
}

// RecordPurchaseInput describes a purchase batch.
type RecordPurchaseInput struct {
	Number       string
	BranchID     int64
	SupplierName string
	ActorID      int64
	Lines        []LineInput
}

// RecordPurchase posts the whole invoice as one unit of work: the document,
// its lines, one PURCHASE movement per line, and the ledger updates all
// commit together or not at all.
func (s *Service) RecordPurchase(ctx context.Context, input RecordPurchaseInput) (Invoice, error) {
	if input.BranchID == 0 {
		return Invoice{}, fmt.Errorf("%w: branch required", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Invoice{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 {
			return Invoice{}, fmt.Errorf("%w: product required", ErrValidation)
		}
		if line.Qty <= 0 {
			return Invoice{}, ledger.ErrInvalidQuantity
		}
		if line.UnitPrice < 0 {
			return Invoice{}, ledger.ErrInvalidUnitCost
		}
		if line.VATPct < 0 {
			return Invoice{}, fmt.Errorf("%w: vat percentage must be >= 0", ErrValidation)
		}
	}

	now := time.Now().UTC()
	number := input.Number
	if number == "" {
		number = generateNumber("INV")
	}
	refID := uuid.New().String()

	invoice := Invoice{
		Number:       number,
		RefID:        refID,
		BranchID:     input.BranchID,
		SupplierName: input.SupplierName,
		Status:       StatusPosted,
		PostedBy:     input.ActorID,
		PostedAt:     now,
	}
	lines := make([]Line, 0, len(input.Lines))
	for _, in := range input.Lines {
		base := in.Qty * in.UnitPrice
		rate := in.VATPct / 100
		invoice.Subtotal += base
		invoice.VATTotal += costing.VATAmount(base, rate)
		lines = append(lines, Line{
			ProductID: in.ProductID,
			Qty:       in.Qty,
			UnitPrice: in.UnitPrice,
			VATPct:    in.VATPct,
			LineTotal: costing.TotalWithVAT(base, rate),
		})
	}
	invoice.Total = invoice.Subtotal + invoice.VATTotal

	idemKey := fmt.Sprintf("PURCHASE:%s:%d", number, input.BranchID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "purchasing"); err != nil {
			return Invoice{}, err
		}
		insertedKey = true
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoiceID, err := tx.InsertInvoice(ctx, invoice)
		if err != nil {
			return err
		}
		invoice.ID = invoiceID
		mutator := ledger.NewMutator(tx.Ledger())
		// Lock ledger rows in product order so concurrent batches cannot
		// deadlock each other.
		order := sortedByProduct(lines)
		for _, idx := range order {
			line := lines[idx]
			line.InvoiceID = invoiceID
			if err := tx.InsertInvoiceLine(ctx, line); err != nil {
				return err
			}
			_, _, err := mutator.ApplyPositive(ctx, line.ProductID, invoice.BranchID, line.Qty, line.UnitPrice, ledger.MovementMeta{
				Kind:      ledger.KindPurchase,
				RefModule: "PURCHASING",
				RefID:     refID,
				Note:      fmt.Sprintf("Invoice %s", number),
				ActorID:   input.ActorID,
				PostedAt:  now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return Invoice{}, err
	}

	s.bumpReports(ctx, invoice.BranchID)
	s.recordAudit(ctx, input.ActorID, "purchase:post", invoice, map[string]any{
		"number": invoice.Number,
		"total":  invoice.Total,
		"lines":  len(lines),
	})
	return invoice, nil
}

// ReverseInvoice emits the exact inverse movement for every line, at the
// original cost basis, instead of deleting history. A reversal that would
// drive any ledger entry negative fails with ErrInsufficientStock and
// nothing is applied.
func (s *Service) ReverseInvoice(ctx context.Context, invoiceID, actorID int64) (Invoice, error) {
	invoice, lines, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if invoice.Status != StatusPosted {
		return Invoice{}, ErrInvalidState
	}

	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		mutator := ledger.NewMutator(tx.Ledger())
		order := sortedByProduct(lines)
		for _, idx := range order {
			line := lines[idx]
			_, _, err := mutator.ApplyNegativeAtCost(ctx, line.ProductID, invoice.BranchID, line.Qty, line.UnitPrice, ledger.MovementMeta{
				Kind:      ledger.KindReversal,
				RefModule: "PURCHASING",
				RefID:     invoice.RefID,
				Note:      fmt.Sprintf("Reversal of invoice %s", invoice.Number),
				ActorID:   actorID,
				PostedAt:  now,
			})
			if err != nil {
				return err
			}
		}
		return tx.UpdateInvoiceStatus(ctx, invoiceID, StatusPosted, StatusReversed)
	})
	if err != nil {
		return Invoice{}, err
	}

	invoice.Status = StatusReversed
	s.bumpReports(ctx, invoice.BranchID)
	s.recordAudit(ctx, actorID, "purchase:reverse", invoice, map[string]any{"number": invoice.Number})
	return invoice, nil
}

// GetInvoice loads an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, []Line, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices lists invoices of a branch, newest first.
func (s *Service) ListInvoices(ctx context.Context, branchID int64, limit int) ([]Invoice, error) {
	if branchID == 0 {
		return nil, fmt.Errorf("%w: branch required", ErrValidation)
	}
	return s.repo.ListInvoices(ctx, branchID, limit)
}

func (s *Service) bumpReports(ctx context.Context, branchID int64) {
	if s.reports == nil {
		return
	}
	_ = s.reports.Bump(ctx, branchID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, invoice Invoice, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_invoice",
		EntityID: fmt.Sprintf("%d", invoice.ID),
		BranchID: invoice.BranchID,
		Meta:     meta,
	})
}

func sortedByProduct(lines []Line) []int {
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return lines[order[a]].ProductID < lines[order[b]].ProductID
	})
	return order
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
