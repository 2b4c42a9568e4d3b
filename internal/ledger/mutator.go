package ledger

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/costing"
)

// MovementMeta carries the audit trail fields of a movement being posted.
type MovementMeta struct {
	Kind      MovementKind
	RefModule string
	RefID     string
	Note      string
	ActorID   int64
	PostedAt  time.Time
}

// Mutator applies movement semantics over a transactional repository. It is
// constructed inside a WithTx callback so that a processor's document writes
// and its ledger mutations commit or roll back together.
type Mutator struct {
	repo TxRepository
}

// NewMutator builds a Mutator bound to the transaction-scoped repository.
func NewMutator(repo TxRepository) *Mutator {
	return &Mutator{repo: repo}
}

// GetOrCreate returns the locked entry for the key, or a zero-initialized
// one when no movement ever touched it. Creation is implicit; callers never
// invoke a separate create step.
func (m *Mutator) GetOrCreate(ctx context.Context, productID, branchID int64) (Entry, error) {
	entry, err := m.repo.GetEntryForUpdate(ctx, productID, branchID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return Entry{ProductID: productID, BranchID: branchID}, nil
		}
		return Entry{}, err
	}
	return entry, nil
}

// ApplyPositive receives stock: blends the average cost, increments the
// quantity, and records the movement.
func (m *Mutator) ApplyPositive(ctx context.Context, productID, branchID int64, qty, unitCost float64, meta MovementMeta) (Entry, Movement, error) {
	if qty <= 0 {
		return Entry{}, Movement{}, ErrInvalidQuantity
	}
	if unitCost < 0 {
		return Entry{}, Movement{}, ErrInvalidUnitCost
	}
	entry, err := m.GetOrCreate(ctx, productID, branchID)
	if err != nil {
		return Entry{}, Movement{}, err
	}
	entry.AvgCost = costing.BlendAverageCost(entry.Qty, entry.AvgCost, qty, unitCost)
	entry.Qty += qty
	return m.commit(ctx, entry, qty, unitCost, meta)
}

// ApplyNegative issues stock at the current average cost. The average cost
// of the remaining stock is unchanged.
func (m *Mutator) ApplyNegative(ctx context.Context, productID, branchID int64, qty float64, meta MovementMeta) (Entry, Movement, error) {
	return m.applyNegative(ctx, productID, branchID, qty, nil, meta)
}

// ApplyNegativeAtCost deducts stock but records the movement at the given
// cost basis instead of the current average. Used only by document
// reversals, which must mirror the original movement's cost exactly.
func (m *Mutator) ApplyNegativeAtCost(ctx context.Context, productID, branchID int64, qty, unitCost float64, meta MovementMeta) (Entry, Movement, error) {
	if unitCost < 0 {
		return Entry{}, Movement{}, ErrInvalidUnitCost
	}
	return m.applyNegative(ctx, productID, branchID, qty, &unitCost, meta)
}

func (m *Mutator) applyNegative(ctx context.Context, productID, branchID int64, qty float64, costOverride *float64, meta MovementMeta) (Entry, Movement, error) {
	if qty <= 0 {
		return Entry{}, Movement{}, ErrInvalidQuantity
	}
	entry, err := m.GetOrCreate(ctx, productID, branchID)
	if err != nil {
		return Entry{}, Movement{}, err
	}
	if qty > entry.Qty+qtyEpsilon {
		return Entry{}, Movement{}, ErrInsufficientStock
	}
	unitCost := entry.AvgCost
	if costOverride != nil {
		unitCost = *costOverride
	}
	entry.Qty -= qty
	if math.Abs(entry.Qty) < qtyEpsilon {
		entry.Qty = 0
	}
	return m.commit(ctx, entry, -qty, unitCost, meta)
}

// SetAbsolute replaces the quantity directly, used only by manual adjustment
// and audit completion. The compensating movement equals the signed delta so
// the entry stays consistent with its movement fold; average cost does not
// change. A zero delta is a no-op and records nothing.
func (m *Mutator) SetAbsolute(ctx context.Context, productID, branchID int64, qty float64, meta MovementMeta) (Entry, Movement, error) {
	if qty < 0 {
		return Entry{}, Movement{}, ErrInvalidQuantity
	}
	entry, err := m.GetOrCreate(ctx, productID, branchID)
	if err != nil {
		return Entry{}, Movement{}, err
	}
	delta := qty - entry.Qty
	if math.Abs(delta) < qtyEpsilon {
		return entry, Movement{}, nil
	}
	entry.Qty = qty
	return m.commit(ctx, entry, delta, entry.AvgCost, meta)
}

func (m *Mutator) commit(ctx context.Context, entry Entry, qtyDelta, unitCost float64, meta MovementMeta) (Entry, Movement, error) {
	now := meta.PostedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	entry.UpdatedAt = now
	if err := m.repo.UpsertEntry(ctx, entry); err != nil {
		return Entry{}, Movement{}, err
	}
	movement := Movement{
		Kind:      meta.Kind,
		ProductID: entry.ProductID,
		BranchID:  entry.BranchID,
		Qty:       qtyDelta,
		UnitCost:  unitCost,
		RefModule: meta.RefModule,
		RefID:     meta.RefID,
		Note:      meta.Note,
		CreatedBy: meta.ActorID,
		PostedAt:  now,
	}
	id, err := m.repo.InsertMovement(ctx, movement)
	if err != nil {
		return Entry{}, Movement{}, err
	}
	movement.ID = id
	return entry, movement, nil
}
