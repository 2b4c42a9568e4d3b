package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu        sync.Mutex
	entries   map[string]Entry
	movements []Movement
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: make(map[string]Entry)}
}

func key(productID, branchID int64) string {
	return fmt.Sprintf("%d:%d", productID, branchID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetEntry(ctx context.Context, productID, branchID int64) (Entry, error) {
	if entry, ok := r.entries[key(productID, branchID)]; ok {
		return entry, nil
	}
	return Entry{ProductID: productID, BranchID: branchID}, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, branchID int64) ([]Entry, error) {
	var entries []Entry
	for _, entry := range r.entries {
		if entry.BranchID == branchID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	result := make([]Movement, len(r.movements))
	copy(result, r.movements)
	return result, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetEntryForUpdate(ctx context.Context, productID, branchID int64) (Entry, error) {
	if entry, ok := tx.repo.entries[key(productID, branchID)]; ok {
		return entry, nil
	}
	return Entry{ProductID: productID, BranchID: branchID}, ErrEntryNotFound
}

func (tx *memoryTx) UpsertEntry(ctx context.Context, entry Entry) error {
	tx.repo.entries[key(entry.ProductID, entry.BranchID)] = entry
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	tx.repo.nextID++
	movement.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, movement)
	return movement.ID, nil
}

func (tx *memoryTx) GetMovement(ctx context.Context, id int64) (Movement, error) {
	for _, m := range tx.repo.movements {
		if m.ID == id {
			return m, nil
		}
	}
	return Movement{}, ErrNotFound
}

// foldQty recomputes the quantity for a key from movement history.
func (r *memoryRepo) foldQty(productID, branchID int64) float64 {
	var sum float64
	for _, m := range r.movements {
		if m.ProductID == productID && m.BranchID == branchID {
			sum += m.Qty
		}
	}
	return sum
}

func TestMutatorApplyPositiveBlendsAverage(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m := NewMutator(tx)
		entry, _, err := m.ApplyPositive(ctx, 1, 1, 50, 4.00, MovementMeta{Kind: KindPurchase})
		require.NoError(t, err)
		require.InDelta(t, 50, entry.Qty, 1e-9)
		require.InDelta(t, 4.00, entry.AvgCost, 1e-9)

		entry, _, err = m.ApplyPositive(ctx, 1, 1, 50, 6.00, MovementMeta{Kind: KindPurchase})
		require.NoError(t, err)
		require.InDelta(t, 100, entry.Qty, 1e-9)
		require.InDelta(t, 5.00, entry.AvgCost, 1e-9)
		return nil
	})
	require.NoError(t, err)
	require.InDelta(t, 100, repo.foldQty(1, 1), 1e-9)
}

func TestMutatorApplyNegativeKeepsAverage(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m := NewMutator(tx)
		_, _, err := m.ApplyPositive(ctx, 1, 1, 20, 3.00, MovementMeta{Kind: KindPurchase})
		require.NoError(t, err)

		entry, movement, err := m.ApplyNegative(ctx, 1, 1, 5, MovementMeta{Kind: KindWaste})
		require.NoError(t, err)
		require.InDelta(t, 15, entry.Qty, 1e-9)
		require.InDelta(t, 3.00, entry.AvgCost, 1e-9)
		require.InDelta(t, -5, movement.Qty, 1e-9)
		require.InDelta(t, 3.00, movement.UnitCost, 1e-9)
		return nil
	})
	require.NoError(t, err)
	require.InDelta(t, 15, repo.foldQty(1, 1), 1e-9)
}

func TestMutatorInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m := NewMutator(tx)
		_, _, err := m.ApplyPositive(ctx, 1, 1, 5, 10.00, MovementMeta{Kind: KindPurchase})
		require.NoError(t, err)

		_, _, err = m.ApplyNegative(ctx, 1, 1, 8, MovementMeta{Kind: KindWaste})
		require.ErrorIs(t, err, ErrInsufficientStock)

		entry, err := m.GetOrCreate(ctx, 1, 1)
		require.NoError(t, err)
		require.InDelta(t, 5, entry.Qty, 1e-9)
		return nil
	})
	require.NoError(t, err)
}

func TestMutatorInvalidQuantity(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	_ = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m := NewMutator(tx)
		_, _, err := m.ApplyPositive(ctx, 1, 1, 0, 1.00, MovementMeta{Kind: KindPurchase})
		require.ErrorIs(t, err, ErrInvalidQuantity)
		_, _, err = m.ApplyPositive(ctx, 1, 1, -3, 1.00, MovementMeta{Kind: KindPurchase})
		require.ErrorIs(t, err, ErrInvalidQuantity)
		_, _, err = m.ApplyNegative(ctx, 1, 1, 0, MovementMeta{Kind: KindWaste})
		require.ErrorIs(t, err, ErrInvalidQuantity)
		_, _, err = m.ApplyPositive(ctx, 1, 1, 3, -1.00, MovementMeta{Kind: KindPurchase})
		require.ErrorIs(t, err, ErrInvalidUnitCost)
		return nil
	})
}

func TestMutatorSetAbsoluteEmitsDelta(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m := NewMutator(tx)
		_, _, err := m.ApplyPositive(ctx, 1, 1, 15, 2.00, MovementMeta{Kind: KindPurchase})
		require.NoError(t, err)

		entry, movement, err := m.SetAbsolute(ctx, 1, 1, 12, MovementMeta{Kind: KindAudit})
		require.NoError(t, err)
		require.InDelta(t, 12, entry.Qty, 1e-9)
		require.InDelta(t, -3, movement.Qty, 1e-9)
		require.InDelta(t, 2.00, entry.AvgCost, 1e-9)

		// Setting to the current quantity records nothing.
		_, movement, err = m.SetAbsolute(ctx, 1, 1, 12, MovementMeta{Kind: KindAudit})
		require.NoError(t, err)
		require.Zero(t, movement.ID)
		return nil
	})
	require.NoError(t, err)
	require.InDelta(t, 12, repo.foldQty(1, 1), 1e-9)
	require.Len(t, repo.movements, 2)
}

func TestServiceSetQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.SetQuantity(ctx, AdjustmentInput{ProductID: 7, BranchID: 2, NewQty: 40, Note: "opening balance", ActorID: 1})
	require.NoError(t, err)
	require.InDelta(t, 40, entry.Qty, 1e-9)
	require.InDelta(t, 40, repo.foldQty(7, 2), 1e-9)

	_, err = svc.SetQuantity(ctx, AdjustmentInput{ProductID: 7, BranchID: 2, NewQty: -1})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestServiceGetEntryLazyCreation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	entry, err := svc.GetEntry(context.Background(), 9, 3)
	require.NoError(t, err)
	require.Equal(t, int64(9), entry.ProductID)
	require.Equal(t, int64(3), entry.BranchID)
	require.Zero(t, entry.Qty)
	require.Zero(t, entry.AvgCost)
}
