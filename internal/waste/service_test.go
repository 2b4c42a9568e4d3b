package waste

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

type memoryStore struct {
	mu        sync.Mutex
	records   map[int64]Record
	entries   map[string]ledger.Entry
	movements []ledger.Movement
	nextID    int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		records: make(map[int64]Record),
		entries: make(map[string]ledger.Entry),
	}
}

func entryKey(productID, branchID int64) string {
	return fmt.Sprintf("%d:%d", productID, branchID)
}

func (s *memoryStore) seed(productID, branchID int64, qty, avgCost float64) {
	s.entries[entryKey(productID, branchID)] = ledger.Entry{
		ProductID: productID, BranchID: branchID, Qty: qty, AvgCost: avgCost,
	}
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapRecords := make(map[int64]Record, len(s.records))
	for k, v := range s.records {
		snapRecords[k] = v
	}
	snapEntries := make(map[string]ledger.Entry, len(s.entries))
	for k, v := range s.entries {
		snapEntries[k] = v
	}
	snapMovements := append([]ledger.Movement(nil), s.movements...)
	snapNextID := s.nextID

	err := fn(ctx, &memoryTx{store: s})
	if err != nil {
		s.records = snapRecords
		s.entries = snapEntries
		s.movements = snapMovements
		s.nextID = snapNextID
	}
	return err
}

func (s *memoryStore) GetRecord(ctx context.Context, id int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (s *memoryStore) ListRecords(ctx context.Context, branchID int64, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []Record
	for _, rec := range s.records {
		if rec.BranchID == branchID {
			records = append(records, rec)
		}
	}
	return records, nil
}

type memoryTx struct {
	store *memoryStore
}

func (tx *memoryTx) InsertRecord(ctx context.Context, record Record) (int64, error) {
	tx.store.nextID++
	record.ID = tx.store.nextID
	tx.store.records[record.ID] = record
	return record.ID, nil
}

func (tx *memoryTx) UpdateRecordStatus(ctx context.Context, id int64, from, to Status) error {
	record, ok := tx.store.records[id]
	if !ok || record.Status != from {
		return ErrInvalidState
	}
	record.Status = to
	tx.store.records[id] = record
	return nil
}

func (tx *memoryTx) Ledger() ledger.TxRepository {
	return &memoryLedgerTx{store: tx.store}
}

type memoryLedgerTx struct {
	store *memoryStore
}

func (tx *memoryLedgerTx) GetEntryForUpdate(ctx context.Context, productID, branchID int64) (ledger.Entry, error) {
	if entry, ok := tx.store.entries[entryKey(productID, branchID)]; ok {
		return entry, nil
	}
	return ledger.Entry{}, ledger.ErrEntryNotFound
}

func (tx *memoryLedgerTx) UpsertEntry(ctx context.Context, entry ledger.Entry) error {
	tx.store.entries[entryKey(entry.ProductID, entry.BranchID)] = entry
	return nil
}

func (tx *memoryLedgerTx) InsertMovement(ctx context.Context, movement ledger.Movement) (int64, error) {
	tx.store.nextID++
	movement.ID = tx.store.nextID
	tx.store.movements = append(tx.store.movements, movement)
	return movement.ID, nil
}

func (tx *memoryLedgerTx) GetMovement(ctx context.Context, id int64) (ledger.Movement, error) {
	for _, m := range tx.store.movements {
		if m.ID == id {
			return m, nil
		}
	}
	return ledger.Movement{}, ledger.ErrNotFound
}

func TestRecordWasteChargesAverageCost(t *testing.T) {
	store := newMemoryStore()
	store.seed(10, 1, 20, 3.00)
	svc := NewService(store, nil)

	record, err := svc.RecordWaste(context.Background(), RecordWasteInput{
		BranchID: 1, ProductID: 10, Qty: 5, Reason: ReasonExpiry, ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, record.Status)
	require.InDelta(t, 3.00, record.CostPerUnit, 1e-9)
	require.InDelta(t, 15.00, record.TotalCost, 1e-9)

	entry := store.entries[entryKey(10, 1)]
	require.InDelta(t, 15, entry.Qty, 1e-9)
	require.InDelta(t, 3.00, entry.AvgCost, 1e-9)

	require.Len(t, store.movements, 1)
	require.Equal(t, ledger.KindWaste, store.movements[0].Kind)
	require.InDelta(t, -5, store.movements[0].Qty, 1e-9)
}

func TestRecordWasteInsufficientStock(t *testing.T) {
	store := newMemoryStore()
	store.seed(10, 1, 2, 3.00)
	svc := NewService(store, nil)

	_, err := svc.RecordWaste(context.Background(), RecordWasteInput{
		BranchID: 1, ProductID: 10, Qty: 5, Reason: ReasonDamage,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.InDelta(t, 2, store.entries[entryKey(10, 1)].Qty, 1e-9)
	require.Empty(t, store.records)
	require.Empty(t, store.movements)
}

func TestRecordWasteInvalidReason(t *testing.T) {
	store := newMemoryStore()
	store.seed(10, 1, 10, 1.00)
	svc := NewService(store, nil)

	_, err := svc.RecordWaste(context.Background(), RecordWasteInput{
		BranchID: 1, ProductID: 10, Qty: 1, Reason: "shrinkage",
	})
	require.ErrorIs(t, err, ErrInvalidReason)
}

func TestReverseWasteRestoresAtRecordedCost(t *testing.T) {
	store := newMemoryStore()
	store.seed(10, 1, 20, 3.00)
	svc := NewService(store, nil)
	ctx := context.Background()

	record, err := svc.RecordWaste(ctx, RecordWasteInput{
		BranchID: 1, ProductID: 10, Qty: 5, Reason: ReasonBreakage, ActorID: 7,
	})
	require.NoError(t, err)

	reversed, err := svc.ReverseWaste(ctx, record.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusReversed, reversed.Status)

	entry := store.entries[entryKey(10, 1)]
	require.InDelta(t, 20, entry.Qty, 1e-9)
	require.InDelta(t, 3.00, entry.AvgCost, 1e-9)

	_, err = svc.ReverseWaste(ctx, record.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)
}

// staleRecordStore replays the record captured at construction time, the view
// a request holds after reading it but before its transaction runs.
type staleRecordStore struct {
	*memoryStore
	record Record
}

func (s *staleRecordStore) GetRecord(ctx context.Context, id int64) (Record, error) {
	return s.record, nil
}

func TestReverseWasteStaleReadCannotRestockTwice(t *testing.T) {
	store := newMemoryStore()
	store.seed(10, 1, 20, 3.00)
	svc := NewService(store, nil)
	ctx := context.Background()

	record, err := svc.RecordWaste(ctx, RecordWasteInput{
		BranchID: 1, ProductID: 10, Qty: 5, Reason: ReasonExpiry, ActorID: 7,
	})
	require.NoError(t, err)

	header, err := store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	racer := NewService(&staleRecordStore{memoryStore: store, record: header}, nil)

	_, err = svc.ReverseWaste(ctx, record.ID, 7)
	require.NoError(t, err)

	// The racing request still sees the record as POSTED; the guarded
	// transition rejects the second restock and its ledger write rolls back.
	_, err = racer.ReverseWaste(ctx, record.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)

	require.InDelta(t, 20, store.entries[entryKey(10, 1)].Qty, 1e-9)
	require.Len(t, store.movements, 2)
}

func TestConcurrentWasteNeverOverdraws(t *testing.T) {
	store := newMemoryStore()
	store.seed(10, 1, 10, 2.00)
	svc := NewService(store, nil)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RecordWaste(context.Background(), RecordWasteInput{
				BranchID: 1, ProductID: 10, Qty: 3, Reason: ReasonLoss,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.True(t, errors.Is(err, ledger.ErrInsufficientStock))
		}
	}
	// Only three write-offs of 3 units fit into 10.
	require.Equal(t, 3, succeeded)
	require.InDelta(t, 1, store.entries[entryKey(10, 1)].Qty, 1e-9)
	require.Len(t, store.movements, 3)
}
