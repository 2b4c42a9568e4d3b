package purchasing

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
	invoices  map[int64]Invoice
	lines     map[int64][]Line
	entries   map[string]ledger.Entry
	movements []ledger.Movement
	nextID    int64

	failLineForProduct int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		invoices: make(map[int64]Invoice),
		lines:    make(map[int64][]Line),
		entries:  make(map[string]ledger.Entry),
	}
}

func entryKey(productID, branchID int64) string {
	return fmt.Sprintf("%d:%d", productID, branchID)
}

// WithTx snapshots state before the callback and restores it on error, so
// tests observe the same all-or-nothing behaviour as the SQL transaction.
func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapInvoices := make(map[int64]Invoice, len(s.invoices))
	for k, v := range s.invoices {
		snapInvoices[k] = v
	}
	snapLines := make(map[int64][]Line, len(s.lines))
	for k, v := range s.lines {
		snapLines[k] = append([]Line(nil), v...)
	}
	snapEntries := make(map[string]ledger.Entry, len(s.entries))
	for k, v := range s.entries {
		snapEntries[k] = v
	}
	snapMovements := append([]ledger.Movement(nil), s.movements...)
	snapNextID := s.nextID

	err := fn(ctx, &memoryTx{store: s})
	if err != nil {
		s.invoices = snapInvoices
		s.lines = snapLines
		s.entries = snapEntries
		s.movements = snapMovements
		s.nextID = snapNextID
	}
	return err
}

func (s *memoryStore) GetInvoice(ctx context.Context, id int64) (Invoice, []Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.invoices[id]
	if !ok {
		return Invoice{}, nil, ErrNotFound
	}
	return invoice, append([]Line(nil), s.lines[id]...), nil
}

func (s *memoryStore) ListInvoices(ctx context.Context, branchID int64, limit int) ([]Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var invoices []Invoice
	for _, inv := range s.invoices {
		if inv.BranchID == branchID {
			invoices = append(invoices, inv)
		}
	}
	return invoices, nil
}

type memoryTx struct {
	store *memoryStore
}

func (tx *memoryTx) InsertInvoice(ctx context.Context, invoice Invoice) (int64, error) {
	tx.store.nextID++
	invoice.ID = tx.store.nextID
	tx.store.invoices[invoice.ID] = invoice
	return invoice.ID, nil
}

func (tx *memoryTx) InsertInvoiceLine(ctx context.Context, line Line) error {
	if tx.store.failLineForProduct != 0 && line.ProductID == tx.store.failLineForProduct {
		return errors.New("storage failure")
	}
	tx.store.nextID++
	line.ID = tx.store.nextID
	tx.store.lines[line.InvoiceID] = append(tx.store.lines[line.InvoiceID], line)
	return nil
}

func (tx *memoryTx) UpdateInvoiceStatus(ctx context.Context, id int64, from, to InvoiceStatus) error {
	invoice, ok := tx.store.invoices[id]
	if !ok || invoice.Status != from {
		return ErrInvalidState
	}
	invoice.Status = to
	tx.store.invoices[id] = invoice
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

func TestRecordPurchaseComputesTotalsAndPostsLedger(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	invoice, err := svc.RecordPurchase(ctx, RecordPurchaseInput{
		Number:   "INV-1001",
		BranchID: 1,
		ActorID:  7,
		Lines: []LineInput{
			{ProductID: 10, Qty: 10, UnitPrice: 5.00, VATPct: 15},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, invoice.Status)
	require.InDelta(t, 50.00, invoice.Subtotal, 1e-9)
	require.InDelta(t, 7.50, invoice.VATTotal, 1e-9)
	require.InDelta(t, 57.50, invoice.Total, 1e-9)

	entry := store.entries[entryKey(10, 1)]
	require.InDelta(t, 10, entry.Qty, 1e-9)
	require.InDelta(t, 5.00, entry.AvgCost, 1e-9)

	require.Len(t, store.movements, 1)
	require.Equal(t, ledger.KindPurchase, store.movements[0].Kind)
	require.InDelta(t, 10, store.movements[0].Qty, 1e-9)
	require.InDelta(t, 5.00, store.movements[0].UnitCost, 1e-9)
}

func TestRecordPurchaseBlendsAverageAcrossInvoices(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordPurchase(ctx, RecordPurchaseInput{
		Number:   "INV-1",
		BranchID: 1,
		Lines:    []LineInput{{ProductID: 10, Qty: 50, UnitPrice: 4.00}},
	})
	require.NoError(t, err)

	_, err = svc.RecordPurchase(ctx, RecordPurchaseInput{
		Number:   "INV-2",
		BranchID: 1,
		Lines:    []LineInput{{ProductID: 10, Qty: 50, UnitPrice: 6.00}},
	})
	require.NoError(t, err)

	entry := store.entries[entryKey(10, 1)]
	require.InDelta(t, 100, entry.Qty, 1e-9)
	require.InDelta(t, 5.00, entry.AvgCost, 1e-9)
}

func TestRecordPurchaseValidation(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordPurchase(ctx, RecordPurchaseInput{BranchID: 1})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.RecordPurchase(ctx, RecordPurchaseInput{
		BranchID: 1,
		Lines:    []LineInput{{ProductID: 10, Qty: 0, UnitPrice: 1}},
	})
	require.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	_, err = svc.RecordPurchase(ctx, RecordPurchaseInput{
		BranchID: 1,
		Lines:    []LineInput{{ProductID: 10, Qty: 1, UnitPrice: -1}},
	})
	require.ErrorIs(t, err, ledger.ErrInvalidUnitCost)
}

func TestRecordPurchaseBatchIsAtomic(t *testing.T) {
	store := newMemoryStore()
	store.failLineForProduct = 20
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordPurchase(ctx, RecordPurchaseInput{
		Number:   "INV-9",
		BranchID: 1,
		Lines: []LineInput{
			{ProductID: 10, Qty: 5, UnitPrice: 2.00},
			{ProductID: 20, Qty: 3, UnitPrice: 4.00},
		},
	})
	require.Error(t, err)

	// Nothing committed: no invoice, no lines, no ledger state.
	require.Empty(t, store.invoices)
	require.Empty(t, store.movements)
	require.NotContains(t, store.entries, entryKey(10, 1))
}

func TestReverseInvoiceEmitsInverseMovements(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	invoice, err := svc.RecordPurchase(ctx, RecordPurchaseInput{
		Number:   "INV-5",
		BranchID: 1,
		Lines:    []LineInput{{ProductID: 10, Qty: 10, UnitPrice: 5.00, VATPct: 15}},
	})
	require.NoError(t, err)

	reversed, err := svc.ReverseInvoice(ctx, invoice.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusReversed, reversed.Status)

	entry := store.entries[entryKey(10, 1)]
	require.InDelta(t, 0, entry.Qty, 1e-9)

	require.Len(t, store.movements, 2)
	rev := store.movements[1]
	require.Equal(t, ledger.KindReversal, rev.Kind)
	require.InDelta(t, -10, rev.Qty, 1e-9)
	require.InDelta(t, 5.00, rev.UnitCost, 1e-9)

	// A reversed invoice cannot be reversed again.
	_, err = svc.ReverseInvoice(ctx, invoice.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReverseInvoiceFailsWhenStockAlreadyConsumed(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	invoice, err := svc.RecordPurchase(ctx, RecordPurchaseInput{
		Number:   "INV-6",
		BranchID: 1,
		Lines:    []LineInput{{ProductID: 10, Qty: 10, UnitPrice: 5.00}},
	})
	require.NoError(t, err)

	// Simulate later consumption leaving less than the invoiced quantity.
	entry := store.entries[entryKey(10, 1)]
	entry.Qty = 4
	store.entries[entryKey(10, 1)] = entry

	_, err = svc.ReverseInvoice(ctx, invoice.ID, 7)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	got, _, err := svc.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, got.Status)
	require.InDelta(t, 4, store.entries[entryKey(10, 1)].Qty, 1e-9)
}

// staleInvoiceStore replays the invoice header captured at construction time,
// the view a request holds after reading the document but before its
// transaction runs.
type staleInvoiceStore struct {
	*memoryStore
	invoice Invoice
	lines   []Line
}

func (s *staleInvoiceStore) GetInvoice(ctx context.Context, id int64) (Invoice, []Line, error) {
	return s.invoice, append([]Line(nil), s.lines...), nil
}

func TestReverseInvoiceStaleReadCannotDeductTwice(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	invoice, err := svc.RecordPurchase(ctx, RecordPurchaseInput{
		Number:   "INV-7",
		BranchID: 1,
		Lines:    []LineInput{{ProductID: 10, Qty: 10, UnitPrice: 5.00}},
	})
	require.NoError(t, err)

	// Extra stock so the negative-stock guard alone cannot stop a second
	// deduction.
	_, err = svc.RecordPurchase(ctx, RecordPurchaseInput{
		Number:   "INV-8",
		BranchID: 1,
		Lines:    []LineInput{{ProductID: 10, Qty: 10, UnitPrice: 5.00}},
	})
	require.NoError(t, err)

	header, lines, err := store.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	racer := NewService(&staleInvoiceStore{memoryStore: store, invoice: header, lines: lines}, nil, nil)

	_, err = svc.ReverseInvoice(ctx, invoice.ID, 7)
	require.NoError(t, err)

	// The racing request still sees the invoice as POSTED; the guarded
	// transition inside the transaction rejects the second reversal and
	// nothing it applied survives.
	_, err = racer.ReverseInvoice(ctx, invoice.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)

	require.InDelta(t, 10, store.entries[entryKey(10, 1)].Qty, 1e-9)
	require.Len(t, store.movements, 3)
	got, _, err := store.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReversed, got.Status)
}
