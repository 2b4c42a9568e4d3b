package stockaudit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

type memoryStore struct {
	mu        sync.Mutex
	audits    map[int64]Audit
	items     map[int64]Item
	entries   map[string]ledger.Entry
	movements []ledger.Movement
	nextID    int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		audits:  make(map[int64]Audit),
		items:   make(map[int64]Item),
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

	snapAudits := make(map[int64]Audit, len(s.audits))
	for k, v := range s.audits {
		snapAudits[k] = v
	}
	snapItems := make(map[int64]Item, len(s.items))
	for k, v := range s.items {
		snapItems[k] = v
	}
	snapEntries := make(map[string]ledger.Entry, len(s.entries))
	for k, v := range s.entries {
		snapEntries[k] = v
	}
	snapMovements := append([]ledger.Movement(nil), s.movements...)
	snapNextID := s.nextID

	err := fn(ctx, &memoryTx{store: s})
	if err != nil {
		s.audits = snapAudits
		s.items = snapItems
		s.entries = snapEntries
		s.movements = snapMovements
		s.nextID = snapNextID
	}
	return err
}

func (s *memoryStore) CreateAudit(ctx context.Context, audit Audit) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.audits {
		if existing.BranchID == audit.BranchID &&
			existing.AuditDate.Equal(audit.AuditDate) &&
			existing.Status != StatusCancelled {
			return 0, ErrDuplicateAudit
		}
	}
	s.nextID++
	audit.ID = s.nextID
	s.audits[audit.ID] = audit
	return audit.ID, nil
}

func (s *memoryStore) GetAudit(ctx context.Context, id int64) (Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	audit, ok := s.audits[id]
	if !ok {
		return Audit{}, ErrNotFound
	}
	return audit, nil
}

func (s *memoryStore) ListAudits(ctx context.Context, branchID int64, limit int) ([]Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var audits []Audit
	for _, audit := range s.audits {
		if audit.BranchID == branchID {
			audits = append(audits, audit)
		}
	}
	return audits, nil
}

func (s *memoryStore) GetItem(ctx context.Context, itemID int64) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (s *memoryStore) ListItems(ctx context.Context, auditID int64) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []Item
	for _, item := range s.items {
		if item.AuditID == auditID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *memoryStore) UpdateItemCount(ctx context.Context, itemID int64, actualQty, difference float64, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return ErrNotFound
	}
	item.ActualQty = &actualQty
	item.Difference = difference
	item.Notes = notes
	s.items[itemID] = item
	return nil
}

// ListEntries satisfies LedgerPort for Populate.
func (s *memoryStore) ListEntries(ctx context.Context, branchID int64) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []ledger.Entry
	for _, entry := range s.entries {
		if entry.BranchID == branchID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

type memoryTx struct {
	store *memoryStore
}

func (tx *memoryTx) InsertItem(ctx context.Context, item Item) error {
	tx.store.nextID++
	item.ID = tx.store.nextID
	tx.store.items[item.ID] = item
	return nil
}

func (tx *memoryTx) UpdateAuditStatus(ctx context.Context, id int64, from, to AuditStatus) error {
	audit, ok := tx.store.audits[id]
	if !ok || audit.Status != from {
		return ErrInvalidState
	}
	audit.Status = to
	tx.store.audits[id] = audit
	return nil
}

func (tx *memoryTx) CompleteAudit(ctx context.Context, id, actorID int64, at time.Time) error {
	audit, ok := tx.store.audits[id]
	if !ok || audit.Status != StatusInProgress {
		return ErrInvalidState
	}
	audit.Status = StatusCompleted
	audit.CompletedBy = actorID
	audit.CompletedAt = &at
	tx.store.audits[id] = audit
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

func newTestService(store *memoryStore) *Service {
	return NewService(store, store, nil)
}

func mustCreate(t *testing.T, svc *Service, branchID int64) Audit {
	t.Helper()
	audit, err := svc.Create(context.Background(), CreateInput{
		BranchID:  branchID,
		AuditDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		ActorID:   7,
	})
	require.NoError(t, err)
	return audit
}

func TestCreateRejectsDuplicate(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	first := mustCreate(t, svc, 1)
	require.Equal(t, StatusDraft, first.Status)

	_, err := svc.Create(ctx, CreateInput{
		BranchID:  1,
		AuditDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, ErrDuplicateAudit)

	// A cancelled audit frees the slot.
	_, err = svc.Cancel(ctx, first.ID, 7)
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{
		BranchID:  1,
		AuditDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func TestPopulateSnapshotsLedgerAndIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	store.seed(1, 1, 15, 2.00)
	store.seed(2, 1, 8, 4.00)
	store.seed(3, 2, 99, 1.00)
	svc := newTestService(store)
	ctx := context.Background()

	audit := mustCreate(t, svc, 1)

	populated, err := svc.Populate(ctx, audit.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, populated.Status)

	items, err := store.ListItems(ctx, audit.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.Nil(t, item.ActualQty)
	}

	// A retry neither fails nor re-snapshots.
	again, err := svc.Populate(ctx, audit.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, again.Status)
	items, err = store.ListItems(ctx, audit.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestCompleteRequiresAllCounts(t *testing.T) {
	store := newMemoryStore()
	store.seed(1, 1, 15, 2.00)
	store.seed(2, 1, 8, 4.00)
	svc := newTestService(store)
	ctx := context.Background()

	audit := mustCreate(t, svc, 1)
	_, err := svc.Populate(ctx, audit.ID, 7)
	require.NoError(t, err)

	items, err := store.ListItems(ctx, audit.ID)
	require.NoError(t, err)
	_, err = svc.RecordCount(ctx, items[0].ID, 12, "", 7)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, audit.ID, 7)
	require.ErrorIs(t, err, ErrIncompleteAudit)
	require.Empty(t, store.movements)
}

func TestCompleteFoldsDifferencesIntoLedger(t *testing.T) {
	store := newMemoryStore()
	store.seed(1, 1, 15, 2.00)
	store.seed(2, 1, 8, 4.00)
	svc := newTestService(store)
	ctx := context.Background()

	audit := mustCreate(t, svc, 1)
	_, err := svc.Populate(ctx, audit.ID, 7)
	require.NoError(t, err)

	items, err := store.ListItems(ctx, audit.ID)
	require.NoError(t, err)
	for _, item := range items {
		switch item.ProductID {
		case 1:
			// Counted short: 15 expected, 12 on the shelf.
			_, err = svc.RecordCount(ctx, item.ID, 12, "shelf count", 9)
		case 2:
			// Counted exactly as expected.
			_, err = svc.RecordCount(ctx, item.ID, 8, "", 9)
		}
		require.NoError(t, err)
	}

	completed, err := svc.Complete(ctx, audit.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.Equal(t, int64(9), completed.CompletedBy)
	require.NotNil(t, completed.CompletedAt)

	require.InDelta(t, 12, store.entries[entryKey(1, 1)].Qty, 1e-9)
	require.InDelta(t, 2.00, store.entries[entryKey(1, 1)].AvgCost, 1e-9)
	require.InDelta(t, 8, store.entries[entryKey(2, 1)].Qty, 1e-9)

	// Only the short product produced a movement, carrying the delta.
	require.Len(t, store.movements, 1)
	require.Equal(t, ledger.KindAudit, store.movements[0].Kind)
	require.InDelta(t, -3, store.movements[0].Qty, 1e-9)

	// Terminal state: no further transitions.
	_, err = svc.Complete(ctx, audit.ID, 9)
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.Cancel(ctx, audit.ID, 9)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestRecordCountValidation(t *testing.T) {
	store := newMemoryStore()
	store.seed(1, 1, 5, 1.00)
	svc := newTestService(store)
	ctx := context.Background()

	audit := mustCreate(t, svc, 1)
	_, err := svc.Populate(ctx, audit.ID, 7)
	require.NoError(t, err)

	items, err := store.ListItems(ctx, audit.ID)
	require.NoError(t, err)

	_, err = svc.RecordCount(ctx, items[0].ID, -1, "", 7)
	require.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	item, err := svc.RecordCount(ctx, items[0].ID, 7, "", 7)
	require.NoError(t, err)
	require.InDelta(t, 2, item.Difference, 1e-9)

	// Counts are locked out once the audit is cancelled.
	_, err = svc.Cancel(ctx, audit.ID, 7)
	require.NoError(t, err)
	_, err = svc.RecordCount(ctx, items[0].ID, 6, "", 7)
	require.ErrorIs(t, err, ErrInvalidState)
}

// staleAuditStore serves the audit header captured at construction time once,
// then falls through to live state, the view a request holds after reading
// the audit but before its transaction runs.
type staleAuditStore struct {
	*memoryStore
	audit Audit
	used  bool
}

func (s *staleAuditStore) GetAudit(ctx context.Context, id int64) (Audit, error) {
	if !s.used {
		s.used = true
		return s.audit, nil
	}
	return s.memoryStore.GetAudit(ctx, id)
}

func TestCancelStaleReadCannotReopenCompletedAudit(t *testing.T) {
	store := newMemoryStore()
	store.seed(1, 1, 5, 1.00)
	svc := newTestService(store)
	ctx := context.Background()

	audit := mustCreate(t, svc, 1)
	_, err := svc.Populate(ctx, audit.ID, 7)
	require.NoError(t, err)

	items, err := store.ListItems(ctx, audit.ID)
	require.NoError(t, err)
	_, err = svc.RecordCount(ctx, items[0].ID, 5, "", 7)
	require.NoError(t, err)

	header, err := store.GetAudit(ctx, audit.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, header.Status)
	racer := NewService(&staleAuditStore{memoryStore: store, audit: header}, store, nil)

	_, err = svc.Complete(ctx, audit.ID, 7)
	require.NoError(t, err)

	// The racing cancel still sees in_progress; the guarded transition
	// keeps the audit in its terminal state.
	_, err = racer.Cancel(ctx, audit.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)

	current, err := store.GetAudit(ctx, audit.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, current.Status)
}

func TestPopulateStaleReadDoesNotDuplicateSnapshot(t *testing.T) {
	store := newMemoryStore()
	store.seed(1, 1, 15, 2.00)
	store.seed(2, 1, 8, 4.00)
	svc := newTestService(store)
	ctx := context.Background()

	audit := mustCreate(t, svc, 1)
	header, err := store.GetAudit(ctx, audit.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, header.Status)
	racer := NewService(&staleAuditStore{memoryStore: store, audit: header}, store, nil)

	_, err = svc.Populate(ctx, audit.ID, 7)
	require.NoError(t, err)

	// The racing populate still holds a draft header; the in-transaction
	// claim fails and it settles on the existing snapshot.
	again, err := racer.Populate(ctx, audit.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, again.Status)

	items, err := store.ListItems(ctx, audit.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
}
