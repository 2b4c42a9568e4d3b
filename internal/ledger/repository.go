package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the Mutator needs. Other
// modules embed it in their own transaction repositories via NewTxRepository
// so document writes and ledger mutations share one transaction.
type TxRepository interface {
	GetEntryForUpdate(ctx context.Context, productID, branchID int64) (Entry, error)
	UpsertEntry(ctx context.Context, entry Entry) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	GetMovement(ctx context.Context, id int64) (Movement, error)
}

// ErrEntryNotFound indicates a missing ledger row; the Mutator treats it as
// a zero-initialized entry.
var ErrEntryNotFound = errors.New("ledger entry not found")

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps a pgx transaction in the ledger TxRepository.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
// Serialization conflicts surface as ErrConcurrentModification.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
	if errors.Is(err, db.ErrSerialization) {
		return ErrConcurrentModification
	}
	return err
}

// GetEntry returns the current entry, or a zero-initialized one when no
// movement ever touched the key.
func (r *Repository) GetEntry(ctx context.Context, productID, branchID int64) (Entry, error) {
	var entry Entry
	err := r.pool.QueryRow(ctx, `SELECT product_id, branch_id, qty, avg_cost, updated_at
FROM stock_ledger WHERE product_id=$1 AND branch_id=$2`, productID, branchID).
		Scan(&entry.ProductID, &entry.BranchID, &entry.Qty, &entry.AvgCost, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{ProductID: productID, BranchID: branchID}, nil
		}
		return Entry{}, err
	}
	return entry, nil
}

// ListEntries returns every entry of a branch ordered by product.
func (r *Repository) ListEntries(ctx context.Context, branchID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, branch_id, qty, avg_cost, updated_at
FROM stock_ledger WHERE branch_id=$1 ORDER BY product_id ASC`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ProductID, &entry.BranchID, &entry.Qty, &entry.AvgCost, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListMovements returns movement history matching the filter, oldest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, kind, product_id, branch_id, qty, unit_cost, ref_module, ref_id, note, created_by, posted_at
FROM stock_movements
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = 0 OR branch_id = $2)
  AND ($3 = '' OR kind = $3)
  AND posted_at BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY posted_at ASC, id ASC
LIMIT $6`,
		filter.ProductID, filter.BranchID, string(filter.Kind), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

// SumMovements folds the signed movement deltas for a key. The nightly
// integrity job compares this against the stored entry quantity.
func (r *Repository) SumMovements(ctx context.Context, productID, branchID int64) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM stock_movements
WHERE product_id=$1 AND branch_id=$2`, productID, branchID).Scan(&sum)
	return sum, err
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, productID, branchID int64) (Entry, error) {
	var entry Entry
	err := r.tx.QueryRow(ctx, `SELECT product_id, branch_id, qty, avg_cost, updated_at
FROM stock_ledger WHERE product_id=$1 AND branch_id=$2 FOR UPDATE`, productID, branchID).
		Scan(&entry.ProductID, &entry.BranchID, &entry.Qty, &entry.AvgCost, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{ProductID: productID, BranchID: branchID}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return entry, nil
}

func (r *txRepository) UpsertEntry(ctx context.Context, entry Entry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_ledger (product_id, branch_id, qty, avg_cost, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (product_id, branch_id) DO UPDATE SET qty=EXCLUDED.qty, avg_cost=EXCLUDED.avg_cost, updated_at=EXCLUDED.updated_at`,
		entry.ProductID, entry.BranchID, entry.Qty, entry.AvgCost, entry.UpdatedAt)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (kind, product_id, branch_id, qty, unit_cost, ref_module, ref_id, note, created_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,NULLIF($9,0),$10) RETURNING id`,
		string(movement.Kind), movement.ProductID, movement.BranchID, movement.Qty, movement.UnitCost,
		movement.RefModule, movement.RefID, movement.Note, movement.CreatedBy, movement.PostedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, kind, product_id, branch_id, qty, unit_cost, ref_module, ref_id, note, created_by, posted_at
FROM stock_movements WHERE id=$1`, id)
	return scanMovement(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (Movement, error) {
	var m Movement
	var refID, createdBy any
	if err := row.Scan(&m.ID, &m.Kind, &m.ProductID, &m.BranchID, &m.Qty, &m.UnitCost, &m.RefModule, &refID, &m.Note, &createdBy, &m.PostedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrNotFound
		}
		return Movement{}, err
	}
	if s, ok := refID.(string); ok {
		m.RefID = s
	}
	if v, ok := createdBy.(int64); ok {
		m.CreatedBy = v
	}
	return m, nil
}

func scanMovements(rows pgx.Rows) ([]Movement, error) {
	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
