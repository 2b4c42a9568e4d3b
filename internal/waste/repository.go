package waste

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists waste records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service.
type TxRepository interface {
	InsertRecord(ctx context.Context, record Record) (int64, error)
	UpdateRecordStatus(ctx context.Context, id int64, from, to Status) error
	Ledger() ledger.TxRepository
}

type txRepository struct {
	tx     pgx.Tx
	ledger ledger.TxRepository
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, ledger: ledger.NewTxRepository(tx)})
	})
	if errors.Is(err, db.ErrSerialization) {
		return ledger.ErrConcurrentModification
	}
	return err
}

// GetRecord loads one waste record.
func (r *Repository) GetRecord(ctx context.Context, id int64) (Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx, `SELECT id, ref_id, branch_id, product_id, qty, cost_per_unit, total_cost, reason, COALESCE(note,''), status, posted_by, posted_at
FROM waste_records WHERE id=$1`, id).
		Scan(&rec.ID, &rec.RefID, &rec.BranchID, &rec.ProductID, &rec.Qty, &rec.CostPerUnit, &rec.TotalCost, &rec.Reason, &rec.Note, &rec.Status, &rec.PostedBy, &rec.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// ListRecords lists waste records of a branch, newest first.
func (r *Repository) ListRecords(ctx context.Context, branchID int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, ref_id, branch_id, product_id, qty, cost_per_unit, total_cost, reason, COALESCE(note,''), status, posted_by, posted_at
FROM waste_records WHERE branch_id=$1 ORDER BY posted_at DESC, id DESC LIMIT $2`, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.RefID, &rec.BranchID, &rec.ProductID, &rec.Qty, &rec.CostPerUnit, &rec.TotalCost, &rec.Reason, &rec.Note, &rec.Status, &rec.PostedBy, &rec.PostedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *txRepository) InsertRecord(ctx context.Context, record Record) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO waste_records (ref_id, branch_id, product_id, qty, cost_per_unit, total_cost, reason, note, status, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,$11) RETURNING id`,
		record.RefID, record.BranchID, record.ProductID, record.Qty, record.CostPerUnit, record.TotalCost, string(record.Reason), record.Note, string(record.Status), record.PostedBy, record.PostedAt).Scan(&id)
	return id, err
}

// UpdateRecordStatus transitions the record only when it still carries the
// expected status, so a header read before this transaction cannot drive the
// same transition twice.
func (r *txRepository) UpdateRecordStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE waste_records SET status=$3 WHERE id=$1 AND status=$2`,
		id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return r.ledger
}
