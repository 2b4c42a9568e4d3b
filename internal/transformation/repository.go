package transformation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists transformation documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service.
type TxRepository interface {
	InsertTransformation(ctx context.Context, doc Transformation) (int64, error)
	InsertSource(ctx context.Context, source Source) error
	UpdateTransformationStatus(ctx context.Context, id int64, from, to Status) error
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

// GetTransformation loads a transformation header with its sources.
func (r *Repository) GetTransformation(ctx context.Context, id int64) (Transformation, []Source, error) {
	var doc Transformation
	err := r.pool.QueryRow(ctx, `SELECT id, number, ref_id, branch_id, target_product_id, target_qty, total_cost, unit_cost, status, posted_by, posted_at
FROM transformations WHERE id=$1`, id).
		Scan(&doc.ID, &doc.Number, &doc.RefID, &doc.BranchID, &doc.TargetProductID, &doc.TargetQty, &doc.TotalCost, &doc.UnitCost, &doc.Status, &doc.PostedBy, &doc.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transformation{}, nil, ErrNotFound
		}
		return Transformation{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, transformation_id, product_id, qty, cost_per_unit, line_cost
FROM transformation_sources WHERE transformation_id=$1 ORDER BY product_id ASC`, id)
	if err != nil {
		return Transformation{}, nil, err
	}
	defer rows.Close()
	var sources []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.TransformationID, &src.ProductID, &src.Qty, &src.CostPerUnit, &src.LineCost); err != nil {
			return Transformation{}, nil, err
		}
		sources = append(sources, src)
	}
	return doc, sources, rows.Err()
}

// ListTransformations lists headers of a branch, newest first.
func (r *Repository) ListTransformations(ctx context.Context, branchID int64, limit int) ([]Transformation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, number, ref_id, branch_id, target_product_id, target_qty, total_cost, unit_cost, status, posted_by, posted_at
FROM transformations WHERE branch_id=$1 ORDER BY posted_at DESC, id DESC LIMIT $2`, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []Transformation{}
	for rows.Next() {
		var doc Transformation
		if err := rows.Scan(&doc.ID, &doc.Number, &doc.RefID, &doc.BranchID, &doc.TargetProductID, &doc.TargetQty, &doc.TotalCost, &doc.UnitCost, &doc.Status, &doc.PostedBy, &doc.PostedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *txRepository) InsertTransformation(ctx context.Context, doc Transformation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transformations (number, ref_id, branch_id, target_product_id, target_qty, total_cost, unit_cost, status, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		doc.Number, doc.RefID, doc.BranchID, doc.TargetProductID, doc.TargetQty, doc.TotalCost, doc.UnitCost, string(doc.Status), doc.PostedBy, doc.PostedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertSource(ctx context.Context, source Source) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO transformation_sources (transformation_id, product_id, qty, cost_per_unit, line_cost)
VALUES ($1,$2,$3,$4,$5)`, source.TransformationID, source.ProductID, source.Qty, source.CostPerUnit, source.LineCost)
	return err
}

// UpdateTransformationStatus transitions the document only when it still
// carries the expected status, so a header read before this transaction
// cannot drive the same transition twice.
func (r *txRepository) UpdateTransformationStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transformations SET status=$3 WHERE id=$1 AND status=$2`,
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
