package stockaudit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists audits in PostgreSQL. A partial unique index on
// (branch_id, audit_date) WHERE status <> 'cancelled' enforces the one
// open-or-completed audit per branch and date rule.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service.
type TxRepository interface {
	InsertItem(ctx context.Context, item Item) error
	UpdateAuditStatus(ctx context.Context, id int64, from, to AuditStatus) error
	CompleteAudit(ctx context.Context, id, actorID int64, at time.Time) error
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

// CreateAudit inserts a draft audit, mapping the unique-index violation to
// ErrDuplicateAudit.
func (r *Repository) CreateAudit(ctx context.Context, audit Audit) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_audits (branch_id, audit_date, status, notes, created_by, created_at)
VALUES ($1,$2,$3,NULLIF($4,''),$5,$6) RETURNING id`,
		audit.BranchID, audit.AuditDate, string(audit.Status), audit.Notes, audit.CreatedBy, audit.CreatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateAudit
		}
		return 0, err
	}
	return id, nil
}

// GetAudit loads one audit header.
func (r *Repository) GetAudit(ctx context.Context, id int64) (Audit, error) {
	var audit Audit
	var completedBy *int64
	err := r.pool.QueryRow(ctx, `SELECT id, branch_id, audit_date, status, COALESCE(notes,''), created_by, created_at, completed_by, completed_at
FROM stock_audits WHERE id=$1`, id).
		Scan(&audit.ID, &audit.BranchID, &audit.AuditDate, &audit.Status, &audit.Notes, &audit.CreatedBy, &audit.CreatedAt, &completedBy, &audit.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Audit{}, ErrNotFound
		}
		return Audit{}, err
	}
	if completedBy != nil {
		audit.CompletedBy = *completedBy
	}
	return audit, nil
}

// ListAudits lists audits of a branch, newest first.
func (r *Repository) ListAudits(ctx context.Context, branchID int64, limit int) ([]Audit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, branch_id, audit_date, status, COALESCE(notes,''), created_by, created_at, completed_by, completed_at
FROM stock_audits WHERE branch_id=$1 ORDER BY audit_date DESC, id DESC LIMIT $2`, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	audits := []Audit{}
	for rows.Next() {
		var audit Audit
		var completedBy *int64
		if err := rows.Scan(&audit.ID, &audit.BranchID, &audit.AuditDate, &audit.Status, &audit.Notes, &audit.CreatedBy, &audit.CreatedAt, &completedBy, &audit.CompletedAt); err != nil {
			return nil, err
		}
		if completedBy != nil {
			audit.CompletedBy = *completedBy
		}
		audits = append(audits, audit)
	}
	return audits, rows.Err()
}

// GetItem loads one audit item.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT id, audit_id, product_id, expected_qty, actual_qty, COALESCE(difference,0), COALESCE(notes,'')
FROM stock_audit_items WHERE id=$1`, itemID).
		Scan(&item.ID, &item.AuditID, &item.ProductID, &item.ExpectedQty, &item.ActualQty, &item.Difference, &item.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// ListItems lists every item of an audit in product order.
func (r *Repository) ListItems(ctx context.Context, auditID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, audit_id, product_id, expected_qty, actual_qty, COALESCE(difference,0), COALESCE(notes,'')
FROM stock_audit_items WHERE audit_id=$1 ORDER BY product_id ASC`, auditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.AuditID, &item.ProductID, &item.ExpectedQty, &item.ActualQty, &item.Difference, &item.Notes); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItemCount stores the counted quantity and its difference.
func (r *Repository) UpdateItemCount(ctx context.Context, itemID int64, actualQty, difference float64, notes string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_audit_items SET actual_qty=$2, difference=$3, notes=NULLIF($4,'') WHERE id=$1`,
		itemID, actualQty, difference, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_audit_items (audit_id, product_id, expected_qty)
VALUES ($1,$2,$3)`, item.AuditID, item.ProductID, item.ExpectedQty)
	return err
}

// UpdateAuditStatus transitions the audit only when it still carries the
// expected status. Zero rows means another request already moved it; the
// caller's header was stale.
func (r *txRepository) UpdateAuditStatus(ctx context.Context, id int64, from, to AuditStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_audits SET status=$3 WHERE id=$1 AND status=$2`,
		id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// CompleteAudit closes an in_progress audit. The status guard keeps a stale
// caller from completing the same audit twice.
func (r *txRepository) CompleteAudit(ctx context.Context, id, actorID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_audits SET status=$3, completed_by=$4, completed_at=$5 WHERE id=$1 AND status=$2`,
		id, string(StatusInProgress), string(StatusCompleted), actorID, at)
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
