package purchasing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists purchase documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service. Ledger
// mutations ride on the same transaction through Ledger().
type TxRepository interface {
	InsertInvoice(ctx context.Context, invoice Invoice) (int64, error)
	InsertInvoiceLine(ctx context.Context, line Line) error
	UpdateInvoiceStatus(ctx context.Context, id int64, from, to InvoiceStatus) error
	Ledger() ledger.TxRepository
}

type txRepository struct {
	tx     pgx.Tx
	ledger ledger.TxRepository
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("purchasing repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, ledger: ledger.NewTxRepository(tx)})
	})
	if errors.Is(err, db.ErrSerialization) {
		return ledger.ErrConcurrentModification
	}
	return err
}

// GetInvoice loads an invoice header with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, []Line, error) {
	var inv Invoice
	err := r.pool.QueryRow(ctx, `SELECT id, number, ref_id, branch_id, supplier_name, subtotal, vat_total, total, status, posted_by, posted_at
FROM purchase_invoices WHERE id=$1`, id).
		Scan(&inv.ID, &inv.Number, &inv.RefID, &inv.BranchID, &inv.SupplierName, &inv.Subtotal, &inv.VATTotal, &inv.Total, &inv.Status, &inv.PostedBy, &inv.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, nil, ErrNotFound
		}
		return Invoice{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, product_id, qty, unit_price, vat_pct, line_total
FROM purchase_invoice_lines WHERE invoice_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Invoice{}, nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.ProductID, &line.Qty, &line.UnitPrice, &line.VATPct, &line.LineTotal); err != nil {
			return Invoice{}, nil, err
		}
		lines = append(lines, line)
	}
	return inv, lines, rows.Err()
}

// ListInvoices lists invoice headers of a branch, newest first.
func (r *Repository) ListInvoices(ctx context.Context, branchID int64, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, number, ref_id, branch_id, supplier_name, subtotal, vat_total, total, status, posted_by, posted_at
FROM purchase_invoices WHERE branch_id=$1 ORDER BY posted_at DESC, id DESC LIMIT $2`, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	invoices := []Invoice{}
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.RefID, &inv.BranchID, &inv.SupplierName, &inv.Subtotal, &inv.VATTotal, &inv.Total, &inv.Status, &inv.PostedBy, &inv.PostedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *txRepository) InsertInvoice(ctx context.Context, invoice Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_invoices (number, ref_id, branch_id, supplier_name, subtotal, vat_total, total, status, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		invoice.Number, invoice.RefID, invoice.BranchID, invoice.SupplierName, invoice.Subtotal, invoice.VATTotal, invoice.Total, string(invoice.Status), invoice.PostedBy, invoice.PostedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertInvoiceLine(ctx context.Context, line Line) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_invoice_lines (invoice_id, product_id, qty, unit_price, vat_pct, line_total)
VALUES ($1,$2,$3,$4,$5,$6)`, line.InvoiceID, line.ProductID, line.Qty, line.UnitPrice, line.VATPct, line.LineTotal)
	return err
}

// UpdateInvoiceStatus transitions the invoice only when it still carries the
// expected status. Zero rows means another request already moved it, so a
// header read before this transaction cannot drive the same transition twice.
func (r *txRepository) UpdateInvoiceStatus(ctx context.Context, id int64, from, to InvoiceStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_invoices SET status=$3 WHERE id=$1 AND status=$2`,
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
