package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the aggregation queries behind the reporting projections.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ValuationByBranch returns qty * avg_cost per product for a branch.
func (r *Repository) ValuationByBranch(ctx context.Context, branchID int64) (ValuationReport, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.product_id, COALESCE(p.sku,''), COALESCE(p.name,''), l.qty, l.avg_cost, l.qty * l.avg_cost
FROM stock_ledger l
LEFT JOIN products p ON p.id = l.product_id
WHERE l.branch_id = $1 AND l.qty > 0
ORDER BY l.qty * l.avg_cost DESC`, branchID)
	if err != nil {
		return ValuationReport{}, err
	}
	defer rows.Close()

	report := ValuationReport{BranchID: branchID, Rows: []ValuationRow{}, AsOf: time.Now().UTC()}
	for rows.Next() {
		var row ValuationRow
		if err := rows.Scan(&row.ProductID, &row.SKU, &row.Name, &row.Qty, &row.AvgCost, &row.Value); err != nil {
			return ValuationReport{}, err
		}
		report.TotalValue += row.Value
		report.Rows = append(report.Rows, row)
	}
	return report, rows.Err()
}

// ValuationByCategory groups stock value per product category for a branch.
func (r *Repository) ValuationByCategory(ctx context.Context, branchID int64) ([]CategoryValuationRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT COALESCE(c.id,0), COALESCE(c.name,'Uncategorised'), SUM(l.qty * l.avg_cost)
FROM stock_ledger l
LEFT JOIN products p ON p.id = l.product_id
LEFT JOIN categories c ON c.id = p.category_id
WHERE l.branch_id = $1 AND l.qty > 0
GROUP BY c.id, c.name
ORDER BY SUM(l.qty * l.avg_cost) DESC`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []CategoryValuationRow{}
	for rows.Next() {
		var row CategoryValuationRow
		if err := rows.Scan(&row.CategoryID, &row.CategoryName, &row.Value); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// MovementSummary aggregates movements per kind over the range.
func (r *Repository) MovementSummary(ctx context.Context, branchID int64, period Range) ([]MovementSummaryRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT kind,
	COALESCE(SUM(qty) FILTER (WHERE qty > 0), 0),
	COALESCE(-SUM(qty) FILTER (WHERE qty < 0), 0),
	COALESCE(SUM(qty * unit_cost) FILTER (WHERE qty > 0), 0),
	COALESCE(-SUM(qty * unit_cost) FILTER (WHERE qty < 0), 0),
	COUNT(*)
FROM stock_movements
WHERE branch_id = $1 AND posted_at >= $2 AND posted_at <= $3
GROUP BY kind
ORDER BY kind`, branchID, period.From, period.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []MovementSummaryRow{}
	for rows.Next() {
		var row MovementSummaryRow
		if err := rows.Scan(&row.Kind, &row.QtyIn, &row.QtyOut, &row.CostIn, &row.CostOut, &row.Count); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// WasteByReason aggregates posted write-offs per reason over the range.
func (r *Repository) WasteByReason(ctx context.Context, branchID int64, period Range) ([]WasteReasonRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT reason, COALESCE(SUM(qty),0), COALESCE(SUM(total_cost),0), COUNT(*)
FROM waste_records
WHERE branch_id = $1 AND status = 'POSTED' AND posted_at >= $2 AND posted_at <= $3
GROUP BY reason
ORDER BY SUM(total_cost) DESC`, branchID, period.From, period.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []WasteReasonRow{}
	for rows.Next() {
		var row WasteReasonRow
		if err := rows.Scan(&row.Reason, &row.Qty, &row.TotalCost, &row.Count); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
