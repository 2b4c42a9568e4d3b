package producttypes

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]ProductType, int, error)
	Get(ctx context.Context, id int64) (ProductType, error)
	Create(ctx context.Context, pt ProductType) (ProductType, error)
	Update(ctx context.Context, id int64, pt ProductType) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]ProductType, int, error) {
	filters.Normalize()
	query := `SELECT id, code, name FROM product_types WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		query += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM product_types WHERE 1=1`
	if filters.Search != "" {
		countQuery += ` AND (name ILIKE $1 OR code ILIKE $1)`
	}
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY code ASC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, filters.Limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (filters.Page-1)*filters.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var types []ProductType
	for rows.Next() {
		var pt ProductType
		if err := rows.Scan(&pt.ID, &pt.Code, &pt.Name); err != nil {
			return nil, 0, err
		}
		types = append(types, pt)
	}
	return types, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (ProductType, error) {
	var pt ProductType
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM product_types WHERE id = $1`, id).
		Scan(&pt.ID, &pt.Code, &pt.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductType{}, shared.ErrNotFound
		}
		return ProductType{}, err
	}
	return pt, nil
}

func (r *repository) Create(ctx context.Context, pt ProductType) (ProductType, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO product_types (code, name) VALUES ($1, $2) RETURNING id`,
		pt.Code, pt.Name).Scan(&pt.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ProductType{}, shared.ErrDuplicate
		}
		return ProductType{}, err
	}
	return pt, nil
}

func (r *repository) Update(ctx context.Context, id int64, pt ProductType) error {
	tag, err := r.db.Exec(ctx, `UPDATE product_types SET code = $1, name = $2 WHERE id = $3`,
		pt.Code, pt.Name, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
