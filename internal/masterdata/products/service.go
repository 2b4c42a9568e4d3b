package products

import (
	"context"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/categories"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/producttypes"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
)

// CategoryPort resolves category codes for SKU generation.
type CategoryPort interface {
	Get(ctx context.Context, id int64) (categories.Category, error)
}

// TypePort resolves product type codes for SKU generation.
type TypePort interface {
	Get(ctx context.Context, id int64) (producttypes.ProductType, error)
}

type Service struct {
	repo       Repository
	categories CategoryPort
	types      TypePort
}

func NewService(repo Repository, cats CategoryPort, types TypePort) *Service {
	return &Service{repo: repo, categories: cats, types: types}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// Create validates the product, resolves its category and type, and stamps
// a generated SKU before persisting.
func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	category, err := s.categories.Get(ctx, product.CategoryID)
	if err != nil {
		return Product{}, err
	}
	productType, err := s.types.Get(ctx, product.ProductTypeID)
	if err != nil {
		return Product{}, err
	}
	sku, err := generateSKU(category.Code, productType.Code)
	if err != nil {
		return Product{}, err
	}
	product.SKU = sku
	product.IsActive = true
	return s.repo.Create(ctx, product)
}

// Update rewrites descriptive fields. Any attempt to change the SKU is
// rejected rather than silently ignored.
func (s *Service) Update(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(product); err != nil {
		return err
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if product.SKU != "" && product.SKU != existing.SKU {
		return shared.ErrImmutable
	}
	return s.repo.Update(ctx, id, product)
}
