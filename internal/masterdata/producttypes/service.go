package producttypes

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]ProductType, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (ProductType, error) {
	if id <= 0 {
		return ProductType{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, pt ProductType) (ProductType, error) {
	if err := s.validate(pt); err != nil {
		return ProductType{}, err
	}
	return s.repo.Create(ctx, pt)
}

func (s *Service) Update(ctx context.Context, id int64, pt ProductType) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(pt); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, pt)
}

func (s *Service) validate(pt ProductType) error {
	if strings.TrimSpace(pt.Code) == "" {
		return fmt.Errorf("%w: code", shared.ErrRequiredField)
	}
	if len(pt.Code) > 8 {
		return fmt.Errorf("%w: code too long", shared.ErrValidation)
	}
	if strings.TrimSpace(pt.Name) == "" {
		return fmt.Errorf("%w: name", shared.ErrRequiredField)
	}
	return nil
}
