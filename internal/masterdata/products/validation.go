package products

import (
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/units"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name", shared.ErrRequiredField)
	}
	if p.CategoryID <= 0 {
		return fmt.Errorf("%w: category_id", shared.ErrRequiredField)
	}
	if p.ProductTypeID <= 0 {
		return fmt.Errorf("%w: product_type_id", shared.ErrRequiredField)
	}
	if !units.Valid(p.Unit) {
		return fmt.Errorf("%w: unknown unit %q", shared.ErrValidation, p.Unit)
	}
	return nil
}
