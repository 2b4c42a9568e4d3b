package categories

import (
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
)

func (s *Service) validate(c Category) error {
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("%w: code", shared.ErrRequiredField)
	}
	if len(c.Code) > 8 {
		return fmt.Errorf("%w: code too long", shared.ErrValidation)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name", shared.ErrRequiredField)
	}
	return nil
}
