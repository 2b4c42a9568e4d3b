package products

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/units"
)

// Product represents a sellable product. SKU is generated at creation and
// never changes afterwards; ledger movement references embed it.
type Product struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	SKU           string     `json:"sku"`
	Barcode       string     `json:"barcode,omitempty"`
	CategoryID    int64      `json:"category_id"`
	ProductTypeID int64      `json:"product_type_id"`
	Unit          units.Unit `json:"unit"`
	Description   string     `json:"description,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
