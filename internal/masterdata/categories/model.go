package categories

// Category represents a product category. Code feeds the SKU prefix and
// reporting groups.
type Category struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}
