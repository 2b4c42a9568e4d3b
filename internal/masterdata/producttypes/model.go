package producttypes

// ProductType classifies products within a category. Code feeds the SKU
// middle segment.
type ProductType struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}
