// Package transformation converts source products into a target product.
// Sources are consumed at their moving-average cost and the target absorbs
// the full consumed cost, so value never leaks during manufacturing.
package transformation

import (
	"errors"
	"time"
)

// Status is the lifecycle of a posted transformation.
type Status string

const (
	// StatusPosted means the group's movements are on the ledger.
	StatusPosted Status = "POSTED"
	// StatusReversed means compensating movements undid the group.
	StatusReversed Status = "REVERSED"
)

// Transformation is a manufacturing document header.
type Transformation struct {
	ID              int64     `json:"id"`
	Number          string    `json:"number"`
	RefID           string    `json:"ref_id"`
	BranchID        int64     `json:"branch_id"`
	TargetProductID int64     `json:"target_product_id"`
	TargetQty       float64   `json:"target_qty"`
	TotalCost       float64   `json:"total_cost"`
	UnitCost        float64   `json:"unit_cost"`
	Status          Status    `json:"status"`
	PostedBy        int64     `json:"posted_by"`
	PostedAt        time.Time `json:"posted_at"`
}

// Source is one consumed product. CostPerUnit is the moving average at the
// moment the group committed, not at request time.
type Source struct {
	ID               int64   `json:"id"`
	TransformationID int64   `json:"transformation_id"`
	ProductID        int64   `json:"product_id"`
	Qty              float64 `json:"qty"`
	CostPerUnit      float64 `json:"cost_per_unit"`
	LineCost         float64 `json:"line_cost"`
}

var (
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("transformation: invalid input")
	// ErrInvalidState occurs when an action violates the document lifecycle.
	ErrInvalidState = errors.New("transformation: invalid state transition")
	// ErrNotFound indicates the transformation does not exist.
	ErrNotFound = errors.New("transformation: not found")
)
