// Package waste writes off spoiled or lost stock. The write-off is charged
// at the moving-average cost in effect at posting time and leaves a WASTE
// movement behind.
package waste

import (
	"errors"
	"time"
)

// Status is the lifecycle of a posted write-off.
type Status string

const (
	// StatusPosted means the write-off's movement is on the ledger.
	StatusPosted Status = "POSTED"
	// StatusReversed means a compensating movement undid the write-off.
	StatusReversed Status = "REVERSED"
)

// Reason classifies why stock was written off.
type Reason string

const (
	ReasonExpiry   Reason = "expiry"
	ReasonDamage   Reason = "damage"
	ReasonBreakage Reason = "breakage"
	ReasonLoss     Reason = "loss"
	ReasonTheft    Reason = "theft"
	ReasonOther    Reason = "other"
)

// ValidReason reports whether the reason is one of the known codes.
func ValidReason(r Reason) bool {
	switch r {
	case ReasonExpiry, ReasonDamage, ReasonBreakage, ReasonLoss, ReasonTheft, ReasonOther:
		return true
	}
	return false
}

// Record is a posted write-off. CostPerUnit is the moving average captured
// at posting time; TotalCost = Qty * CostPerUnit.
type Record struct {
	ID          int64     `json:"id"`
	RefID       string    `json:"ref_id"`
	BranchID    int64     `json:"branch_id"`
	ProductID   int64     `json:"product_id"`
	Qty         float64   `json:"qty"`
	CostPerUnit float64   `json:"cost_per_unit"`
	TotalCost   float64   `json:"total_cost"`
	Reason      Reason    `json:"reason"`
	Note        string    `json:"note,omitempty"`
	Status      Status    `json:"status"`
	PostedBy    int64     `json:"posted_by"`
	PostedAt    time.Time `json:"posted_at"`
}

var (
	// ErrInvalidReason indicates an unknown waste reason.
	ErrInvalidReason = errors.New("waste: invalid reason")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("waste: invalid input")
	// ErrInvalidState occurs when an action violates the record lifecycle.
	ErrInvalidState = errors.New("waste: invalid state transition")
	// ErrNotFound indicates the record does not exist.
	ErrNotFound = errors.New("waste: not found")
)
