// Package ledger owns the authoritative per-(product, branch) stock record
// and the mutation rules every movement processor goes through. The entry is
// a materialized fold over movement history: quantity and average cost must
// always equal the signed sum of committed movements for the key.
package ledger

import (
	"errors"
	"time"
)

// MovementKind enumerates the sources of stock movements.
type MovementKind string

const (
	// KindPurchase is an inbound receipt from a purchase invoice line.
	KindPurchase MovementKind = "PURCHASE"
	// KindTransformIn is the finished-product output of a transformation.
	KindTransformIn MovementKind = "TRANSFORM_IN"
	// KindTransformOut is raw-material consumption of a transformation.
	KindTransformOut MovementKind = "TRANSFORM_OUT"
	// KindWaste is a waste deduction.
	KindWaste MovementKind = "WASTE"
	// KindAudit is a reconciliation delta emitted on audit completion.
	KindAudit MovementKind = "AUDIT"
	// KindAdjust is a manual absolute quantity override.
	KindAdjust MovementKind = "ADJUST"
	// KindReversal compensates a previously posted document.
	KindReversal MovementKind = "REVERSAL"
)

// Entry is the current stock position for one product at one branch.
// Entries are created lazily on first movement and never deleted; zero
// quantity is a valid steady state.
type Entry struct {
	ProductID int64     `json:"product_id"`
	BranchID  int64     `json:"branch_id"`
	Qty       float64   `json:"qty"`
	AvgCost   float64   `json:"avg_cost"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Movement is an immutable record of a single quantity/cost change. Qty is
// signed; UnitCost is the incoming cost for positive movements and the
// average cost consumed at for negative ones. Movements are never updated,
// only compensated by reversal movements.
type Movement struct {
	ID        int64        `json:"id"`
	Kind      MovementKind `json:"kind"`
	ProductID int64        `json:"product_id"`
	BranchID  int64        `json:"branch_id"`
	Qty       float64      `json:"qty"`
	UnitCost  float64      `json:"unit_cost"`
	RefModule string       `json:"ref_module,omitempty"`
	RefID     string       `json:"ref_id,omitempty"`
	Note      string       `json:"note,omitempty"`
	CreatedBy int64        `json:"created_by,omitempty"`
	PostedAt  time.Time    `json:"posted_at"`
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	ProductID int64
	BranchID  int64
	Kind      MovementKind
	From      time.Time
	To        time.Time
	Limit     int
}

var (
	// ErrInvalidQuantity indicates a quantity that must be positive was not.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("ledger: unit cost must be >= 0")
	// ErrInsufficientStock indicates a deduction larger than the current
	// entry quantity. Stock never goes negative anywhere in the system.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrConcurrentModification indicates the operation lost a concurrency
	// race; the caller should retry from a fresh read, bounded.
	ErrConcurrentModification = errors.New("ledger: concurrent modification")
	// ErrNotFound indicates a referenced movement or entry does not exist.
	ErrNotFound = errors.New("ledger: not found")
)

// qtyEpsilon absorbs float64 noise when comparing quantities.
const qtyEpsilon = 1e-9
