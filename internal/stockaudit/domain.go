// Package stockaudit reconciles physical counts against the stock ledger.
// An audit walks draft -> in_progress -> completed or cancelled; completion
// folds every counted difference back into the ledger in one transaction.
package stockaudit

import (
	"errors"
	"time"
)

// AuditStatus is the audit lifecycle state.
type AuditStatus string

const (
	StatusDraft      AuditStatus = "draft"
	StatusInProgress AuditStatus = "in_progress"
	StatusCompleted  AuditStatus = "completed"
	StatusCancelled  AuditStatus = "cancelled"
)

// Audit is one counting session for a branch on a date.
type Audit struct {
	ID          int64       `json:"id"`
	BranchID    int64       `json:"branch_id"`
	AuditDate   time.Time   `json:"audit_date"`
	Status      AuditStatus `json:"status"`
	Notes       string      `json:"notes,omitempty"`
	CreatedBy   int64       `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedBy int64       `json:"completed_by,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Item is one product under count. ActualQty stays nil until a count is
// recorded; Difference is actual minus expected.
type Item struct {
	ID          int64    `json:"id"`
	AuditID     int64    `json:"audit_id"`
	ProductID   int64    `json:"product_id"`
	ExpectedQty float64  `json:"expected_qty"`
	ActualQty   *float64 `json:"actual_qty"`
	Difference  float64  `json:"difference"`
	Notes       string   `json:"notes,omitempty"`
}

var (
	// ErrDuplicateAudit indicates a non-cancelled audit already exists for
	// the branch and date.
	ErrDuplicateAudit = errors.New("stockaudit: audit already exists for branch and date")
	// ErrIncompleteAudit indicates completion was attempted with uncounted items.
	ErrIncompleteAudit = errors.New("stockaudit: uncounted items remain")
	// ErrInvalidState occurs when an action violates the audit lifecycle.
	ErrInvalidState = errors.New("stockaudit: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("stockaudit: invalid input")
	// ErrNotFound indicates the audit or item does not exist.
	ErrNotFound = errors.New("stockaudit: not found")
)
