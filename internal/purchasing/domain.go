// Package purchasing posts purchase invoices into the stock ledger: every
// received line blends into the moving average and leaves an immutable
// PURCHASE movement behind. Invoices are reversed, never deleted.
package purchasing

import (
	"errors"
	"time"
)

// InvoiceStatus is the lifecycle of a posted invoice.
type InvoiceStatus string

const (
	// StatusPosted means the invoice's movements are on the ledger.
	StatusPosted InvoiceStatus = "POSTED"
	// StatusReversed means compensating movements undid the invoice.
	StatusReversed InvoiceStatus = "REVERSED"
)

// Invoice is a purchase document header.
type Invoice struct {
	ID           int64         `json:"id"`
	Number       string        `json:"number"`
	RefID        string        `json:"ref_id"`
	BranchID     int64         `json:"branch_id"`
	SupplierName string        `json:"supplier_name,omitempty"`
	Subtotal     float64       `json:"subtotal"`
	VATTotal     float64       `json:"vat_total"`
	Total        float64       `json:"total"`
	Status       InvoiceStatus `json:"status"`
	PostedBy     int64         `json:"posted_by"`
	PostedAt     time.Time     `json:"posted_at"`
}

// Line is one received product on an invoice. VATPct is a percentage
// (15 means 15%), converted to a fraction before the cost model sees it.
type Line struct {
	ID        int64   `json:"id"`
	InvoiceID int64   `json:"invoice_id"`
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
	VATPct    float64 `json:"vat_pct"`
	LineTotal float64 `json:"line_total"`
}

var (
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchasing: invalid input")
	// ErrInvalidState occurs when an action violates the invoice lifecycle.
	ErrInvalidState = errors.New("purchasing: invalid state transition")
	// ErrNotFound indicates the invoice does not exist.
	ErrNotFound = errors.New("purchasing: not found")
)
