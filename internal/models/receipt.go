// Package models holds the relational entities: Receipt and its child
// LineItems, plus the request/response shapes the HTTP surface exchanges.
// Amounts use shopspring/decimal throughout for every monetary field.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AuditFlags are the four derived, recomputed-on-every-write booleans.
type AuditFlags struct {
	Duplicate           bool `json:"duplicate"`
	SuspiciousCategory   bool `json:"suspiciousCategory"`
	MissingVAT           bool `json:"missingVAT"`
	MathError            bool `json:"mathError"`
}

// Receipt is the primary entity.
type Receipt struct {
	ID            int64           `json:"id"`
	Vendor        string          `json:"vendor"`
	Timestamp     time.Time       `json:"timestamp"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	TaxAmount     decimal.Decimal `json:"taxAmount"`
	Currency      string          `json:"currency"`
	Category      string          `json:"category,omitempty"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	ReceiptNumber string          `json:"receiptNumber,omitempty"`
	ImageRef      string          `json:"imageRef,omitempty"`

	Flags AuditFlags `json:"flags"`

	Items []LineItem `json:"items"`

	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// LineItem is a child row of a Receipt.
type LineItem struct {
	ID          int64           `json:"id,omitempty"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
	VATPercent  *decimal.Decimal `json:"vatPercent,omitempty"`
}

// NormalizeVendor trims and collapses interior whitespace and lowercases,
// the comparison form used for duplicate detection.
func NormalizeVendor(vendor string) string {
	fields := strings.Fields(vendor)
	return strings.ToLower(strings.Join(fields, " "))
}

// ListFilter is the optional filter set accepted by list-receipts and the
// three aggregations, including the structured filter (category, vendor,
// date range, amount range) a natural-language question can imply.
type ListFilter struct {
	Vendor      string
	Category    string
	StartDate   *time.Time
	EndDate     *time.Time
	ReceiptID   *int64
	FlaggedOnly bool
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
}

// MonthlyTotal, VendorTotal, CategoryTotal are the three aggregation shapes
// produced by the Relational Store.
type MonthlyTotal struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
}

type VendorTotal struct {
	Vendor string          `json:"vendor"`
	Total  decimal.Decimal `json:"total"`
}

type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// MinorUnit is the rounding tolerance for a two-decimal currency.
var MinorUnit = decimal.NewFromFloat(0.01)
