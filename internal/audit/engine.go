// Package audit is the Audit Engine: a pure function over a
// receipt (plus whatever duplicate candidates the Relational Store already
// holds) that sets four independent boolean flags. It never mutates a
// receipt's amounts, never rejects a receipt, and never calls out to the
// completion service — it is deterministic and safe to recompute any
// number of times. One exported Evaluate entry point dispatches to
// independent per-rule checks that each only ever add to the result, never
// read each other's output.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/localledger/receipt-backend/internal/models"
)

// suspiciousItemTerms and suspiciousCategories are the watchlists behind
// the suspicious-category flag.
var suspiciousItemTerms = []string{"alcohol", "wine", "beer", "spirits", "tobacco", "cigarette"}
var suspiciousCategories = map[string]bool{"bar": true, "alcohol": true, "tobacco": true}

// DuplicateFinder is the subset of store.Store the Audit Engine needs to
// evaluate the duplicate flag, kept narrow so audit tests can supply a fake
// without pulling in the full Store interface.
type DuplicateFinder interface {
	FindDuplicateCandidates(ctx context.Context, vendorNormalized string, day time.Time, total decimal.Decimal, excludeID int64) ([]*models.Receipt, error)
}

// Engine computes audit flags for a receipt.
type Engine struct {
	store DuplicateFinder
}

// New builds an Engine against the given duplicate-candidate source.
func New(store DuplicateFinder) *Engine {
	return &Engine{store: store}
}

// Evaluate computes all four flags for r and returns them; it does not
// mutate r. excludeID should be r.ID for an update (so a receipt never
// flags itself as its own duplicate) and zero for a not-yet-inserted
// receipt.
func (e *Engine) Evaluate(ctx context.Context, r *models.Receipt, excludeID int64) (models.AuditFlags, error) {
	flags := models.AuditFlags{
		SuspiciousCategory: isSuspiciousCategory(r),
		MissingVAT:         isMissingVAT(r),
		MathError:          hasMathError(r),
	}

	dup, err := e.isDuplicate(ctx, r, excludeID)
	if err != nil {
		return flags, err
	}
	flags.Duplicate = dup

	return flags, nil
}

// isDuplicate flags a receipt when the store already holds another receipt
// from the same normalized vendor, on the same calendar day, with a total
// within one minor unit of currency.
func (e *Engine) isDuplicate(ctx context.Context, r *models.Receipt, excludeID int64) (bool, error) {
	candidates, err := e.store.FindDuplicateCandidates(ctx, models.NormalizeVendor(r.Vendor), r.Timestamp, r.TotalAmount, excludeID)
	if err != nil {
		return false, err
	}
	return len(candidates) > 0, nil
}

// isSuspiciousCategory flags a receipt whose category is on the watchlist,
// or whose line items mention a watchlisted term.
func isSuspiciousCategory(r *models.Receipt) bool {
	if suspiciousCategories[strings.ToLower(strings.TrimSpace(r.Category))] {
		return true
	}
	for _, item := range r.Items {
		desc := strings.ToLower(item.Description)
		for _, term := range suspiciousItemTerms {
			if strings.Contains(desc, term) {
				return true
			}
		}
	}
	return false
}

// isMissingVAT flags a receipt with a non-zero total but no VAT/tax amount
// recorded on the receipt or any of its line items.
func isMissingVAT(r *models.Receipt) bool {
	if r.TotalAmount.IsZero() {
		return false
	}
	if !r.TaxAmount.IsZero() {
		return false
	}
	for _, item := range r.Items {
		if item.VATPercent != nil && !item.VATPercent.IsZero() {
			return false
		}
	}
	return true
}

// hasMathError flags a receipt whose line items don't sum to the total
// within one minor unit of currency.
func hasMathError(r *models.Receipt) bool {
	if len(r.Items) == 0 {
		return false
	}
	sum := r.TotalAmount.Sub(r.TotalAmount) // zero, same scale family as TotalAmount
	for _, item := range r.Items {
		sum = sum.Add(item.LineTotal)
	}
	sum = sum.Add(r.TaxAmount)
	diff := sum.Sub(r.TotalAmount).Abs()
	return diff.GreaterThan(models.MinorUnit)
}
