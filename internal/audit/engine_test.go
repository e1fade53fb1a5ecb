package audit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/localledger/receipt-backend/internal/models"
)

type fakeFinder struct {
	candidates []*models.Receipt
	err        error
}

func (f *fakeFinder) FindDuplicateCandidates(ctx context.Context, vendorNormalized string, day time.Time, total decimal.Decimal, excludeID int64) ([]*models.Receipt, error) {
	return f.candidates, f.err
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func baseReceipt() *models.Receipt {
	return &models.Receipt{
		Vendor:      "Corner Store",
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TotalAmount: dec("21.60"),
		TaxAmount:   dec("1.60"),
		Currency:    "EUR",
		Category:    "groceries",
		Items: []models.LineItem{
			{Description: "bread", Quantity: 1, UnitPrice: dec("20.00"), LineTotal: dec("20.00")},
		},
	}
}

func TestEvaluateNoFlags(t *testing.T) {
	e := New(&fakeFinder{})
	flags, err := e.Evaluate(context.Background(), baseReceipt(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flags.Duplicate || flags.SuspiciousCategory || flags.MissingVAT || flags.MathError {
		t.Fatalf("expected no flags, got %+v", flags)
	}
}

func TestEvaluateDuplicate(t *testing.T) {
	other := baseReceipt()
	other.ID = 7
	e := New(&fakeFinder{candidates: []*models.Receipt{other}})

	flags, err := e.Evaluate(context.Background(), baseReceipt(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !flags.Duplicate {
		t.Fatalf("expected Duplicate=true")
	}
}

func TestEvaluateDuplicateError(t *testing.T) {
	wantErr := context.DeadlineExceeded
	e := New(&fakeFinder{err: wantErr})

	_, err := e.Evaluate(context.Background(), baseReceipt(), 0)
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestSuspiciousCategoryByWatchlist(t *testing.T) {
	r := baseReceipt()
	r.Category = "Bar"
	flags, _ := New(&fakeFinder{}).Evaluate(context.Background(), r, 0)
	if !flags.SuspiciousCategory {
		t.Fatalf("expected SuspiciousCategory=true for category %q", r.Category)
	}
}

func TestSuspiciousCategoryByLineItemDescription(t *testing.T) {
	r := baseReceipt()
	r.Category = "other"
	r.Vendor = "Bar"
	r.Items = []models.LineItem{
		{Description: "Beer", Quantity: 1, UnitPrice: dec("5.00"), LineTotal: dec("5.00")},
		{Description: "Wine", Quantity: 1, UnitPrice: dec("15.00"), LineTotal: dec("15.00")},
	}
	flags, _ := New(&fakeFinder{}).Evaluate(context.Background(), r, 0)
	if !flags.SuspiciousCategory {
		t.Fatalf("expected SuspiciousCategory=true when a line item matches the watchlist")
	}
}

func TestSuspiciousCategoryFalseForUnmatchedVendorName(t *testing.T) {
	r := baseReceipt()
	r.Category = "other"
	r.Vendor = "Downtown Wine & Spirits"
	flags, _ := New(&fakeFinder{}).Evaluate(context.Background(), r, 0)
	if flags.SuspiciousCategory {
		t.Fatalf("expected SuspiciousCategory=false: vendor name alone is not on the watchlist")
	}
}

func TestMissingVAT(t *testing.T) {
	r := baseReceipt()
	r.TaxAmount = decimal.Zero
	r.Items[0].VATPercent = nil
	flags, _ := New(&fakeFinder{}).Evaluate(context.Background(), r, 0)
	if !flags.MissingVAT {
		t.Fatalf("expected MissingVAT=true")
	}
}

func TestMissingVATFalseWhenLineItemHasVAT(t *testing.T) {
	r := baseReceipt()
	r.TaxAmount = decimal.Zero
	vat := dec("18")
	r.Items[0].VATPercent = &vat
	flags, _ := New(&fakeFinder{}).Evaluate(context.Background(), r, 0)
	if flags.MissingVAT {
		t.Fatalf("expected MissingVAT=false when a line item carries VATPercent")
	}
}

func TestMissingVATFalseWhenTotalIsZero(t *testing.T) {
	r := baseReceipt()
	r.TotalAmount = decimal.Zero
	r.TaxAmount = decimal.Zero
	flags, _ := New(&fakeFinder{}).Evaluate(context.Background(), r, 0)
	if flags.MissingVAT {
		t.Fatalf("expected MissingVAT=false for a zero-total receipt")
	}
}

func TestMathErrorWithinTolerance(t *testing.T) {
	r := baseReceipt()
	r.TotalAmount = dec("21.61") // one cent off, within MinorUnit tolerance
	flags, _ := New(&fakeFinder{}).Evaluate(context.Background(), r, 0)
	if flags.MathError {
		t.Fatalf("expected MathError=false within tolerance")
	}
}

func TestMathErrorBeyondTolerance(t *testing.T) {
	r := baseReceipt()
	r.TotalAmount = dec("25.00")
	flags, _ := New(&fakeFinder{}).Evaluate(context.Background(), r, 0)
	if !flags.MathError {
		t.Fatalf("expected MathError=true when total diverges from items+tax")
	}
}

func TestMathErrorSkippedWithNoLineItems(t *testing.T) {
	r := baseReceipt()
	r.Items = nil
	r.TotalAmount = dec("999.00")
	flags, _ := New(&fakeFinder{}).Evaluate(context.Background(), r, 0)
	if flags.MathError {
		t.Fatalf("expected MathError=false when a receipt has no line items to check")
	}
}
