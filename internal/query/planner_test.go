package query

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/localledger/receipt-backend/internal/models"
	"github.com/localledger/receipt-backend/internal/vectorindex"
)

type fakeStore struct {
	receipts []*models.Receipt
}

func (s *fakeStore) InsertReceipt(ctx context.Context, r *models.Receipt) (int64, error) { return 0, nil }
func (s *fakeStore) UpdateReceipt(ctx context.Context, r *models.Receipt) error          { return nil }
func (s *fakeStore) DeleteReceipt(ctx context.Context, id int64) error                   { return nil }

func (s *fakeStore) GetReceipt(ctx context.Context, id int64) (*models.Receipt, error) {
	for _, r := range s.receipts {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListReceipts(ctx context.Context, f models.ListFilter) ([]*models.Receipt, error) {
	var out []*models.Receipt
	for _, r := range s.receipts {
		if f.Vendor != "" && models.NormalizeVendor(r.Vendor) != models.NormalizeVendor(f.Vendor) {
			continue
		}
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) FindDuplicateCandidates(ctx context.Context, vendorNormalized string, day time.Time, total decimal.Decimal, excludeID int64) ([]*models.Receipt, error) {
	return nil, nil
}

func (s *fakeStore) MonthlyTotals(ctx context.Context, f models.ListFilter) ([]models.MonthlyTotal, error) {
	return nil, nil
}
func (s *fakeStore) VendorTotals(ctx context.Context, f models.ListFilter) ([]models.VendorTotal, error) {
	return nil, nil
}
func (s *fakeStore) CategoryTotals(ctx context.Context, f models.ListFilter) ([]models.CategoryTotal, error) {
	return nil, nil
}

type fakeIndex struct{}

func (i *fakeIndex) Add(ctx context.Context, doc vectorindex.Document) error { return nil }
func (i *fakeIndex) Remove(ctx context.Context, receiptID int64) error      { return nil }
func (i *fakeIndex) Search(ctx context.Context, queryEmbedding []float32, k int, filter vectorindex.Filter) ([]vectorindex.SearchResult, error) {
	return nil, nil
}
func (i *fakeIndex) Close() error { return nil }

type fakeEmbedder struct{}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeProvider struct{}

func (p *fakeProvider) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "restated", nil
}
func (p *fakeProvider) CompleteVision(ctx context.Context, prompt, imageBase64 string) (string, error) {
	return "", nil
}
func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }

func scenarioReceipts() []*models.Receipt {
	return []*models.Receipt{
		{
			ID:          1,
			Vendor:      "REWE",
			Timestamp:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			TotalAmount: dec("45.67"),
			TaxAmount:   dec("7.32"),
			Currency:    "EUR",
			Items: []models.LineItem{
				{Description: "Brot", Quantity: 1, LineTotal: dec("2.99")},
				{Description: "Milch", Quantity: 1, LineTotal: dec("1.29")},
				{Description: "Käse", Quantity: 1, LineTotal: dec("41.39")},
			},
		},
		{
			ID:          3,
			Vendor:      "Bar",
			Timestamp:   time.Date(2024, 2, 1, 22, 0, 0, 0, time.UTC),
			TotalAmount: dec("30.00"),
			TaxAmount:   dec("4.75"),
			Currency:    "EUR",
			Items: []models.LineItem{
				{Description: "Beer", Quantity: 1, LineTotal: dec("5.00")},
				{Description: "Wine", Quantity: 1, LineTotal: dec("20.00")},
			},
		},
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAnswerSumByCategoryWatchlistTerm(t *testing.T) {
	p := New(&fakeStore{receipts: scenarioReceipts()}, &fakeIndex{}, &fakeEmbedder{}, &fakeProvider{})

	answer, err := p.Answer(context.Background(), "how much did I spend on alcohol?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Numeric == nil || !answer.Numeric.Equal(dec("25.00")) {
		t.Fatalf("expected totalAmount 25.00, got %v", answer.Numeric)
	}
	if answer.Count != 1 {
		t.Fatalf("expected count 1, got %d", answer.Count)
	}
	if len(answer.ReceiptIDs) != 1 || answer.ReceiptIDs[0] != 3 {
		t.Fatalf("expected receiptIds [3], got %v", answer.ReceiptIDs)
	}
}

func TestAnswerSumByVendorFiltersToNamedVendor(t *testing.T) {
	p := New(&fakeStore{receipts: scenarioReceipts()}, &fakeIndex{}, &fakeEmbedder{}, &fakeProvider{})

	answer, err := p.Answer(context.Background(), "how much did I spend at REWE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Numeric == nil || !answer.Numeric.Equal(dec("45.67")) {
		t.Fatalf("expected totalAmount 45.67, got %v", answer.Numeric)
	}
	if len(answer.ReceiptIDs) != 1 || answer.ReceiptIDs[0] != 1 {
		t.Fatalf("expected receiptIds [1], got %v", answer.ReceiptIDs)
	}
}
