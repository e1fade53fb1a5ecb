package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/localledger/receipt-backend/internal/models"
	"github.com/localledger/receipt-backend/internal/vectorindex"
)

type fakeStore struct {
	mu       sync.Mutex
	receipts map[int64]*models.Receipt
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{receipts: make(map[int64]*models.Receipt)}
}

func (s *fakeStore) InsertReceipt(ctx context.Context, r *models.Receipt) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	cp := *r
	cp.ID = id
	s.receipts[id] = &cp
	return id, nil
}

func (s *fakeStore) UpdateReceipt(ctx context.Context, r *models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[r.ID]; !ok {
		return errors.New("not found")
	}
	cp := *r
	s.receipts[r.ID] = &cp
	return nil
}

func (s *fakeStore) DeleteReceipt(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.receipts, id)
	return nil
}

func (s *fakeStore) GetReceipt(ctx context.Context, id int64) (*models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func (s *fakeStore) ListReceipts(ctx context.Context, f models.ListFilter) ([]*models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Receipt, 0, len(s.receipts))
	for _, r := range s.receipts {
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

type fakeIndex struct {
	mu       sync.Mutex
	docs     map[int64]vectorindex.Document
	addErr   error
	addCalls int
}

func (f *fakeIndex) Add(ctx context.Context, doc vectorindex.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.addErr != nil {
		return f.addErr
	}
	if f.docs == nil {
		f.docs = make(map[int64]vectorindex.Document)
	}
	f.docs[doc.ReceiptID] = doc
	return nil
}

func (f *fakeIndex) Remove(ctx context.Context, receiptID int64) error {
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, queryEmbedding []float32, k int, filter vectorindex.Filter) ([]vectorindex.SearchResult, error) {
	return nil, nil
}

func (f *fakeIndex) Close() error { return nil }

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func validReceipt() *models.Receipt {
	return &models.Receipt{
		Vendor:      "Corner Store",
		Timestamp:   time.Now(),
		TotalAmount: decimal.NewFromFloat(10),
		TaxAmount:   decimal.Zero,
		Currency:    "EUR",
	}
}

func TestIngestRejectsInvalidReceipt(t *testing.T) {
	ing := New(newFakeStore(), &fakeIndex{}, &fakeEmbedder{})
	r := validReceipt()
	r.Vendor = ""

	if _, err := ing.Ingest(context.Background(), r); err == nil {
		t.Fatalf("expected validation error for missing vendor")
	}
}

func TestIngestRejectsTaxExceedingTotal(t *testing.T) {
	ing := New(newFakeStore(), &fakeIndex{}, &fakeEmbedder{})
	r := validReceipt()
	r.TotalAmount = decimal.NewFromFloat(5)
	r.TaxAmount = decimal.NewFromFloat(10)

	if _, err := ing.Ingest(context.Background(), r); err == nil {
		t.Fatalf("expected validation error when taxAmount exceeds totalAmount")
	}
}

func TestIngestPersistsAndIndexes(t *testing.T) {
	index := &fakeIndex{}
	ing := New(newFakeStore(), index, &fakeEmbedder{})

	stored, err := ing.Ingest(context.Background(), validReceipt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ID == 0 {
		t.Fatalf("expected an assigned ID")
	}
	if index.addCalls != 1 {
		t.Fatalf("expected one index upsert, got %d", index.addCalls)
	}
}

func TestIngestQueuesReconciliationOnIndexFailure(t *testing.T) {
	index := &fakeIndex{addErr: errors.New("index unavailable")}
	ing := New(newFakeStore(), index, &fakeEmbedder{})

	if _, err := ing.Ingest(context.Background(), validReceipt()); err != nil {
		t.Fatalf("Ingest should not fail just because the index upsert failed: %v", err)
	}
	if len(ing.queue) != 1 {
		t.Fatalf("expected one queued reconciliation entry, got %d", len(ing.queue))
	}
}

func TestRunReconciliationRetriesDueEntries(t *testing.T) {
	index := &fakeIndex{addErr: errors.New("still down")}
	ing := New(newFakeStore(), index, &fakeEmbedder{})

	ing.enqueue(vectorindex.Document{ReceiptID: 1})
	ing.queue[0].nextRetry = time.Now().Add(-time.Second) // force it due

	ing.RunReconciliation(context.Background())

	if index.addCalls != 1 {
		t.Fatalf("expected a retry attempt, got %d calls", index.addCalls)
	}
	if len(ing.queue) != 1 {
		t.Fatalf("expected the entry to be re-queued after another failure, got %d", len(ing.queue))
	}
	if ing.queue[0].attempts != 1 {
		t.Fatalf("expected attempts incremented to 1, got %d", ing.queue[0].attempts)
	}
}

func TestRunReconciliationDropsAfterMaxAttempts(t *testing.T) {
	index := &fakeIndex{addErr: errors.New("still down")}
	ing := New(newFakeStore(), index, &fakeEmbedder{})

	ing.enqueue(vectorindex.Document{ReceiptID: 1})
	ing.queue[0].attempts = maxReconcileAttempts - 1
	ing.queue[0].nextRetry = time.Now().Add(-time.Second)

	ing.RunReconciliation(context.Background())

	if len(ing.queue) != 0 {
		t.Fatalf("expected the entry to be dropped after exceeding max attempts, got %d remaining", len(ing.queue))
	}
}
