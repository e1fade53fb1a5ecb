package vectorindex

import (
	"context"
	"math"
	"testing"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	sim := CosineSimilarity(v, v)
	if math.Abs(sim-1.0) > 1e-6 {
		t.Fatalf("expected similarity ~1.0 for identical vectors, got %f", sim)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	sim := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if math.Abs(sim) > 1e-6 {
		t.Fatalf("expected similarity ~0 for orthogonal vectors, got %f", sim)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	sim := CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	if sim != 0 {
		t.Fatalf("expected similarity 0 when a vector has no magnitude, got %f", sim)
	}
}

func TestMemoryAddSearchRemove(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	docs := []Document{
		{ReceiptID: 1, Embedding: []float32{1, 0}, Metadata: Metadata{Vendor: "acme", Category: "food"}},
		{ReceiptID: 2, Embedding: []float32{0, 1}, Metadata: Metadata{Vendor: "acme", Category: "electronics"}},
		{ReceiptID: 3, Embedding: []float32{0.9, 0.1}, Metadata: Metadata{Vendor: "other", Category: "food"}},
	}
	for _, d := range docs {
		if err := m.Add(ctx, d); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	results, err := m.Search(ctx, []float32{1, 0}, 10, Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ReceiptID != 1 {
		t.Fatalf("expected receipt 1 to rank first, got %d", results[0].ReceiptID)
	}

	filtered, err := m.Search(ctx, []float32{1, 0}, 10, Filter{Category: "food"})
	if err != nil {
		t.Fatalf("Search filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 results with category filter, got %d", len(filtered))
	}

	limited, err := m.Search(ctx, []float32{1, 0}, 1, Filter{})
	if err != nil {
		t.Fatalf("Search limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected k=1 to truncate to 1 result, got %d", len(limited))
	}

	if err := m.Remove(ctx, 1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	afterRemove, err := m.Search(ctx, []float32{1, 0}, 10, Filter{})
	if err != nil {
		t.Fatalf("Search after remove: %v", err)
	}
	for _, r := range afterRemove {
		if r.ReceiptID == 1 {
			t.Fatalf("expected receipt 1 to be gone after Remove")
		}
	}
}

func TestMemorySearchTieBreaksByReceiptIDDescending(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.Add(ctx, Document{ReceiptID: 5, Embedding: []float32{1, 0}})
	_ = m.Add(ctx, Document{ReceiptID: 9, Embedding: []float32{1, 0}})

	results, err := m.Search(ctx, []float32{1, 0}, 10, Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].ReceiptID != 9 {
		t.Fatalf("expected tie broken by descending receipt id, got %+v", results)
	}
}
