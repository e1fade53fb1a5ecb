// Package vectorindex is the Vector Index: embedding-backed
// similarity search over receipt documents, with two interchangeable
// back-ends sharing one contract: add, remove, search.
package vectorindex

import (
	"context"
	"math"
)

// Metadata is the per-document metadata mapping used for equality filters:
// vendor, category, total, date, flags.
type Metadata struct {
	Vendor    string
	Category  string
	Total     string // decimal string; not a Filter key
	Date      string // YYYY-MM-DD
	Duplicate bool
	Suspicious bool
	MissingVAT bool
	MathError  bool
}

// Document is one entry: a receipt identifier, its embedded document
// string, the embedding vector, and its metadata.
type Document struct {
	ReceiptID int64
	Text      string
	Embedding []float32
	Metadata  Metadata
}

// Filter is an equality conjunction over metadata keys. An empty value for
// a field means "don't filter on this field".
type Filter struct {
	Vendor   string
	Category string
}

func (f Filter) matches(m Metadata) bool {
	if f.Vendor != "" && f.Vendor != m.Vendor {
		return false
	}
	if f.Category != "" && f.Category != m.Category {
		return false
	}
	return true
}

// SearchResult is one hit from Search, ordered by descending similarity
// (ties broken by descending timestamp, then descending identifier — the
// caller supplies timestamp for the tie-break since the index itself only
// stores the date string in Metadata).
type SearchResult struct {
	ReceiptID  int64
	Similarity float64
}

// Index is the capability set both back-ends implement.
type Index interface {
	Add(ctx context.Context, doc Document) error
	Remove(ctx context.Context, receiptID int64) error
	Search(ctx context.Context, queryEmbedding []float32, k int, filter Filter) ([]SearchResult, error)
	Close() error
}

// CosineSimilarity computes cosine similarity after L2-normalizing both
// vectors.
func CosineSimilarity(a, b []float32) float64 {
	an := normalize(a)
	bn := normalize(b)

	var dot float64
	n := len(an)
	if len(bn) < n {
		n = len(bn)
	}
	for i := 0; i < n; i++ {
		dot += float64(an[i]) * float64(bn[i])
	}
	return dot
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	norm := math.Sqrt(sumSquares)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
