package vectorindex

import (
	"context"
	"sort"
	"sync"
)

// Memory is the in-memory Vector Index backend: no pure-Go embeddable
// vector index library was available to wire in, so this backend is plain
// Go behind the same Index
// capability set the persistent (pgvector) backend implements. Readers
// (Search) and writers (Add/Remove) are protected by a single RWMutex,
// matching the concurrency model for this backend.
type Memory struct {
	mu   sync.RWMutex
	docs map[int64]Document
}

// NewMemory constructs an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{docs: make(map[int64]Document)}
}

func (m *Memory) Add(ctx context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ReceiptID] = doc
	return nil
}

func (m *Memory) Remove(ctx context.Context, receiptID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, receiptID)
	return nil
}

func (m *Memory) Search(ctx context.Context, queryEmbedding []float32, k int, filter Filter) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]SearchResult, 0, len(m.docs))
	for id, doc := range m.docs {
		if !filter.matches(doc.Metadata) {
			continue
		}
		results = append(results, SearchResult{
			ReceiptID:  id,
			Similarity: CosineSimilarity(queryEmbedding, doc.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ReceiptID > results[j].ReceiptID
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) Close() error { return nil }
