// Package ingest is the Ingestor: validates an extracted or
// directly-submitted receipt, runs the Audit Engine, writes it transactionally
// to the Relational Store, and upserts it into the Vector Index — queuing a
// bounded-retry reconciliation entry when the vector-index upsert fails so a
// store write is never rolled back just because the index is unavailable.
// It separates "the receipt is valid and persisted" from "the optional
// enrichment step" (here: vector indexing), so an indexing hiccup never
// rolls back an otherwise-good write.
package ingest

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localledger/receipt-backend/internal/apperr"
	"github.com/localledger/receipt-backend/internal/audit"
	"github.com/localledger/receipt-backend/internal/logging"
	"github.com/localledger/receipt-backend/internal/models"
	"github.com/localledger/receipt-backend/internal/store"
	"github.com/localledger/receipt-backend/internal/vectorindex"
)

var log = logging.New("ingest")

const (
	maxReconcileAttempts = 8
	baseBackoff          = 2 * time.Second
	maxBackoff           = 5 * time.Minute
)

// Embedder is the narrow completion capability the Ingestor needs to build
// a vector-index document.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// reconcileEntry is one pending vector-index upsert retry.
type reconcileEntry struct {
	token     string
	doc       vectorindex.Document
	attempts  int
	nextRetry time.Time
}

// Ingestor wires the Relational Store, Audit Engine, Vector Index and
// completion-service embedder together into one durable write path.
type Ingestor struct {
	store    store.Store
	index    vectorindex.Index
	embedder Embedder
	engine   *audit.Engine

	mu    sync.Mutex
	queue []*reconcileEntry
}

// New builds an Ingestor.
func New(st store.Store, index vectorindex.Index, embedder Embedder) *Ingestor {
	return &Ingestor{
		store:    st,
		index:    index,
		embedder: embedder,
		engine:   audit.New(st),
	}
}

// Ingest validates r, audits it, writes it to the store, and upserts it into
// the vector index. On success it returns the stored receipt
// with its assigned ID and computed flags.
func (i *Ingestor) Ingest(ctx context.Context, r *models.Receipt) (*models.Receipt, error) {
	if err := validate(r); err != nil {
		return nil, err
	}

	flags, err := i.engine.Evaluate(ctx, r, r.ID)
	if err != nil {
		return nil, apperr.New(apperr.StoreFailure, "duplicate check failed", err)
	}
	r.Flags = flags

	id, err := i.store.InsertReceipt(ctx, r)
	if err != nil {
		return nil, apperr.New(apperr.StoreFailure, "failed to persist receipt", err)
	}
	r.ID = id

	i.indexOrQueue(ctx, r)

	return r, nil
}

// Reindex recomputes and re-upserts a receipt already in the store — used
// after an update (the "flags recompute on every write").
func (i *Ingestor) Reindex(ctx context.Context, r *models.Receipt) error {
	flags, err := i.engine.Evaluate(ctx, r, r.ID)
	if err != nil {
		return apperr.New(apperr.StoreFailure, "duplicate check failed", err)
	}
	r.Flags = flags

	if err := i.store.UpdateReceipt(ctx, r); err != nil {
		return apperr.New(apperr.StoreFailure, "failed to update receipt", err)
	}

	i.indexOrQueue(ctx, r)
	return nil
}

// indexOrQueue attempts the vector-index upsert inline; on failure it
// enqueues a reconciliation entry instead of failing the caller's request,
// since the receipt is already durably stored.
func (i *Ingestor) indexOrQueue(ctx context.Context, r *models.Receipt) {
	doc, err := i.buildDocument(ctx, r)
	if err != nil {
		log.Errorf("build document for receipt %d: %v", r.ID, err)
		return
	}

	if err := i.index.Add(ctx, doc); err != nil {
		log.Warnf("vector index upsert failed for receipt %d, queuing retry: %v", r.ID, err)
		i.enqueue(doc)
		return
	}
}

func (i *Ingestor) buildDocument(ctx context.Context, r *models.Receipt) (vectorindex.Document, error) {
	text := documentText(r)
	embedding, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return vectorindex.Document{}, fmt.Errorf("embed document: %w", err)
	}
	return vectorindex.Document{
		ReceiptID: r.ID,
		Text:      text,
		Embedding: embedding,
		Metadata: vectorindex.Metadata{
			Vendor:     models.NormalizeVendor(r.Vendor),
			Category:   strings.ToLower(r.Category),
			Total:      r.TotalAmount.String(),
			Date:       r.Timestamp.Format("2006-01-02"),
			Duplicate:  r.Flags.Duplicate,
			Suspicious: r.Flags.SuspiciousCategory,
			MissingVAT: r.Flags.MissingVAT,
			MathError:  r.Flags.MathError,
		},
	}, nil
}

// documentText renders the vendor/date/total/category/line-items into the
// searchable string embedded for the Vector Index.
func documentText(r *models.Receipt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s, total %s %s, category %s",
		r.Vendor, r.Timestamp.Format("2006-01-02"), r.TotalAmount.String(), r.Currency, r.Category)
	for _, item := range r.Items {
		fmt.Fprintf(&b, "; %s", item.Description)
	}
	return b.String()
}

func (i *Ingestor) enqueue(doc vectorindex.Document) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.queue = append(i.queue, &reconcileEntry{
		token:     uuid.NewString(),
		doc:       doc,
		nextRetry: time.Now().Add(baseBackoff),
	})
}

// RunReconciliation retries queued vector-index upserts whose backoff has
// elapsed, dropping an entry after maxReconcileAttempts failures.
// It is meant to be called periodically (e.g. from a background ticker).
func (i *Ingestor) RunReconciliation(ctx context.Context) {
	i.mu.Lock()
	due := make([]*reconcileEntry, 0, len(i.queue))
	remaining := i.queue[:0]
	now := time.Now()
	for _, e := range i.queue {
		if now.After(e.nextRetry) {
			due = append(due, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	i.queue = remaining
	i.mu.Unlock()

	for _, e := range due {
		if err := i.index.Add(ctx, e.doc); err != nil {
			e.attempts++
			if e.attempts >= maxReconcileAttempts {
				log.Warnf("dropping reconciliation entry %s for receipt %d after %d attempts: %v",
					e.token, e.doc.ReceiptID, e.attempts, err)
				continue
			}
			backoff := time.Duration(math.Min(
				float64(maxBackoff),
				float64(baseBackoff)*math.Pow(2, float64(e.attempts)),
			))
			e.nextRetry = time.Now().Add(backoff)
			i.mu.Lock()
			i.queue = append(i.queue, e)
			i.mu.Unlock()
			continue
		}
		log.Printf("reconciled receipt %d into vector index after %d attempts", e.doc.ReceiptID, e.attempts+1)
	}
}

// ReconcileAll re-embeds and re-upserts every receipt currently in the
// store, run once on process restart (the design supplemented feature,
// the "on first use" design note).
func (i *Ingestor) ReconcileAll(ctx context.Context) error {
	receipts, err := i.store.ListReceipts(ctx, models.ListFilter{})
	if err != nil {
		return fmt.Errorf("list receipts for reconciliation sweep: %w", err)
	}

	log.Printf("reconciliation sweep: %d receipts", len(receipts))
	for _, r := range receipts {
		i.indexOrQueue(ctx, r)
	}
	return nil
}

// validate enforces the structural invariants a receipt must satisfy before
// it reaches the Audit Engine or the store.
func validate(r *models.Receipt) error {
	if strings.TrimSpace(r.Vendor) == "" {
		return apperr.New(apperr.Validation, "vendor is required", nil)
	}
	if r.Timestamp.IsZero() {
		return apperr.New(apperr.Validation, "timestamp is required", nil)
	}
	if r.TotalAmount.IsNegative() {
		return apperr.New(apperr.Validation, "totalAmount cannot be negative", nil)
	}
	if r.TaxAmount.IsNegative() {
		return apperr.New(apperr.Validation, "taxAmount cannot be negative", nil)
	}
	if r.TotalAmount.LessThan(r.TaxAmount) {
		return apperr.New(apperr.Validation, "totalAmount cannot be less than taxAmount", nil)
	}
	if strings.TrimSpace(r.Currency) == "" {
		return apperr.New(apperr.Validation, "currency is required", nil)
	}
	for idx, item := range r.Items {
		if strings.TrimSpace(item.Description) == "" {
			return apperr.New(apperr.Validation, fmt.Sprintf("line item %d: description is required", idx), nil)
		}
		if item.Quantity < 0 {
			return apperr.New(apperr.Validation, fmt.Sprintf("line item %d: quantity cannot be negative", idx), nil)
		}
	}
	return nil
}
