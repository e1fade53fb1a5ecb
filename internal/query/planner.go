package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/localledger/receipt-backend/internal/completion"
	"github.com/localledger/receipt-backend/internal/logging"
	"github.com/localledger/receipt-backend/internal/models"
	"github.com/localledger/receipt-backend/internal/store"
	"github.com/localledger/receipt-backend/internal/vectorindex"
)

var log = logging.New("query")

// searchK is the fixed vector-search breadth.
const searchK = 20

// topSources is how many source receipts accompany an answer.
const topSources = 5

// systemPrompt restricts the completion service to restating pre-computed
// numbers, never computing its own.
const systemPrompt = `You are a bookkeeping assistant. You will be given a question and a pre-computed numeric answer along with supporting receipt excerpts. Restate the answer in one or two plain sentences. Never recompute, round, or second-guess the provided number. If no number was computed, say so plainly instead of guessing.`

// Answer is what Answer returns: the deterministic number plus the prose
// the completion service produced from it, or a templated fallback when the
// completion service is unavailable (the graceful degradation).
type Answer struct {
	Intent     Intent
	Prose      string
	Numeric    *decimal.Decimal
	Count      int
	ReceiptIDs []int64
	Sources    []SourceReceipt
}

// SourceReceipt is one of the top cited receipts backing an answer.
type SourceReceipt struct {
	ReceiptID  int64
	Similarity float64
}

// Planner answers natural-language questions over the Relational Store and
// Vector Index.
type Planner struct {
	store    store.Store
	index    vectorindex.Index
	embedder interface {
		Embed(ctx context.Context, text string) ([]float32, error)
	}
	completion completion.Provider
}

// New builds a Planner.
func New(st store.Store, index vectorindex.Index, embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}, provider completion.Provider) *Planner {
	return &Planner{store: st, index: index, embedder: embedder, completion: provider}
}

// Answer classifies question, extracts whatever structured filter it
// implies, computes its deterministic numeric result from the Relational
// Store over that filter, retrieves supporting receipts from the Vector
// Index, and asks the completion service to restate the result in prose.
func (p *Planner) Answer(ctx context.Context, question string) (*Answer, error) {
	intent, filter := ClassifyWithFilter(question)

	numeric, ids, err := p.compute(ctx, intent, filter)
	if err != nil {
		return nil, fmt.Errorf("compute answer: %w", err)
	}

	sources, err := p.retrieveSources(ctx, question)
	if err != nil {
		log.Warnf("vector search failed, answering without sources: %v", err)
		sources = nil
	}

	prose, err := p.restate(ctx, question, numeric, sources)
	if err != nil {
		log.Warnf("completion service unavailable, using templated fallback: %v", err)
		prose = fallbackProse(intent, numeric)
	}

	return &Answer{
		Intent:     intent,
		Prose:      prose,
		Numeric:    numeric,
		Count:      len(ids),
		ReceiptIDs: ids,
		Sources:    sources,
	}, nil
}

// compute produces the one deterministic number behind an answer, purely
// from Relational Store aggregation over filter (the completion service
// never computes numbers), plus the identifiers of the receipts that
// contributed to it. Freeform/find-specific questions have no single
// number.
func (p *Planner) compute(ctx context.Context, intent Intent, filter models.ListFilter) (*decimal.Decimal, []int64, error) {
	switch intent {
	case IntentSumByCategory:
		return p.sumByCategory(ctx, filter)

	case IntentSumByVendor, IntentSumByPeriod:
		receipts, err := p.store.ListReceipts(ctx, filter)
		if err != nil {
			return nil, nil, err
		}
		return sumReceipts(receipts), receiptIDs(receipts), nil

	case IntentCount:
		receipts, err := p.store.ListReceipts(ctx, filter)
		if err != nil {
			return nil, nil, err
		}
		count := decimal.NewFromInt(int64(len(receipts)))
		return &count, receiptIDs(receipts), nil

	default:
		return nil, nil, nil
	}
}

// sumByCategory resolves a category filter two ways: a watchlist term
// (e.g. "alcohol") is matched against line-item descriptions and the
// category field the same way the Audit Engine's suspicious-category rule
// does, summing only the matching items; any other category is matched
// literally against the category field, summing full receipt totals.
func (p *Planner) sumByCategory(ctx context.Context, filter models.ListFilter) (*decimal.Decimal, []int64, error) {
	term := strings.ToLower(strings.TrimSpace(filter.Category))
	if !IsWatchlistTerm(term) {
		receipts, err := p.store.ListReceipts(ctx, filter)
		if err != nil {
			return nil, nil, err
		}
		return sumReceipts(receipts), receiptIDs(receipts), nil
	}

	scoped := filter
	scoped.Category = ""
	receipts, err := p.store.ListReceipts(ctx, scoped)
	if err != nil {
		return nil, nil, err
	}

	total := decimal.Zero
	var ids []int64
	for _, r := range receipts {
		matched, amount := MatchesWatchlist(r)
		if !matched {
			continue
		}
		total = total.Add(amount)
		ids = append(ids, r.ID)
	}
	return &total, ids, nil
}

func sumReceipts(receipts []*models.Receipt) *decimal.Decimal {
	total := decimal.Zero
	for _, r := range receipts {
		total = total.Add(r.TotalAmount)
	}
	return &total
}

func receiptIDs(receipts []*models.Receipt) []int64 {
	ids := make([]int64, len(receipts))
	for i, r := range receipts {
		ids[i] = r.ID
	}
	return ids
}

// retrieveSources runs the fixed k=20 vector search and keeps the top-5 by
// similarity, breaking ties by descending timestamp, then descending
// receipt id (timestamp isn't in SearchResult, so receipts are re-fetched
// to break ties on their actual timestamp before truncating to 5).
func (p *Planner) retrieveSources(ctx context.Context, question string) ([]SourceReceipt, error) {
	embedding, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	hits, err := p.index.Search(ctx, embedding, searchK, vectorindex.Filter{})
	if err != nil {
		return nil, err
	}

	type ranked struct {
		hit SourceReceipt
		ts  int64
	}
	rankedHits := make([]ranked, 0, len(hits))
	for _, h := range hits {
		ts := int64(0)
		if r, err := p.store.GetReceipt(ctx, h.ReceiptID); err == nil && r != nil {
			ts = r.Timestamp.Unix()
		}
		rankedHits = append(rankedHits, ranked{hit: SourceReceipt{ReceiptID: h.ReceiptID, Similarity: h.Similarity}, ts: ts})
	}

	sort.Slice(rankedHits, func(i, j int) bool {
		if rankedHits[i].hit.Similarity != rankedHits[j].hit.Similarity {
			return rankedHits[i].hit.Similarity > rankedHits[j].hit.Similarity
		}
		if rankedHits[i].ts != rankedHits[j].ts {
			return rankedHits[i].ts > rankedHits[j].ts
		}
		return rankedHits[i].hit.ReceiptID > rankedHits[j].hit.ReceiptID
	})

	if len(rankedHits) > topSources {
		rankedHits = rankedHits[:topSources]
	}

	sources := make([]SourceReceipt, len(rankedHits))
	for i, r := range rankedHits {
		sources[i] = r.hit
	}
	return sources, nil
}

func (p *Planner) restate(ctx context.Context, question string, numeric *decimal.Decimal, sources []SourceReceipt) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	if numeric != nil {
		fmt.Fprintf(&b, "Computed answer: %s\n", numeric.String())
	} else {
		b.WriteString("Computed answer: none (no single number applies to this question)\n")
	}
	if len(sources) > 0 {
		b.WriteString("Supporting receipts:\n")
		for _, s := range sources {
			fmt.Fprintf(&b, "- receipt #%d (similarity %.3f)\n", s.ReceiptID, s.Similarity)
		}
	}

	return p.completion.CompleteText(ctx, systemPrompt, b.String())
}

// fallbackProse is used when the completion service cannot be reached: the
// numeric answer is still returned, just without a model-authored sentence
// wrapping it.
func fallbackProse(intent Intent, numeric *decimal.Decimal) string {
	if numeric == nil {
		return "The completion service is unavailable and this question has no single computed number."
	}
	return fmt.Sprintf("The computed answer is %s. (completion service unavailable, showing raw result)", numeric.String())
}
