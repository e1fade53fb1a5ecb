// Package query is the Query Planner: classifies a natural
// language question into one of a fixed set of intents by lexicon, answers
// it with deterministic SQL aggregation and vector search rather than
// letting the completion service compute numbers, and only calls the
// completion service to restate the already-computed answer in prose.
package query

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/localledger/receipt-backend/internal/models"
)

// Intent is the fixed set of question shapes the planner recognizes
//. Rule-based classification takes precedence over vector
// retrieval: a question is first routed to an intent, and vector search
// (when used) only narrows results inside that intent's scope.
type Intent string

const (
	IntentSumByCategory Intent = "sum_by_category"
	IntentSumByVendor   Intent = "sum_by_vendor"
	IntentSumByPeriod   Intent = "sum_by_period"
	IntentCount         Intent = "count"
	IntentListTopK      Intent = "list_top_k"
	IntentFindSpecific  Intent = "find_specific"
	IntentFreeform      Intent = "freeform"
)

// lexicon is evaluated in order; the first matching rule wins
// (first-match tie-break).
var lexicon = []struct {
	intent Intent
	terms  []string
}{
	{IntentSumByCategory, []string{"by category", "per category", "spend on", "spent on"}},
	{IntentSumByVendor, []string{"by vendor", "per vendor", " at ", "from vendor"}},
	{IntentCount, []string{"how many", "number of", "count"}},
	{IntentListTopK, []string{"top ", "biggest", "largest", "most expensive", "highest"}},
	{IntentFindSpecific, []string{"receipt from", "receipt at", "find the receipt", "show me the receipt"}},
	{IntentSumByPeriod, []string{"how much", "total", "sum", "spent", "spend"}},
}

// Classify picks the intent for a question using the fixed lexicon.
func Classify(question string) Intent {
	q := strings.ToLower(question)
	for _, rule := range lexicon {
		for _, term := range rule.terms {
			if strings.Contains(q, term) {
				return rule.intent
			}
		}
	}
	return IntentFreeform
}

// itemWatchlist and categoryWatchlist mirror the Audit Engine's
// suspicious-category rule exactly, so asking about one watchlist term
// (e.g. "alcohol") surfaces every receipt the Audit Engine itself would
// have flagged suspicious for that same family of spending, not just
// receipts whose description literally contains that one word.
var itemWatchlist = []string{"alcohol", "wine", "beer", "spirits", "tobacco", "cigarette"}
var categoryWatchlist = map[string]bool{"bar": true, "alcohol": true, "tobacco": true}

// watchlistTerms is the union of both, used to decide whether a category
// word extracted from a question should be resolved this way at all.
var watchlistTerms = map[string]bool{
	"alcohol": true, "wine": true, "beer": true, "spirits": true,
	"tobacco": true, "cigarette": true, "bar": true,
}

// categoryMarkers and vendorMarkers introduce the noun phrase that
// extractPhraseAfter pulls the filter value from.
var categoryMarkers = []string{"spend on", "spent on", "by category", "per category"}
var vendorMarkers = []string{"from vendor", "by vendor", "per vendor", " at "}

// ClassifyWithFilter picks the intent for a question and extracts whatever
// structured filter (category, vendor, date range, amount range) its
// phrasing implies, so an aggregation intent only covers the slice of the
// store the question actually named.
func ClassifyWithFilter(question string) (Intent, models.ListFilter) {
	intent := Classify(question)
	q := strings.ToLower(question)

	var f models.ListFilter
	switch intent {
	case IntentSumByCategory:
		if c := extractPhraseAfter(q, categoryMarkers); c != "" {
			f.Category = c
		}
	case IntentSumByVendor:
		if v := extractPhraseAfter(q, vendorMarkers); v != "" {
			f.Vendor = v
		}
	}

	if start, end, ok := extractDateRange(q); ok {
		f.StartDate = start
		f.EndDate = end
	}
	if min, max, ok := extractAmountRange(q); ok {
		f.MinAmount = min
		f.MaxAmount = max
	}

	return intent, f
}

// IsWatchlistTerm reports whether term is one of the Audit Engine's
// suspicious-category watchlist entries.
func IsWatchlistTerm(term string) bool {
	return watchlistTerms[strings.ToLower(strings.TrimSpace(term))]
}

// MatchesWatchlist reports whether a receipt's category or any line-item
// description lands on the suspicious-category watchlist, and the sum of
// the line items responsible (falling back to the full receipt total when
// only the category field itself matched).
func MatchesWatchlist(r *models.Receipt) (matched bool, amount decimal.Decimal) {
	lineSum := decimal.Zero
	for _, item := range r.Items {
		desc := strings.ToLower(item.Description)
		for _, term := range itemWatchlist {
			if strings.Contains(desc, term) {
				lineSum = lineSum.Add(item.LineTotal)
				matched = true
				break
			}
		}
	}
	if categoryWatchlist[strings.ToLower(strings.TrimSpace(r.Category))] {
		matched = true
		if lineSum.IsZero() {
			lineSum = r.TotalAmount
		}
	}
	return matched, lineSum
}

// extractPhraseAfter returns the noun phrase following whichever marker
// occurs earliest in q, trimmed of trailing punctuation and a following
// date/amount clause.
func extractPhraseAfter(q string, markers []string) string {
	bestIdx := -1
	var bestMarker string
	for _, m := range markers {
		if idx := strings.Index(q, m); idx != -1 && (bestIdx == -1 || idx < bestIdx) {
			bestIdx = idx
			bestMarker = m
		}
	}
	if bestIdx == -1 {
		return ""
	}

	rest := strings.TrimSpace(q[bestIdx+len(bestMarker):])
	rest = strings.TrimSuffix(rest, "?")
	for _, stop := range []string{" last ", " this ", " in ", " during ", " between ", " over ", " under ", " above ", " below "} {
		if i := strings.Index(rest, stop); i != -1 {
			rest = rest[:i]
		}
	}
	rest = strings.TrimPrefix(rest, "the ")
	rest = strings.TrimPrefix(rest, "a ")
	return strings.TrimSpace(rest)
}

// extractDateRange recognizes a small set of relative-period phrases and
// converts them to an absolute [start, end) window anchored on now.
func extractDateRange(q string) (start, end *time.Time, ok bool) {
	now := time.Now().UTC()
	dayStart := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}

	switch {
	case strings.Contains(q, "today"):
		s := dayStart(now)
		e := s.AddDate(0, 0, 1)
		return &s, &e, true
	case strings.Contains(q, "yesterday"):
		e := dayStart(now)
		s := e.AddDate(0, 0, -1)
		return &s, &e, true
	case strings.Contains(q, "this month"):
		s := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		e := s.AddDate(0, 1, 0)
		return &s, &e, true
	case strings.Contains(q, "last month"):
		e := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		s := e.AddDate(0, -1, 0)
		return &s, &e, true
	case strings.Contains(q, "last quarter"):
		currentQuarterStart := time.Date(now.Year(), time.Month((int(now.Month()-1)/3)*3+1), 1, 0, 0, 0, 0, time.UTC)
		e := currentQuarterStart
		s := currentQuarterStart.AddDate(0, -3, 0)
		return &s, &e, true
	case strings.Contains(q, "this year"):
		s := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		e := s.AddDate(1, 0, 0)
		return &s, &e, true
	case strings.Contains(q, "last year"):
		e := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		s := e.AddDate(-1, 0, 0)
		return &s, &e, true
	default:
		return nil, nil, false
	}
}

// extractAmountRange recognizes "over/above/more than $X" and
// "under/below/less than $X" phrasing.
func extractAmountRange(q string) (min, max *decimal.Decimal, ok bool) {
	overMarkers := []string{"over $", "over ", "above $", "above ", "more than $", "more than "}
	underMarkers := []string{"under $", "under ", "below $", "below ", "less than $", "less than "}

	if amt, found := extractAmountAfter(q, overMarkers); found {
		min = &amt
		ok = true
	}
	if amt, found := extractAmountAfter(q, underMarkers); found {
		max = &amt
		ok = true
	}
	return min, max, ok
}

func extractAmountAfter(q string, markers []string) (decimal.Decimal, bool) {
	for _, m := range markers {
		idx := strings.Index(q, m)
		if idx == -1 {
			continue
		}
		rest := q[idx+len(m):]
		end := 0
		for end < len(rest) && (rest[end] == '.' || (rest[end] >= '0' && rest[end] <= '9')) {
			end++
		}
		if end == 0 {
			continue
		}
		d, err := decimal.NewFromString(rest[:end])
		if err != nil {
			continue
		}
		return d, true
	}
	return decimal.Decimal{}, false
}
