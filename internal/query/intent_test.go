package query

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		question string
		want     Intent
	}{
		{"how much did I spend on groceries by category", IntentSumByCategory},
		{"what did I spend at vendor Corner Store", IntentSumByVendor},
		{"how many receipts do I have", IntentCount},
		{"what are the top 5 biggest purchases", IntentListTopK},
		{"find the receipt from yesterday's lunch", IntentFindSpecific},
		{"how much did I spend last month", IntentSumByPeriod},
		{"what can you tell me about my shopping habits", IntentFreeform},
	}

	for _, c := range cases {
		if got := Classify(c.question); got != c.want {
			t.Errorf("Classify(%q) = %q, want %q", c.question, got, c.want)
		}
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	// "spent" appears in both a category-shaped and period-shaped phrasing;
	// the category rule is listed first in the lexicon and must win.
	if got := Classify("how much was spent on groceries"); got != IntentSumByCategory {
		t.Fatalf("expected first-match rule (category) to win, got %q", got)
	}
}

func TestClassifyWithFilterExtractsCategory(t *testing.T) {
	intent, filter := ClassifyWithFilter("how much did I spend on alcohol?")
	if intent != IntentSumByCategory {
		t.Fatalf("expected IntentSumByCategory, got %q", intent)
	}
	if filter.Category != "alcohol" {
		t.Fatalf("expected category %q, got %q", "alcohol", filter.Category)
	}
}

func TestClassifyWithFilterExtractsVendor(t *testing.T) {
	_, filter := ClassifyWithFilter("how much did I spend at Corner Store")
	if filter.Vendor != "corner store" {
		t.Fatalf("expected vendor %q, got %q", "corner store", filter.Vendor)
	}
}

func TestClassifyWithFilterExtractsDateRange(t *testing.T) {
	_, filter := ClassifyWithFilter("how much did I spend last month")
	if filter.StartDate == nil || filter.EndDate == nil {
		t.Fatalf("expected a date range to be extracted")
	}
	if !filter.StartDate.Before(*filter.EndDate) {
		t.Fatalf("expected start before end, got %v..%v", filter.StartDate, filter.EndDate)
	}
}

func TestClassifyWithFilterExtractsAmountRange(t *testing.T) {
	_, filter := ClassifyWithFilter("how much did I spend over $50")
	if filter.MinAmount == nil || !filter.MinAmount.Equal(dec("50")) {
		t.Fatalf("expected a minimum amount of 50, got %v", filter.MinAmount)
	}
}
