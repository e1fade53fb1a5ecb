package extractor

import (
	"context"
	"testing"
)

type fakeProvider struct {
	visionResponse string
	visionErr      error
}

func (f *fakeProvider) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", nil
}

func (f *fakeProvider) CompleteVision(ctx context.Context, prompt, imageBase64 string) (string, error) {
	return f.visionResponse, f.visionErr
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func TestExtractOK(t *testing.T) {
	resp := `{"vendor":"Corner Store","timestamp":"2026-03-01","totalAmount":21.6,"taxAmount":1.6,"currency":"eur","category":"groceries","items":[{"description":"bread","quantity":1,"unitPrice":20,"lineTotal":20}]}`
	e := New(&fakeProvider{visionResponse: resp})

	result, err := e.Extract(context.Background(), "base64img")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("expected StatusOK, got %s", result.Status)
	}
	if result.Receipt.Vendor != "Corner Store" {
		t.Fatalf("unexpected vendor: %q", result.Receipt.Vendor)
	}
	if result.Receipt.Currency != "EUR" {
		t.Fatalf("expected currency to be upper-cased, got %q", result.Receipt.Currency)
	}
}

func TestExtractPartialWhenVendorMissing(t *testing.T) {
	resp := `{"vendor":"","timestamp":"2026-03-01","totalAmount":21.6,"taxAmount":0,"currency":"eur"}`
	e := New(&fakeProvider{visionResponse: resp})

	result, err := e.Extract(context.Background(), "base64img")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusPartial {
		t.Fatalf("expected StatusPartial, got %s", result.Status)
	}
}

func TestExtractRepairsFencedProseWrappedJSON(t *testing.T) {
	resp := "Here is the receipt:\n```json\n{\"vendor\":\"Bakery\",\"totalAmount\":5,\"currency\":\"usd\"}\n```\nLet me know if you need anything else."
	e := New(&fakeProvider{visionResponse: resp})

	result, err := e.Extract(context.Background(), "base64img")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Receipt == nil || result.Receipt.Vendor != "Bakery" {
		t.Fatalf("expected repaired JSON to parse, got %+v", result)
	}
}

func TestExtractFailedOnUnparsableResponse(t *testing.T) {
	e := New(&fakeProvider{visionResponse: "I couldn't read this receipt."})

	result, err := e.Extract(context.Background(), "base64img")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusFailed {
		t.Fatalf("expected StatusFailed, got %s", result.Status)
	}
	if result.Checksum == "" {
		t.Fatalf("expected a checksum on failure")
	}
}

func TestChecksumIsDeterministic(t *testing.T) {
	if checksum("same input") != checksum("same input") {
		t.Fatalf("expected checksum to be deterministic")
	}
	if checksum("a") == checksum("b") {
		t.Fatalf("expected different inputs to (almost always) checksum differently")
	}
}

func TestStripCodeFences(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	want := `{"a":1}`
	if got := stripCodeFences(in); got != want {
		t.Fatalf("stripCodeFences(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizeDecimalStringThousandsComma(t *testing.T) {
	if got := normalizeDecimalString("1,234.56"); got != "1234.56" {
		t.Fatalf("got %q, want 1234.56", got)
	}
}

func TestNormalizeDecimalStringDecimalComma(t *testing.T) {
	if got := normalizeDecimalString("1.234,56"); got != "1234.56" {
		t.Fatalf("got %q, want 1234.56", got)
	}
}

func TestParseDateFormats(t *testing.T) {
	cases := []string{"2026-03-01", "2026-03-01T10:00:00", "01.03.2026", "01/03/2026"}
	for _, c := range cases {
		if parseDate(c).IsZero() {
			t.Errorf("parseDate(%q) returned zero time", c)
		}
	}
}

func TestParseDateInvalidReturnsZero(t *testing.T) {
	if !parseDate("not a date").IsZero() {
		t.Fatalf("expected zero time for unparsable date")
	}
}
