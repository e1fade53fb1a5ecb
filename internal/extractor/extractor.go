// Package extractor is the Extractor: turns a receipt image into
// a structured models.Receipt via the completion service's vision call,
// with bounded JSON repair and locale-tolerant number/date coercion.
// Same "interface{} field, parseDecimal/parseDate helpers, code-fence
// strip" shape as a tax-invoice parser, generalized to a generic receipt
// schema and extended with a bounded repair retry.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/localledger/receipt-backend/internal/completion"
	"github.com/localledger/receipt-backend/internal/logging"
	"github.com/localledger/receipt-backend/internal/models"
)

var log = logging.New("extractor")

// Status classifies how much of the schema the extraction actually filled
// in, so a partial or failed extraction is never silently treated as ok.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Result is everything Extract hands back to its caller.
type Result struct {
	Status  Status
	Receipt *models.Receipt

	// RawResponse and Checksum are populated on Failed so a reviewer can
	// see exactly what the model returned.
	RawResponse string
	Checksum    string
}

// Extractor drives a single vision-completion call and its JSON repair.
type Extractor struct {
	provider completion.Provider
}

// New builds an Extractor over a completion.Provider.
func New(provider completion.Provider) *Extractor {
	return &Extractor{provider: provider}
}

// Extract runs the vision prompt against imageBase64 and parses the result
// into a models.Receipt.
func (e *Extractor) Extract(ctx context.Context, imageBase64 string) (*Result, error) {
	response, err := e.provider.CompleteVision(ctx, extractionPrompt(), imageBase64)
	if err != nil {
		return nil, fmt.Errorf("vision completion failed: %w", err)
	}

	log.Printf("raw extraction response (%d bytes)", len(response))

	receipt, parseErr := parseResponse(response)
	if parseErr != nil {
		repaired, repairErr := repairJSON(response)
		if repairErr == nil {
			receipt, parseErr = parseResponse(repaired)
		}
	}

	if parseErr != nil {
		return &Result{
			Status:      StatusFailed,
			RawResponse: response,
			Checksum:    checksum(response),
		}, nil
	}

	status := classify(receipt)
	if status == StatusFailed {
		return &Result{
			Status:      StatusFailed,
			Receipt:     receipt,
			RawResponse: response,
			Checksum:    checksum(response),
		}, nil
	}

	return &Result{
		Status:  status,
		Receipt: receipt,
	}, nil
}

// classify decides ok vs partial vs failed: a vendor and a positive total
// are the minimum for "ok"; either present alone is "partial"; neither
// present means the parse produced nothing usable, so "failed".
func classify(r *models.Receipt) Status {
	hasVendor := strings.TrimSpace(r.Vendor) != ""
	hasTotal := r.TotalAmount.IsPositive()
	switch {
	case hasVendor && hasTotal:
		return StatusOK
	case hasVendor || hasTotal:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// extractionPrompt is the fixed JSON-schema prompt describing the generic
// receipt shape the model must return.
func extractionPrompt() string {
	return `You are a careful receipt-reading assistant. Read the receipt image and return ONLY valid JSON (no markdown, no commentary) matching exactly this schema:

{
  "vendor": "string, the business name",
  "timestamp": "YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS, the receipt date",
  "totalAmount": number,
  "taxAmount": number (0 if not shown),
  "currency": "ISO 4217 code, e.g. EUR or USD",
  "category": "string, your best guess at a spending category",
  "paymentMethod": "string or empty if not shown",
  "receiptNumber": "string or empty if not shown",
  "items": [
    {"description": "string", "quantity": number, "unitPrice": number, "lineTotal": number, "vatPercent": number or null}
  ]
}

Rules:
- Never invent a value you cannot read; use 0 for unreadable numbers and "" for unreadable strings.
- totalAmount must be the single largest, final amount on the receipt.
- All numeric fields are plain numbers, not strings.`
}

type rawReceipt struct {
	Vendor        string    `json:"vendor"`
	Timestamp     string    `json:"timestamp"`
	TotalAmount   any       `json:"totalAmount"`
	TaxAmount     any       `json:"taxAmount"`
	Currency      string    `json:"currency"`
	Category      string    `json:"category"`
	PaymentMethod string    `json:"paymentMethod"`
	ReceiptNumber string    `json:"receiptNumber"`
	Items         []rawItem `json:"items"`
}

type rawItem struct {
	Description string `json:"description"`
	Quantity    any    `json:"quantity"`
	UnitPrice   any    `json:"unitPrice"`
	LineTotal   any    `json:"lineTotal"`
	VATPercent  any    `json:"vatPercent"`
}

// parseResponse strips code fences and strictly unmarshals response into a
// models.Receipt.
func parseResponse(response string) (*models.Receipt, error) {
	cleaned := stripCodeFences(response)

	var raw rawReceipt
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	r := &models.Receipt{
		Vendor:        strings.TrimSpace(raw.Vendor),
		Timestamp:     parseDate(raw.Timestamp),
		TotalAmount:   parseDecimal(raw.TotalAmount),
		TaxAmount:     parseDecimal(raw.TaxAmount),
		Currency:      strings.ToUpper(strings.TrimSpace(raw.Currency)),
		Category:      strings.TrimSpace(raw.Category),
		PaymentMethod: strings.TrimSpace(raw.PaymentMethod),
		ReceiptNumber: strings.TrimSpace(raw.ReceiptNumber),
	}

	r.Items = make([]models.LineItem, 0, len(raw.Items))
	for _, item := range raw.Items {
		qty := int(parseDecimal(item.Quantity).IntPart())
		if qty == 0 {
			qty = 1
		}
		li := models.LineItem{
			Description: strings.TrimSpace(item.Description),
			Quantity:    qty,
			UnitPrice:   parseDecimal(item.UnitPrice),
			LineTotal:   parseDecimal(item.LineTotal),
		}
		if item.VATPercent != nil {
			vp := parseDecimal(item.VATPercent)
			li.VATPercent = &vp
		}
		r.Items = append(r.Items, li)
	}

	return r, nil
}

func stripCodeFences(s string) string {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}

// repairJSON attempts one bounded repair pass: trim anything before the
// first '{' and after the last '}' (models sometimes wrap JSON in prose
// despite instructions), per the bounded-retry policy.
func repairJSON(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found to repair")
	}
	return s[start : end+1], nil
}

// parseDecimal tolerates both dot and comma decimal separators and plain
// JSON numbers arriving as an interface{} field.
func parseDecimal(v any) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case json.Number:
		d, err := decimal.NewFromString(string(val))
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return decimal.Zero
		}
		s = normalizeDecimalString(s)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// normalizeDecimalString handles both "1,234.56" (thousands comma) and
// "1234,56" (decimal comma) forms.
func normalizeDecimalString(s string) string {
	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')
	if lastComma == -1 {
		return s
	}
	if lastDot != -1 && lastDot > lastComma {
		// dot is the decimal separator; comma is thousands.
		return strings.ReplaceAll(s, ",", "")
	}
	// comma is the decimal separator (or there is no dot at all).
	intPart := strings.ReplaceAll(s[:lastComma], ".", "")
	return intPart + "." + s[lastComma+1:]
}

// parseDate accepts ISO-8601 and dd.mm.yyyy as a locale fallback.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
		"02.01.2006",
		"02/01/2006",
		"01/02/2006",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func checksum(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum32())
}
