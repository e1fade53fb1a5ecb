package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/localledger/receipt-backend/internal/apperr"
	"github.com/localledger/receipt-backend/internal/models"
)

// AnalyticsSummary is GET /api/analytics/summary: totals, receipt count,
// VAT total, average spend, flagged count, and the monthly/category/vendor
// breakdowns, all in one response.
func (h *Handler) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	receipts, err := h.store.ListReceipts(ctx, models.ListFilter{})
	if err != nil {
		apperr.Write(w, apperr.New(apperr.StoreFailure, "failed to list receipts", err))
		return
	}

	total := decimal.Zero
	vatTotal := decimal.Zero
	flagged := 0
	for _, rec := range receipts {
		total = total.Add(rec.TotalAmount)
		vatTotal = vatTotal.Add(rec.TaxAmount)
		if rec.Flags.Duplicate || rec.Flags.SuspiciousCategory || rec.Flags.MissingVAT || rec.Flags.MathError {
			flagged++
		}
	}
	average := decimal.Zero
	if len(receipts) > 0 {
		average = total.Div(decimal.NewFromInt(int64(len(receipts))))
	}

	monthly, err := h.store.MonthlyTotals(ctx, models.ListFilter{})
	if err != nil {
		apperr.Write(w, apperr.New(apperr.StoreFailure, "failed to compute monthly totals", err))
		return
	}
	categories, err := h.store.CategoryTotals(ctx, models.ListFilter{})
	if err != nil {
		apperr.Write(w, apperr.New(apperr.StoreFailure, "failed to compute category totals", err))
		return
	}
	vendors, err := h.store.VendorTotals(ctx, models.ListFilter{})
	if err != nil {
		apperr.Write(w, apperr.New(apperr.StoreFailure, "failed to compute vendor totals", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"receiptCount": len(receipts),
		"flaggedCount": flagged,
		"totalSpend":   total,
		"vatTotal":     vatTotal,
		"average":      average,
		"monthly":      monthly,
		"categories":   categories,
		"vendors":      vendors,
	})
}

// AnalyticsMonthly is GET /api/analytics/monthly: spend bucketed by month.
func (h *Handler) AnalyticsMonthly(w http.ResponseWriter, r *http.Request) {
	totals, err := h.store.MonthlyTotals(r.Context(), models.ListFilter{})
	if err != nil {
		apperr.Write(w, apperr.New(apperr.StoreFailure, "failed to compute monthly totals", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"monthly": totals})
}

// AnalyticsCategories is GET /api/analytics/categories: spend by category.
func (h *Handler) AnalyticsCategories(w http.ResponseWriter, r *http.Request) {
	totals, err := h.store.CategoryTotals(r.Context(), models.ListFilter{})
	if err != nil {
		apperr.Write(w, apperr.New(apperr.StoreFailure, "failed to compute category totals", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": totals})
}

// AnalyticsVendors is GET /api/analytics/vendors: spend by vendor.
func (h *Handler) AnalyticsVendors(w http.ResponseWriter, r *http.Request) {
	totals, err := h.store.VendorTotals(r.Context(), models.ListFilter{})
	if err != nil {
		apperr.Write(w, apperr.New(apperr.StoreFailure, "failed to compute vendor totals", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vendors": totals})
}
