// Package api is the HTTP Surface: thin gorilla/mux handlers
// that parse the request, call into the Ingestor/Store/Extractor/Planner
// operations, and map the result (or apperr.Error) onto the wire.
// No business logic lives here: handlers parse, delegate, and marshal —
// the internal packages do the work.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/localledger/receipt-backend/internal/apperr"
	"github.com/localledger/receipt-backend/internal/completion"
	"github.com/localledger/receipt-backend/internal/extractor"
	"github.com/localledger/receipt-backend/internal/ingest"
	"github.com/localledger/receipt-backend/internal/logging"
	"github.com/localledger/receipt-backend/internal/models"
	"github.com/localledger/receipt-backend/internal/query"
	"github.com/localledger/receipt-backend/internal/storage"
	"github.com/localledger/receipt-backend/internal/store"
	"github.com/localledger/receipt-backend/internal/vectorindex"
)

// MaxUploadSize bounds a single receipt image upload.
const MaxUploadSize = 10 * 1024 * 1024 // 10MB

const Version = "1.0.0"

var log = logging.New("api")

var startTime = time.Now()

// Handler holds everything the HTTP surface dispatches to.
type Handler struct {
	store      store.Store
	index      vectorindex.Index
	ingestor   *ingest.Ingestor
	extractor  *extractor.Extractor
	planner    *query.Planner
	images     storage.Backend
	completion completion.Provider
}

// New builds a Handler. completionProvider is only read by Health; a nil
// value makes Health report the completion service as unavailable. The
// Extractor and Planner use the providers they were built with.
func New(st store.Store, index vectorindex.Index, ingestor *ingest.Ingestor, ext *extractor.Extractor, planner *query.Planner, images storage.Backend, completionProvider completion.Provider) *Handler {
	return &Handler{
		store:      st,
		index:      index,
		ingestor:   ingestor,
		extractor:  ext,
		planner:    planner,
		images:     images,
		completion: completionProvider,
	}
}

// Routes builds the gorilla/mux router for every endpoint the service exposes.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", h.Health).Methods("GET")

	r.HandleFunc("/api/receipts", h.ListReceipts).Methods("GET")
	r.HandleFunc("/api/receipts/{id}", h.GetReceipt).Methods("GET")

	r.HandleFunc("/api/ingest", h.IngestReceipt).Methods("POST")
	r.HandleFunc("/api/ingest/db", h.IngestReceipt).Methods("POST")

	r.HandleFunc("/api/extract", h.Extract).Methods("POST")
	r.HandleFunc("/api/extract/upload", h.ExtractUpload).Methods("POST")

	r.HandleFunc("/api/audit", h.Audit).Methods("GET")

	r.HandleFunc("/api/analytics/summary", h.AnalyticsSummary).Methods("GET")
	r.HandleFunc("/api/analytics/monthly", h.AnalyticsMonthly).Methods("GET")
	r.HandleFunc("/api/analytics/categories", h.AnalyticsCategories).Methods("GET")
	r.HandleFunc("/api/analytics/vendors", h.AnalyticsVendors).Methods("GET")

	r.HandleFunc("/api/chat/query", h.ChatQuery).Methods("POST")
	r.HandleFunc("/api/chat", h.Chat).Methods("POST")

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("encode response: %v", err)
	}
}

// dependencyStatus reports whether one external dependency the health
// endpoint probes (completion service, vector index) is reachable.
type dependencyStatus struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

type memoryStats struct {
	AllocatedMB string `json:"allocatedMb"`
	SystemMB    string `json:"systemMb"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	Memory     memoryStats       `json:"memory"`
	Completion dependencyStatus  `json:"completion"`
	VectorIndex dependencyStatus `json:"vectorIndex"`
}

// Health reports whether a completion provider is configured, whether the
// vector index answers a search, and a memory snapshot. The completion
// service itself is not called, so an unreachable service still reads as
// available; the status degrades to 503 only when no provider is configured.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	completionStatus := dependencyStatus{Available: true}
	if h.completion == nil {
		completionStatus = dependencyStatus{Available: false, Error: "no completion provider configured"}
	}

	indexStatus := dependencyStatus{Available: true}
	if _, err := h.index.Search(r.Context(), nil, 1, vectorindex.Filter{}); err != nil {
		indexStatus = dependencyStatus{Available: false, Error: err.Error()}
	}

	resp := healthResponse{
		Status:  "healthy",
		Version: Version,
		Uptime:  time.Since(startTime).String(),
		Memory: memoryStats{
			AllocatedMB: fmt.Sprintf("%.2f", float64(m.Alloc)/1024/1024),
			SystemMB:    fmt.Sprintf("%.2f", float64(m.Sys)/1024/1024),
		},
		Completion:  completionStatus,
		VectorIndex: indexStatus,
	}

	status := http.StatusOK
	if !completionStatus.Available {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// ListReceipts is GET /api/receipts, with optional vendor,
// category, startDate, endDate, flaggedOnly filters.
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := models.ListFilter{
		Vendor:      q.Get("vendor"),
		Category:    q.Get("category"),
		FlaggedOnly: q.Get("flaggedOnly") == "true",
	}
	if v := q.Get("receiptId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			apperr.Write(w, apperr.New(apperr.Validation, "receiptId must be an integer", err))
			return
		}
		filter.ReceiptID = &id
	}
	if v := q.Get("startDate"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			apperr.Write(w, apperr.New(apperr.Validation, "startDate must be YYYY-MM-DD", err))
			return
		}
		filter.StartDate = &t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			apperr.Write(w, apperr.New(apperr.Validation, "endDate must be YYYY-MM-DD", err))
			return
		}
		filter.EndDate = &t
	}

	receipts, err := h.store.ListReceipts(ctx, filter)
	if err != nil {
		apperr.Write(w, apperr.New(apperr.StoreFailure, "failed to list receipts", err))
		return
	}

	h.attachImageURLs(ctx, receipts)
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts, "count": len(receipts)})
}

// GetReceipt is GET /api/receipts/{id}.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		apperr.Write(w, apperr.New(apperr.Validation, "id must be an integer", err))
		return
	}

	receipt, err := h.store.GetReceipt(ctx, id)
	if err != nil {
		apperr.Write(w, apperr.New(apperr.NotFound, fmt.Sprintf("receipt %d not found", id), err))
		return
	}

	h.attachImageURLs(ctx, []*models.Receipt{receipt})
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) attachImageURLs(ctx context.Context, receipts []*models.Receipt) {
	if h.images == nil {
		return
	}
	for _, r := range receipts {
		if r.ImageRef == "" {
			continue
		}
		if url, err := h.images.URL(ctx, r.ImageRef); err == nil {
			r.ImageRef = url
		}
	}
}

// IngestReceipt is POST /api/ingest (and its /api/ingest/db synonym):
// accepts a fully-formed receipt as JSON and runs it through the Ingestor.
func (h *Handler) IngestReceipt(w http.ResponseWriter, r *http.Request) {
	var receipt models.Receipt
	if err := json.NewDecoder(r.Body).Decode(&receipt); err != nil {
		apperr.Write(w, apperr.New(apperr.Validation, "invalid JSON body", err))
		return
	}

	stored, err := h.ingestor.Ingest(r.Context(), &receipt)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, stored)
}

// auditGroups is the GET /api/audit response: flagged receipts grouped by
// which flag kind they carry. A receipt with more than one flag set appears
// in more than one group.
type auditGroups struct {
	Duplicate          []*models.Receipt `json:"duplicate"`
	SuspiciousCategory []*models.Receipt `json:"suspiciousCategory"`
	MissingVAT         []*models.Receipt `json:"missingVAT"`
	MathError          []*models.Receipt `json:"mathError"`
	Count              int               `json:"count"`
}

// Audit is GET /api/audit: lists receipts with at least one flag set,
// grouped by flag kind.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	receipts, err := h.store.ListReceipts(r.Context(), models.ListFilter{FlaggedOnly: true})
	if err != nil {
		apperr.Write(w, apperr.New(apperr.StoreFailure, "failed to list flagged receipts", err))
		return
	}

	var groups auditGroups
	for _, rec := range receipts {
		if rec.Flags.Duplicate {
			groups.Duplicate = append(groups.Duplicate, rec)
		}
		if rec.Flags.SuspiciousCategory {
			groups.SuspiciousCategory = append(groups.SuspiciousCategory, rec)
		}
		if rec.Flags.MissingVAT {
			groups.MissingVAT = append(groups.MissingVAT, rec)
		}
		if rec.Flags.MathError {
			groups.MathError = append(groups.MathError, rec)
		}
	}
	groups.Count = len(receipts)

	writeJSON(w, http.StatusOK, groups)
}

