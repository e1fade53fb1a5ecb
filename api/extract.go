package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/localledger/receipt-backend/internal/apperr"
	"github.com/localledger/receipt-backend/internal/extractor"
	"github.com/localledger/receipt-backend/internal/storage"
)

type extractRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

type extractResponse struct {
	Status      extractor.Status `json:"status"`
	Receipt     any              `json:"receipt,omitempty"`
	Checksum    string           `json:"checksum,omitempty"`
	RawResponse string           `json:"rawResponse,omitempty"`
}

// Extract is POST /api/extract: runs the Extractor against a
// base64-encoded image supplied in the JSON body, without persisting
// anything — a dry run a client can inspect before calling /api/ingest.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.New(apperr.Validation, "invalid JSON body", err))
		return
	}
	if req.ImageBase64 == "" {
		apperr.Write(w, apperr.New(apperr.Validation, "imageBase64 is required", nil))
		return
	}

	h.runExtraction(w, r, req.ImageBase64, "", false)
}

// ExtractUpload is POST /api/extract/upload: accepts a multipart
// file upload instead of a base64 JSON body.
func (h *Handler) ExtractUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		apperr.Write(w, apperr.New(apperr.Validation, "file too large or invalid form data", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
		if err != nil {
			apperr.Write(w, apperr.New(apperr.Validation, "no file provided (use 'file' or 'image' field)", err))
			return
		}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		apperr.Write(w, apperr.New(apperr.Internal, "failed to read uploaded file", err))
		return
	}

	var imageRef string
	if h.images != nil {
		contentType := header.Header.Get("Content-Type")
		filename := fmt.Sprintf("upload%s", storage.ExtensionFor(contentType))
		ref, err := h.images.Upload(r.Context(), filename, bytes.NewReader(data), int64(len(data)), contentType)
		if err != nil {
			log.Warnf("image upload failed, continuing without a stored reference: %v", err)
		} else {
			imageRef = ref
		}
	}

	h.runExtraction(w, r, base64.StdEncoding.EncodeToString(data), imageRef, true)
}

// runExtraction drives a single extraction call. persist controls whether a
// successful (ok/partial) result is also written through the Ingestor:
// /api/extract is a dry run, /api/extract/upload persists.
func (h *Handler) runExtraction(w http.ResponseWriter, r *http.Request, imageBase64, imageRef string, persist bool) {
	if h.extractor == nil {
		apperr.Write(w, apperr.New(apperr.UpstreamUnavailable, "no completion provider configured for extraction", nil))
		return
	}

	result, err := h.extractor.Extract(r.Context(), imageBase64)
	if err != nil {
		apperr.Write(w, apperr.New(apperr.ExtractionFailed, "extraction failed", err))
		return
	}

	if imageRef != "" && result.Receipt != nil {
		result.Receipt.ImageRef = imageRef
	}

	resp := extractResponse{Status: result.Status}
	switch result.Status {
	case extractor.StatusOK, extractor.StatusPartial:
		if persist {
			stored, err := h.ingestor.Ingest(r.Context(), result.Receipt)
			if err != nil {
				apperr.Write(w, err)
				return
			}
			result.Receipt = stored
		}
		resp.Receipt = result.Receipt
	case extractor.StatusFailed:
		resp.Checksum = result.Checksum
		resp.RawResponse = result.RawResponse
	}

	status := http.StatusOK
	if result.Status == extractor.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	if persist && status == http.StatusOK {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}
