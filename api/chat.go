package api

import (
	"encoding/json"
	"net/http"

	"github.com/localledger/receipt-backend/internal/apperr"
	"github.com/localledger/receipt-backend/internal/models"
)

// chatQueryRequest/chatQueryResponse back POST /api/chat/query: a structured
// question in, the Query Planner's deterministic answer out.
type chatQueryRequest struct {
	Query string `json:"query"`
}

type chatQueryResponse struct {
	Answer      string            `json:"answer"`
	TotalAmount *string           `json:"totalAmount,omitempty"`
	Count       int               `json:"count"`
	ReceiptIDs  []int64           `json:"receiptIds"`
	Receipts    []*models.Receipt `json:"receipts"`
}

// ChatQuery is POST /api/chat/query: asks the Query Planner a
// natural-language question and returns its deterministic numeric answer
// plus the receipts that contributed to it.
func (h *Handler) ChatQuery(w http.ResponseWriter, r *http.Request) {
	var req chatQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.New(apperr.Validation, "invalid JSON body", err))
		return
	}
	if req.Query == "" {
		apperr.Write(w, apperr.New(apperr.Validation, "query is required", nil))
		return
	}

	answer, err := h.planner.Answer(r.Context(), req.Query)
	if err != nil {
		apperr.Write(w, apperr.New(apperr.Internal, "failed to answer query", err))
		return
	}

	ctx := r.Context()
	receipts := make([]*models.Receipt, 0, len(answer.ReceiptIDs))
	for _, id := range answer.ReceiptIDs {
		rec, err := h.store.GetReceipt(ctx, id)
		if err != nil {
			continue
		}
		receipts = append(receipts, rec)
	}
	h.attachImageURLs(ctx, receipts)

	resp := chatQueryResponse{
		Answer:     answer.Prose,
		Count:      answer.Count,
		ReceiptIDs: answer.ReceiptIDs,
		Receipts:   receipts,
	}
	if answer.Numeric != nil {
		s := answer.Numeric.String()
		resp.TotalAmount = &s
	}

	writeJSON(w, http.StatusOK, resp)
}

// chatTurn is one message in the bounded conversation history POST
// /api/chat accepts.
type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// maxChatHistory bounds how many prior turns of a /api/chat request are
// kept; the kept turns are not passed to the Query Planner.
const maxChatHistory = 10

type chatRequest struct {
	Message string     `json:"message"`
	History []chatTurn `json:"history"`
}

type chatResponse struct {
	Message string `json:"message"`
}

// Chat is POST /api/chat: an alternative, prose-only chat surface. It
// answers the same way ChatQuery does underneath, but returns nothing but
// a message field. History beyond the last 10 turns is dropped; the answer
// is computed from the message alone, without the history.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.New(apperr.Validation, "invalid JSON body", err))
		return
	}
	if req.Message == "" {
		apperr.Write(w, apperr.New(apperr.Validation, "message is required", nil))
		return
	}
	if len(req.History) > maxChatHistory {
		req.History = req.History[len(req.History)-maxChatHistory:]
	}

	answer, err := h.planner.Answer(r.Context(), req.Message)
	if err != nil {
		apperr.Write(w, apperr.New(apperr.Internal, "failed to answer message", err))
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Message: answer.Prose})
}
