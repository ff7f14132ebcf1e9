package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"moneytransfer/internal/middleware"
	"moneytransfer/internal/models"
	"moneytransfer/internal/money"
	"moneytransfer/internal/services"
)

type transferRequest struct {
	ReceiverIdentifier string          `json:"receiver_identifier"`
	Amount             json.RawMessage `json:"amount"`
	TransactionType    string          `json:"transaction_type"`
	IdempotencyKey     string          `json:"idempotency_key"`
}

type transferResponse struct {
	TransactionID int64                    `json:"transaction_id"`
	Status        models.TransactionStatus `json:"status"`
	Amount        string                   `json:"amount"`
	Balance       string                   `json:"balance"`
}

// CreateTransaction submits a transfer from the authenticated user. A
// replayed idempotency key answers with the earlier outcome and sets the
// Idempotent-Replayed header.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, kindInvalidRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, kindValidation, services.ErrInvalidAmount.Message)
		return
	}
	key, err := idempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		respondError(w, http.StatusBadRequest, kindValidation, err.Error())
		return
	}
	result, err := h.service.Transfer(r.Context(), services.TransferRequest{
		SenderID:           userID,
		ReceiverIdentifier: req.ReceiverIdentifier,
		Amount:             amount,
		TransactionType:    req.TransactionType,
		IdempotencyKey:     key,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if result.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	respondJSON(w, http.StatusCreated, transferResponse{
		TransactionID: result.TransactionID,
		Status:        result.Status,
		Amount:        money.Format(result.Amount),
		Balance:       money.Format(result.SenderBalance),
	})
}

type historyItemResponse struct {
	ID              int64                    `json:"id"`
	Direction       string                   `json:"direction"`
	CounterpartID   int64                    `json:"counterpart_id"`
	CounterpartName string                   `json:"counterpart_name"`
	Amount          string                   `json:"amount"`
	Status          models.TransactionStatus `json:"status"`
	Type            string                   `json:"type"`
	CreatedAt       time.Time                `json:"created_at"`
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	limit, err := parseOptionalInt(query.Get("limit"))
	if err != nil {
		respondError(w, http.StatusBadRequest, kindValidation, "limit must be a non-negative integer")
		return
	}
	before, err := parseOptionalInt(query.Get("before"))
	if err != nil {
		respondError(w, http.StatusBadRequest, kindValidation, "before must be a transaction id")
		return
	}
	items, err := h.query.GetTransactionHistory(r.Context(), userID, services.HistoryOptions{
		Limit:    int(min(limit, services.MaxHistoryLimit)),
		BeforeID: before,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	response := make([]historyItemResponse, 0, len(items))
	for _, item := range items {
		response = append(response, historyItemResponse{
			ID:              item.ID,
			Direction:       item.Direction,
			CounterpartID:   item.CounterpartID,
			CounterpartName: item.CounterpartName,
			Amount:          money.Format(item.Amount),
			Status:          item.Status,
			Type:            item.Type,
			CreatedAt:       item.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, response)
}
