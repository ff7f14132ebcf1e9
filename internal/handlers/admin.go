package handlers

import (
	"net/http"

	"moneytransfer/internal/auth"
	"moneytransfer/internal/middleware"
	"moneytransfer/internal/money"
	"moneytransfer/internal/websocket"
)

// AdminListUsers lists every account with its owner and balance.
func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageOffset(r, 50)
	rows, err := h.accounts.ListWithOwners(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list users", "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "unable to load users")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"account_id": row.AccountID,
			"user_id":    row.UserID,
			"first_name": row.FirstName,
			"last_name":  row.LastName,
			"email":      row.Email,
			"phone":      row.Phone,
			"balance":    money.Format(row.Balance),
			"created_at": row.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageOffset(r, 50)
	rows, err := h.transactions.ListAll(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list transactions", "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "unable to load transactions")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"id":               row.ID,
			"sender_id":        row.SenderID,
			"receiver_id":      row.ReceiverID,
			"amount":           money.Format(row.Amount),
			"status":           row.Status,
			"transaction_type": row.TransactionType,
			"created_at":       row.CreatedAt,
			"completed_at":     row.CompletedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageOffset(r, 50)
	rows, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list audit logs", "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// Reconcile reports every account whose stored balance disagrees with its
// transfer history, plus the total number of accounts checked.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rows, err := h.accounts.Reconcile(r.Context(), nil)
	if err != nil {
		h.logger.Error("reconcile balances", "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "unable to reconcile balances")
		return
	}
	mismatches := make([]map[string]any, 0)
	for _, row := range rows {
		if !row.Difference.IsZero() {
			mismatches = append(mismatches, balanceCheckJSON(row))
		}
	}
	if len(mismatches) > 0 {
		h.logger.Warn("balance mismatches found", "count", len(mismatches))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"checked":    len(rows),
		"mismatches": mismatches,
	})
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
