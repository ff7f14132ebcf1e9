package handlers

import (
	"net/http"

	"moneytransfer/internal/middleware"
	"moneytransfer/internal/models"
	"moneytransfer/internal/money"
)

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, "unauthorized")
		return
	}
	view, err := h.query.GetAccountView(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":    view.UserID,
		"owner_name": view.OwnerName,
		"balance":    money.Format(view.Balance),
	})
}

// SelfCheck compares the caller's stored balance with the one implied by
// their completed transfers.
func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, "unauthorized")
		return
	}
	rows, err := h.accounts.Reconcile(r.Context(), &userID)
	if err != nil {
		h.logger.Error("self check", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "unable to self_check")
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusNotFound, kindNotFound, "account not found")
		return
	}
	respondJSON(w, http.StatusOK, balanceCheckJSON(rows[0]))
}

func balanceCheckJSON(row models.BalanceCheck) map[string]any {
	return map[string]any{
		"account_id":         row.AccountID,
		"user_id":            row.UserID,
		"stored_balance":     money.Format(row.StoredBalance),
		"calculated_balance": money.Format(row.CalculatedBalance),
		"difference":         money.Format(row.Difference),
		"balanced":           row.Difference.IsZero(),
	}
}
