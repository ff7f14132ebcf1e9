package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"moneytransfer/internal/services"
)

const (
	kindInvalidRequest = "invalid_request"
	kindUnauthorized   = "unauthorized"
	kindInternal       = "internal_error"
	kindNotFound       = string(services.KindNotFound)
	kindValidation     = string(services.KindValidation)
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, map[string]string{"kind": kind, "error": message})
}

// respondServiceError maps an engine error to its status code. Causes of
// server-side failures are logged, never returned.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var serviceErr *services.Error
	if !errors.As(err, &serviceErr) {
		h.logger.Error("unexpected service error", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "internal error")
		return
	}
	status := statusForKind(serviceErr.Kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "kind", serviceErr.Kind, "error", err)
	}
	respondError(w, status, string(serviceErr.Kind), serviceErr.Message)
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation, services.KindInsufficientFunds:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
