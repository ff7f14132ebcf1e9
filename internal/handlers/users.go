package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"moneytransfer/internal/middleware"
	"moneytransfer/internal/models"
	"moneytransfer/internal/store"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, "unauthorized")
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, kindNotFound, "user not found")
			return
		}
		h.logger.Error("load user", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "unable to load user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		respondError(w, http.StatusBadRequest, kindInvalidRequest, "invalid user id")
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	h.respondUser(w, user, err)
}

func (h *Handler) GetUserByEmail(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		respondError(w, http.StatusBadRequest, kindInvalidRequest, "invalid email")
		return
	}
	user, err := h.users.GetByEmail(r.Context(), email)
	h.respondUser(w, user, err)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageOffset(r, 50)
	users, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list users", "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "unable to load users")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *Handler) respondUser(w http.ResponseWriter, user models.User, err error) {
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, kindNotFound, "user not found")
			return
		}
		h.logger.Error("load user", "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "unable to load user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}
