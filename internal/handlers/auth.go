package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"moneytransfer/internal/auth"
	"moneytransfer/internal/models"
	"moneytransfer/internal/store"
	"moneytransfer/internal/validator"

	"github.com/jmoiron/sqlx"
)

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

func (req registerRequest) validate() error {
	if err := validator.ValidateName(req.FirstName); err != nil {
		return err
	}
	if req.LastName != "" {
		if err := validator.ValidateName(req.LastName); err != nil {
			return err
		}
	}
	if err := validator.ValidateEmail(req.Email); err != nil {
		return err
	}
	if err := validator.ValidatePhone(req.Phone); err != nil {
		return err
	}
	return validator.ValidatePassword(req.Password)
}

type sessionResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token"`
	User         models.User `json:"user"`
}

// Register creates the user and their account in one transaction. The first
// user ever registered becomes an administrator.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, kindInvalidRequest, "invalid payload")
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, kindValidation, err.Error())
		return
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "failed to secure password")
		return
	}
	var user models.User
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		created, err := h.users.Create(r.Context(), tx, store.NewUser{
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Email:        req.Email,
			Phone:        req.Phone,
			PasswordHash: passwordHash,
		})
		if err != nil {
			return err
		}
		if _, err := h.accounts.Create(r.Context(), tx, created.ID, h.cfg.SignupBalance); err != nil {
			return err
		}
		promoted, err := h.admin.BootstrapAdmin(r.Context(), tx, created.ID)
		if err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{
			"ip":         r.RemoteAddr,
			"user_agent": r.UserAgent(),
			"admin":      promoted,
		})
		if err := h.audit.Log(r.Context(), tx, &created.ID, "register", "user", strconv.FormatInt(created.ID, 10), string(data)); err != nil {
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmailTaken):
			respondError(w, http.StatusBadRequest, kindValidation, "email already taken")
			return
		case errors.Is(err, store.ErrPhoneTaken):
			respondError(w, http.StatusBadRequest, kindValidation, "phone number already exists")
			return
		case errors.Is(err, store.ErrDuplicate):
			respondError(w, http.StatusBadRequest, kindValidation, "email or phone already registered")
			return
		}
		h.logger.Error("registration failed", "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "registration failed")
		return
	}
	h.respondSession(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, kindInvalidRequest, "invalid payload")
		return
	}
	user, err := h.users.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, kindUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("load user for login", "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "login failed")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, "invalid credentials")
		return
	}
	if err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		data, _ := json.Marshal(map[string]string{
			"ip":         r.RemoteAddr,
			"user_agent": r.UserAgent(),
		})
		return h.audit.Log(r.Context(), tx, &user.ID, "login", "user", strconv.FormatInt(user.ID, 10), string(data))
	}); err != nil {
		h.logger.Error("audit login", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "login failed")
		return
	}
	h.respondSession(w, http.StatusOK, user)
}

func (h *Handler) respondSession(w http.ResponseWriter, status int, user models.User) {
	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL)
	if err != nil {
		h.logger.Error("generate token", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "failed to generate token")
		return
	}
	refresh, err := auth.GenerateRefreshToken(h.cfg.JWTSecret, user.ID, h.cfg.RefreshTokenTTL)
	if err != nil {
		h.logger.Error("generate refresh token", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "failed to generate token")
		return
	}
	respondJSON(w, status, sessionResponse{Token: token, RefreshToken: refresh, User: user})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken exchanges a refresh token for a new access token. The user
// must still exist.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, kindInvalidRequest, "invalid payload")
		return
	}
	claims, err := auth.ParseRefreshToken(h.cfg.JWTSecret, req.RefreshToken)
	if err != nil {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, "invalid refresh token")
		return
	}
	if _, err := h.users.GetByID(r.Context(), claims.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, kindUnauthorized, "invalid refresh token")
			return
		}
		h.logger.Error("load user for refresh", "user_id", claims.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "unable to refresh token")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, claims.UserID, h.cfg.TokenTTL)
	if err != nil {
		h.logger.Error("generate token", "user_id", claims.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, kindInternal, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}
