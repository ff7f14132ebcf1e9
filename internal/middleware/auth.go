package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"moneytransfer/internal/auth"
)

type contextKey string

const userIDKey contextKey = "user_id"

func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok && userID > 0
}

// WithUserID returns a copy of ctx carrying an authenticated user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				deny(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			token, ok := BearerToken(r)
			if !ok {
				deny(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				deny(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

func deny(w http.ResponseWriter, status int, message string) {
	kind := "unauthorized"
	if status == http.StatusForbidden {
		kind = "forbidden"
	} else if status >= http.StatusInternalServerError {
		kind = "internal_error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"kind": kind, "error": message})
}
