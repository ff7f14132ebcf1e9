package middleware

import (
	"context"
	"net/http"
)

type AdminStore interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

func RequireAdmin(adminStore AdminStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			isAdmin, err := adminStore.IsAdmin(r.Context(), userID)
			if err != nil {
				deny(w, http.StatusInternalServerError, "unable to verify admin")
				return
			}
			if !isAdmin {
				deny(w, http.StatusForbidden, "admin privileges required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
