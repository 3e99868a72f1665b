package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/chorebook/internal/auth"
	"github.com/dukerupert/chorebook/internal/store"
)

// UserHeader carries the authenticated user id. Authentication happens at
// the gateway in front of this service; the header is trusted as-is.
const UserHeader = "X-User-ID"

// Identify resolves the user named by UserHeader to a profile and populates
// AuthContext with its family and role.
func Identify(profiles *store.ProfileStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(UserHeader)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing user")
				return
			}
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || userID <= 0 {
				writeError(w, http.StatusUnauthorized, "invalid user")
				return
			}

			p, err := profiles.GetByID(r.Context(), userID)
			if err != nil {
				logger.Error("identify user", "user_id", userID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to load profile")
				return
			}
			if p == nil {
				writeError(w, http.StatusUnauthorized, "unknown user")
				return
			}

			ac := auth.AuthContext{
				UserID:   p.UserID,
				FamilyID: p.FamilyID,
				Role:     p.Role,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireAdmin checks that the authenticated user is an owner or admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "Only a parent can do that.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
