package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/courtlens/tenancy/pkg/logger"
)

// AdminTokenHeader carries the shared admin secret.
const AdminTokenHeader = "X-Admin-Token"

// RequireAdminToken rejects requests whose X-Admin-Token does not match
// token with 401. An empty token rejects every request.
func RequireAdminToken(token string, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				log.WarnContext(r.Context(), "admin token mismatch")
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error:   "unauthorized",
					Message: "admin token required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
