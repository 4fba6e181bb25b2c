package admin

import (
	"log/slog"
	"net/http"

	request "agora/pkg/platform/middleware/request"
	"agora/pkg/requestcontext"
)

// RequireAdmin rejects callers whose identity token lacks the admin role.
// Must run after auth.RequireAuth.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			user, ok := requestcontext.User(ctx)
			if !ok || !user.IsAdmin() {
				logger.WarnContext(ctx, "admin role required",
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"admin role required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
