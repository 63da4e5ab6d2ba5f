package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"resumable/pkg/tus"
)

// Require is middleware rejecting requests engine does not authenticate with
// 401 Unauthorized. OPTIONS requests pass unchecked so that browsers can
// complete CORS preflights.
func Require(engine Engine, realm string) func(http.Handler) http.Handler {
	challenge := fmt.Sprintf("Basic realm=%q", realm)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()

			user, err := engine.Authenticate(ctx, r)
			if err != nil {
				slog.Error("Failed to authenticate request", "error", err, "method", r.Method, "path", r.URL.Path)
				w.Header().Set(tus.HeaderTusResumable, tus.Version)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if user == nil {
				slog.Warn("Rejected unauthenticated request", "ip", r.RemoteAddr, "method", r.Method, "path", r.URL.Path)
				w.Header().Set("WWW-Authenticate", challenge)
				w.Header().Set(tus.HeaderTusResumable, tus.Version)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
		})
	}
}
