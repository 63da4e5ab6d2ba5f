package tus

import (
	"log/slog"
	"net/http"
)

// ServeHTTP adapts the protocol engine to net/http.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := s.Handle(r.Context(), NewRequest(r))
	if err := res.Render(w); err != nil {
		slog.Warn("Failed to write response", "method", r.Method, "path", r.URL.Path, "error", err)
	}
}

// Handler returns the server wrapped in the standard middleware chain.
// Additional middleware runs inside it, closest to the server first.
func (s *Server) Handler(middleware ...func(http.Handler) http.Handler) http.Handler {
	var handler http.Handler = s
	for _, mw := range middleware {
		handler = mw(handler)
	}

	handler = SlashFix(handler)
	handler = LogRequest(handler)
	handler = Recoverer(handler)
	return handler
}
