package handlers

import (
	"net/http"

	"github.com/zhaobenny/sleepdash/server/internal/middleware"
)

// Routes wires every endpoint. Pages and the JSON API run inside the session
// middleware; the websocket stream sits outside it so the upgrade can hijack
// the raw connection.
func (h *Handler) Routes(stream *Stream, loginLimiter *middleware.IPRateLimiter) http.Handler {
	protect := func(fn http.HandlerFunc) http.Handler {
		return h.gate.RequireAuth(fn)
	}

	mux := http.NewServeMux()

	// Public routes
	mux.Handle("/login", loginLimiter.LimitFunc(h.Login))
	mux.HandleFunc("/logout", h.Logout)
	mux.HandleFunc("/health", h.Health)

	// Gated routes
	mux.Handle("/", protect(h.Index))
	mux.Handle("/partial/charts", protect(h.PartialCharts))
	mux.Handle("/api/range", protect(h.APIRange))
	mux.Handle("/api/charts", protect(h.APICharts))
	mux.Handle("/api/rows", protect(h.APIRows))

	outer := http.NewServeMux()
	outer.Handle("/ws/charts", h.gate.RequireAuthStream(stream))
	outer.Handle("/", h.sessionMgr.LoadAndSave(mux))
	return outer
}
