package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket (auth via ticket, validated in handler)
		r.Get(s.wsPath(), s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Post("/parse", s.handleParse)
			r.Post("/parse/batch", s.handleParseBatch)
			r.Post("/validate", s.handleValidate)
			r.Post("/classify", s.handleClassify)
			r.Post("/export", s.handleExport)

			r.Route("/history", func(r chi.Router) {
				r.Get("/", s.handleListHistory)
				r.Delete("/", s.handleClearHistory)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetHistory)
					r.Delete("/", s.handleDeleteHistory)
					r.Get("/export", s.handleExportHistory)
				})
			})
		})
	})

	return r
}

// wsPath returns the configured WebSocket route, relative to /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" || s.wsCfg.Path[0] != '/' {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
