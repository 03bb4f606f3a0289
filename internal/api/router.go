package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-cti/internal/auth"
)

// healthCheckTimeout bounds each component check of the health endpoint.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metricsCfg.Enabled && s.metricsHandler != nil {
		path := s.metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, s.metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// WebSocket authenticates from the query string.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(requirePermission(auth.PermStateRead)).Get("/snapshot", s.handleSnapshot)
			r.With(requirePermission(auth.PermStateRead)).Get("/snapshot/{kind}", s.handleSnapshotKind)
			r.With(requirePermission(auth.PermStateRead)).Get("/system", s.handleSystem)

			r.Route("/commands", func(r chi.Router) {
				r.With(requirePermission(auth.PermCommandList)).Get("/", s.handleListCommands)
				r.With(requirePermission(auth.PermCommandExecute)).Post("/{name}", s.handleExecuteCommand)
			})

			r.Route("/history", func(r chi.Router) {
				r.Use(requirePermission(auth.PermHistoryRead))
				r.Get("/conversations", s.handleListConversations)
				r.Get("/voicemail", s.handleListVoicemail)
				r.Get("/commands", s.handleListCommandAudit)
			})
		})
	})

	return r
}

// handleHealth runs the component checks. Any failure answers 503 so load
// balancers and supervisors see the degradation.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name](ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			healthy = false
			continue
		}
		components[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
