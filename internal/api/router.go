package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthTimeout bounds each component check on /health.
const healthTimeout = 2 * time.Second

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.correlationMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.metrics.Middleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auditMiddleware)

		r.Get("/health", s.handleHealth)
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/discover", s.handleDiscover)
			r.Post("/discover-and-provision", s.handleDiscoverAndProvision)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Post("/adopt", s.handleAdopt)
				r.Post("/provision", s.handleProvision)
				r.Post("/sync-inventory", s.handleSyncInventory)
				r.Post("/configure", s.handleConfigure)
				r.Post("/rename", s.handleRename)
				r.Post("/fail", s.handleReportFailure)
				r.Post("/recover", s.handleRecover)
				r.Post("/decommission", s.handleDecommission)
				r.Post("/replay", s.handleReplay)
			})
		})

		r.Get("/topology", s.handleTopology)
		r.Get("/topology/{id}/reachable", s.handleReachable)

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", s.handleListConnections)
			r.Post("/", s.handleConnect)
			r.Delete("/{id}", s.handleDisconnect)
		})

		r.Get("/inventory/ip-assignments", s.handleIPAssignments)

		r.Route("/projection", func(r chi.Router) {
			r.Get("/", s.handleProjection)
			r.Get("/files/*", s.handleProjectionFile)
			r.Post("/write", s.handleProjectionWrite)
		})

		r.Get("/audit", s.handleListAudit)
		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// wsPath is where the event stream is served under /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return "/" + strings.TrimPrefix(s.wsCfg.Path, "/")
}

// componentHealth is one entry of the /health response.
type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth reports ok, or degraded with 503 when any component check
// fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	overall := "ok"
	components := make(map[string]componentHealth, len(s.health))
	for name, hc := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := hc.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = componentHealth{Status: "down", Error: err.Error()}
			status = http.StatusServiceUnavailable
			overall = "degraded"
			continue
		}
		components[name] = componentHealth{Status: "ok"}
	}
	writeJSON(w, status, map[string]any{
		"status":         overall,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"devices":        len(s.graph.Nodes()),
		"ws_clients":     s.hub.ClientCount(),
		"event_stream":   s.hub.Feeding(),
		"components":     components,
	})
}
