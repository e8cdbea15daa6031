package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nerrad567/netfleet-core/internal/audit"
)

// auditTimeout bounds the write of one audit entry.
const auditTimeout = 2 * time.Second

type auditTarget struct {
	action string
	entity string
}

// auditedRoutes maps "METHOD pattern" to the operation it performs.
var auditedRoutes = map[string]auditTarget{
	"POST /api/v1/devices/discover":               {"discover", "fleet"},
	"POST /api/v1/devices/discover-and-provision": {"discover_and_provision", "fleet"},
	"POST /api/v1/devices/{id}/adopt":             {"adopt", "device"},
	"POST /api/v1/devices/{id}/provision":         {"provision", "device"},
	"POST /api/v1/devices/{id}/sync-inventory":    {"sync_inventory", "device"},
	"POST /api/v1/devices/{id}/configure":         {"configure", "device"},
	"POST /api/v1/devices/{id}/rename":            {"rename", "device"},
	"POST /api/v1/devices/{id}/fail":              {"report_failure", "device"},
	"POST /api/v1/devices/{id}/recover":           {"recover", "device"},
	"POST /api/v1/devices/{id}/decommission":      {"decommission", "device"},
	"POST /api/v1/devices/{id}/replay":            {"replay", "device"},
	"POST /api/v1/connections/":                   {"connect", "connection"},
	"DELETE /api/v1/connections/{id}":             {"disconnect", "connection"},
	"POST /api/v1/projection/write":               {"write_projection", "projection"},
}

type auditNoteKey struct{}

// auditNote lets a handler name the entity it created.
type auditNote struct {
	entityID string
}

func noteAuditEntity(ctx context.Context, id string) {
	if n, ok := ctx.Value(auditNoteKey{}).(*auditNote); ok {
		n.entityID = id
	}
}

// auditMiddleware records every routed mutating request with its status.
// Must run inside the router so the matched pattern is known.
func (s *Server) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.audit == nil || r.Method == http.MethodGet || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		note := &auditNote{}
		r = r.WithContext(context.WithValue(r.Context(), auditNoteKey{}, note))
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return
		}
		target, ok := auditedRoutes[r.Method+" "+rctx.RoutePattern()]
		if !ok {
			return
		}
		entityID := chi.URLParam(r, "id")
		if note.entityID != "" {
			entityID = note.entityID
		}
		entry := &audit.Entry{
			Action:        target.action,
			EntityType:    target.entity,
			EntityID:      entityID,
			CorrelationID: correlationFrom(r.Context()),
			Status:        wrapped.status,
			Details:       map[string]any{"method": r.Method, "path": r.URL.Path},
		}

		// A cancelled request still gets its entry.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditTimeout)
		defer cancel()
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn("recording audit entry failed",
				"action", entry.Action, "correlation_id", entry.CorrelationID, "error", err)
		}
	})
}

// handleListAudit serves GET /api/v1/audit. Query parameters: action,
// entity_type, entity_id, correlation_id, outcome, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeUnavailable, "no audit trail configured")
		return
	}
	q := r.URL.Query()
	f := audit.Filter{
		Action:        q.Get("action"),
		EntityType:    q.Get("entity_type"),
		EntityID:      q.Get("entity_id"),
		CorrelationID: q.Get("correlation_id"),
		Outcome:       audit.Outcome(q.Get("outcome")),
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	res, err := s.audit.List(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
