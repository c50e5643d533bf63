package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/sensor2mqtt/internal/heating"
	"github.com/nerrad567/sensor2mqtt/internal/session"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/zones", func(r chi.Router) {
				r.Get("/", s.handleListZones)
				r.Get("/{controls}", s.handleGetZone)
			})

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth reports the session state. Anything but running is 503.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.loop.State()
	status, code := "ok", http.StatusOK
	if state != session.StateRunning {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"session": state.String(),
		"host":    s.loop.Host(),
		"version": s.version,
		"clients": s.hub.ClientCount(),
	})
}

// zoneStatus snapshots every zone on the loop.
func (s *Server) zoneStatus(r *http.Request) ([]heating.ZoneStatus, bool) {
	var zs []heating.ZoneStatus
	if err := s.onLoop(r.Context(), func() { zs = s.zones.Status() }); err != nil {
		s.logger.Warn("zone status timed out", "error", err)
		return nil, false
	}
	return zs, true
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	if s.zones == nil {
		writeNotFound(w, "heating is not enabled")
		return
	}
	zs, ok := s.zoneStatus(r)
	if !ok {
		writeUnavailable(w, "session loop is busy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"zones": zs,
		"count": len(zs),
	})
}

func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	if s.zones == nil {
		writeNotFound(w, "heating is not enabled")
		return
	}
	controls := chi.URLParam(r, "controls")

	zs, ok := s.zoneStatus(r)
	if !ok {
		writeUnavailable(w, "session loop is busy")
		return
	}
	for _, z := range zs {
		if z.Controls == controls {
			writeJSON(w, http.StatusOK, z)
			return
		}
	}
	writeNotFound(w, "zone not found")
}
