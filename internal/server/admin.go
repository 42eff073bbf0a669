package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/wudi/urlforward/internal/errors"
)

// AdminHandler returns the admin API.
func (s *Server) AdminHandler() http.Handler {
	r := httprouter.New()

	r.GET("/health", s.handleHealth)
	r.GET("/routes", s.handleRoutes)
	r.GET("/circuit-breakers", s.handleCircuitBreakers)
	r.POST("/reload", s.handleReload)
	r.GET("/reload/history", s.handleReloadHistory)

	if s.config.Admin.Metrics.Enabled {
		path := s.config.Admin.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handler(http.MethodGet, path, s.metrics.Handler())
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth reports whether a routing table is being served.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	table := s.store.Load()
	status, statusStr := http.StatusOK, "ok"
	if table == nil {
		status, statusStr = http.StatusServiceUnavailable, "no routing table"
	}

	body := map[string]any{
		"status":    statusStr,
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).String(),
		"debug":     s.config.Debug,
		"tracing":   s.tracer.IsEnabled(),
	}
	if table != nil {
		body["routes"] = table.Len()
		body["files"] = table.Files
		body["loaded_at"] = table.LoadedAt.Format(time.RFC3339)
	}
	writeJSON(w, status, body)
}

// handleRoutes lists the effective routing table. Credentials are not shown.
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	table := s.store.Load()
	if table == nil {
		errors.ErrServiceUnavailable.WithDetails("no routing table loaded").WriteText(w)
		return
	}
	writeJSON(w, http.StatusOK, table.Describe())
}

func (s *Server) handleCircuitBreakers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  s.config.Forwarding.CircuitBreaker.Enabled,
		"breakers": s.dispatcher.BreakerStates(),
	})
}

// handleReload reloads the routing table. A failed reload answers 422 and
// the previous table stays active.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.reloadLimiter != nil && !s.reloadLimiter.Allow() {
		errors.ErrTooManyRequests.WithDetails("reload rate exceeded").WriteText(w)
		return
	}
	result := s.Reload()
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (s *Server) handleReloadHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.reloader.History())
}
