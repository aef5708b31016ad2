// Package httpapi exposes the hub to external viewers: the SSE live
// stream, the ingestion entry point, the trend query and health routes.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/authtail/authtail/internal/app"
	"github.com/authtail/authtail/internal/domain"
	"github.com/authtail/authtail/internal/ports"
)

// RecentSource serves the recent-events view for the dashboard collaborator.
type RecentSource interface {
	Recent(limit int) []*domain.Event
}

// MonitorStatus reports the remote session state for /healthz.
type MonitorStatus struct {
	State          string     `json:"state"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
}

type StatusFunc func() MonitorStatus

type Config struct {
	Addr string

	Hub   *app.Hub
	Trend *app.TrendService

	// Sinks receive events republished via the ingestion entry point, the
	// hub among them.
	Sinks []ports.EventSink

	Recent  RecentSource
	Monitor StatusFunc
	Metrics func() domain.MetricsSnapshot
}

type Server struct {
	cfg       Config
	router    *chi.Mux
	server    *http.Server
	validator *ingestValidator
	startTime time.Time
}

func NewServer(cfg Config) (*Server, error) {
	validator, err := newIngestValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		router:    chi.NewRouter(),
		validator: validator,
		startTime: time.Now(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/api/live-stream", s.handleStream)
	s.router.Post("/api/live-stream", s.handleIngest)
	s.router.Get("/api/live-log", s.handleRecent)
	s.router.Get("/api/traffic/trend", s.handleTrend)
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router,
		// No WriteTimeout: the SSE stream stays open until a side closes it.
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("HTTP API listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP API server error")
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"healthy":        true,
		"status":         "HEALTHY",
		"subscribers":    s.cfg.Hub.SubscriberCount(),
		"published":      s.cfg.Hub.Published(),
		"evicted":        s.cfg.Hub.Evicted(),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	}
	if s.cfg.Monitor != nil {
		resp["monitor"] = s.cfg.Monitor()
	}
	if s.cfg.Metrics != nil {
		snap := s.cfg.Metrics()
		resp["lines_read"] = snap.LinesRead
		resp["threats_matched"] = snap.ThreatsMatched
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Recent == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "recent events not enabled"})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    s.cfg.Recent.Recent(limit),
	})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Trend == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "trend source not configured"})
		return
	}

	selector := r.URL.Query().Get("range")
	buckets, err := s.cfg.Trend.Query(r.Context(), selector)
	if err != nil {
		log.Error().Err(err).Msg("Trend query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to fetch traffic trend"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": buckets})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}
