// Package server exposes aircheck's HTTP surface: the embedded player page,
// station selection, the live SSE commentary stream, KPI stats, health, and
// Prometheus metrics.
package server

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/MrWong99/aircheck/internal/broadcast"
	"github.com/MrWong99/aircheck/internal/health"
	"github.com/MrWong99/aircheck/internal/observe"
	"github.com/MrWong99/aircheck/internal/source"
	"github.com/MrWong99/aircheck/internal/stats"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed index.html
var indexPage []byte

// Server holds the handlers' collaborators. Construct with [New], mount via
// [Server.Router].
type Server struct {
	catalog     *source.Catalog
	selector    *source.Selector
	broadcaster *broadcast.Broadcaster
	kpi         *stats.Pipeline
	metrics     *observe.Metrics
	health      *health.Handler
}

// Config holds all dependencies for a [Server]. Health is optional; Metrics
// falls back to the process-wide default instruments.
type Config struct {
	Catalog     *source.Catalog
	Selector    *source.Selector
	Broadcaster *broadcast.Broadcaster
	Stats       *stats.Pipeline
	Metrics     *observe.Metrics
	Health      *health.Handler
}

// New creates a Server with the given dependencies.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Server{
		catalog:     cfg.Catalog,
		selector:    cfg.Selector,
		broadcaster: cfg.Broadcaster,
		kpi:         cfg.Stats,
		metrics:     cfg.Metrics,
		health:      cfg.Health,
	}
}

// Router assembles the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	r.Get("/", s.handleIndex)
	r.Get("/sources", s.handleGetSources)
	r.Post("/sources", s.handleSetSource)
	r.Get("/stream", s.handleStream)
	r.Get("/stats", s.handleStats)
	r.Handle("/metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(r)
	}
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexPage)
}

type sourcesResponse struct {
	Sources []source.Station  `json:"sources"`
	Current *source.StationID `json:"current"`
}

func (s *Server) handleGetSources(w http.ResponseWriter, _ *http.Request) {
	resp := sourcesResponse{Sources: s.catalog.All()}
	if id, ok := s.selector.Current(); ok {
		resp.Current = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

type setSourceRequest struct {
	// Source is the station to tune to; null clears the selection and
	// stops the stream.
	Source *source.StationID `json:"source"`
}

func (s *Server) handleSetSource(w http.ResponseWriter, r *http.Request) {
	var req setSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Source == nil {
		s.selector.Clear()
		slog.Info("station selection cleared")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	station, ok := s.catalog.ByID(*req.Source)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown station "+string(*req.Source))
		return
	}

	s.selector.Set(station.ID)
	slog.Info("station selected", "station", station.ID, "name", station.Name)
	w.WriteHeader(http.StatusNoContent)
}

type broadcastStats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

type statsResponse struct {
	stats.Snapshot
	Broadcast broadcastStats `json:"broadcast"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	published, dropped := s.broadcaster.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		Snapshot: s.kpi.Snapshot(),
		Broadcast: broadcastStats{
			Subscribers: s.broadcaster.Len(),
			Published:   published,
			Dropped:     dropped,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode http response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
