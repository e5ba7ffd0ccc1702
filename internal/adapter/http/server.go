// Package http exposes health endpoints, Prometheus metrics, and a small
// read-only query API over the store.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/weather-data-store/internal/domain"
	"github.com/couchcryptid/weather-data-store/internal/store"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ReadinessFunc adapts a function to ReadinessChecker.
type ReadinessFunc func(ctx context.Context) error

func (f ReadinessFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

// Server exposes health, readiness, metrics, and query HTTP endpoints.
type Server struct {
	httpServer *http.Server
	store      *store.Store
	logger     *slog.Logger
}

// NewServer creates an HTTP server with health, metrics, and query routes.
func NewServer(addr string, st *store.Store, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:  st,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/stations/near", s.handleStationsNear)
	mux.HandleFunc("GET /v1/stations/{id}", s.handleStation)
	mux.HandleFunc("GET /v1/stations/{id}/reports", s.handleStationReports)
	mux.HandleFunc("GET /v1/stations/{id}/maintenance", s.handleStationMaintenance)
	mux.HandleFunc("GET /v1/reports/near", s.handleReportsNear)
	mux.HandleFunc("GET /v1/aggregate", s.handleAggregate)
	mux.HandleFunc("GET /v1/balloons/{id}/readings", s.handleBalloonReadings)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	station, err := s.store.GetStation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, station)
}

func (s *Server) handleStationsNear(w http.ResponseWriter, r *http.Request) {
	center, radius, limit, err := geoParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	matches, err := s.store.FindStationsWithinRadius(r.Context(), center, radius, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleReportsNear(w http.ResponseWriter, r *http.Request) {
	center, radius, limit, err := geoParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	matches, err := s.store.FindReportsWithinRadius(r.Context(), center, radius, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleStationReports(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	reports, err := s.store.ReportsForStation(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleStationMaintenance(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	logs, err := s.store.MaintenanceForStation(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	q := store.ReadingQuery{StationID: r.URL.Query().Get("station_id")}

	if r.URL.Query().Get("lon") != "" || r.URL.Query().Get("lat") != "" {
		center, radius, _, err := geoParams(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		q.Near = &store.GeoFilter{Center: center, RadiusMiles: radius}
	}
	var err error
	if q.From, q.To, err = dateRange(r); err != nil {
		s.writeError(w, err)
		return
	}

	switch r.URL.Query().Get("group_by") {
	case "station":
		rows, err := s.store.AggregateReadingsByStation(r.Context(), q)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
		return
	case "station_day":
		rows, err := s.store.AggregateReadingsByStationAndDay(r.Context(), q)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}
	stats, err := s.store.AggregateReadings(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBalloonReadings(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 1)
	if err != nil {
		s.writeError(w, err)
		return
	}
	perPage, err := intParam(r, "per_page", 50)
	if err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.store.BalloonReadingsPage(r.Context(), r.PathValue("id"), page, perPage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func geoParams(r *http.Request) (domain.Point, float64, int, error) {
	lon, err := floatParam(r, "lon")
	if err != nil {
		return domain.Point{}, 0, 0, err
	}
	lat, err := floatParam(r, "lat")
	if err != nil {
		return domain.Point{}, 0, 0, err
	}
	radius, err := floatParam(r, "radius")
	if err != nil {
		return domain.Point{}, 0, 0, err
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		return domain.Point{}, 0, 0, err
	}
	return domain.Point{Lon: lon, Lat: lat}, radius, limit, nil
}

func dateRange(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			return from, to, &store.QueryError{Param: "from", Reason: "must be YYYY-MM-DD"}
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			return from, to, &store.QueryError{Param: "to", Reason: "must be YYYY-MM-DD"}
		}
	}
	return from, to, nil
}

func floatParam(r *http.Request, name string) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, &store.QueryError{Param: name, Reason: "is required"}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &store.QueryError{Param: name, Reason: "must be a number"}
	}
	return f, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &store.QueryError{Param: name, Reason: "must be an integer"}
	}
	return n, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var queryErr *store.QueryError
	switch {
	case errors.As(err, &queryErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		s.logger.Error("query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
