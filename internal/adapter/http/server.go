package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-data-etl/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultChangesLimit = 100
	maxChangesLimit     = 1000
)

// EventReader serves stored state and audit history.
type EventReader interface {
	FetchByID(ctx context.Context, id string) (*domain.EarthquakeEvent, error)
	ChangesFor(ctx context.Context, id string, limit int) ([]domain.FieldChange, error)
}

// SummaryProvider returns the country summary of the latest pass.
type SummaryProvider interface {
	LastSummary() []domain.CountrySummary
}

// Checks is ready only when every checker is.
type Checks []sharedobs.ReadinessChecker

func (c Checks) CheckReadiness(ctx context.Context) error {
	for _, checker := range c {
		if err := checker.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Server exposes health, readiness, metrics, and read-only event endpoints.
type Server struct {
	httpServer *http.Server
	events     EventReader
	summary    SummaryProvider
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /events/{id}, /events/{id}/changes, and /summary routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, events EventReader, summary SummaryProvider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		events:  events,
		summary: summary,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /events/{id}", s.handleEvent)
	mux.HandleFunc("GET /events/{id}/changes", s.handleChanges)
	mux.HandleFunc("GET /summary", s.handleSummary)

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

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	event, err := s.events.FetchByID(r.Context(), id)
	if err != nil {
		s.internalError(w, "fetch event", id, err)
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "earthquake not found")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, event)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	limit := defaultChangesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxChangesLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxChangesLimit))
			return
		}
		limit = n
	}

	changes, err := s.events.ChangesFor(r.Context(), id, limit)
	if err != nil {
		s.internalError(w, "fetch changes", id, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"earthquake_id": id,
		"changes":       changes,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	countries := s.summary.LastSummary()
	if countries == nil {
		countries = []domain.CountrySummary{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"countries": countries})
}

func (s *Server) internalError(w http.ResponseWriter, op, id string, err error) {
	s.logger.Error(op+" failed", "event_id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
