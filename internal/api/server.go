// Package api exposes the HTTP interface for the lead-harvesting service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voyago/leadharvest/internal/crawl"
	"github.com/voyago/leadharvest/internal/lead"
)

// LeadLister serves the read-only ranked lead snapshot.
type LeadLister interface {
	Ranked(limit int) []lead.Canonical
}

// Seeder accepts seed URLs into the crawl frontier.
type Seeder interface {
	Seed(urls []string, priority int) int
}

// Search is one query-driven seeding run.
type Search struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	SeedCount int       `json:"seed_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Config controls request handling.
type Config struct {
	SeedMaxResults int
	SeedPriority   int
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the seed provider, orchestrator, and lead
// snapshot.
type Server struct {
	router   chi.Router
	cfg      Config
	provider crawl.SeedProvider
	seeder   Seeder
	leads    LeadLister
	clock    crawl.Clock
	logger   *zap.Logger

	mu       sync.RWMutex
	searches map[string]Search
}

// NewServer constructs a Server with middleware and routes. metricsHandler
// serves the Prometheus registry; pass promhttp.Handler() in production.
func NewServer(
	cfg Config,
	provider crawl.SeedProvider,
	seeder Seeder,
	leads LeadLister,
	clock crawl.Clock,
	logger *zap.Logger,
	metricsHandler http.Handler,
) *Server {
	if cfg.SeedMaxResults <= 0 {
		cfg.SeedMaxResults = 30
	}
	if cfg.SeedPriority == 0 {
		cfg.SeedPriority = 5
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	s := &Server{
		cfg:      cfg,
		provider: provider,
		seeder:   seeder,
		leads:    leads,
		clock:    clock,
		logger:   logger,
		searches: make(map[string]Search),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/searches", func(r chi.Router) {
			r.Post("/", s.startSearch)
			r.Get("/{search_id}", s.getSearch)
		})
		r.Get("/leads", s.listLeads)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Priority   *int   `json:"priority"`
}

func (s *Server) startSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = s.cfg.SeedMaxResults
	}
	priority := s.cfg.SeedPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	urls, err := s.provider.GetSeeds(r.Context(), req.Query, maxResults)
	if err != nil {
		s.logger.Warn("seed search failed", zap.String("query", req.Query), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "seed search failed")
		return
	}
	accepted := s.seeder.Seed(urls, priority)

	search := Search{
		ID:        uuid.NewString(),
		Query:     req.Query,
		SeedCount: accepted,
		CreatedAt: s.clock.Now(),
	}
	s.mu.Lock()
	s.searches[search.ID] = search
	s.mu.Unlock()

	s.writeJSON(w, http.StatusAccepted, search)
}

func (s *Server) getSearch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "search_id")
	s.mu.RLock()
	search, ok := s.searches[id]
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, http.StatusNotFound, "search not found")
		return
	}
	s.writeJSON(w, http.StatusOK, search)
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	leads := s.leads.Ranked(limit)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"leads": leads,
		"count": len(leads),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
