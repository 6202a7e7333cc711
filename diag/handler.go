// Package diag serves monitor statistics, component snapshots and Prometheus metrics over HTTP.
package diag

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/gozephyr/perfkit/monitor"
)

// StatsFunc returns a JSON-encodable snapshot of a component
type StatsFunc func() any

// Server exposes diagnostics routes for a Monitor
type Server struct {
	monitor  *monitor.Monitor
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	components map[string]StatsFunc
}

// Option configures a Server
type Option func(*Server)

// WithGatherer serves g on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithRateLimit rejects requests beyond r per second with 429
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(s *Server) {
		s.limiter = rate.NewLimiter(r, burst)
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a diagnostics server for m. A nil m selects monitor.Global().
func NewServer(m *monitor.Monitor, opts ...Option) *Server {
	if m == nil {
		m = monitor.Global()
	}
	s := &Server{
		monitor:    m,
		gatherer:   prometheus.DefaultGatherer,
		logger:     slog.Default(),
		now:        time.Now,
		components: make(map[string]StatsFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "diag")
	return s
}

// Register exposes fn under /debug/perf/components/{name}, replacing any previous registration
func (s *Server) Register(name string, fn StatsFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[name] = fn
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	perf := r.PathPrefix("/debug/perf").Subrouter()
	perf.HandleFunc("/stats", s.listStats).Methods(http.MethodGet)
	perf.HandleFunc("/stats", s.clearStats).Methods(http.MethodDelete)
	perf.HandleFunc("/stats/{name}", s.getStats).Methods(http.MethodGet)
	perf.HandleFunc("/components", s.listComponents).Methods(http.MethodGet)
	perf.HandleFunc("/components/{name}", s.getComponent).Methods(http.MethodGet)

	if s.limiter != nil {
		r.Use(s.rateLimit)
	}
	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now(),
	})
}

func (s *Server) listStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.GetAllStats())
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	stats, ok := s.monitor.GetOperationStats(name)
	if !ok {
		http.Error(w, "unknown operation", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) clearStats(w http.ResponseWriter, _ *http.Request) {
	s.monitor.ClearStats()
	s.logger.Info("cleared operation stats")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listComponents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.components))
	for name := range s.components {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	s.writeJSON(w, http.StatusOK, names)
}

func (s *Server) getComponent(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.mu.RLock()
	fn, ok := s.components[name]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "unknown component", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, fn())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response failed", "error", err)
	}
}
