// Package api exposes a debug HTTP surface for a single mysqlgo DB: a JSON
// stats endpoint, a Prometheus /metrics handler, and a small dashboard page
// for watching pool state without a separate monitoring stack.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mysqlgo/mysqlgo/internal/metrics"
	"github.com/mysqlgo/mysqlgo/internal/pool"
)

// Server is the debug REST API and metrics server for one pool.
type Server struct {
	name       string
	pool       *pool.Pool
	metrics    *metrics.Collector
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates a debug API server bound to a single pool. name labels
// the pool in JSON responses; metrics may be nil if the DB was opened
// without a Collector, in which case no /metrics route is registered.
func NewServer(name string, p *pool.Pool, m *metrics.Collector) *Server {
	return &Server{
		name:      name,
		pool:      p,
		metrics:   m,
		startTime: time.Now(),
	}
}

// Start begins serving on addr (e.g. "127.0.0.1:8080"). It returns once the
// listener is up; serving continues on its own goroutine until Stop.
func (s *Server) Start(addr string) error {
	r := mux.NewRouter()

	r.HandleFunc("/stats", s.statsHandler).Methods("GET")
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.HandleFunc("/", s.dashboardHandler).Methods("GET")
	r.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen on %s: %w", addr, err)
	}

	slog.Info("api: debug server listening", "addr", addr, "pool", s.name)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("api: server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the debug API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

type statsResponse struct {
	Pool  string     `json:"pool"`
	Stats pool.Stats `json:"stats"`
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{Pool: s.name, Stats: s.pool.Stats()})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pool":           s.name,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
	})
}

// healthHandler reports unhealthy once the pool has been closed. It is a
// liveness signal for the pool object itself, not a connectivity probe of
// the underlying database.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	st := s.pool.Stats()
	healthy := !st.Closed

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"status": boolToStatus(healthy),
		"stats":  st,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
