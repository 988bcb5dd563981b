// Package health exposes the relay's operational surface: liveness, a
// detailed status report, Prometheus metrics, and breaker admin.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/relay/internal/metrics"
	"github.com/vietddude/relay/internal/resilience/breaker"
)

// Server provides HTTP endpoints for health monitoring and breaker admin.
type Server struct {
	collector *metrics.Collector
	breakers  *breaker.Registry
	server    *http.Server
}

// NewServer creates a new health server.
func NewServer(collector *metrics.Collector, breakers *breaker.Registry, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		collector: collector,
		breakers:  breakers,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/admin/breakers/reset", s.handleReset)
	mux.HandleFunc("/admin/counters/reset", s.handleCountersReset)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Degraded when any target's breaker is open; the process itself is
	// still live, so the status code stays 200.
	status := "healthy"
	for _, st := range s.breakers.Stats() {
		if st.State == "OPEN" {
			status = "degraded"
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := struct {
		Counters metrics.Snapshot `json:"counters"`
		Breakers []breaker.Stats  `json:"breakers"`
	}{
		Counters: s.collector.Snapshot(),
		Breakers: s.breakers.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	service := r.URL.Query().Get("service")
	if service == "" {
		s.breakers.ResetAll()
	} else if !s.breakers.Reset(service) {
		http.Error(w, "unknown service", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

func (s *Server) handleCountersReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.collector.Reset()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}
