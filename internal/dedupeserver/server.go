// Package dedupeserver exposes the Controller Dedup Engine's HTTP surface:
// Prometheus scrape target and the one-way route-switch advisory receiver
// (spec.md §4.6, §4.10), adapted from the teacher's internal/controller
// Server.ListenAndServe structure.
package dedupeserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pathsteer/internal/controllerclient"
	"pathsteer/internal/dedupe"
)

// Server serves /metrics and /route-switch for the Controller Dedup Engine.
type Server struct {
	listen string
	logger *zap.Logger

	registry *prometheus.Registry

	lastSwitch *controllerclient.SwitchNotification
}

// New builds a Server that scrapes table's stats as Prometheus metrics.
func New(listen string, table *dedupe.Table, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(dedupe.NewCollector(table))
	return &Server{listen: listen, logger: logger, registry: reg}
}

// ListenAndServe runs the HTTP server until it errors or is shut down.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/route-switch", s.handleRouteSwitch)

	server := &http.Server{
		Addr:              s.listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("dedup engine listening", zap.String("address", s.listen))
	return server.ListenAndServe()
}

// handleRouteSwitch accepts the Edge node's fire-and-forget advisory that it
// has switched its active uplink, for the Controller's own return-path
// bookkeeping. There is nothing to reply with beyond acknowledgment.
func (s *Server) handleRouteSwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var n controllerclient.SwitchNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	s.lastSwitch = &n
	s.logger.Info("route switch advisory received",
		zap.String("active_uplink", n.ActiveUplink),
		zap.String("kind", n.Kind),
		zap.Int64("switched_at_unix_ms", n.SwitchedAt))
	w.WriteHeader(http.StatusNoContent)
}

// LastSwitch returns the most recently received advisory, or nil if none has
// arrived yet. Exported for tests and for a future status endpoint.
func (s *Server) LastSwitch() *controllerclient.SwitchNotification {
	return s.lastSwitch
}
