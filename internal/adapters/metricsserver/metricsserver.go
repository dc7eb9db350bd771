// Package metricsserver exposes the ambient /metrics and /healthz HTTP
// surface (SPEC_FULL.md domain stack: gorilla/mux, kept entirely separate
// from the raw-TCP push protocol in internal/adapters/pushserver). It runs
// on its own net/http server and goroutine; it never touches Tracker state,
// so it does not participate in the single-threaded reactor's mutator
// discipline.
package metricsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusFunc reports a point-in-time health snapshot for /healthz.
type StatusFunc func() Status

// Status is the JSON body /healthz returns.
type Status struct {
	Healthy        bool   `json:"healthy"`
	NetworksCount  int    `json:"networks_count"`
	PacketsTotal   int    `json:"packets_total"`
	CaptureError   string `json:"capture_error,omitempty"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

// Server wraps an http.Server bound to a gorilla/mux router, matching the
// teacher's mux-based web adapter layout (minus its websocket/auth
// middleware, which this surface has no use for).
type Server struct {
	httpServer *http.Server
}

// New builds the router: /metrics via promhttp, /healthz via statusFn.
func New(addr string, statusFn StatusFunc) *Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := statusFn()
		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	}).Methods(http.MethodGet)

	return &Server{httpServer: &http.Server{Addr: addr, Handler: r}}
}

// Serve blocks, matching net/http.Server.ListenAndServe's contract; it
// returns http.ErrServerClosed on a clean Shutdown.
func (s *Server) Serve() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server with a bounded timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
