// Package server implements the plain HTTP status/control endpoint for a
// gobcp node: a liveness probe and a point-in-time snapshot of the running
// Connection's queue and routing table.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dantte-lp/gobcp/internal/bcp"
)

// statsTimeout bounds how long a /status request waits on the Connection's
// event loop for a Stats reply before giving up.
const statsTimeout = 2 * time.Second

// StatusResponse is the JSON body served at /status.
type StatusResponse struct {
	Addr             string `json:"addr"`
	Sink             bool   `json:"sink"`
	QueueLength      int    `json:"queue_length"`
	RoutingTableSize int    `json:"routing_table_size"`
}

// New builds the status/control HTTP server for conn, wrapped with the
// logging and panic-recovery middleware from middleware.go.
func New(conn *bcp.Connection, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "server"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /status", handleStatus(conn))

	handler := RecoveryMiddleware(logger)(LoggingMiddleware(logger)(mux))

	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleStatus(conn *bcp.Connection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
		defer cancel()

		stats := conn.Stats(ctx)
		resp := StatusResponse{
			Addr:             stats.Addr.String(),
			Sink:             stats.IsSink,
			QueueLength:      stats.QueueLength,
			RoutingTableSize: stats.RoutingTableSize,
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
