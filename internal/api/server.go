// Package api exposes the assistant over a JSON HTTP API.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novaops/nova/internal/assistant"
)

// ServerConfig configures the API server.
type ServerConfig struct {
	Assistant   *assistant.Assistant // required
	Logger      *slog.Logger
	Pool        *pgxpool.Pool // optional, enables the database readiness probe
	CORSOrigins []string
	TrustProxy  bool
	RateBurst   int // per-IP burst, 0 means 60
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Assistant == nil {
		return nil, errors.New("assistant is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sh := &sessionHandler{assistant: cfg.Assistant, logger: logger}
	ch := &chatHandler{assistant: cfg.Assistant, logger: logger}
	th := &toolsHandler{assistant: cfg.Assistant, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions", sh.create)
	mux.HandleFunc("GET /api/v1/sessions", sh.list)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("GET /api/v1/sessions/{id}/turns", sh.turns)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("GET /api/v1/tools", th.list)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// middleware stack, outermost first:
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID precedes Logging so request_id appears in log lines;
	// CORS precedes RateLimit so preflight OPTIONS gets its headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	// health probes bypass the middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", health(logger))
	topMux.HandleFunc("GET /readyz", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func health(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness reports ready once the database (when configured) answers a
// ping. Without a pool the process being up is readiness enough.
func readiness(pool *pgxpool.Pool, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "database_unavailable", "database ping failed", logger)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
	}
}
