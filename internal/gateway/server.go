// Package gateway exposes the engine over HTTP: turn execution, scenario
// upload/download, session administration, and the liveness channel.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/stateflow/internal/engine"
	"github.com/haasonsaas/stateflow/internal/observability"
	"github.com/haasonsaas/stateflow/internal/scenario"
)

// Server is the HTTP front of the dialog engine.
type Server struct {
	engine   *engine.Engine
	logger   *slog.Logger
	metrics  *observability.Metrics
	registry *prometheus.Registry

	httpServer *http.Server
	listener   net.Listener
}

// New creates a server. registry may be nil when metrics are disabled.
func New(eng *engine.Engine, logger *slog.Logger, metrics *observability.Metrics, registry *prometheus.Registry) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   eng,
		logger:   logger,
		metrics:  metrics,
		registry: registry,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/execute", s.instrument("/v1/execute", s.handleExecute))
	mux.HandleFunc("POST /v1/scenarios", s.instrument("/v1/scenarios", s.handleUpload))
	mux.HandleFunc("GET /v1/scenarios/{sessionId}", s.instrument("/v1/scenarios/{sessionId}", s.handleDownload))
	mux.HandleFunc("POST /v1/sessions/{sessionId}/reset", s.instrument("/v1/sessions/{sessionId}/reset", s.handleReset))
	mux.HandleFunc("PUT /v1/intent-mapping", s.instrument("/v1/intent-mapping", s.handleIntentMapping))
	mux.HandleFunc("GET /v1/sessions", s.instrument("/v1/sessions", s.handleSessions))
	mux.HandleFunc("GET /v1/sessions/{sessionId}", s.instrument("/v1/sessions/{sessionId}", s.handleSession))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/ws", s.handleWS)

	return mux
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.logger.Info("http server started", "addr", addr)
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// instrument wraps a handler with request duration metrics.
func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		s.metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, path, fmt.Sprintf("%d", recorder.status)).
			Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// statusFor maps engine failures onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scenario.ErrScenarioNotFound),
		errors.Is(err, engine.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, scenario.ErrMalformedScenario),
		errors.Is(err, engine.ErrSessionRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
