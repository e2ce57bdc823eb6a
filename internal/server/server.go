// Package server provides the runtime's debug/ops HTTP surface: liveness
// and readiness probes, Prometheus metrics, and (in dev mode) a Swagger
// UI for the facade's own operational endpoints. It is not part of the
// HSI data path — the facade is a library, not a service — but every
// long-running deployment of synheartd wants a way to probe it.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/version"
)

// ReadinessChecker verifies that the server is ready to serve traffic.
// Returns nil if ready, an error describing why not otherwise.
type ReadinessChecker func(ctx context.Context) error

// RouteRegistrar lets external packages mount additional routes on the
// debug server's mux without this package importing them (e.g. wsapi's
// inspector bridge).
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// operationalPaths lists the endpoints exempt from access logging and
// rate limiting: health/readiness probes and metrics scrapes are expected
// to run at a cadence and volume unrelated to real client traffic.
var operationalPaths = []string{"/healthz", "/readyz", "/metrics"}

// defaultRatePerSecond and defaultRateBurst are the per-IP token-bucket
// rate and burst applied to everything outside operationalPaths.
const (
	defaultRatePerSecond = 100
	defaultRateBurst     = 200
)

// Server is the synheartd debug/ops HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	ready      ReadinessChecker
}

// routeEntry declares one core HTTP route as data, so New's route table is
// a single loop rather than one HandleFunc/Handle call per endpoint.
type routeEntry struct {
	pattern string
	handler http.Handler
}

// New creates a Server bound to addr. ready is consulted by /readyz; pass
// nil to always report ready once the process is up. When devMode is
// true, Swagger UI is served at /swagger/. extraRoutes, if any, are
// mounted on the same mux before the middleware chain is built.
func New(addr string, logger *zap.Logger, ready ReadinessChecker, devMode bool, extraRoutes ...RouteRegistrar) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger: logger,
		mux:    mux,
		ready:  ready,
	}

	for _, route := range s.coreRoutes() {
		mux.Handle(route.pattern, route.handler)
	}
	for _, r := range extraRoutes {
		r.RegisterRoutes(mux)
	}

	if devMode {
		mux.Handle("GET /swagger/", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
		logger.Info("swagger UI enabled (dev_mode)", zap.String("path", "/swagger/"))
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      Chain(mux, s.middlewareChain()...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// coreRoutes describes every endpoint the server owns directly, ahead of
// whatever extraRoutes callers mount on top.
func (s *Server) coreRoutes() []routeEntry {
	return []routeEntry{
		{"GET /healthz", http.HandlerFunc(s.handleHealthz)},
		{"GET /readyz", http.HandlerFunc(s.handleReadyz)},
		{"GET /metrics", promhttp.Handler()},
		{"GET /api/v1/health", http.HandlerFunc(s.handleHealth)},
	}
}

// middlewareChain builds the standard middleware stack, outermost first.
func (s *Server) middlewareChain() []Middleware {
	return []Middleware{
		RecoveryMiddleware(s.logger),
		RequestIDMiddleware,
		LoggingMiddleware(s.logger, operationalPaths),
		SecurityHeadersMiddleware,
		VersionHeaderMiddleware,
		RateLimitMiddleware(defaultRatePerSecond, defaultRateBurst, operationalPaths),
	}
}

// Start begins serving HTTP requests. Blocks until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting debug/ops HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down debug/ops HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealthz is a liveness probe -- returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// handleReadyz checks readiness -- returns 200 if the facade is running
// and able to serve a fusion/consent request.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status" example:"ok"`
	Service string            `json:"service" example:"synheartd"`
	Version map[string]string `json:"version"`
}

// handleHealth returns detailed health information (versioned API endpoint).
//
//	@Summary		Health check
//	@Description	Returns service health status with version information.
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:  "ok",
		Service: "synheartd",
		Version: version.Map(),
	})
}
