// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

// Package server exposes a thin read-only ops endpoint: aggregated
// health and remote-client metrics. Annotation features live in the
// host application, not here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vellum-dev/vellum/internal/remote"
	"github.com/vellum-dev/vellum/internal/store"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
	"github.com/vellum-dev/vellum/pkg/health"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wraps a chi router over the subsystem's diagnostics.
type Server struct {
	router chi.Router
	cfg    Config
	client *remote.Client
	store  store.VectorStore
}

// New creates the ops server. client and vs may be nil; the endpoints
// then report only what is wired.
func New(cfg Config, client *remote.Client, vs store.VectorStore) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, velerr.New(velerr.CodeConfigValidateInvalidValue, "listen address is required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}

	s := &Server{cfg: cfg, client: client, store: vs}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)

	s.router = r
	return s, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return velerr.Wrapf(err, velerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return velerr.Wrap(err, velerr.CodeServerStartFailure, "shutting down")
	}
	return <-errCh
}

// handleHealthz aggregates remote service probes with a local store
// probe into one report. Unhealthy overall maps to 503 so load balancers
// can act on the status code alone.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]health.Status)

	if s.client != nil {
		report := s.client.OverallHealth(r.Context())
		for svc, status := range report.Services {
			services[svc] = status
		}
	}
	if s.store != nil {
		services["store"] = s.probeStore(r.Context())
	}

	report := health.Report{
		Status:    health.Aggregate(services),
		Services:  services,
		CheckedAt: time.Now().UTC(),
	}

	code := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

// probeStore issues a cheap read to confirm the store answers.
func (s *Server) probeStore(ctx context.Context) health.Status {
	_, err := s.store.Get(ctx, "healthz-probe")
	if err != nil && !velerr.IsNotFound(err) {
		return health.StatusUnhealthy
	}
	return health.StatusHealthy
}

// metricsResponse is the /metrics JSON shape.
type metricsResponse struct {
	Remote         remote.MetricsSnapshot `json:"remote"`
	BreakerState   string                 `json:"breakerState"`
	RateLimitUsage int                    `json:"rateLimitUsage"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.client == nil {
		writeJSON(w, http.StatusOK, metricsResponse{})
		return
	}
	writeJSON(w, http.StatusOK, metricsResponse{
		Remote:         s.client.Metrics(),
		BreakerState:   string(s.client.BreakerState()),
		RateLimitUsage: s.client.RateLimitUsage(),
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode ops response", "error", err)
	}
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
