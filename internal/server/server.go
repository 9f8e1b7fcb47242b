// Package server provides HTTP server initialization and lifecycle management
// for the family tree API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrypster/familytree/internal/config"
	"github.com/scrypster/familytree/internal/engine"
	"github.com/scrypster/familytree/web/handlers"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// NewHandler builds the full HTTP handler tree for eng. The returned hub is
// already subscribed to the engine's change events; the caller runs and stops it.
func NewHandler(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) (http.Handler, *handlers.WebSocketHub) {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	wsHub := handlers.NewWebSocketHub(logger,
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
	)
	eng.SetOnChange(wsHub.PublishRelationEvent)

	rps, burst := cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst
	if rps <= 0 || burst < 1 {
		rps, burst = 10, 20
	}
	rateLimiter := handlers.NewRateLimiter(rps, burst)

	// API routes (require auth in production mode)
	apiMux := http.NewServeMux()
	handlers.NewRelationsHandler(eng, logger).Register(apiMux)

	health := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"healthy","version":%q}`, Version)
	}
	// Health and metrics are not authenticated; they are used by monitoring.
	mux.HandleFunc("GET /health", health)
	mux.HandleFunc("GET /api/health", health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// WebSocket endpoint (origin validation instead of bearer auth)
	mux.Handle("/ws", wsHub)

	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	return securityHeadersMiddleware(handler), wsHub
}

// Start initializes and starts the HTTP server.
// Returns the actual address being listened on (useful for testing with port 0).
// The server shuts down gracefully when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, eng *engine.Engine, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	handler, wsHub := NewHandler(cfg, eng, logger)
	go wsHub.Run()

	addr := cfg.Addr()
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		wsHub.Stop()
		return "", fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server: serve failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server: shutdown failed", "error", err)
		}
		wsHub.Stop()
	}()

	actualAddr := listener.Addr().String()
	logger.Info("server: listening", "addr", actualAddr)
	return actualAddr, nil
}
