// Package gateway is the HTTP front end of the hook engine.
//
// DESIGN: Thin transport over the dispatcher and store:
//   - POST /hooks/webhook   webhook ingestion (always best-effort 200)
//   - /hooks CRUD surface   consumed by the dashboard/CLI
//   - GET  /ws/results      live ExecutionResult stream (WebSocket)
//   - GET  /executions      recent history from the sink
//
// Middleware chain (applied in order):
//  1. panicRecovery:     catch panics, return 500, log stack trace
//  2. rateLimit:         per-IP token bucket rate limiting
//  3. loggingMiddleware: log request/response with timing
//  4. security:          security headers, CORS
//
// FILES:
//   - gateway.go:    Gateway, routes, lifecycle
//   - handlers.go:   webhook + CRUD handlers, error mapping
//   - middleware.go: the middleware chain
//   - broadcast.go:  WebSocket result hub
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hookmux/hook-gateway/internal/config"
	"github.com/hookmux/hook-gateway/internal/dispatch"
	"github.com/hookmux/hook-gateway/internal/hooks"
	"github.com/hookmux/hook-gateway/internal/monitoring"
	"github.com/hookmux/hook-gateway/internal/sink"
)

const (
	// HeaderRequestID carries the request ID back to callers.
	HeaderRequestID = "X-Request-ID"

	// RateLimitPerSecond is the per-IP request budget.
	RateLimitPerSecond = 50

	// MaxRateLimitBuckets caps rate limiter memory.
	MaxRateLimitBuckets = 10000

	// maxWebhookBody bounds inbound payloads (1MB).
	maxWebhookBody = 1 << 20
)

// Gateway serves the hook engine's HTTP surface.
type Gateway struct {
	cfg        *config.Config
	store      *hooks.Store
	dispatcher *dispatch.Dispatcher
	resultSink sink.Sink
	hub        *Hub
	metrics    *monitoring.MetricsCollector

	rateLimiter *rateLimiter
	server      *http.Server
}

// New creates a Gateway. The hub is shared with the dispatcher (as its
// broadcaster), so it is created by the composition root and passed in.
func New(cfg *config.Config, store *hooks.Store, dispatcher *dispatch.Dispatcher, resultSink sink.Sink, hub *Hub) *Gateway {
	if resultSink == nil {
		resultSink = sink.NopSink{}
	}
	g := &Gateway{
		cfg:         cfg,
		store:       store,
		dispatcher:  dispatcher,
		resultSink:  resultSink,
		hub:         hub,
		metrics:     monitoring.NewMetricsCollector(),
		rateLimiter: newRateLimiter(RateLimitPerSecond),
	}
	g.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      g.handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return g
}

// handler builds the route table wrapped in the middleware chain.
func (g *Gateway) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /hooks/webhook", g.handleWebhook)

	mux.HandleFunc("GET /hooks", g.handleList)
	mux.HandleFunc("POST /hooks", g.handleCreate)
	mux.HandleFunc("GET /hooks/stats", g.handleStats)
	mux.HandleFunc("GET /hooks/{id}", g.handleGet)
	mux.HandleFunc("PUT /hooks/{id}", g.handleUpdate)
	mux.HandleFunc("DELETE /hooks/{id}", g.handleDelete)
	mux.HandleFunc("POST /hooks/{id}/test", g.handleTest)

	mux.HandleFunc("GET /executions", g.handleExecutions)
	mux.HandleFunc("GET /ws/results", g.hub.ServeWS)
	mux.HandleFunc("GET /health", g.handleHealth)

	return g.panicRecovery(g.rateLimit(g.loggingMiddleware(g.security(mux))))
}

// Start serves until Shutdown. Blocks.
func (g *Gateway) Start() error {
	log.Info().Int("port", g.cfg.Server.Port).Msg("hook gateway listening")
	return g.server.ListenAndServe()
}

// Shutdown drains the server and closes the broadcast hub.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.hub.Close()
	return g.server.Shutdown(ctx)
}

// Metrics exposes the collector for the health endpoint and tests.
func (g *Gateway) Metrics() *monitoring.MetricsCollector { return g.metrics }
