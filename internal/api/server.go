// Package api wires the HTTP surface: system snapshots, frame positions,
// zone classification, calendar rendering and conversion, clock control,
// and cache statistics, behind the shared middleware chain.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/orrery/orrery/internal/auth"
	"github.com/orrery/orrery/internal/ephemeris"
	"github.com/orrery/orrery/internal/health"
	"github.com/orrery/orrery/internal/metrics"
	"github.com/orrery/orrery/internal/rulepack"
	"github.com/orrery/orrery/internal/stream"
	"github.com/orrery/orrery/internal/system"
	"github.com/orrery/orrery/internal/temporal"
)

// Deps bundles what the handlers need. Stream may be nil when streaming is
// disabled.
type Deps struct {
	Logger   *slog.Logger
	Auth     auth.Config
	Systems  *system.Store
	Temporal *temporal.Store
	Rules    *rulepack.Pack
	Engine   *ephemeris.Engine
	Cache    *ephemeris.FrameCache
	Clock    *ephemeris.Clock
	Stream   *stream.Handler
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, d Deps) *Server {
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(d.Systems))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/system", systemSummaryHandler(d))
	mux.HandleFunc("POST /api/v1/system/load", systemLoadHandler(d))
	mux.HandleFunc("GET /api/v1/positions", positionsHandler(d))
	mux.HandleFunc("GET /api/v1/zones/{node_id}", zonesHandler(d))

	mux.HandleFunc("GET /api/v1/calendar", calendarListHandler(d))
	mux.HandleFunc("GET /api/v1/calendar/now", calendarNowHandler(d))
	mux.HandleFunc("GET /api/v1/calendar/{key}/render", calendarRenderHandler(d))
	mux.HandleFunc("POST /api/v1/calendar/{key}/convert", calendarConvertHandler(d))
	mux.HandleFunc("POST /api/v1/calendar/{key}/override", calendarOverrideHandler(d))

	mux.HandleFunc("GET /api/v1/clock", clockGetHandler(d))
	mux.HandleFunc("POST /api/v1/clock", clockSetHandler(d))
	mux.HandleFunc("GET /api/v1/cache/stats", cacheStatsHandler(d))

	if d.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/frames", d.Stream.HandleFrames)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(d.Auth)(handler)
	handler = loggingMiddleware(d.Logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: d.Logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
