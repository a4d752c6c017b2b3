// Package stream implements Server-Sent Events (SSE) streaming of resolved
// frames. Clients connect via GET /api/v1/stream/frames and receive a
// continuous stream of absolute positions from the frame cache, each tick
// stamped with the active calendar's rendering of the master clock.
//
// SSE message format:
//
//	data: {"type":"tick","t":"12345","display":"Y1 Primus D02 00:00:00","pos":{...}}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","system":"sol","active_calendar":"imperial",...}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent
// timeout. Reconnecting clients receive a fresh metadata message on each
// connection.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/orrery/orrery/internal/ephemeris"
	"github.com/orrery/orrery/internal/hierarchy"
	"github.com/orrery/orrery/internal/httputil"
	"github.com/orrery/orrery/internal/metrics"
	"github.com/orrery/orrery/internal/system"
	"github.com/orrery/orrery/internal/temporal"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Trust X-Forwarded-For headers (default: false).
}

// Handler manages SSE streaming connections.
type Handler struct {
	cache    *ephemeris.FrameCache
	clock    *ephemeris.Clock
	systems  *system.Store
	temporal *temporal.Store
	config   Config
	limiter  *viewerLimiter
	logger   *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(cache *ephemeris.FrameCache, clock *ephemeris.Clock, systems *system.Store, ts *temporal.Store, config Config, logger *slog.Logger) *Handler {
	return &Handler{
		cache:    cache,
		clock:    clock,
		systems:  systems,
		temporal: ts,
		config:   config,
		limiter:  newViewerLimiter(config.MaxConcurrentPerIP),
		logger:   logger,
	}
}

func (h *Handler) clientIP(r *http.Request) string {
	return httputil.ClientIP(r, h.config.TrustProxy)
}

// HandleFrames serves the SSE frame stream.
// GET /api/v1/stream/frames?interval=1&trail=20
func (h *Handler) HandleFrames(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters.
	interval := 1
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid interval parameter, must be 1-60"})
			return
		}
		interval = n
	}

	trail := 0
	if v := r.URL.Query().Get("trail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 120 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid trail parameter, must be 0-120"})
			return
		}
		trail = n
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := h.clientIP(r)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	// Track connection metrics.
	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval", interval,
		"trail", trail,
	)

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	// Set SSE response headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Use ResponseController to manage write deadlines for long-lived SSE.
	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &viewer{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Send jittered retry interval (3-7s) to prevent thundering-herd
	// reconnection storms when the server restarts.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	// Send metadata message (first message on every connection).
	if err := c.sendJSON(h.buildMetadata()); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			master := h.clock.Now()
			frame := h.cache.Get(master)
			if frame == nil {
				metrics.IncStreamErrors("cache_miss")
				h.logger.Debug("stream cache miss",
					"time", h.cache.RoundToStep(master),
					"remote_ip", ip,
				)
				continue
			}

			var trailFrames []*hierarchy.Frame
			if trail > 0 {
				trailFrames = h.cache.GetRecent(master, trail)
			}

			tick := h.buildTickMessage(frame, trailFrames)
			data, err := json.Marshal(tick)
			if err != nil {
				metrics.IncStreamErrors("marshal_error")
				h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
				continue
			}
			if err := c.sendRaw(data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}

			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// buildMetadata snapshots the current system and calendar for the first
// message of a connection.
func (h *Handler) buildMetadata() metadataMessage {
	meta := metadataMessage{
		Type:           "metadata",
		ActiveCalendar: h.temporal.ActiveKey(),
		MasterTime:     temporal.Seconds(h.clock.Now()),
	}
	if sys := h.systems.Get(); sys != nil {
		meta.System = sys.Name
		meta.LoadedAt = sys.LoadedAt.UTC().Format(time.RFC3339)
		meta.NodeCount = sys.Len()
	}
	return meta
}

// buildTickMessage formats a frame into the SSE tick payload. If trailFrames
// is non-empty, each node includes past positions (oldest first).
func (h *Handler) buildTickMessage(frame *hierarchy.Frame, trailFrames []*hierarchy.Frame) tickMessage {
	pos := make(map[string][3]float64, len(frame.Positions))
	for id, p := range frame.Positions {
		pos[id] = [3]float64{p.X, p.Y, p.Z}
	}

	var trails map[string][][3]float64
	if len(trailFrames) > 0 {
		trails = make(map[string][][3]float64, len(frame.Positions))
		for _, tf := range trailFrames {
			for id, p := range tf.Positions {
				trails[id] = append(trails[id], [3]float64{p.X, p.Y, p.Z})
			}
		}
	}

	msg := tickMessage{
		Type: "tick",
		T:    temporal.Seconds(frame.Time),
		Pos:  pos,
		Tr:   trails,
	}

	if def, err := h.temporal.Active(); err == nil {
		if rendering, err := temporal.Resolve(def, frame.Time); err == nil {
			msg.Display = rendering.Display
			metrics.IncCalendarResolutions(string(def.Math))
		}
	}

	return msg
}

// SSE message payload types.

type metadataMessage struct {
	Type           string           `json:"type"`
	System         string           `json:"system,omitempty"`
	LoadedAt       string           `json:"loaded_at,omitempty"`
	NodeCount      int              `json:"node_count,omitempty"`
	ActiveCalendar string           `json:"active_calendar,omitempty"`
	MasterTime     temporal.Seconds `json:"master_time"`
}

type tickMessage struct {
	Type    string                  `json:"type"`
	T       temporal.Seconds        `json:"t"`
	Display string                  `json:"display,omitempty"`
	Pos     map[string][3]float64   `json:"pos"`
	Tr      map[string][][3]float64 `json:"tr,omitempty"`
}
