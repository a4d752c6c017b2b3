// Package metrics defines the Prometheus instruments for the service:
// HTTP traffic, frame resolution, the frame cache, and SSE streams.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orrery_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	resolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orrery_resolution_duration_seconds",
			Help:    "Duration of one full-frame hierarchy resolution.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	resolutionNodesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orrery_resolution_nodes_total",
			Help: "Total node positions resolved.",
		},
	)

	resolutionWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_resolution_warnings_total",
			Help: "Propagation warnings by code.",
		},
		[]string{"code"},
	)

	calendarResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_calendar_resolutions_total",
			Help: "Calendar renders and conversions by math type.",
		},
		[]string{"math_type"},
	)

	systemNodeCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orrery_system_node_count",
			Help: "Nodes in the currently loaded system.",
		},
	)

	systemAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orrery_system_age_seconds",
			Help: "Age of the current system snapshot in seconds.",
		},
	)

	simMasterTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orrery_sim_master_time_seconds",
			Help: "Current simulated master clock value.",
		},
	)

	workersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orrery_resolution_workers_active",
			Help: "Configured frame resolution workers.",
		},
	)

	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orrery_frame_cache_hits_total",
			Help: "Frame cache hits.",
		},
	)

	cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orrery_frame_cache_misses_total",
			Help: "Frame cache misses.",
		},
	)

	cacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orrery_frame_cache_evictions_total",
			Help: "Frame cache entries evicted.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orrery_frame_cache_entries",
			Help: "Frames currently held in the cache.",
		},
	)

	cacheSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orrery_frame_cache_size_bytes",
			Help: "Estimated frame cache memory footprint.",
		},
	)

	cacheRegenErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orrery_frame_cache_regeneration_errors_total",
			Help: "Frame generation failures in the cache maintenance loop.",
		},
	)

	cacheRegenDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orrery_frame_cache_regeneration_duration_seconds",
			Help:    "Duration of frame cache window fills and cutovers.",
			Buckets: prometheus.DefBuckets,
		},
	)

	cacheGracePeriod = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orrery_frame_cache_grace_period_active",
			Help: "1 while a cutover rebuild is in progress.",
		},
	)

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_stream_connections_total",
			Help: "Stream connect and disconnect events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orrery_streams_active",
			Help: "Currently connected stream clients.",
		},
	)

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orrery_stream_errors_total",
			Help: "Stream errors by reason.",
		},
		[]string{"reason"},
	)

	streamMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orrery_stream_messages_total",
			Help: "Stream messages sent.",
		},
	)

	streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orrery_stream_bytes_total",
			Help: "Stream bytes sent.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal, httpDurationSeconds,
		resolutionDuration, resolutionNodesTotal, resolutionWarningsTotal,
		calendarResolutionsTotal,
		systemNodeCount, systemAgeSeconds, simMasterTime, workersActive,
		cacheHits, cacheMisses, cacheEvictions, cacheEntries, cacheSizeBytes,
		cacheRegenErrors, cacheRegenDuration, cacheGracePeriod,
		streamConnections, streamsActive, streamErrors, streamMessages, streamBytes,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordResolution records one full-frame resolution.
func RecordResolution(d time.Duration, nodes int, warningCodes []string) {
	resolutionDuration.Observe(d.Seconds())
	resolutionNodesTotal.Add(float64(nodes))
	for _, code := range warningCodes {
		resolutionWarningsTotal.WithLabelValues(code).Inc()
	}
}

// IncCalendarResolutions counts one calendar render or conversion.
func IncCalendarResolutions(mathType string) {
	calendarResolutionsTotal.WithLabelValues(mathType).Inc()
}

// SetSystemNodeCount publishes the loaded system's node count.
func SetSystemNodeCount(n int) { systemNodeCount.Set(float64(n)) }

// SetSystemAge publishes the system snapshot age.
func SetSystemAge(seconds float64) { systemAgeSeconds.Set(seconds) }

// SetSimMasterTime publishes the simulated master clock.
func SetSimMasterTime(seconds int64) { simMasterTime.Set(float64(seconds)) }

// SetResolutionWorkersActive publishes the configured worker count.
func SetResolutionWorkersActive(n int) { workersActive.Set(float64(n)) }

func IncCacheHits()               { cacheHits.Inc() }
func IncCacheMisses()             { cacheMisses.Inc() }
func AddCacheEvictions(n int)     { cacheEvictions.Add(float64(n)) }
func SetCacheEntries(n int)       { cacheEntries.Set(float64(n)) }
func SetCacheSizeBytes(n int64)   { cacheSizeBytes.Set(float64(n)) }
func IncCacheRegenerationErrors() { cacheRegenErrors.Inc() }

func ObserveCacheRegenerationDuration(d time.Duration) {
	cacheRegenDuration.Observe(d.Seconds())
}

func SetCacheGracePeriodActive(active bool) {
	if active {
		cacheGracePeriod.Set(1)
	} else {
		cacheGracePeriod.Set(0)
	}
}

func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamErrors(reason string)     { streamErrors.WithLabelValues(reason).Inc() }
func IncStreamMessages()                { streamMessages.Inc() }
func AddStreamBytes(n int64)            { streamBytes.Add(float64(n)) }

// knownRoutes are the exact paths served by the API; anything else is
// collapsed so scanners cannot inflate label cardinality.
var knownRoutes = map[string]bool{
	"/":                     true,
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/system":        true,
	"/api/v1/system/load":   true,
	"/api/v1/positions":     true,
	"/api/v1/calendar":      true,
	"/api/v1/calendar/now":  true,
	"/api/v1/clock":         true,
	"/api/v1/cache/stats":   true,
	"/api/v1/stream/frames": true,
}

// normalizeRoute collapses parameterized paths to one label each and
// unknown paths to "other".
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if strings.HasPrefix(path, "/api/v1/zones/") {
		return "/api/v1/zones/{node_id}"
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/calendar/"); ok {
		if i := strings.IndexByte(rest, '/'); i > 0 {
			switch rest[i+1:] {
			case "render", "convert", "override":
				return "/api/v1/calendar/{key}/" + rest[i+1:]
			}
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}
