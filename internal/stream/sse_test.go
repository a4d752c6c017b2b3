package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orrery/orrery/internal/ephemeris"
	"github.com/orrery/orrery/internal/hierarchy"
	"github.com/orrery/orrery/internal/orbit"
	"github.com/orrery/orrery/internal/system"
	"github.com/orrery/orrery/internal/temporal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func testSystemStore() *system.Store {
	store := system.NewStore()
	store.Set(system.New("sol", []system.Node{
		{ID: "sol", Kind: system.KindBody, Luminosity: 1.0},
		{ID: "terra", ParentID: "sol", Kind: system.KindBody, Orbit: &orbit.Orbit{
			HostID: "sol",
			HostMu: 1.32712440018e20,
			Elements: orbit.Elements{
				A: 1.495978707e11,
				E: 0.0167,
			},
		}},
	}))
	return store
}

func testTemporalStore() *temporal.Store {
	st := &temporal.State{
		ActiveCalendarKey: "standard",
		Registry: map[string]temporal.Definition{
			"standard": {
				Name: "Standard",
				Math: temporal.MathBucketDrain,
				Bucket: &temporal.BucketDrain{
					YearSeconds:   31_536_000,
					DaySeconds:    86_400,
					HourSeconds:   3_600,
					MinuteSeconds: 60,
					Months:        []temporal.Month{{Name: "Primus", Days: 365}},
				},
			},
		},
	}
	return temporal.NewStore(st)
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
	}
}

// testHandler builds a handler over a paused clock at master 0 with the
// frame at 0 already cached.
func testHandler(t *testing.T, cfg Config) *Handler {
	t.Helper()
	store := testSystemStore()
	ephCfg := ephemeris.Config{Step: 60, Horizon: 300, Buffer: 120, Workers: 2, TickInterval: time.Second}
	engine := ephemeris.NewEngine(store, ephCfg, testLogger())
	clock := ephemeris.NewClock(0, 1)
	clock.Pause()
	cache := ephemeris.NewFrameCache(ephCfg, engine, store, clock, testLogger())

	frame, err := engine.FrameAt(context.Background(), 0)
	if err != nil {
		t.Fatalf("FrameAt failed: %v", err)
	}
	cache.Put(frame)

	return NewHandler(cache, clock, store, testTemporalStore(), cfg, testLogger())
}

// TestBuildTickMessage verifies the tick payload structure.
func TestBuildTickMessage(t *testing.T) {
	h := testHandler(t, testConfig())

	frame := &hierarchy.Frame{
		Time: 86_400,
		Positions: map[string]orbit.Vec3{
			"sol":   {X: 0, Y: 0, Z: 0},
			"terra": {X: 1.5e11, Y: 0, Z: 0},
		},
	}

	msg := h.buildTickMessage(frame, nil)

	if msg.Type != "tick" {
		t.Errorf("type = %q, want %q", msg.Type, "tick")
	}
	if int64(msg.T) != 86_400 {
		t.Errorf("t = %d, want 86400", int64(msg.T))
	}
	if len(msg.Pos) != 2 {
		t.Fatalf("pos count = %d, want 2", len(msg.Pos))
	}
	if msg.Pos["terra"] != [3]float64{1.5e11, 0, 0} {
		t.Errorf("terra pos = %v", msg.Pos["terra"])
	}
	if !strings.Contains(msg.Display, "Y1") || !strings.Contains(msg.Display, "D02") {
		t.Errorf("display = %q, want day 2 of year 1", msg.Display)
	}
}

// TestTickMessageTrail verifies trail positions are oldest-first per node.
func TestTickMessageTrail(t *testing.T) {
	h := testHandler(t, testConfig())

	current := &hierarchy.Frame{
		Time:      120,
		Positions: map[string]orbit.Vec3{"terra": {X: 3}},
	}
	trailFrames := []*hierarchy.Frame{
		{Time: 0, Positions: map[string]orbit.Vec3{"terra": {X: 1}}},
		{Time: 60, Positions: map[string]orbit.Vec3{"terra": {X: 2}}},
	}

	msg := h.buildTickMessage(current, trailFrames)

	tr, ok := msg.Tr["terra"]
	if !ok || len(tr) != 2 {
		t.Fatalf("trail = %v, want 2 entries", msg.Tr)
	}
	if tr[0][0] != 1 || tr[1][0] != 2 {
		t.Errorf("trail not oldest-first: %v", tr)
	}
}

// TestTickMessageJSON verifies serialization: master time is a decimal
// string, positions are triples.
func TestTickMessageJSON(t *testing.T) {
	msg := tickMessage{
		Type: "tick",
		T:    temporal.Seconds(120),
		Pos: map[string][3]float64{
			"terra": {1.5e11, 0, 0},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if parsed["type"] != "tick" {
		t.Errorf("type = %v, want tick", parsed["type"])
	}
	if parsed["t"] != "120" {
		t.Errorf("t = %v (%T), want decimal string \"120\"", parsed["t"], parsed["t"])
	}
	pos, ok := parsed["pos"].(map[string]any)
	if !ok || len(pos) != 1 {
		t.Fatalf("pos = %v, want 1-entry map", parsed["pos"])
	}
}

// TestMetadataMessageJSON verifies the metadata message format.
func TestMetadataMessageJSON(t *testing.T) {
	msg := metadataMessage{
		Type:           "metadata",
		System:         "sol",
		ActiveCalendar: "standard",
		MasterTime:     temporal.Seconds(-5),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if parsed["type"] != "metadata" {
		t.Errorf("type = %v, want metadata", parsed["type"])
	}
	if parsed["system"] != "sol" {
		t.Errorf("system = %v, want sol", parsed["system"])
	}
	if parsed["master_time"] != "-5" {
		t.Errorf("master_time = %v, want \"-5\"", parsed["master_time"])
	}
}

// TestSSEMessageFormat verifies the SSE wire format: "data: {json}\n\n".
func TestSSEMessageFormat(t *testing.T) {
	cfg := testConfig()
	cfg.KeepaliveInterval = 5 * time.Second
	handler := testHandler(t, cfg)

	req := httptest.NewRequest("GET", "/api/v1/stream/frames?interval=1", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	// Cancel the request after long enough for at least one tick.
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	resp := w.Result()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	// Parse the SSE body for messages.
	body := w.Body.String()
	scanner := bufio.NewScanner(strings.NewReader(body))
	var foundMetadata, foundTick bool

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			jsonStr := strings.TrimPrefix(line, "data: ")
			var msg map[string]any
			if err := json.Unmarshal([]byte(jsonStr), &msg); err != nil {
				t.Errorf("invalid JSON in SSE data line: %v", err)
				continue
			}
			switch msg["type"] {
			case "metadata":
				foundMetadata = true
				if _, ok := msg["master_time"]; !ok {
					t.Error("metadata missing master_time")
				}
				if msg["system"] != "sol" {
					t.Errorf("metadata system = %v, want sol", msg["system"])
				}
			case "tick":
				foundTick = true
				if _, ok := msg["pos"]; !ok {
					t.Error("tick missing pos")
				}
			}
		}
	}

	if !foundMetadata {
		t.Error("did not receive metadata message")
	}
	if !foundTick {
		t.Error("did not receive tick message")
	}

	// Verify SSE format: lines should be "data: ...", "retry: ...",
	// ":" (keepalive), or blank.
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") && line != ":" {
			if strings.TrimSpace(line) != "" {
				t.Errorf("unexpected SSE line: %q", line)
			}
		}
	}
}

// TestRateLimiting verifies per-IP concurrent stream limits.
func TestRateLimiting(t *testing.T) {
	limiter := newViewerLimiter(3)

	// Acquire up to the limit.
	for i := 0; i < 3; i++ {
		if !limiter.acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}

	// 4th should fail.
	if limiter.acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}

	// Different IP should still work.
	if !limiter.acquire("10.0.0.2") {
		t.Error("different IP should not be rate limited")
	}

	// Release one and try again.
	limiter.release("10.0.0.1")
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	// Count checks.
	if c := limiter.count("10.0.0.1"); c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	if c := limiter.count("10.0.0.2"); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
}

// TestRateLimitingConcurrent verifies rate limiter thread safety.
func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newViewerLimiter(100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.acquire("10.0.0.1") {
				defer limiter.release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	handler := testHandler(t, cfg)

	// Hold the first connection open.
	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		go func() {
			// Signal ready after short delay to allow acquire.
			time.Sleep(50 * time.Millisecond)
			close(ready)
			// Hold connection for a bit.
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		handler.HandleFrames(w, req)
	}()

	// Wait for first connection to be established.
	<-ready

	// Second connection from same IP should get 429.
	req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
}

// TestInvalidQueryParams verifies error responses for bad interval/trail values.
func TestInvalidQueryParams(t *testing.T) {
	handler := testHandler(t, testConfig())

	tests := []struct {
		name  string
		query string
	}{
		{"bad interval", "?interval=0"},
		{"interval too large", "?interval=100"},
		{"interval non-numeric", "?interval=abc"},
		{"negative trail", "?trail=-1"},
		{"trail too large", "?trail=999"},
		{"trail non-numeric", "?trail=xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/frames"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.HandleFrames(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

// TestKeepaliveFormat verifies keep-alive is an SSE comment.
func TestKeepaliveFormat(t *testing.T) {
	// The keep-alive message should be ":\n\n" - a comment line followed by blank line.
	expected := ":\n\n"
	if len(expected) != 3 {
		t.Errorf("keepalive length = %d, want 3", len(expected))
	}
	if expected[0] != ':' {
		t.Error("keepalive should start with ':'")
	}
}
