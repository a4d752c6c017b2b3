package metrics

import (
	"strconv"
	"testing"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/v1/system", "/api/v1/system"},
		{"/api/v1/system/load", "/api/v1/system/load"},
		{"/api/v1/positions", "/api/v1/positions"},
		{"/api/v1/calendar", "/api/v1/calendar"},
		{"/api/v1/calendar/now", "/api/v1/calendar/now"},
		{"/api/v1/clock", "/api/v1/clock"},
		{"/api/v1/cache/stats", "/api/v1/cache/stats"},
		{"/api/v1/stream/frames", "/api/v1/stream/frames"},

		// Parameterized routes collapse to one label per shape.
		{"/api/v1/zones/terra", "/api/v1/zones/{node_id}"},
		{"/api/v1/zones/watcher-station", "/api/v1/zones/{node_id}"},
		{"/api/v1/calendar/imperial/render", "/api/v1/calendar/{key}/render"},
		{"/api/v1/calendar/stardate/convert", "/api/v1/calendar/{key}/convert"},
		{"/api/v1/calendar/imperial/override", "/api/v1/calendar/{key}/override"},

		// Unknown/bot paths collapse to "other".
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/favicon.ico", "other"},
		{"/api/v1/calendar/imperial/delete", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 unique node IDs produce
// exactly 1 distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		label := normalizeRoute("/api/v1/zones/node-" + strconv.Itoa(i))
		seen[label] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}
