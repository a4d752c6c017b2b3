// Package auth enforces optional bearer token authentication. Read-only
// endpoints stay public; anything that mutates state (system loads, epoch
// overrides, clock control) requires the token when auth is enabled.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// exemptPaths are always public regardless of auth configuration.
var exemptPaths = map[string]bool{
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/system":        true,
	"/api/v1/positions":     true,
	"/api/v1/calendar":      true,
	"/api/v1/calendar/now":  true,
	"/api/v1/cache/stats":   true,
	"/api/v1/stream/frames": true,
}

// exemptPrefixes are path prefixes that are always public.
var exemptPrefixes = []string{
	"/api/v1/zones/",
}

// isExempt returns true if the request is exempt from auth. Calendar render
// and convert are pure reads of the registry; override mutates it and is
// never exempt. The clock path is shared between a public GET and a
// protected POST, so exemption is method-aware there.
func isExempt(method, path string) bool {
	if exemptPaths[path] {
		return true
	}
	if path == "/api/v1/clock" && method == http.MethodGet {
		return true
	}
	for _, prefix := range exemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	if strings.HasPrefix(path, "/api/v1/calendar/") {
		if strings.HasSuffix(path, "/render") || strings.HasSuffix(path, "/convert") {
			return true
		}
	}
	return false
}

// Middleware returns an HTTP middleware that enforces Bearer token auth
// on non-exempt paths when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isExempt(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")

			if header == "" || token == header || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
