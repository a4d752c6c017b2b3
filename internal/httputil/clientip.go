// Package httputil carries small HTTP helpers shared by the API and the
// tick stream, currently peer identity extraction behind an optional
// reverse proxy.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the requesting peer's IP. With trustProxy set the
// forwarded headers win; otherwise only RemoteAddr is consulted, since
// forwarded headers are caller-controlled and would let anyone dodge the
// per-IP stream limit. A RemoteAddr without a port is returned as-is.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := forwardedFor(r); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedFor reads the proxy-set headers. The leftmost X-Forwarded-For
// entry is the original client; X-Real-IP is the single-hop fallback.
func forwardedFor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			xff = xff[:i]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}
