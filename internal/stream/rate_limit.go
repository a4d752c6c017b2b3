package stream

import (
	"sync"
)

// maxTotalViewers caps tick-stream connections across all IPs, so a pool
// of addresses cannot pin every server goroutine on open streams.
const maxTotalViewers = 1000

// viewerLimiter bounds concurrent tick-stream viewers per client IP and
// process-wide. Slots are counted, not queued: a viewer over either limit
// is turned away immediately and told when to retry.
type viewerLimiter struct {
	mu       sync.Mutex
	viewers  map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newViewerLimiter(maxPerIP int) *viewerLimiter {
	return &viewerLimiter{
		viewers:  make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotalViewers,
	}
}

// acquire claims a viewer slot for ip. It reports false when either the
// per-IP or the global limit is already reached.
func (l *viewerLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal {
		return false
	}
	if l.viewers[ip] >= l.maxPerIP {
		return false
	}

	l.viewers[ip]++
	l.total++
	return true
}

// release returns ip's slot, dropping the map entry once its last viewer
// disconnects.
func (l *viewerLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.viewers[ip]--
	l.total--
	if l.viewers[ip] <= 0 {
		delete(l.viewers, ip)
	}
}

// count returns ip's active viewer count.
func (l *viewerLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewers[ip]
}
