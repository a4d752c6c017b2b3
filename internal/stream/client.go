package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/orrery/orrery/internal/metrics"
)

// writeWindow is how long a single tick write may take before the
// connection is considered dead. Streams outlive any server-wide write
// timeout, so the deadline is pushed out before every write instead.
const writeWindow = 30 * time.Second

// viewer is the write side of one tick-stream connection.
type viewer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

func (v *viewer) extendDeadline() {
	if err := v.rc.SetWriteDeadline(time.Now().Add(writeWindow)); err != nil {
		v.logger.Debug("could not set write deadline", "error", err)
	}
}

// sendJSON marshals a message and ships it as one SSE data event.
func (v *viewer) sendJSON(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return v.sendRaw(data)
}

// sendRaw ships pre-marshaled JSON as "data: {json}\n\n" and flushes, so a
// viewer sees each tick the moment it is written.
func (v *viewer) sendRaw(data []byte) error {
	v.extendDeadline()

	n, err := fmt.Fprintf(v.w, "data: %s\n\n", data)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	v.flusher.Flush()
	v.messagesSent++
	v.bytesSent += int64(n)
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(n))

	return nil
}

// sendKeepalive ships an empty SSE comment (":\n\n") so idle proxies keep
// the connection open between ticks.
func (v *viewer) sendKeepalive() error {
	v.extendDeadline()

	n, err := fmt.Fprint(v.w, ":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}

	v.flusher.Flush()
	v.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))

	return nil
}
