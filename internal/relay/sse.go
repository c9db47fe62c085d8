package relay

import (
	"encoding/json"
	"fmt"
	"net/http"

	"playground-gateway/internal/metrics"
)

// Writer emits frames as server-sent events: one "data: <json>\n\n"
// record per frame, flushed immediately so the browser renders deltas
// as they arrive.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for SSE output and writes the stream headers.
// Fails when the ResponseWriter cannot flush, since an unflushable
// stream would buffer until the turn ends and defeat streaming.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("relay: response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one frame. A write error means the browser went away;
// callers treat it as cancellation, not failure.
func (s *Writer) Send(f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("relay: marshal frame: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()

	metrics.StreamFramesTotal.WithLabelValues(f.kind()).Inc()
	return nil
}
