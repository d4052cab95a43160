package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ashita-ai/auditfront/internal/ctxutil"
	"github.com/ashita-ai/auditfront/internal/model"
)

// keepaliveInterval bounds how long an idle event stream stays silent.
var keepaliveInterval = 15 * time.Second

// HandleEvents handles GET /v1/run/events (SSE). Each coalesced state change
// of the session's machine is sent as one "snapshot" event.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	machine, release := h.sessions.Acquire(ctxutil.SessionIDFromContext(r.Context()))
	defer release()
	if machine == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "server is shutting down")
		return
	}
	changes, unsubscribe := machine.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Disable the server's WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case _, ok := <-changes:
			if !ok {
				return
			}
			data, err := json.Marshal(machine.Snapshot())
			if err != nil {
				h.logger.Error("events: encode snapshot", "error", err)
				return
			}
			if _, err := w.Write(formatSSE("snapshot", data)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// formatSSE formats one Server-Sent Events message. data must not contain
// newlines; compact JSON never does.
func formatSSE(eventType string, data []byte) []byte {
	msg := make([]byte, 0, len(eventType)+len(data)+16)
	msg = append(msg, "event: "...)
	msg = append(msg, eventType...)
	msg = append(msg, "\ndata: "...)
	msg = append(msg, data...)
	return append(msg, "\n\n"...)
}
