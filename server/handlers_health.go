package server

import (
	"net/http"
	"time"
)

// HandleHealthz reports liveness: process up and database reachable.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadyz reports readiness: database reachable and schema migrated.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "database unreachable",
		})
		return
	}
	var n int
	if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM channels_streams`).Scan(&n); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "schema not migrated",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus exposes a small operational snapshot of the poller.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	tracked, online := h.tracker.Counts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tracked_streams": tracked,
		"online_streams":  online,
		"uptime_seconds":  int64(time.Since(h.started).Seconds()),
	})
}
