package handlers

import (
	"net/http"
	"strconv"

	"github.com/pysugar/homeauth/internal/monitor"
)

// GetAttemptsHandler returns recent login attempts. With ?page= it pages
// through history and accepts ?search=.
// GET /api/attempts
func GetAttemptsHandler(am *monitor.AttemptMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := queryInt(q.Get("limit"), 100)

		if page := queryInt(q.Get("page"), 0); page > 0 {
			attempts, total := am.Page(page, limit, q.Get("search"))
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"attempts":  attempts,
				"total":     total,
				"page":      page,
				"page_size": limit,
			})
			return
		}

		attempts := am.Recent(limit, queryInt(q.Get("since_minutes"), 0))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"attempts": attempts,
			"count":    len(attempts),
		})
	}
}

// GetAttemptStatsHandler returns aggregated attempt statistics
// GET /api/attempts/stats
func GetAttemptStatsHandler(am *monitor.AttemptMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, am.Stats())
	}
}

// ClearAttemptsHandler clears the attempt history
// DELETE /api/attempts
func ClearAttemptsHandler(am *monitor.AttemptMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := am.Clear(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to clear attempts: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
	}
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
