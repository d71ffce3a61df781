package telemetry

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

// Recorder is the write side handed to page handlers. Recording is best
// effort: failures are logged and dropped.
type Recorder struct {
	repo   Repository
	logger *log.Logger
}

func NewRecorder(repo Repository, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) Record(eventType EventType, metadata EventMetadata) {
	if r == nil || r.repo == nil {
		return
	}
	if err := r.repo.RecordEvent(eventType, metadata); err != nil {
		r.logger.Printf("[telemetry] drop %s: %v", eventType, err)
	}
}

type Handler struct {
	repo Repository
	now  func() time.Time
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo, now: time.Now}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// GET /api/telemetry/stats?since=2026-01-01 (default: last 7 days)
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	since := h.now().Add(-7 * 24 * time.Hour)
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		since = t
	}

	events, err := h.repo.GetEvents(since, nil)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "could not read events")
		return
	}
	stats, err := CalculateStats(events, since)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "could not compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
