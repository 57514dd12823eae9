package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// PipelineReader is the read side of the monitor used by the API.
type PipelineReader interface {
	Latest() (domain.Snapshot, bool)
	History(kind domain.MetricKind) []domain.Point
	Stats(kind domain.MetricKind) domain.SeriesStats
	Topology() domain.Topology
	Alerts(n int) []domain.IntrusionEvent
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] JSON encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// intParam parses a non-negative integer query parameter.
func intParam(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
