package handlers

import (
	"net/http"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	Pipeline PipelineReader
	// MaxAge is how old the latest snapshot may be before the pipeline is
	// reported as stalled. Zero disables the check.
	MaxAge time.Duration
	now    func() time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(pipeline PipelineReader, maxAge time.Duration) *HealthHandler {
	return &HealthHandler{Pipeline: pipeline, MaxAge: maxAge, now: time.Now}
}

type readiness struct {
	Status  string                `json:"status"`
	Version uint64                `json:"version,omitempty"`
	Path    domain.PathStatus     `json:"path,omitempty"`
	Sample  domain.SnapshotStatus `json:"sample,omitempty"`
	Reason  string                `json:"reason,omitempty"`
}

// HandleLive always answers 200 while the process serves requests.
func (h *HealthHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady answers 200 when the last cycle produced a fresh snapshot.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.Pipeline.Latest()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, readiness{Status: "starting"})
		return
	}

	resp := readiness{Status: "ok", Version: snap.Version, Path: snap.Path, Sample: snap.Status, Reason: snap.Reason}
	switch {
	case h.MaxAge > 0 && h.now().Sub(snap.Timestamp) > h.MaxAge:
		resp.Status = "stalled"
	case snap.IsDegraded():
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
