package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
)

// DefaultAlertLimit is the page size of the alerts endpoint.
const DefaultAlertLimit = 50

// SnapshotHandler serves the live pipeline state.
type SnapshotHandler struct {
	Pipeline PipelineReader
	Storage  ports.Storage       // optional, backs ?source=history
	Cache    ports.SnapshotCache // optional, answers before the first cycle
}

// NewSnapshotHandler creates a new SnapshotHandler
func NewSnapshotHandler(pipeline PipelineReader, storage ports.Storage, cache ports.SnapshotCache) *SnapshotHandler {
	return &SnapshotHandler{Pipeline: pipeline, Storage: storage, Cache: cache}
}

// HandleSnapshot returns the latest snapshot.
func (h *SnapshotHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if snap, ok := h.Pipeline.Latest(); ok {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	if h.Cache != nil {
		snap, ok, err := h.Cache.LatestSnapshot(r.Context())
		if err != nil {
			log.Printf("[API] Cache read failed: %v", err)
		} else if ok {
			w.Header().Set("X-Nethealth-Source", "cache")
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	writeError(w, http.StatusNotFound, "no snapshot sampled yet")
}

type historyResponse struct {
	Metric domain.MetricKind  `json:"metric"`
	Points []domain.Point     `json:"points"`
	Stats  domain.SeriesStats `json:"stats"`
}

// HandleHistory returns the held points of one metric stream.
func (h *SnapshotHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	kind := domain.MetricKind(mux.Vars(r)["metric"])
	if !kind.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown metric "+string(kind))
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Metric: kind,
		Points: h.Pipeline.History(kind),
		Stats:  h.Pipeline.Stats(kind),
	})
}

// HandleStats summarises every metric stream.
func (h *SnapshotHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[domain.MetricKind]domain.SeriesStats, len(domain.MetricKinds))
	for _, k := range domain.MetricKinds {
		stats[k] = h.Pipeline.Stats(k)
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleTopology returns the current topology.
func (h *SnapshotHandler) HandleTopology(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Pipeline.Topology())
}

// HandleDevices returns the devices of the latest snapshot, or every device
// ever recorded with ?source=history.
func (h *SnapshotHandler) HandleDevices(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "history" {
		if h.Storage == nil {
			writeError(w, http.StatusServiceUnavailable, "history storage disabled")
			return
		}
		devices, err := h.Storage.GetDevices(r.Context())
		if err != nil {
			log.Printf("[API] Failed to fetch devices: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to fetch devices")
			return
		}
		writeJSON(w, http.StatusOK, devices)
		return
	}

	devices := []domain.DeviceRecord{}
	if snap, ok := h.Pipeline.Latest(); ok && snap.Devices != nil {
		devices = snap.Devices
	}
	writeJSON(w, http.StatusOK, devices)
}

// HandleAlerts returns the newest events first.
func (h *SnapshotHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r, "limit", DefaultAlertLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	if r.URL.Query().Get("source") == "history" {
		if h.Storage == nil {
			writeError(w, http.StatusServiceUnavailable, "history storage disabled")
			return
		}
		alerts, err := h.Storage.GetAlerts(r.Context(), limit)
		if err != nil {
			log.Printf("[API] Failed to fetch alerts: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to fetch alerts")
			return
		}
		writeJSON(w, http.StatusOK, alerts)
		return
	}

	alerts := h.Pipeline.Alerts(limit)
	if alerts == nil {
		alerts = []domain.IntrusionEvent{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleSamples returns stored samples between ?from and ?to (RFC 3339).
// The range defaults to the last hour.
func (h *SnapshotHandler) HandleSamples(w http.ResponseWriter, r *http.Request) {
	if h.Storage == nil {
		writeError(w, http.StatusServiceUnavailable, "history storage disabled")
		return
	}

	to := time.Now()
	from := to.Add(-time.Hour)
	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
			return
		}
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to precedes from")
		return
	}

	samples, err := h.Storage.GetSamples(r.Context(), from, to)
	if err != nil {
		log.Printf("[API] Failed to fetch samples: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch samples")
		return
	}
	writeJSON(w, http.StatusOK, samples)
}
