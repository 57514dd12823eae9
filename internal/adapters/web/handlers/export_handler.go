package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/services/export"
)

// ExportHandler handles data export
type ExportHandler struct {
	Pipeline PipelineReader
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(pipeline PipelineReader) *ExportHandler {
	return &ExportHandler{Pipeline: pipeline}
}

// HandleExport writes ?type=history|devices|alerts as ?format=json|csv.
func (h *ExportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		writeError(w, http.StatusBadRequest, "format must be json or csv")
		return
	}

	dataType := r.URL.Query().Get("type")
	if dataType == "" {
		dataType = "history"
	}

	var err error
	switch dataType {
	case "history":
		history := export.CollectHistory(h.Pipeline, time.Now())
		setAttachment(w, "history", format)
		if format == "csv" {
			err = export.ExportHistoryCSV(w, history)
		} else {
			err = export.ExportHistoryJSON(w, history)
		}
	case "devices":
		var devices []domain.DeviceRecord
		if snap, ok := h.Pipeline.Latest(); ok {
			devices = snap.Devices
		}
		if devices == nil {
			devices = []domain.DeviceRecord{}
		}
		setAttachment(w, "devices", format)
		if format == "csv" {
			err = export.ExportDevicesCSV(w, devices)
		} else {
			err = export.ExportDevicesJSON(w, devices)
		}
	case "alerts":
		alerts := h.Pipeline.Alerts(0)
		if alerts == nil {
			alerts = []domain.IntrusionEvent{}
		}
		setAttachment(w, "alerts", format)
		if format == "csv" {
			err = export.ExportAlertsCSV(w, alerts)
		} else {
			err = export.ExportAlertsJSON(w, alerts)
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown export type "+dataType)
		return
	}

	if err != nil {
		log.Printf("[API] %s export error: %v", format, err)
	}
}

func setAttachment(w http.ResponseWriter, name, format string) {
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition", "attachment; filename=nethealth_"+name+"."+format)
}
