package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// ReportGenerator builds a health report for a period.
type ReportGenerator interface {
	Generate(ctx context.Context, period domain.DateRange) (*domain.HealthReport, error)
}

// ReportExporter renders a report.
type ReportExporter interface {
	ExportHealthReport(report *domain.HealthReport) ([]byte, error)
}

// ReportHandler handles report generation
type ReportHandler struct {
	Generator ReportGenerator
	Exporter  ReportExporter
	now       func() time.Time
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(generator ReportGenerator, exporter ReportExporter) *ReportHandler {
	return &ReportHandler{Generator: generator, Exporter: exporter, now: time.Now}
}

// HandleReport renders a PDF covering the last ?hours (default 24).
func (h *ReportHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	hours, ok := intParam(r, "hours", 24)
	if !ok || hours == 0 {
		writeError(w, http.StatusBadRequest, "hours must be a positive integer")
		return
	}

	end := h.now()
	period := domain.DateRange{Start: end.Add(-time.Duration(hours) * time.Hour), End: end}

	report, err := h.Generator.Generate(r.Context(), period)
	if err != nil {
		log.Printf("[API] Report generation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to generate report")
		return
	}

	pdf, err := h.Exporter.ExportHealthReport(report)
	if err != nil {
		log.Printf("[API] PDF export failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=nethealth_report_%s.pdf", end.Format("20060102_1504")))
	if _, err := w.Write(pdf); err != nil {
		log.Printf("[API] Report write failed: %v", err)
	}
}
