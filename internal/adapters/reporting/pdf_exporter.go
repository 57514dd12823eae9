package reporting

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// maxTableRows bounds the alert and device tables.
const maxTableRows = 25

// PDFExporter exports reports to PDF format
type PDFExporter struct{}

// NewPDFExporter creates a new PDF exporter instance
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ExportHealthReport renders a health report as PDF.
func (e *PDFExporter) ExportHealthReport(report *domain.HealthReport) ([]byte, error) {
	if report == nil {
		return nil, errors.New("nil report")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, report)
	e.addHealthScore(pdf, report)
	e.addMetricStats(pdf, report)
	e.addTopRules(pdf, report)
	e.addAlerts(pdf, report)
	e.addDevices(pdf, report)
	e.addRecommendations(pdf, report)
	e.addFooter(pdf, report)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) sectionTitle(pdf *gofpdf.Fpdf, title string) {
	if pdf.GetY() > 250 {
		pdf.AddPage()
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func (e *PDFExporter) emptyNote(pdf *gofpdf.Fpdf, text string) {
	pdf.SetFont("Arial", "I", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 7, text, "", 1, "L", false, 0, "")
	pdf.Ln(5)
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, report *domain.HealthReport) {
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 15, report.Title, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")

	if !report.Period.Start.IsZero() || !report.Period.End.IsZero() {
		period := fmt.Sprintf("Period: %s to %s", formatBound(report.Period.Start, "start"), formatBound(report.Period.End, "now"))
		pdf.CellFormat(0, 6, period, "", 1, "L", false, 0, "")
	}
	if report.Latest.Version > 0 {
		sample := fmt.Sprintf("Last sample: #%d at %s (%s, path %s)",
			report.Latest.Version, report.Latest.Timestamp.Format("2006-01-02 15:04:05"),
			report.Latest.Status, report.Latest.Path)
		pdf.CellFormat(0, 6, sample, "", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
}

func (e *PDFExporter) addHealthScore(pdf *gofpdf.Fpdf, report *domain.HealthReport) {
	r, g, b := e.getScoreColor(report.Score)

	pdf.SetFillColor(r, g, b)
	pdf.Rect(20, pdf.GetY(), 170, 30, "F")
	y := pdf.GetY()

	pdf.SetFont("Arial", "B", 36)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(25, y+5)
	pdf.CellFormat(80, 20, fmt.Sprintf("%.1f/10", report.Score), "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 18)
	pdf.SetXY(110, y+8)
	pdf.CellFormat(80, 14, report.Level, "", 0, "L", false, 0, "")

	pdf.SetY(y + 35)
	pdf.Ln(5)
}

// getScoreColor maps a health score to RGB, green being healthy.
func (e *PDFExporter) getScoreColor(score float64) (r, g, b int) {
	switch {
	case score >= 8.0:
		return 52, 199, 89
	case score >= 6.0:
		return 255, 204, 0
	case score >= 4.0:
		return 255, 149, 0
	default:
		return 220, 53, 69
	}
}

func (e *PDFExporter) addMetricStats(pdf *gofpdf.Fpdf, report *domain.HealthReport) {
	e.sectionTitle(pdf, "Metrics")

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(40, 8, "Metric", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Current", "1", 0, "R", true, 0, "")
	pdf.CellFormat(25, 8, "Mean", "1", 0, "R", true, 0, "")
	pdf.CellFormat(25, 8, "Std dev", "1", 0, "R", true, 0, "")
	pdf.CellFormat(25, 8, "Min", "1", 0, "R", true, 0, "")
	pdf.CellFormat(25, 8, "Max", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, k := range domain.MetricKinds {
		st := report.Stats[k]
		pdf.CellFormat(40, 7, fmt.Sprintf("%s (%s)", k, unitOf(k)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%.2f", report.Latest.Metrics.Value(k)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%.2f", st.Mean), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%.2f", st.StdDev), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%.2f", st.Min), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%.2f", st.Max), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addTopRules(pdf *gofpdf.Fpdf, report *domain.HealthReport) {
	e.sectionTitle(pdf, "Most Active Rules")

	if len(report.TopRules) == 0 {
		e.emptyNote(pdf, "No confirmed anomalies")
		return
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(15, 8, "Rank", "1", 0, "C", true, 0, "")
	pdf.CellFormat(75, 8, "Rule", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Events", "1", 0, "C", true, 0, "")
	pdf.CellFormat(25, 8, "Entities", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 8, "Worst", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, rule := range report.TopRules {
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(15, 7, fmt.Sprintf("%d", rule.Rank), "1", 0, "C", false, 0, "")
		pdf.CellFormat(75, 7, truncate(rule.RuleName, 40), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", rule.Events), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", rule.Entities), "1", 0, "C", false, 0, "")
		r, g, b := e.getSeverityColor(rule.MaxSeverity)
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(30, 7, string(rule.MaxSeverity), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(8)
}

func (e *PDFExporter) getSeverityColor(severity domain.AlertSeverity) (r, g, b int) {
	switch severity {
	case domain.SeverityCritical:
		return 220, 53, 69
	case domain.SeverityHigh:
		return 255, 149, 0
	case domain.SeverityMedium:
		return 204, 153, 0
	default:
		return 52, 199, 89
	}
}

func (e *PDFExporter) addAlerts(pdf *gofpdf.Fpdf, report *domain.HealthReport) {
	e.sectionTitle(pdf, fmt.Sprintf("Alerts (%d)", len(report.Alerts)))

	if len(report.Alerts) == 0 {
		e.emptyNote(pdf, "No alerts in the reporting period")
		return
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(35, 8, "Time", "1", 0, "L", true, 0, "")
	pdf.CellFormat(40, 8, "Rule", "1", 0, "L", true, 0, "")
	pdf.CellFormat(70, 8, "Entity", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Severity", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 8)
	for i, a := range report.Alerts {
		if i >= maxTableRows {
			break
		}
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(35, 6, a.Timestamp.Format("01-02 15:04:05"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, truncate(a.RuleName, 22), "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 6, truncate(a.EntityID, 42), "1", 0, "L", false, 0, "")
		r, g, b := e.getSeverityColor(a.Severity)
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(25, 6, string(a.Severity), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addDevices(pdf *gofpdf.Fpdf, report *domain.HealthReport) {
	e.sectionTitle(pdf, fmt.Sprintf("Devices (%d)", len(report.Devices)))

	if len(report.Devices) == 0 {
		e.emptyNote(pdf, "No devices recorded")
		return
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(50, 8, "Name", "1", 0, "L", true, 0, "")
	pdf.CellFormat(40, 8, "IP", "1", 0, "L", true, 0, "")
	pdf.CellFormat(45, 8, "MAC", "1", 0, "L", true, 0, "")
	pdf.CellFormat(35, 8, "Type", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 8)
	for i, d := range report.Devices {
		if i >= maxTableRows {
			break
		}
		pdf.CellFormat(50, 6, truncate(d.Name, 28), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, d.IPAddress, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, d.MACAddress, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, d.ConnectionType, "1", 1, "L", false, 0, "")
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addRecommendations(pdf *gofpdf.Fpdf, report *domain.HealthReport) {
	e.sectionTitle(pdf, "Recommendations")

	for _, rec := range report.Recommendations {
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}

		r, g, b := e.getPriorityColor(rec.Priority)
		pdf.SetFillColor(r, g, b)
		pdf.SetTextColor(255, 255, 255)
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(25, 6, rec.Priority, "", 0, "C", true, 0, "")

		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(0, 51, 102)
		pdf.CellFormat(0, 6, "  "+rec.Title, "", 1, "L", false, 0, "")
		pdf.Ln(1)

		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(60, 60, 60)
		pdf.MultiCell(0, 5, rec.Description, "", "L", false)

		for _, action := range rec.Actions {
			pdf.CellFormat(5, 5, "", "", 0, "L", false, 0, "")
			pdf.CellFormat(0, 5, "- "+truncate(action, 100), "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}
}

func (e *PDFExporter) getPriorityColor(priority string) (r, g, b int) {
	switch priority {
	case "critical":
		return 220, 53, 69
	case "high":
		return 255, 149, 0
	case "medium":
		return 255, 204, 0
	default:
		return 52, 199, 89
	}
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, report *domain.HealthReport) {
	pdf.SetY(-20)

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)

	id := report.ID
	if len(id) > 8 {
		id = id[:8]
	}
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated by %s | Report ID: %s", report.GeneratedBy, id), "", 1, "C", false, 0, "")
}

func unitOf(k domain.MetricKind) string {
	switch k {
	case domain.MetricBandwidth:
		return "Mbps"
	case domain.MetricLatency:
		return "ms"
	default:
		return "%"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func formatBound(t time.Time, open string) string {
	if t.IsZero() {
		return open
	}
	return t.Format("2006-01-02 15:04")
}
