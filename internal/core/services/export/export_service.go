package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// History is the exported form of the held metric streams.
type History struct {
	ExportedAt time.Time                                `json:"exported_at"`
	Series     map[domain.MetricKind][]domain.Point     `json:"series"`
	Stats      map[domain.MetricKind]domain.SeriesStats `json:"stats"`
}

// HistoryReader is the part of the pipeline holding metric history.
type HistoryReader interface {
	History(kind domain.MetricKind) []domain.Point
	Stats(kind domain.MetricKind) domain.SeriesStats
}

// CollectHistory copies every stream of r.
func CollectHistory(r HistoryReader, now time.Time) History {
	h := History{
		ExportedAt: now,
		Series:     make(map[domain.MetricKind][]domain.Point, len(domain.MetricKinds)),
		Stats:      make(map[domain.MetricKind]domain.SeriesStats, len(domain.MetricKinds)),
	}
	for _, k := range domain.MetricKinds {
		h.Series[k] = r.History(k)
		h.Stats[k] = r.Stats(k)
	}
	return h
}

// ExportHistoryJSON writes the history as an indented JSON document.
func ExportHistoryJSON(w io.Writer, h History) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(h)
}

// ExportHistoryCSV writes one row per point, streams in fixed order.
func ExportHistoryCSV(w io.Writer, h History) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Timestamp", "Metric", "Value"}); err != nil {
		return err
	}
	for _, k := range domain.MetricKinds {
		for _, p := range h.Series[k] {
			row := []string{
				p.Timestamp.UTC().Format(time.RFC3339Nano),
				string(k),
				strconv.FormatFloat(p.Value, 'f', -1, 64),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportDevicesJSON writes devices as JSON array
func ExportDevicesJSON(w io.Writer, devices []domain.DeviceRecord) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}

// ExportDevicesCSV writes devices as CSV with headers
func ExportDevicesCSV(w io.Writer, devices []domain.DeviceRecord) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Name", "IPAddress", "MACAddress", "ConnectionType"}); err != nil {
		return err
	}
	for _, d := range devices {
		if err := writer.Write([]string{d.Name, d.IPAddress, d.MACAddress, d.ConnectionType}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportAlertsJSON writes alerts as JSON array
func ExportAlertsJSON(w io.Writer, alerts []domain.IntrusionEvent) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(alerts)
}

// ExportAlertsCSV writes alerts as CSV with headers
func ExportAlertsCSV(w io.Writer, alerts []domain.IntrusionEvent) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	headers := []string{
		"ID", "Timestamp", "Rule", "Entity", "Severity", "Confidence",
		"SourceIP", "DestinationIP", "SourcePort", "DestinationPort", "Protocol", "Details",
	}
	if err := writer.Write(headers); err != nil {
		return err
	}

	for _, a := range alerts {
		row := []string{
			a.ID,
			a.Timestamp.UTC().Format(time.RFC3339),
			a.RuleName,
			a.EntityID,
			string(a.Severity),
			fmt.Sprintf("%.2f", a.Confidence),
			a.SourceIP,
			a.DestinationIP,
			portString(a.SourcePort),
			portString(a.DestinationPort),
			a.Protocol,
			a.Details,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func portString(p int) string {
	if p == 0 {
		return ""
	}
	return strconv.Itoa(p)
}
