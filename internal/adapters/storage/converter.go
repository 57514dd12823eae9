package storage

import (
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

func toSampleModel(s domain.Snapshot) SampleModel {
	return SampleModel{
		Version:    s.Version,
		Timestamp:  s.Metrics.Timestamp.UTC(),
		Status:     string(s.Status),
		Bandwidth:  s.Metrics.Bandwidth,
		Latency:    s.Metrics.Latency,
		PacketLoss: s.Metrics.PacketLoss,
	}
}

func (m SampleModel) toDomain() domain.MetricSample {
	return domain.MetricSample{
		Timestamp:  m.Timestamp,
		Bandwidth:  m.Bandwidth,
		Latency:    m.Latency,
		PacketLoss: m.PacketLoss,
	}
}

// toDeviceModel keys the device by identity; FirstSeen is only kept on insert.
func toDeviceModel(d domain.DeviceRecord, seen time.Time) DeviceModel {
	mac := d.MACAddress
	if domain.IsValidMAC(mac) {
		mac = domain.NormalizeMAC(mac)
	}
	return DeviceModel{
		Identity:       d.Identity(),
		Name:           d.Name,
		IPAddress:      d.IPAddress,
		MACAddress:     mac,
		ConnectionType: d.ConnectionType,
		FirstSeen:      seen.UTC(),
		LastSeen:       seen.UTC(),
	}
}

func (m DeviceModel) toDomain() domain.DeviceRecord {
	return domain.DeviceRecord{
		Name:           m.Name,
		IPAddress:      m.IPAddress,
		MACAddress:     m.MACAddress,
		ConnectionType: m.ConnectionType,
	}
}

func toAlertModel(e domain.IntrusionEvent) AlertModel {
	return AlertModel{
		ID:              e.ID,
		EntityID:        e.EntityID,
		RuleName:        e.RuleName,
		SourceIP:        e.SourceIP,
		DestinationIP:   e.DestinationIP,
		SourcePort:      e.SourcePort,
		DestinationPort: e.DestinationPort,
		Protocol:        e.Protocol,
		Confidence:      e.Confidence,
		Severity:        string(e.Severity),
		Details:         e.Details,
		Timestamp:       e.Timestamp.UTC(),
	}
}

func (m AlertModel) toDomain() domain.IntrusionEvent {
	return domain.IntrusionEvent{
		ID:              m.ID,
		EntityID:        m.EntityID,
		RuleName:        m.RuleName,
		SourceIP:        m.SourceIP,
		DestinationIP:   m.DestinationIP,
		SourcePort:      m.SourcePort,
		DestinationPort: m.DestinationPort,
		Protocol:        m.Protocol,
		Confidence:      m.Confidence,
		Severity:        domain.AlertSeverity(m.Severity),
		Details:         m.Details,
		Timestamp:       m.Timestamp,
	}
}
