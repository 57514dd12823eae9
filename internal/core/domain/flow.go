package domain

import "fmt"

// FlowEntry is one active connection observed by the source.
type FlowEntry struct {
	FlowID          string  `json:"flow_id"`
	SourceIP        string  `json:"source_ip"`
	DestinationIP   string  `json:"destination_ip"`
	SourcePort      int     `json:"source_port"`
	DestinationPort int     `json:"destination_port"`
	Protocol        string  `json:"protocol"`
	BandwidthMbps   float64 `json:"bandwidth_mbps,omitempty"`
}

// Key identifies the flow for anomaly tracking. The ephemeral source port is
// left out so that reconnects map to the same entity.
func (f FlowEntry) Key() string {
	return fmt.Sprintf("%s->%s:%d/%s", f.SourceIP, f.DestinationIP, f.DestinationPort, f.Protocol)
}
