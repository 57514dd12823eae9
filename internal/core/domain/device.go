package domain

import (
	"sort"
	"strings"
)

// Connection types reported by sources. Sources may use other values.
const (
	ConnectionWiFi     = "wifi"
	ConnectionEthernet = "ethernet"
	ConnectionRouter   = "router"
	ConnectionSwitch   = "switch"
	ConnectionHost     = "host"
)

// DeviceRecord is a device seen on the local network.
// IPAddress is the unique key within a snapshot.
type DeviceRecord struct {
	Name           string `json:"name"`
	IPAddress      string `json:"ip_address"`
	MACAddress     string `json:"mac_address,omitempty"`
	ConnectionType string `json:"connection_type,omitempty"`
}

// Identity returns the key used to recognise the device across snapshots:
// the normalised MAC when known, otherwise the IP.
func (d DeviceRecord) Identity() string {
	if IsValidMAC(d.MACAddress) {
		return NormalizeMAC(d.MACAddress)
	}
	return d.IPAddress
}

// NormalizeDevices returns a fresh slice keyed by IP: records without an IP are
// dropped, the last record for a duplicated IP wins, output is sorted by IP.
func NormalizeDevices(records []DeviceRecord) []DeviceRecord {
	byIP := make(map[string]DeviceRecord, len(records))
	for _, r := range records {
		r.IPAddress = strings.TrimSpace(r.IPAddress)
		if r.IPAddress == "" {
			continue
		}
		if IsValidMAC(r.MACAddress) {
			r.MACAddress = NormalizeMAC(r.MACAddress)
		}
		byIP[r.IPAddress] = r
	}

	out := make([]DeviceRecord, 0, len(byIP))
	for _, r := range byIP {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IPAddress < out[j].IPAddress })
	return out
}
