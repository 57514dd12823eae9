package system

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// arpEntry is one row of /proc/net/arp.
type arpEntry struct {
	IP        string
	MAC       string
	Interface string
}

// atfComplete marks a resolved neighbour in the ARP flags column.
const atfComplete = 0x2

// parseARP reads /proc/net/arp, skipping incomplete entries.
func parseARP(r io.Reader) ([]arpEntry, error) {
	sc := bufio.NewScanner(r)
	var out []arpEntry
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		f := strings.Fields(sc.Text())
		if len(f) < 6 {
			continue
		}
		flags, err := strconv.ParseUint(strings.TrimPrefix(f[2], "0x"), 16, 32)
		if err != nil || flags&atfComplete == 0 || f[3] == "00:00:00:00:00:00" || !domain.IsValidIP(f[0]) {
			continue
		}
		out = append(out, arpEntry{IP: f[0], MAC: domain.NormalizeMAC(f[3]), Interface: f[5]})
	}
	return out, sc.Err()
}

// ifaceCounters holds cumulative byte counters from /proc/net/dev.
type ifaceCounters struct {
	RxBytes uint64
	TxBytes uint64
}

// parseNetDev reads /proc/net/dev keyed by interface name.
func parseNetDev(r io.Reader) (map[string]ifaceCounters, error) {
	sc := bufio.NewScanner(r)
	out := make(map[string]ifaceCounters)
	for sc.Scan() {
		line := sc.Text()
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		f := strings.Fields(rest)
		if len(f) < 9 {
			continue
		}
		rx, err := strconv.ParseUint(f[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rx bytes for %s: %w", strings.TrimSpace(name), err)
		}
		tx, err := strconv.ParseUint(f[8], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tx bytes for %s: %w", strings.TrimSpace(name), err)
		}
		out[strings.TrimSpace(name)] = ifaceCounters{RxBytes: rx, TxBytes: tx}
	}
	return out, sc.Err()
}

// parseDefaultGateway returns the gateway of the default route in /proc/net/route.
func parseDefaultGateway(r io.Reader) (gateway, iface string, ok bool) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 4 || f[1] != "00000000" {
			continue
		}
		flags, err := strconv.ParseUint(f[3], 16, 32)
		if err != nil || flags&0x1 == 0 {
			continue
		}
		ip, err := hexIPv4(f[2])
		if err != nil {
			continue
		}
		return ip.String(), f[0], true
	}
	return "", "", false
}

// tcpEstablished is the st column value for ESTABLISHED sockets.
const tcpEstablished = "01"

// parseSockets reads /proc/net/tcp or /proc/net/udp. For tcp only
// established sockets are returned; udp sockets with a remote peer are kept.
func parseSockets(r io.Reader, protocol string) ([]domain.FlowEntry, error) {
	sc := bufio.NewScanner(r)
	var out []domain.FlowEntry
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		f := strings.Fields(sc.Text())
		if len(f) < 10 {
			continue
		}
		if protocol == "tcp" && f[3] != tcpEstablished {
			continue
		}
		srcIP, srcPort, err := hexEndpoint(f[1])
		if err != nil {
			return nil, err
		}
		dstIP, dstPort, err := hexEndpoint(f[2])
		if err != nil {
			return nil, err
		}
		if dstPort == 0 || dstIP.IsUnspecified() {
			continue
		}
		out = append(out, domain.FlowEntry{
			FlowID:          protocol + ":" + f[9],
			SourceIP:        srcIP.String(),
			DestinationIP:   dstIP.String(),
			SourcePort:      srcPort,
			DestinationPort: dstPort,
			Protocol:        protocol,
		})
	}
	return out, sc.Err()
}

// hexEndpoint decodes "0100007F:1F90" (little-endian IPv4, big-endian port).
func hexEndpoint(s string) (net.IP, int, error) {
	addr, port, ok := strings.Cut(s, ":")
	if !ok {
		return nil, 0, fmt.Errorf("malformed endpoint %q", s)
	}
	ip, err := hexIPv4(addr)
	if err != nil {
		return nil, 0, err
	}
	p, err := strconv.ParseUint(port, 16, 16)
	if err != nil {
		return nil, 0, fmt.Errorf("malformed port in %q: %w", s, err)
	}
	return ip, int(p), nil
}

func hexIPv4(s string) (net.IP, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 4 {
		return nil, fmt.Errorf("malformed ipv4 %q", s)
	}
	v := binary.LittleEndian.Uint32(b)
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip, nil
}
