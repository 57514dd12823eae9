package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Prober measures one round trip to a target.
type Prober interface {
	RoundTrip(ctx context.Context, target string, seq int) (time.Duration, error)
	Close() error
}

// encodeEchoRequest builds an ICMPv4 echo request with a checksum.
func encodeEchoRequest(id, seq uint16, payload []byte) ([]byte, error) {
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       id,
		Seq:      seq,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, icmp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// isEchoReply reports whether data is the echo reply matching id and seq.
func isEchoReply(data []byte, id, seq uint16) bool {
	pkt := gopacket.NewPacket(data, layers.LayerTypeICMPv4, gopacket.NoCopy)
	l := pkt.Layer(layers.LayerTypeICMPv4)
	if l == nil {
		return false
	}
	icmp := l.(*layers.ICMPv4)
	return icmp.TypeCode.Type() == layers.ICMPv4TypeEchoReply && icmp.Id == id && icmp.Seq == seq
}

// ICMPProber sends echo requests over a raw socket; it needs CAP_NET_RAW.
type ICMPProber struct {
	conn    net.PacketConn
	id      uint16
	timeout time.Duration
}

// NewICMPProber opens the raw ICMP socket.
func NewICMPProber(timeout time.Duration) (*ICMPProber, error) {
	conn, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("opening icmp socket: %w", err)
	}
	return &ICMPProber{conn: conn, id: uint16(os.Getpid() & 0xffff), timeout: timeout}, nil
}

func (p *ICMPProber) RoundTrip(ctx context.Context, target string, seq int) (time.Duration, error) {
	dst, err := net.ResolveIPAddr("ip4", target)
	if err != nil {
		return 0, err
	}
	msg, err := encodeEchoRequest(p.id, uint16(seq), []byte("nethealth"))
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.conn.SetDeadline(deadline); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := p.conn.WriteTo(msg, dst); err != nil {
		return 0, err
	}
	buf := make([]byte, 1500)
	for {
		n, from, err := p.conn.ReadFrom(buf)
		if err != nil {
			return 0, err
		}
		if from.String() == dst.String() && isEchoReply(buf[:n], p.id, uint16(seq)) {
			return time.Since(start), nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
}

func (p *ICMPProber) Close() error { return p.conn.Close() }

// TCPProber times a TCP handshake; used when raw sockets are not permitted.
type TCPProber struct {
	Port    int
	Timeout time.Duration
}

func (p *TCPProber) RoundTrip(ctx context.Context, target string, _ int) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(target, fmt.Sprint(p.Port)))
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)
	conn.Close()
	return rtt, nil
}

func (p *TCPProber) Close() error { return nil }

// errAllLost is returned by measure when no probe came back.
var errAllLost = errors.New("all probes lost")

// measure sends count probes and returns mean RTT and loss percentage.
// When every probe is lost the latency is the probe timeout.
func measure(ctx context.Context, p Prober, target string, count int, timeout time.Duration) (latencyMs, lossPct float64, err error) {
	var total time.Duration
	ok := 0
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
		rtt, err := p.RoundTrip(ctx, target, i)
		if err != nil {
			continue
		}
		total += rtt
		ok++
	}
	lossPct = float64(count-ok) / float64(count) * 100
	if ok == 0 {
		return float64(timeout.Milliseconds()), lossPct, errAllLost
	}
	return float64(total.Microseconds()) / float64(ok) / 1000, lossPct, nil
}
