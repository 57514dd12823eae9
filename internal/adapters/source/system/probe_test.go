package system

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoReply(t *testing.T, id, seq uint16) []byte {
	t.Helper()
	reply := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoReply, 0),
		Id:       id,
		Seq:      seq,
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{ComputeChecksums: true}, reply, gopacket.Payload("nethealth")))
	return buf.Bytes()
}

func TestEncodeEchoRequest(t *testing.T) {
	msg, err := encodeEchoRequest(0x1234, 7, []byte("nethealth"))
	require.NoError(t, err)

	pkt := gopacket.NewPacket(msg, layers.LayerTypeICMPv4, gopacket.Default)
	l := pkt.Layer(layers.LayerTypeICMPv4)
	require.NotNil(t, l)
	icmp := l.(*layers.ICMPv4)
	assert.Equal(t, uint8(layers.ICMPv4TypeEchoRequest), icmp.TypeCode.Type())
	assert.Equal(t, uint16(0x1234), icmp.Id)
	assert.Equal(t, uint16(7), icmp.Seq)
	assert.NotZero(t, icmp.Checksum)

	// A request is not a reply to itself.
	assert.False(t, isEchoReply(msg, 0x1234, 7))
}

func TestIsEchoReply(t *testing.T) {
	reply := echoReply(t, 42, 3)
	assert.True(t, isEchoReply(reply, 42, 3))
	assert.False(t, isEchoReply(reply, 42, 4))
	assert.False(t, isEchoReply(reply, 41, 3))
	assert.False(t, isEchoReply([]byte{0x01}, 42, 3))
}

type scriptedProber struct {
	results []error
	rtt     time.Duration
}

func (p *scriptedProber) RoundTrip(ctx context.Context, target string, seq int) (time.Duration, error) {
	if err := p.results[seq]; err != nil {
		return 0, err
	}
	return p.rtt, nil
}

func (p *scriptedProber) Close() error { return nil }

func TestMeasure(t *testing.T) {
	lost := errors.New("timeout")

	p := &scriptedProber{results: []error{nil, lost, nil, nil}, rtt: 20 * time.Millisecond}
	lat, loss, err := measure(context.Background(), p, "192.168.1.1", 4, time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, lat, 0.001)
	assert.InDelta(t, 25.0, loss, 0.001)

	p = &scriptedProber{results: []error{lost, lost}}
	lat, loss, err = measure(context.Background(), p, "192.168.1.1", 2, 800*time.Millisecond)
	assert.ErrorIs(t, err, errAllLost)
	assert.Equal(t, 100.0, loss)
	assert.Equal(t, 800.0, lat)
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	p := &TCPProber{Port: port, Timeout: time.Second}
	rtt, err := p.RoundTrip(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}
