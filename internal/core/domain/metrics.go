package domain

import (
	"fmt"
	"math"
	"time"
)

// MetricKind identifies one metric stream.
type MetricKind string

const (
	MetricBandwidth  MetricKind = "bandwidth"   // Mbps
	MetricLatency    MetricKind = "latency"     // ms
	MetricPacketLoss MetricKind = "packet_loss" // percent
)

// MetricKinds lists every stream in a fixed order.
var MetricKinds = []MetricKind{MetricBandwidth, MetricLatency, MetricPacketLoss}

// IsValid reports whether k names a known stream.
func (k MetricKind) IsValid() bool {
	switch k {
	case MetricBandwidth, MetricLatency, MetricPacketLoss:
		return true
	}
	return false
}

// MetricSample is one bandwidth/latency/loss measurement.
// Values are validated by NewMetricSample and must not be modified afterwards.
type MetricSample struct {
	Timestamp  time.Time `json:"timestamp"`
	Bandwidth  float64   `json:"bandwidth"`
	Latency    float64   `json:"latency"`
	PacketLoss float64   `json:"packet_loss"`
}

// NewMetricSample validates and builds a sample.
func NewMetricSample(ts time.Time, bandwidth, latency, packetLoss float64) (MetricSample, error) {
	for _, v := range []struct {
		kind  MetricKind
		value float64
	}{
		{MetricBandwidth, bandwidth},
		{MetricLatency, latency},
		{MetricPacketLoss, packetLoss},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) || v.value < 0 {
			return MetricSample{}, fmt.Errorf("%w: %s=%v", ErrInvalidSample, v.kind, v.value)
		}
	}
	if packetLoss > 100 {
		return MetricSample{}, fmt.Errorf("%w: packet_loss=%v exceeds 100", ErrInvalidSample, packetLoss)
	}

	return MetricSample{
		Timestamp:  ts,
		Bandwidth:  bandwidth,
		Latency:    latency,
		PacketLoss: packetLoss,
	}, nil
}

// Value returns the reading for one stream.
func (s MetricSample) Value(kind MetricKind) float64 {
	switch kind {
	case MetricBandwidth:
		return s.Bandwidth
	case MetricLatency:
		return s.Latency
	case MetricPacketLoss:
		return s.PacketLoss
	}
	return 0
}

// WithTimestamp returns a copy stamped with ts.
func (s MetricSample) WithTimestamp(ts time.Time) MetricSample {
	s.Timestamp = ts
	return s
}

// Point is a single (timestamp, value) entry of a metric stream.
type Point struct {
	Timestamp time.Time `json:"t"`
	Value     float64   `json:"v"`
}

// SeriesStats summarises the points held for one stream.
type SeriesStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ComputeStats derives sample statistics from points.
func ComputeStats(points []Point) SeriesStats {
	st := SeriesStats{Count: len(points)}
	if len(points) == 0 {
		return st
	}

	st.Min, st.Max = points[0].Value, points[0].Value
	var sum float64
	for _, p := range points {
		sum += p.Value
		if p.Value < st.Min {
			st.Min = p.Value
		}
		if p.Value > st.Max {
			st.Max = p.Value
		}
	}
	st.Mean = sum / float64(len(points))

	if len(points) < 2 {
		return st
	}
	var variance float64
	for _, p := range points {
		diff := p.Value - st.Mean
		variance += diff * diff
	}
	st.StdDev = math.Sqrt(variance / float64(len(points)-1))
	return st
}
