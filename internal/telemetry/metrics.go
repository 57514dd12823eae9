package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SamplesTotal counts snapshots produced by the sampler, by status
	SamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nethealth",
			Name:      "snapshots_total",
			Help:      "Total number of snapshots produced by the sampler",
		},
		[]string{"status"},
	)

	// CycleDuration observes the wall time of a full sampling cycle
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nethealth",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a sampling cycle from probe to publish",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	// MetricValue exposes the latest fresh reading of each metric stream
	MetricValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nethealth",
			Name:      "metric_value",
			Help:      "Latest sampled value of a network metric",
		},
		[]string{"metric"},
	)

	// DevicesVisible is the size of the latest device list
	DevicesVisible = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nethealth",
			Name:      "devices_visible",
			Help:      "Number of devices in the latest snapshot",
		},
	)

	// TopologyRejected counts topology updates refused for referential integrity
	TopologyRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nethealth",
			Name:      "topology_rejected_total",
			Help:      "Total number of topology updates rejected as invalid",
		},
	)

	// AlertsTotal counts intrusion events emitted, by rule
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nethealth",
			Name:      "alerts_total",
			Help:      "Total number of intrusion events emitted",
		},
		[]string{"rule"},
	)

	// EntityStates tracks how many monitored entities are in each detector state
	EntityStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nethealth",
			Name:      "entity_states",
			Help:      "Number of monitored entities per anomaly state",
		},
		[]string{"state"},
	)

	// SubscriberFailures counts isolated subscriber errors and panics
	SubscriberFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nethealth",
			Name:      "subscriber_failures_total",
			Help:      "Total number of failed subscriber deliveries",
		},
		[]string{"topic", "subscriber"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(SamplesTotal)
		prometheus.DefaultRegisterer.Register(CycleDuration)
		prometheus.DefaultRegisterer.Register(MetricValue)
		prometheus.DefaultRegisterer.Register(DevicesVisible)
		prometheus.DefaultRegisterer.Register(TopologyRejected)
		prometheus.DefaultRegisterer.Register(AlertsTotal)
		prometheus.DefaultRegisterer.Register(EntityStates)
		prometheus.DefaultRegisterer.Register(SubscriberFailures)
	})
}
