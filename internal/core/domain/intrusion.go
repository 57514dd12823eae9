package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertSeverity is derived from the event confidence.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
	SeverityLow      AlertSeverity = "low"
)

// SeverityFor buckets a confidence score.
func SeverityFor(confidence float64) AlertSeverity {
	switch {
	case confidence >= 0.9:
		return SeverityCritical
	case confidence >= 0.7:
		return SeverityHigh
	case confidence >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IntrusionEvent is emitted once per confirmed anomaly episode.
type IntrusionEvent struct {
	ID              string        `json:"id"`
	EntityID        string        `json:"entity_id"`
	RuleName        string        `json:"rule_name"`
	SourceIP        string        `json:"source_ip,omitempty"`
	DestinationIP   string        `json:"destination_ip,omitempty"`
	SourcePort      int           `json:"source_port,omitempty"`
	DestinationPort int           `json:"destination_port,omitempty"`
	Protocol        string        `json:"protocol,omitempty"`
	Confidence      float64       `json:"confidence"`
	Details         string        `json:"details"`
	Timestamp       time.Time     `json:"timestamp"`
	Severity        AlertSeverity `json:"severity"`
}

// NewIntrusionEvent stamps a fresh id, clamps the confidence to [0,1] and
// derives the severity.
func NewIntrusionEvent(entityID, ruleName string, confidence float64, details string, at time.Time) IntrusionEvent {
	confidence = Clamp01(confidence)
	return IntrusionEvent{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		RuleName:   ruleName,
		Confidence: confidence,
		Details:    details,
		Timestamp:  at,
		Severity:   SeverityFor(confidence),
	}
}

// Clamp01 limits v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
