package domain

import "time"

// HealthReport aggregates the data rendered into an exported report.
type HealthReport struct {
	ID          string
	Title       string
	GeneratedAt time.Time
	GeneratedBy string
	Period      DateRange

	Latest  Snapshot
	Stats   map[MetricKind]SeriesStats
	Alerts  []IntrusionEvent
	Devices []DeviceRecord

	Score            float64 // 0-10, 10 is healthy
	Level            string
	AlertsBySeverity map[AlertSeverity]int
	TopRules         []RuleActivity
	Recommendations  []Recommendation
}

// DateRange is a closed time interval.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in the range. A zero bound is open.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// RuleActivity counts the confirmed events of one rule.
type RuleActivity struct {
	Rank        int
	RuleName    string
	Events      int
	Entities    int
	MaxSeverity AlertSeverity
}

// Recommendation is a suggested operator action.
type Recommendation struct {
	Priority    string
	Title       string
	Description string
	Actions     []string
}
