package reporting

import (
	"math"
	"sort"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// RiskCalculator scores network health from the latest snapshot and alerts.
type RiskCalculator struct{}

// NewRiskCalculator creates a new risk calculator instance
func NewRiskCalculator() *RiskCalculator {
	return &RiskCalculator{}
}

// severityWeight is the score cost of one confirmed event.
var severityWeight = map[domain.AlertSeverity]float64{
	domain.SeverityCritical: 1.0,
	domain.SeverityHigh:     0.5,
	domain.SeverityMedium:   0.25,
	domain.SeverityLow:      0.1,
}

// CalculateHealthScore returns a 0-10 score, 10 being healthy.
// Packet loss costs one point per 10%, latency above 100 ms one point per
// extra 100 ms, a degraded snapshot two points; events cost by severity.
func (rc *RiskCalculator) CalculateHealthScore(latest domain.Snapshot, alerts []domain.IntrusionEvent) float64 {
	if latest.Version == 0 {
		return 0
	}

	score := 10.0
	score -= latest.Metrics.PacketLoss / 10
	if lat := latest.Metrics.Latency; lat > 100 {
		score -= (lat - 100) / 100
	}
	if latest.IsDegraded() {
		score -= 2
	}
	for _, a := range alerts {
		score -= severityWeight[a.Severity]
	}
	return math.Max(0, math.Min(score, 10))
}

// GetHealthLevel converts numeric score to human-readable level
func (rc *RiskCalculator) GetHealthLevel(score float64) string {
	switch {
	case score >= 8.0:
		return "Healthy"
	case score >= 6.0:
		return "Fair"
	case score >= 4.0:
		return "Degraded"
	default:
		return "Critical"
	}
}

// CountBySeverity buckets events by severity.
func (rc *RiskCalculator) CountBySeverity(alerts []domain.IntrusionEvent) map[domain.AlertSeverity]int {
	counts := map[domain.AlertSeverity]int{
		domain.SeverityCritical: 0,
		domain.SeverityHigh:     0,
		domain.SeverityMedium:   0,
		domain.SeverityLow:      0,
	}
	for _, a := range alerts {
		counts[a.Severity]++
	}
	return counts
}

// CalculateTopRules ranks rules by event count, then by worst severity.
func (rc *RiskCalculator) CalculateTopRules(alerts []domain.IntrusionEvent, limit int) []domain.RuleActivity {
	byRule := make(map[string]*domain.RuleActivity)
	entities := make(map[string]map[string]struct{})

	for _, a := range alerts {
		act, ok := byRule[a.RuleName]
		if !ok {
			act = &domain.RuleActivity{RuleName: a.RuleName, MaxSeverity: a.Severity}
			byRule[a.RuleName] = act
			entities[a.RuleName] = make(map[string]struct{})
		}
		act.Events++
		entities[a.RuleName][a.EntityID] = struct{}{}
		if severityRank(a.Severity) > severityRank(act.MaxSeverity) {
			act.MaxSeverity = a.Severity
		}
	}

	out := make([]domain.RuleActivity, 0, len(byRule))
	for name, act := range byRule {
		act.Entities = len(entities[name])
		out = append(out, *act)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Events != out[j].Events {
			return out[i].Events > out[j].Events
		}
		if ri, rj := severityRank(out[i].MaxSeverity), severityRank(out[j].MaxSeverity); ri != rj {
			return ri > rj
		}
		return out[i].RuleName < out[j].RuleName
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func severityRank(s domain.AlertSeverity) int {
	switch s {
	case domain.SeverityCritical:
		return 4
	case domain.SeverityHigh:
		return 3
	case domain.SeverityMedium:
		return 2
	case domain.SeverityLow:
		return 1
	}
	return 0
}
