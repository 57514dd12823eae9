package reporting

import (
	"fmt"
	"strings"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/services/anomaly"
)

// maxRecommendations caps the list rendered in a report.
const maxRecommendations = 5

// RecommendationEngine turns the observed state into operator actions.
type RecommendationEngine struct{}

// NewRecommendationEngine creates a new recommendation engine instance
func NewRecommendationEngine() *RecommendationEngine {
	return &RecommendationEngine{}
}

// GenerateRecommendations derives recommendations from the latest snapshot
// and the entities that raised events, most urgent first.
func (re *RecommendationEngine) GenerateRecommendations(latest domain.Snapshot, alerts []domain.IntrusionEvent) []domain.Recommendation {
	var recs []domain.Recommendation

	if latest.IsDegraded() {
		recs = append(recs, domain.Recommendation{
			Priority:    "critical",
			Title:       "Restore measurement path",
			Description: fmt.Sprintf("The last sample was degraded: %s.", latest.Reason),
			Actions: []string{
				"Check the default route and the uplink interface",
				"Verify the probe target is reachable",
			},
		})
	}

	affected := make(map[string]map[string]struct{})
	for _, a := range alerts {
		group := entityGroup(a.EntityID)
		if affected[group] == nil {
			affected[group] = make(map[string]struct{})
		}
		affected[group][a.EntityID] = struct{}{}
	}

	for _, group := range []string{anomaly.EntityFlow, anomaly.EntityDevice, anomaly.EntityLink, anomaly.EntityMetric} {
		if n := len(affected[group]); n > 0 {
			recs = append(recs, recommendationFor(group, n))
		}
	}

	if len(recs) == 0 {
		recs = append(recs, domain.Recommendation{
			Priority:    "low",
			Title:       "Keep baselines current",
			Description: "No anomalies were confirmed in the reporting period.",
			Actions: []string{
				"Review the device allow list after planned changes",
				"Re-tune spike thresholds when link capacity changes",
			},
		})
	}

	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

func entityGroup(entityID string) string {
	for _, p := range []string{anomaly.EntityMetric, anomaly.EntityDevice, anomaly.EntityLink, anomaly.EntityFlow} {
		if strings.HasPrefix(entityID, p) {
			return p
		}
	}
	return ""
}

func recommendationFor(group string, count int) domain.Recommendation {
	switch group {
	case anomaly.EntityFlow:
		return domain.Recommendation{
			Priority:    "critical",
			Title:       "Close watched service ports",
			Description: fmt.Sprintf("%d connections reached watched ports.", count),
			Actions: []string{
				"Identify the hosts opening these connections",
				"Block legacy services such as telnet at the firewall",
			},
		}
	case anomaly.EntityDevice:
		return domain.Recommendation{
			Priority:    "high",
			Title:       "Investigate unknown devices",
			Description: fmt.Sprintf("%d devices outside the allow list joined the network.", count),
			Actions: []string{
				"Match the MAC vendor prefix against known hardware",
				"Add legitimate devices to the allow list",
			},
		}
	case anomaly.EntityLink:
		return domain.Recommendation{
			Priority:    "high",
			Title:       "Review topology changes",
			Description: fmt.Sprintf("%d links appeared outside the baseline topology.", count),
			Actions: []string{
				"Confirm the new links against change records",
				"Allow expected links in the rule configuration",
			},
		}
	default:
		return domain.Recommendation{
			Priority:    "medium",
			Title:       "Investigate link quality",
			Description: fmt.Sprintf("%d metrics crossed their thresholds.", count),
			Actions: []string{
				"Compare latency and loss against the uplink provider's SLA",
				"Look for saturating flows during the affected windows",
			},
		}
	}
}
