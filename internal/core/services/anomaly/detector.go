// Package anomaly runs named rules over each snapshot and tracks every
// flagged entity through the Normal, Suspect and Confirmed states.
package anomaly

import (
	"fmt"
	"strings"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
)

// DefaultCooldownCycles is the number of quiet cycles after which a
// confirmed entity returns to Normal.
const DefaultCooldownCycles = 3

// State of a tracked entity.
type State string

const (
	StateNormal    State = "normal"
	StateSuspect   State = "suspect"
	StateConfirmed State = "confirmed"
)

// States lists every state, for gauges.
var States = []State{StateNormal, StateSuspect, StateConfirmed}

type episode struct {
	state State
	// age counts the cycles since the first firing on which the entity's
	// part was evaluated; stale cycles do not advance it.
	age      int
	window   int
	hits     int
	quiet    int
	severity float64
	rule     string
	finding  Finding
}

// hit folds one firing into the episode.
func (e *episode) hit(f firing) {
	e.hits++
	e.quiet = 0
	if f.severity > e.severity {
		e.severity = f.severity
		e.rule = f.rule
		e.finding = f.finding
	}
}

func (e *episode) confidence() float64 {
	return domain.Clamp01(0.7*e.severity + 0.3*(1-1/float64(e.hits)))
}

type firing struct {
	rule     string
	severity float64
	window   int
	finding  Finding
}

// Detector is the per-entity anomaly state machine.
// It is owned by the sampling cycle and is not safe for concurrent use.
type Detector struct {
	evaluators []Evaluator
	cooldown   int
	entities   map[string]*episode
}

// NewDetector validates rules and builds their evaluators.
func NewDetector(rules []domain.Rule, cooldownCycles int) (*Detector, error) {
	if cooldownCycles < 1 {
		return nil, fmt.Errorf("%w: cooldown cycles must be at least 1, got %d", domain.ErrConfiguration, cooldownCycles)
	}
	prepared := make([]domain.Rule, len(rules))
	for i, r := range rules {
		r.ApplyDefaults()
		prepared[i] = r
	}
	if err := domain.ValidateRules(prepared); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	d := &Detector{
		cooldown: cooldownCycles,
		entities: make(map[string]*episode),
	}
	for _, r := range prepared {
		ev, err := NewEvaluator(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
		}
		d.evaluators = append(d.evaluators, ev)
	}
	return d, nil
}

// Rules returns the effective rules, defaults applied.
func (d *Detector) Rules() []domain.Rule {
	out := make([]domain.Rule, len(d.evaluators))
	for i, ev := range d.evaluators {
		out[i] = ev.Rule()
	}
	return out
}

// Evaluate advances every entity by one cycle and returns the events of
// episodes that were confirmed during it.
func (d *Detector) Evaluate(obs Observation) []domain.IntrusionEvent {
	if obs.Snapshot.Status == domain.StatusCancelled {
		return nil
	}

	fired := make(map[string]firing)
	var order []string
	for _, ev := range d.evaluators {
		rule := ev.Rule()
		for _, f := range ev.Evaluate(obs) {
			cur, seen := fired[f.EntityID]
			if !seen {
				order = append(order, f.EntityID)
			}
			if !seen || rule.Severity > cur.severity {
				w := rule.Window
				if seen && cur.window > w {
					w = cur.window
				}
				fired[f.EntityID] = firing{rule: rule.Name, severity: rule.Severity, window: w, finding: f}
			} else if rule.Window > cur.window {
				cur.window = rule.Window
				fired[f.EntityID] = cur
			}
		}
	}

	var events []domain.IntrusionEvent
	for _, id := range order {
		f := fired[id]
		ep, tracked := d.entities[id]
		if tracked && ep.state == StateSuspect {
			ep.age++
			if ep.age >= ep.window {
				tracked = false
			}
		}
		if !tracked {
			ep = &episode{state: StateSuspect, window: f.window}
			d.entities[id] = ep
			ep.hit(f)
			if ep.window <= 1 {
				ep.state = StateConfirmed
				events = append(events, d.event(id, ep, obs.Snapshot))
			}
			continue
		}

		ep.hit(f)
		if ep.state == StateSuspect {
			ep.state = StateConfirmed
			events = append(events, d.event(id, ep, obs.Snapshot))
		}
	}

	for id, ep := range d.entities {
		if _, ok := fired[id]; ok {
			continue
		}
		if !evaluated(id, obs.Snapshot) {
			continue
		}
		switch ep.state {
		case StateSuspect:
			ep.age++
			if ep.age+1 >= ep.window {
				delete(d.entities, id)
			}
		case StateConfirmed:
			ep.quiet++
			if ep.quiet >= d.cooldown {
				delete(d.entities, id)
			}
		}
	}
	return events
}

// evaluated reports whether the snapshot part backing an entity was fresh,
// so that its silence counts as a quiet cycle.
func evaluated(entityID string, snap domain.Snapshot) bool {
	switch {
	case strings.HasPrefix(entityID, EntityMetric):
		return !snap.IsStale(domain.PartMetrics)
	case strings.HasPrefix(entityID, EntityDevice):
		return !snap.IsStale(domain.PartDevices)
	case strings.HasPrefix(entityID, EntityLink):
		return !snap.IsStale(domain.PartTopology)
	case strings.HasPrefix(entityID, EntityFlow):
		return !snap.IsStale(domain.PartFlows)
	}
	return true
}

func (d *Detector) event(id string, ep *episode, snap domain.Snapshot) domain.IntrusionEvent {
	ev := domain.NewIntrusionEvent(id, ep.rule, ep.confidence(), ep.finding.Details, snap.Timestamp)
	ev.SourceIP = ep.finding.SourceIP
	ev.DestinationIP = ep.finding.DestinationIP
	ev.SourcePort = ep.finding.SourcePort
	ev.DestinationPort = ep.finding.DestinationPort
	ev.Protocol = ep.finding.Protocol
	return ev
}

// State returns the current state of an entity; untracked entities are Normal.
func (d *Detector) State(entityID string) State {
	if ep, ok := d.entities[entityID]; ok {
		return ep.state
	}
	return StateNormal
}

// Counts returns the number of tracked entities per non-normal state.
func (d *Detector) Counts() map[State]int {
	out := map[State]int{StateSuspect: 0, StateConfirmed: 0}
	for _, ep := range d.entities {
		out[ep.state]++
	}
	return out
}

// Tracked returns the number of entities held in memory.
func (d *Detector) Tracked() int {
	return len(d.entities)
}
