package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain Errors for Rules
var (
	ErrInvalidRuleKind   = errors.New("invalid rule kind")
	ErrInvalidComparator = errors.New("invalid comparator")
	ErrInvalidMetric     = errors.New("invalid rule metric")
	ErrInvalidWindow     = errors.New("rule window must be at least 1")
	ErrInvalidSeverity   = errors.New("rule severity must be within [0,1]")
	ErrEmptyRuleName     = errors.New("rule name cannot be empty")
	ErrDuplicateRule     = errors.New("duplicate rule name")
)

// RuleKind selects the evaluator used for a rule.
type RuleKind string

const (
	RuleThreshold      RuleKind = "threshold"
	RuleSpike          RuleKind = "spike"
	RuleUnknownDevice  RuleKind = "unknown_device"
	RuleUnexpectedLink RuleKind = "unexpected_link"
	RulePortWatch      RuleKind = "port_watch"
)

// Comparator is a binary relation applied as "observed <op> value".
type Comparator string

const (
	CompGreater      Comparator = ">"
	CompGreaterEqual Comparator = ">="
	CompLess         Comparator = "<"
	CompLessEqual    Comparator = "<="
	CompEqual        Comparator = "=="
	CompNotEqual     Comparator = "!="
)

// Compare evaluates observed <c> threshold.
func (c Comparator) Compare(observed, threshold float64) bool {
	switch c {
	case CompGreater:
		return observed > threshold
	case CompGreaterEqual:
		return observed >= threshold
	case CompLess:
		return observed < threshold
	case CompLessEqual:
		return observed <= threshold
	case CompEqual:
		return observed == threshold
	case CompNotEqual:
		return observed != threshold
	}
	return false
}

func (c Comparator) isValid() bool {
	switch c {
	case CompGreater, CompGreaterEqual, CompLess, CompLessEqual, CompEqual, CompNotEqual:
		return true
	}
	return false
}

// Documented rule defaults, applied by ApplyDefaults.
const (
	DefaultRuleWindow   = 2
	DefaultRuleSeverity = 0.5
	MinSpikeBaseline    = 5
)

// Rule is a named detection criterion.
//
// Metric, Comparator and Value apply to threshold and spike rules (for spike
// rules Value is the z-score limit). Window is the number of cycles, counted
// from the first firing, within which a recurrence confirms the episode.
type Rule struct {
	Name       string     `yaml:"name" json:"name"`
	Kind       RuleKind   `yaml:"kind" json:"kind"`
	Metric     MetricKind `yaml:"metric,omitempty" json:"metric,omitempty"`
	Comparator Comparator `yaml:"comparator,omitempty" json:"comparator,omitempty"`
	Value      float64    `yaml:"value,omitempty" json:"value,omitempty"`
	Window     int        `yaml:"window,omitempty" json:"window,omitempty"`
	Severity   float64    `yaml:"severity,omitempty" json:"severity,omitempty"`

	// Baseline is the number of trailing points a spike rule compares against; 0 means all held points.
	Baseline int `yaml:"baseline,omitempty" json:"baseline,omitempty"`
	// Allow lists known MACs/IPs (unknown_device) or "src->dst" links (unexpected_link).
	Allow []string `yaml:"allow,omitempty" json:"allow,omitempty"`
	// Learn adds the devices of the first healthy snapshot to Allow.
	Learn bool `yaml:"learn,omitempty" json:"learn,omitempty"`
	// Ports are the watched destination ports of a port_watch rule.
	Ports []int `yaml:"ports,omitempty" json:"ports,omitempty"`
}

// ApplyDefaults fills the documented defaults for omitted fields.
func (r *Rule) ApplyDefaults() {
	if r.Window == 0 {
		r.Window = DefaultRuleWindow
	}
	if r.Severity == 0 {
		r.Severity = DefaultRuleSeverity
	}
	if r.Kind == RuleSpike && r.Comparator == "" {
		r.Comparator = CompGreater
	}
}

// Validate performs internal consistency checks on the rule.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyRuleName
	}
	if r.Window < 1 {
		return fmt.Errorf("rule %q: %w", r.Name, ErrInvalidWindow)
	}
	if r.Severity < 0 || r.Severity > 1 {
		return fmt.Errorf("rule %q: %w", r.Name, ErrInvalidSeverity)
	}

	switch r.Kind {
	case RuleThreshold, RuleSpike:
		if !r.Metric.IsValid() {
			return fmt.Errorf("rule %q: %w: %q", r.Name, ErrInvalidMetric, r.Metric)
		}
		if !r.Comparator.isValid() {
			return fmt.Errorf("rule %q: %w: %q", r.Name, ErrInvalidComparator, r.Comparator)
		}
		if r.Kind == RuleSpike && r.Value <= 0 {
			return fmt.Errorf("rule %q: spike limit must be positive", r.Name)
		}
		if r.Baseline < 0 || (r.Baseline > 0 && r.Baseline < MinSpikeBaseline) {
			return fmt.Errorf("rule %q: baseline must be 0 or at least %d", r.Name, MinSpikeBaseline)
		}
	case RuleUnknownDevice:
		if len(r.Allow) == 0 && !r.Learn {
			return fmt.Errorf("rule %q: unknown_device needs an allow list or learn", r.Name)
		}
	case RuleUnexpectedLink:
		for _, a := range r.Allow {
			if !strings.Contains(a, "->") {
				return fmt.Errorf("rule %q: allowed link %q must be \"src->dst\"", r.Name, a)
			}
		}
	case RulePortWatch:
		if len(r.Ports) == 0 {
			return fmt.Errorf("rule %q: port_watch needs ports", r.Name)
		}
		for _, p := range r.Ports {
			if p < 1 || p > 65535 {
				return fmt.Errorf("rule %q: invalid port %d", r.Name, p)
			}
		}
	default:
		return fmt.Errorf("rule %q: %w: %q", r.Name, ErrInvalidRuleKind, r.Kind)
	}
	return nil
}

// ValidateRules checks every rule and the uniqueness of names.
func ValidateRules(rules []Rule) error {
	names := make(map[string]struct{}, len(rules))
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return err
		}
		if _, dup := names[rules[i].Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateRule, rules[i].Name)
		}
		names[rules[i].Name] = struct{}{}
	}
	return nil
}
