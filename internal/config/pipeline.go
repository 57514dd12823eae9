package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/services/anomaly"
	"github.com/lcalzada-xor/nethealth/internal/core/services/monitor"
	"github.com/lcalzada-xor/nethealth/internal/core/services/timeseries"
	"gopkg.in/yaml.v3"
)

// Pipeline is the YAML pipeline file:
//
//	samplingPeriodMs: 1000
//	maxPoints: 50
//	cooldownCycles: 3
//	rules:
//	  - name: high-loss
//	    kind: threshold
//	    metric: packet_loss
//	    comparator: ">"
//	    value: 5
type Pipeline struct {
	SamplingPeriodMs int           `yaml:"samplingPeriodMs"`
	MaxPoints        int           `yaml:"maxPoints"`
	CooldownCycles   int           `yaml:"cooldownCycles"`
	Rules            []domain.Rule `yaml:"rules"`
}

// LoadPipeline reads and validates a pipeline file.
func LoadPipeline(path string) (Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("%w: read pipeline file: %w", domain.ErrConfiguration, err)
	}
	p, err := ParsePipeline(data)
	if err != nil {
		return Pipeline{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParsePipeline decodes a pipeline document. Unknown keys are rejected.
func ParsePipeline(data []byte) (Pipeline, error) {
	var p Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Pipeline{}, fmt.Errorf("%w: parse pipeline: %w", domain.ErrConfiguration, err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

func (p *Pipeline) applyDefaults() {
	if p.SamplingPeriodMs == 0 {
		p.SamplingPeriodMs = int(monitor.DefaultSamplingPeriod.Milliseconds())
	}
	if p.MaxPoints == 0 {
		p.MaxPoints = timeseries.DefaultMaxPoints
	}
	if p.CooldownCycles == 0 {
		p.CooldownCycles = anomaly.DefaultCooldownCycles
	}
	for i := range p.Rules {
		p.Rules[i].ApplyDefaults()
	}
}

// Validate checks ranges and rules.
func (p Pipeline) Validate() error {
	if p.SamplingPeriodMs <= 0 {
		return fmt.Errorf("%w: samplingPeriodMs must be positive, got %d", domain.ErrConfiguration, p.SamplingPeriodMs)
	}
	if p.MaxPoints < 1 {
		return fmt.Errorf("%w: maxPoints must be at least 1, got %d", domain.ErrConfiguration, p.MaxPoints)
	}
	if p.CooldownCycles < 1 {
		return fmt.Errorf("%w: cooldownCycles must be at least 1, got %d", domain.ErrConfiguration, p.CooldownCycles)
	}
	if err := domain.ValidateRules(p.Rules); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	return nil
}
