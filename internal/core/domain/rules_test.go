package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComparator_Compare(t *testing.T) {
	assert.True(t, CompGreater.Compare(6, 5))
	assert.False(t, CompGreater.Compare(5, 5))
	assert.True(t, CompGreaterEqual.Compare(5, 5))
	assert.True(t, CompLess.Compare(4, 5))
	assert.True(t, CompLessEqual.Compare(5, 5))
	assert.True(t, CompEqual.Compare(5, 5))
	assert.True(t, CompNotEqual.Compare(4, 5))
	assert.False(t, Comparator("~").Compare(4, 5))
}

func TestRule_ApplyDefaults(t *testing.T) {
	r := Rule{Name: "spike", Kind: RuleSpike, Metric: MetricLatency, Value: 3}
	r.ApplyDefaults()

	assert.Equal(t, DefaultRuleWindow, r.Window)
	assert.Equal(t, DefaultRuleSeverity, r.Severity)
	assert.Equal(t, CompGreater, r.Comparator)
	assert.NoError(t, r.Validate())
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr error
	}{
		{"valid threshold", Rule{Name: "loss", Kind: RuleThreshold, Metric: MetricPacketLoss, Comparator: CompGreater, Value: 5, Window: 2, Severity: 0.5}, nil},
		{"empty name", Rule{Kind: RuleThreshold, Window: 1}, ErrEmptyRuleName},
		{"bad kind", Rule{Name: "x", Kind: "ml", Window: 1}, ErrInvalidRuleKind},
		{"bad metric", Rule{Name: "x", Kind: RuleThreshold, Metric: "jitter", Comparator: CompGreater, Window: 1}, ErrInvalidMetric},
		{"bad comparator", Rule{Name: "x", Kind: RuleThreshold, Metric: MetricLatency, Comparator: "=>", Window: 1}, ErrInvalidComparator},
		{"zero window", Rule{Name: "x", Kind: RuleThreshold, Metric: MetricLatency, Comparator: CompGreater}, ErrInvalidWindow},
		{"severity too high", Rule{Name: "x", Kind: RuleThreshold, Metric: MetricLatency, Comparator: CompGreater, Window: 1, Severity: 2}, ErrInvalidSeverity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRule_ValidateKindSpecific(t *testing.T) {
	assert.Error(t, (&Rule{Name: "d", Kind: RuleUnknownDevice, Window: 1}).Validate())
	assert.NoError(t, (&Rule{Name: "d", Kind: RuleUnknownDevice, Window: 1, Learn: true}).Validate())
	assert.Error(t, (&Rule{Name: "l", Kind: RuleUnexpectedLink, Window: 1, Allow: []string{"s1"}}).Validate())
	assert.NoError(t, (&Rule{Name: "l", Kind: RuleUnexpectedLink, Window: 1, Allow: []string{"s1->s2"}}).Validate())
	assert.Error(t, (&Rule{Name: "p", Kind: RulePortWatch, Window: 1}).Validate())
	assert.Error(t, (&Rule{Name: "p", Kind: RulePortWatch, Window: 1, Ports: []int{70000}}).Validate())
	assert.NoError(t, (&Rule{Name: "p", Kind: RulePortWatch, Window: 1, Ports: []int{23}}).Validate())
	assert.Error(t, (&Rule{Name: "s", Kind: RuleSpike, Metric: MetricLatency, Comparator: CompGreater, Window: 1}).Validate())
	assert.Error(t, (&Rule{Name: "s", Kind: RuleSpike, Metric: MetricLatency, Comparator: CompGreater, Window: 1, Value: 3, Baseline: 2}).Validate())
}

func TestValidateRules_Duplicate(t *testing.T) {
	r := Rule{Name: "loss", Kind: RuleThreshold, Metric: MetricPacketLoss, Comparator: CompGreater, Value: 5, Window: 2, Severity: 0.5}
	assert.ErrorIs(t, ValidateRules([]Rule{r, r}), ErrDuplicateRule)
	assert.NoError(t, ValidateRules([]Rule{r}))
}
