package scd2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cdc-cli/internal/model"
)

func ptr(t time.Time) *time.Time { return &t }

func TestCheckInvariants_Clean(t *testing.T) {
	t1, t2, t3 := t0.Add(time.Minute), t0.Add(2*time.Minute), t0.Add(3*time.Minute)
	vs := []model.Version{
		{SurrogateKey: 1, NaturalKey: 1, ValidFrom: t0, ValidTo: ptr(t1), SourceOperation: model.OpInsert},
		{SurrogateKey: 2, NaturalKey: 1, ValidFrom: t1, ValidTo: ptr(t2), SourceOperation: model.OpUpdate},
		// Re-created after a delete: the gap is allowed.
		{SurrogateKey: 3, NaturalKey: 1, ValidFrom: t3, IsCurrent: true, SourceOperation: model.OpInsert},
		{SurrogateKey: 4, NaturalKey: 2, ValidFrom: t0, IsCurrent: true, SourceOperation: model.OpInsert},
	}
	assert.Empty(t, CheckInvariants(vs))
}

func TestCheckInvariants_Violations(t *testing.T) {
	t1, t2 := t0.Add(time.Minute), t0.Add(2*time.Minute)

	tests := []struct {
		name string
		vs   []model.Version
		rule string
	}{
		{"two current", []model.Version{
			{SurrogateKey: 1, NaturalKey: 1, ValidFrom: t0, IsCurrent: true},
			{SurrogateKey: 2, NaturalKey: 1, ValidFrom: t1, IsCurrent: true},
		}, RuleMultipleCurrent},
		{"closed without valid_to", []model.Version{
			{SurrogateKey: 1, NaturalKey: 1, ValidFrom: t0},
		}, RuleCurrentFlag},
		{"empty interval", []model.Version{
			{SurrogateKey: 1, NaturalKey: 1, ValidFrom: t1, ValidTo: ptr(t1)},
		}, RuleEmptyInterval},
		{"overlap", []model.Version{
			{SurrogateKey: 1, NaturalKey: 1, ValidFrom: t0, ValidTo: ptr(t2)},
			{SurrogateKey: 2, NaturalKey: 1, ValidFrom: t1, IsCurrent: true, SourceOperation: model.OpUpdate},
		}, RuleOverlap},
		{"gap on update", []model.Version{
			{SurrogateKey: 1, NaturalKey: 1, ValidFrom: t0, ValidTo: ptr(t1)},
			{SurrogateKey: 2, NaturalKey: 1, ValidFrom: t2, IsCurrent: true, SourceOperation: model.OpUpdate},
		}, RuleGap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viols := CheckInvariants(tt.vs)
			require.NotEmpty(t, viols)
			rules := make([]string, len(viols))
			for i, v := range viols {
				rules[i] = v.Rule
			}
			assert.Contains(t, rules, tt.rule)
		})
	}
}
