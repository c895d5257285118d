package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/corep/internal/fieldmap"
	"github.com/DreamCats/corep/internal/template"
)

func populated(values map[string]float64) []template.PopulatedField {
	out := make([]template.PopulatedField, 0, len(values))
	for id, v := range values {
		out = append(out, template.PopulatedField{FieldID: id, Value: v, Confidence: template.ConfidenceHigh})
	}
	return out
}

func byRule(t *testing.T, results []Result, id string) Result {
	t.Helper()
	for _, r := range results {
		if r.RuleID == id {
			return r
		}
	}
	t.Fatalf("no result for %s", id)
	return Result{}
}

func TestValidate_RuleOrder(t *testing.T) {
	results := Validate(nil)
	require.Len(t, results, 6)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.RuleID
		require.NotNil(t, r.Expected)
		require.NotNil(t, r.Actual)
	}
	assert.Equal(t, []string{"V001", "V002", "V003", "V004", "V005", "V006"}, ids)
}

func TestValidate_EmptyFieldsAllZero(t *testing.T) {
	for _, r := range Validate(nil) {
		assert.True(t, r.Passed, r.RuleID)
		assert.Equal(t, 0.0, *r.Actual, r.RuleID)
		assert.Equal(t, 0.0, *r.Expected, r.RuleID)
		assert.Empty(t, r.Message)
	}
}

func TestValidate_TierExample(t *testing.T) {
	results := Validate(populated(map[string]float64{"r0020": 100, "r0300": 20, "r0030": 80}))

	v002 := byRule(t, results, "V002")
	assert.True(t, v002.Passed)
	assert.Equal(t, 100.0, *v002.Actual)
	assert.Equal(t, 100.0, *v002.Expected)

	v001 := byRule(t, results, "V001")
	assert.False(t, v001.Passed)
	assert.Equal(t, 0.0, *v001.Actual)
	assert.Equal(t, 100.0, *v001.Expected)
	assert.Equal(t, "r0010 (0) != r0020 (100) + r0500 (0) = 100", v001.Message)
	assert.Equal(t, "Own Funds = Tier 1 + Tier 2", v001.Description)
}

func TestValidate_CET1Sign(t *testing.T) {
	neg := byRule(t, Validate(populated(map[string]float64{"r0030": -5})), "V006")
	assert.False(t, neg.Passed)
	assert.Equal(t, -5.0, *neg.Actual)
	assert.Equal(t, 0.0, *neg.Expected)
	assert.Equal(t, "CET1 (-5) is negative", neg.Message)

	zero := byRule(t, Validate(populated(map[string]float64{"r0030": 0})), "V006")
	assert.True(t, zero.Passed)
}

func TestValidate_OwnFundsSign(t *testing.T) {
	r := byRule(t, Validate(populated(map[string]float64{"r0010_c0010": -0.25})), "V005")
	assert.False(t, r.Passed)
	assert.Equal(t, "Own Funds (-0.25) is negative", r.Message)
}

func TestValidate_Tolerance(t *testing.T) {
	tests := []struct {
		name   string
		r0010  float64
		passed bool
	}{
		{"exact", 100, true},
		{"within", 100.49, true},
		{"below within", 99.6, true},
		{"boundary is a failure", 100.5, false},
		{"outside", 101, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := byRule(t, Validate(populated(map[string]float64{
				"r0010": tt.r0010,
				"r0020": 60,
				"r0500": 40,
			})), "V001")
			assert.Equal(t, tt.passed, r.Passed)
		})
	}
}

func TestValidate_CET1Breakdown(t *testing.T) {
	values := map[string]float64{
		"r0030_c0010": 1150,
		"r0040_c0010": 1000,
		"r0050_c0010": 600,
		"r0060_c0010": 300,
		"r0070_c0010": 100,
		"r0100_c0010": 400,
		"r0110_c0010": 50,
		"r0130_c0010": 0,
		"r0200_c0010": 200,
		"r0210_c0010": 75,
		"r0220_c0010": 25,
	}

	results := Validate(populated(values))
	assert.True(t, byRule(t, results, "V003").Passed)
	assert.True(t, byRule(t, results, "V004").Passed)

	values["r0060_c0010"] = 200
	values["r0030_c0010"] = 900
	results = Validate(populated(values))

	v003 := byRule(t, results, "V003")
	assert.False(t, v003.Passed)
	assert.Equal(t, "r0030 (900) != calculated (1150)", v003.Message)

	v004 := byRule(t, results, "V004")
	assert.False(t, v004.Passed)
	assert.Equal(t, 900.0, *v004.Expected)
	assert.Equal(t, "r0040 (1000) != r0050+r0060+r0070 (900)", v004.Message)
}

func TestGet(t *testing.T) {
	m := fieldmap.Map{"r0010": 1, "r0020_c0010": 2, "r0030_c0020": 3}
	assert.Equal(t, 1.0, Get(m, "r0010", 0))
	assert.Equal(t, 2.0, Get(m, "r0020", 0))
	// Only the default column is consulted
	assert.Equal(t, 9.0, Get(m, "r0030", 9))
}

func TestSummaryAndFailed(t *testing.T) {
	results := Validate(populated(map[string]float64{"r0030": -5}))
	passed, failed := Summary(results)
	assert.Equal(t, 6, passed+failed)

	var ids []string
	for _, r := range Failed(results) {
		ids = append(ids, r.RuleID)
	}
	// CET1 of -5 breaks Tier 1, the CET1 breakdown and the CET1 sign check
	assert.Equal(t, []string{"V002", "V003", "V006"}, ids)
	assert.Equal(t, 3, failed)
}
