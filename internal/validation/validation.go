// Package validation checks populated C 01.00 fields for arithmetic consistency.
package validation

import (
	"fmt"
	"math"
	"strconv"

	"github.com/DreamCats/corep/internal/fieldmap"
	"github.com/DreamCats/corep/internal/template"
)

const (
	// Tolerance absorbs rounding; values closer than this are equal
	Tolerance = 0.5

	// DefaultColumn is tried when a rule looks up a bare row id
	DefaultColumn = "c0010"
)

// Result is the outcome of one rule
type Result struct {
	RuleID      string   `json:"rule_id"`
	Description string   `json:"description"`
	Passed      bool     `json:"passed"`
	Expected    *float64 `json:"expected,omitempty"`
	Actual      *float64 `json:"actual,omitempty"`
	Message     string   `json:"message"`
}

// Rule is a named consistency check over a field map
type Rule struct {
	ID          string
	Description string
	check       func(m fieldmap.Map) (expected, actual float64, passed bool, msg string)
}

// Rules are evaluated in this order
var Rules = []Rule{
	{
		ID:          "V001",
		Description: "Own Funds = Tier 1 + Tier 2",
		check: func(m fieldmap.Map) (float64, float64, bool, string) {
			r0010, r0020, r0500 := Get(m, "r0010", 0), Get(m, "r0020", 0), Get(m, "r0500", 0)
			expected := r0020 + r0500
			return expected, r0010, withinTolerance(r0010, expected),
				fmt.Sprintf("r0010 (%s) != r0020 (%s) + r0500 (%s) = %s", num(r0010), num(r0020), num(r0500), num(expected))
		},
	},
	{
		ID:          "V002",
		Description: "Tier 1 = CET1 + AT1",
		check: func(m fieldmap.Map) (float64, float64, bool, string) {
			r0020, r0030, r0300 := Get(m, "r0020", 0), Get(m, "r0030", 0), Get(m, "r0300", 0)
			expected := r0030 + r0300
			return expected, r0020, withinTolerance(r0020, expected),
				fmt.Sprintf("r0020 (%s) != r0030 (%s) + r0300 (%s) = %s", num(r0020), num(r0030), num(r0300), num(expected))
		},
	},
	{
		ID:          "V003",
		Description: "CET1 = Instruments + RE + AOCI + Reserves - Goodwill - Intangibles - DTA",
		check: func(m fieldmap.Map) (float64, float64, bool, string) {
			r0030 := Get(m, "r0030", 0)
			expected := Get(m, "r0040", 0) + Get(m, "r0100", 0) + Get(m, "r0110", 0) + Get(m, "r0130", 0) -
				Get(m, "r0200", 0) - Get(m, "r0210", 0) - Get(m, "r0220", 0)
			return expected, r0030, withinTolerance(r0030, expected),
				fmt.Sprintf("r0030 (%s) != calculated (%s)", num(r0030), num(expected))
		},
	},
	{
		ID:          "V004",
		Description: "CET1 instruments = type 1 + type 2 + type 3",
		check: func(m fieldmap.Map) (float64, float64, bool, string) {
			r0040 := Get(m, "r0040", 0)
			expected := Get(m, "r0050", 0) + Get(m, "r0060", 0) + Get(m, "r0070", 0)
			return expected, r0040, withinTolerance(r0040, expected),
				fmt.Sprintf("r0040 (%s) != r0050+r0060+r0070 (%s)", num(r0040), num(expected))
		},
	},
	{
		ID:          "V005",
		Description: "Own Funds must be non-negative",
		check: func(m fieldmap.Map) (float64, float64, bool, string) {
			r0010 := Get(m, "r0010", 0)
			return 0, r0010, r0010 >= 0, fmt.Sprintf("Own Funds (%s) is negative", num(r0010))
		},
	},
	{
		ID:          "V006",
		Description: "CET1 must be non-negative",
		check: func(m fieldmap.Map) (float64, float64, bool, string) {
			r0030 := Get(m, "r0030", 0)
			return 0, r0030, r0030 >= 0, fmt.Sprintf("CET1 (%s) is negative", num(r0030))
		},
	},
}

// Validate runs every rule against fields and returns one result per rule
func Validate(fields []template.PopulatedField) []Result {
	return ValidateMap(fieldmap.Build(fields))
}

// ValidateMap runs every rule against an already built field map
func ValidateMap(m fieldmap.Map) []Result {
	results := make([]Result, len(Rules))
	for i, rule := range Rules {
		results[i] = rule.Evaluate(m)
	}
	return results
}

// Evaluate runs a single rule
func (r Rule) Evaluate(m fieldmap.Map) Result {
	expected, actual, passed, msg := r.check(m)
	if passed {
		msg = ""
	}
	return Result{
		RuleID:      r.ID,
		Description: r.Description,
		Passed:      passed,
		Expected:    &expected,
		Actual:      &actual,
		Message:     msg,
	}
}

// Get returns m[row], else the row's default column, else def
func Get(m fieldmap.Map, row string, def float64) float64 {
	return m.Lookup(row, DefaultColumn, def)
}

// Summary counts passed and failed results
func Summary(results []Result) (passed, failed int) {
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Failed returns only the failing results
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

func withinTolerance(actual, expected float64) bool {
	return math.Abs(actual-expected) < Tolerance
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
