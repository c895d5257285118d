package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Confidence is the analyzer's confidence in a populated value
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence parses a confidence level, case-insensitively
func ParseConfidence(s string) (Confidence, error) {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, nil
	default:
		return "", fmt.Errorf("invalid confidence %q (want high, medium or low)", s)
	}
}

// UnmarshalJSON rejects values outside high/medium/low
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseConfidence(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalYAML rejects values outside high/medium/low
func (c *Confidence) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseConfidence(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// PopulatedField is a single template cell filled in by the analyzer
type PopulatedField struct {
	FieldID    string     `json:"field_id" yaml:"field_id"` // "<row>_<col>", e.g. r0010_c0010
	FieldName  string     `json:"field_name" yaml:"field_name"`
	Value      float64    `json:"value" yaml:"value"` // thousands of reporting currency
	Reasoning  string     `json:"reasoning" yaml:"reasoning"`
	Citations  []string   `json:"citations" yaml:"citations"`
	Confidence Confidence `json:"confidence" yaml:"confidence"`
}

// Analysis is the analyzer output for one scenario
type Analysis struct {
	Fields   []PopulatedField `json:"fields" yaml:"fields"`
	Warnings []string         `json:"warnings" yaml:"warnings"`
}

// Field describes a single row/column of a reporting template
type Field struct {
	RowID        string `json:"row_id" yaml:"row_id"`
	ColID        string `json:"col_id" yaml:"col_id"`
	FieldID      string `json:"field_id" yaml:"field_id"`
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	Type         string `json:"type,omitempty" yaml:"type,omitempty"`
	CRRReference string `json:"crr_reference,omitempty" yaml:"crr_reference,omitempty"`
	Formula      string `json:"formula,omitempty" yaml:"formula,omitempty"`
	Sign         string `json:"sign,omitempty" yaml:"sign,omitempty"`
	Level        int    `json:"level,omitempty" yaml:"level,omitempty"`
}

// RuleDef is the declarative description of a consistency rule shipped with a template.
// Rules are evaluated by the validation package; the definition only feeds the prompt.
type RuleDef struct {
	RuleID      string `json:"rule_id" yaml:"rule_id"`
	Description string `json:"description" yaml:"description"`
	Expression  string `json:"expression" yaml:"expression"`
	Severity    string `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// Schema is a reporting template definition (e.g. COREP C 01.00)
type Schema struct {
	TemplateID         string    `json:"template_id" yaml:"template_id"`
	TemplateName       string    `json:"template_name" yaml:"template_name"`
	ReportingFramework string    `json:"reporting_framework,omitempty" yaml:"reporting_framework,omitempty"`
	Regulation         string    `json:"regulation,omitempty" yaml:"regulation,omitempty"`
	CurrencyUnit       string    `json:"currency_unit,omitempty" yaml:"currency_unit,omitempty"`
	Fields             []Field   `json:"fields" yaml:"fields"`
	ValidationRules    []RuleDef `json:"validation_rules,omitempty" yaml:"validation_rules,omitempty"`
}

// Scenario is the bank data an analysis is run against.
// Amounts are in thousands of Currency.
type Scenario struct {
	BankName                      string  `json:"bank_name" yaml:"bank_name"`
	ReportingDate                 string  `json:"reporting_date" yaml:"reporting_date"`
	Currency                      string  `json:"currency" yaml:"currency"`
	ShareCapitalNominal           float64 `json:"share_capital_nominal" yaml:"share_capital_nominal"`
	SharePremium                  float64 `json:"share_premium" yaml:"share_premium"`
	RetainedEarnings              float64 `json:"retained_earnings" yaml:"retained_earnings"`
	AccumulatedOCI                float64 `json:"accumulated_oci" yaml:"accumulated_oci"`
	OtherReserves                 float64 `json:"other_reserves" yaml:"other_reserves"`
	Goodwill                      float64 `json:"goodwill" yaml:"goodwill"`
	OtherIntangibleAssets         float64 `json:"other_intangible_assets" yaml:"other_intangible_assets"`
	DeferredTaxAssetsFutureProfit float64 `json:"deferred_tax_assets_future_profit" yaml:"deferred_tax_assets_future_profit"`
	AT1Instruments                float64 `json:"at1_instruments" yaml:"at1_instruments"`
	T2Instruments                 float64 `json:"t2_instruments" yaml:"t2_instruments"`
	T2SubordinatedLoans           float64 `json:"t2_subordinated_loans" yaml:"t2_subordinated_loans"`
}

// DefaultScenario returns a scenario carrying the same defaults as an empty input form
func DefaultScenario() Scenario {
	return Scenario{
		BankName:      "Bank",
		ReportingDate: "2025-12-31",
		Currency:      "GBP",
	}
}
