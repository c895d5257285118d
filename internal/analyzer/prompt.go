package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DreamCats/corep/internal/retrieval"
	"github.com/DreamCats/corep/internal/template"
)

// SystemInstruction frames the model as a COREP own-funds preparer
const SystemInstruction = `You are a PRA regulatory reporting specialist with deep expertise in:
- The Capital Requirements Regulation (CRR 575/2013 as amended by CRR2)
- COREP reporting templates, specifically C 01.00 (Own Funds)
- EBA reporting instructions and validation rules
- PRA Rulebook requirements for UK-authorised firms

Your task is to populate COREP template C 01.00 fields based on a bank scenario
and the relevant regulatory text provided. You must:

1. Map each piece of scenario data to the correct template field
2. Apply regulatory rules (e.g., deductions from CET1 under Articles 36-47)
3. Calculate derived fields using the template formulas
4. Cite the specific regulation for each decision
5. Flag any missing information or assumptions
6. Ensure internal consistency (e.g., r0010 = r0020 + r0500)

All values are in thousands of GBP. Report deduction fields as positive numbers
(they will be subtracted in the formula).
`

const instructions = `INSTRUCTIONS:
- Populate ALL template fields listed above
- For each field, provide the value, step-by-step reasoning, and regulatory citations
- Deduction fields (goodwill, intangibles, DTA) should be reported as POSITIVE numbers
- Ensure all validation rules hold in your output
- Set confidence to "high" when the mapping is direct, "medium" when judgment is needed, "low" when data is missing
- If a field has no applicable data, set value to 0 and explain why
`

// BuildPrompt renders the user prompt for one analysis request
func BuildPrompt(query string, scenario template.Scenario, passages []retrieval.Passage, schema *template.Schema) (string, error) {
	scenarioJSON, err := json.MarshalIndent(scenario, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode scenario: %w", err)
	}

	var b strings.Builder

	b.WriteString("USER QUERY:\n")
	b.WriteString(query)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "BANK SCENARIO DATA (all values in thousands %s):\n", currency(scenario))
	b.Write(scenarioJSON)
	b.WriteString("\n\n")

	b.WriteString("RELEVANT REGULATORY TEXT:\n")
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s - %s]\n%s", p.Source, p.SectionRef, p.Text)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "TEMPLATE FIELDS TO POPULATE (%s - %s):\n", schema.TemplateID, schema.TemplateName)
	for _, f := range schema.Fields {
		b.WriteString(FieldLine(f))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("VALIDATION RULES THAT MUST HOLD:\n")
	for _, r := range schema.ValidationRules {
		fmt.Fprintf(&b, "  %s: %s - %s\n", r.RuleID, r.Expression, r.Description)
	}
	b.WriteString("\n")

	b.WriteString(instructions)
	return b.String(), nil
}

// FieldLine renders one template field as "  id: name (formula: ...) [ref]"
func FieldLine(f template.Field) string {
	line := fmt.Sprintf("  %s: %s", f.FieldID, f.Name)
	if f.Formula != "" {
		line += fmt.Sprintf(" (formula: %s)", f.Formula)
	}
	return line + fmt.Sprintf(" [%s]", f.CRRReference)
}

func currency(s template.Scenario) string {
	if s.Currency == "" {
		return "GBP"
	}
	return s.Currency
}
