package mcpserver

import (
	"github.com/DreamCats/corep/internal/retrieval"
	"github.com/DreamCats/corep/internal/template"
	"github.com/DreamCats/corep/internal/validation"
)

// RetrieveInput defines inputs for the corep_retrieve MCP tool.
type RetrieveInput struct {
	Query    string `json:"query" jsonschema:"question or keywords, e.g. deduction of goodwill from CET1"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of passages to return"`
	Strategy string `json:"strategy,omitempty" jsonschema:"auto, semantic, keyword or fulltext"`
}

// RetrieveOutput is the output for corep_retrieve.
type RetrieveOutput struct {
	Query    string              `json:"query"`
	Strategy string              `json:"strategy"`
	Count    int                 `json:"count"`
	Results  []retrieval.Passage `json:"results"`
}

// FieldValue is one populated template cell.
type FieldValue struct {
	FieldID string  `json:"field_id" jsonschema:"row and column id, e.g. r0010_c0010"`
	Value   float64 `json:"value" jsonschema:"amount in thousands of the reporting currency"`
}

// ValidateInput defines inputs for the corep_validate MCP tool.
type ValidateInput struct {
	Fields []FieldValue `json:"fields" jsonschema:"populated C 01.00 fields"`
}

// ValidateOutput is the output for corep_validate.
type ValidateOutput struct {
	Results    []validation.Result `json:"results"`
	Passed     int                 `json:"passed"`
	Failed     int                 `json:"failed"`
	Duplicates []string            `json:"duplicates"`
}

// PopulateInput defines inputs for the corep_populate MCP tool.
type PopulateInput struct {
	Query    string         `json:"query" jsonschema:"what to calculate, e.g. Calculate our own funds"`
	Scenario map[string]any `json:"scenario,omitempty" jsonschema:"bank scenario: bank_name, currency, share_capital_nominal, goodwill, ... (missing amounts are 0)"`
	TopK     int            `json:"top_k,omitempty" jsonschema:"number of regulatory passages given to the model"`
	Strategy string         `json:"strategy,omitempty" jsonschema:"retrieval strategy"`
}

// PopulateOutput mirrors report.Report with a string run id.
type PopulateOutput struct {
	RunID      string                    `json:"run_id"`
	Query      string                    `json:"query"`
	Strategy   string                    `json:"strategy"`
	Passages   []retrieval.Passage       `json:"passages"`
	Fields     []template.PopulatedField `json:"fields"`
	Warnings   []string                  `json:"warnings"`
	Validation []validation.Result       `json:"validation"`
	Passed     int                       `json:"passed"`
	Failed     int                       `json:"failed"`
}

// StatusInput defines inputs for the corep_cache_status MCP tool.
type StatusInput struct{}

// StatusOutput reports the state of the vector cache.
type StatusOutput struct {
	Chunks      int    `json:"chunks"`
	Entries     int    `json:"entries"`
	Dimension   int    `json:"dimension,omitempty"`
	Model       string `json:"model,omitempty"`
	BuiltAt     string `json:"built_at,omitempty"`
	Age         string `json:"age,omitempty"`
	Size        string `json:"size"`
	Current     bool   `json:"current"`
	Semantic    bool   `json:"semantic"`
	StaleReason string `json:"stale_reason,omitempty"`
}
