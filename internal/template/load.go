package template

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSchema reads a template definition from a JSON or YAML file
func LoadSchema(path string) (*Schema, error) {
	var schema Schema
	if err := decodeFile(path, &schema); err != nil {
		return nil, fmt.Errorf("failed to load template schema: %w", err)
	}
	if schema.TemplateID == "" {
		return nil, fmt.Errorf("template schema %s: template_id is required", path)
	}
	if len(schema.Fields) == 0 {
		return nil, fmt.Errorf("template schema %s: no fields defined", path)
	}
	return &schema, nil
}

// LoadScenario reads a scenario from a JSON or YAML file.
// Missing values keep the DefaultScenario defaults.
func LoadScenario(path string) (*Scenario, error) {
	scenario := DefaultScenario()
	if err := decodeFile(path, &scenario); err != nil {
		return nil, fmt.Errorf("failed to load scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios reads a list of named preset scenarios
func LoadScenarios(path string) ([]NamedScenario, error) {
	var presets []NamedScenario
	if err := decodeFile(path, &presets); err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	return presets, nil
}

// LoadAnalysis reads populated fields from a JSON or YAML file holding either
// an analysis object ({"fields": [...], "warnings": [...]}) or a bare field list
func LoadAnalysis(path string) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load populated fields: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "- ") {
		var fields []PopulatedField
		if err := decodeFile(path, &fields); err != nil {
			return nil, fmt.Errorf("failed to load populated fields: %w", err)
		}
		return &Analysis{Fields: fields}, nil
	}

	var analysis Analysis
	if err := decodeFile(path, &analysis); err != nil {
		return nil, fmt.Errorf("failed to load populated fields: %w", err)
	}
	return &analysis, nil
}

// NamedScenario is a preset scenario with the query it is meant to answer
type NamedScenario struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Query       string   `json:"query" yaml:"query"`
	Scenario    Scenario `json:"scenario" yaml:"scenario"`
}

func decodeFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}
