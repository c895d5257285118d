package analyzer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/DreamCats/corep/internal/config"
	"github.com/DreamCats/corep/internal/template"
)

// GeminiGenerator implements Generator with Gemini structured output
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiGenerator creates a generator for model
func NewGeminiGenerator(ctx context.Context, apiKey, model string, temperature float32) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not set: %w", ErrNotConfigured)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiGenerator{
		client:      client,
		model:       model,
		temperature: temperature,
	}, nil
}

// Generate implements Generator
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, maxOutputTokens int32) (Response, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    AnalysisSchema(),
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   maxOutputTokens,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return Response{}, err
	}

	out := Response{Text: resp.Text()}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		out.Truncated = true
	}
	return out, nil
}

// AnalysisSchema is the response schema matching template.Analysis
func AnalysisSchema() *genai.Schema {
	field := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"field_id":   {Type: genai.TypeString, Description: "Template field ID, e.g. r0010_c0010"},
			"field_name": {Type: genai.TypeString, Description: "Human-readable field name"},
			"value":      {Type: genai.TypeNumber, Description: "Calculated value in thousands GBP"},
			"reasoning":  {Type: genai.TypeString, Description: "Step-by-step reasoning for the value"},
			"citations": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Regulatory references, e.g. CRR Art. 26(1)(a)",
			},
			"confidence": {
				Type:        genai.TypeString,
				Enum:        []string{string(template.ConfidenceHigh), string(template.ConfidenceMedium), string(template.ConfidenceLow)},
				Description: "Confidence level: high, medium, or low",
			},
		},
		Required:         []string{"field_id", "field_name", "value", "reasoning", "citations", "confidence"},
		PropertyOrdering: []string{"field_id", "field_name", "value", "reasoning", "citations", "confidence"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"fields": {
				Type:        genai.TypeArray,
				Items:       field,
				Description: "All populated template fields",
			},
			"warnings": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Missing data, assumptions or judgement calls",
			},
		},
		Required:         []string{"fields", "warnings"},
		PropertyOrdering: []string{"fields", "warnings"},
	}
}

// NewGemini wires a StructuredAnalyzer to Gemini using the analyzer config
func NewGemini(ctx context.Context, cfg *config.AnalyzerConfig, apiKey string, schema *template.Schema, logger *zap.Logger) (*StructuredAnalyzer, error) {
	gen, err := NewGeminiGenerator(ctx, apiKey, cfg.Model, cfg.Temperature)
	if err != nil {
		return nil, err
	}
	return New(gen, schema, Options{
		MaxOutputTokens:      cfg.MaxOutputTokens,
		RetryMaxOutputTokens: cfg.RetryMaxOutputTokens,
		Logger:               logger,
	}), nil
}
