// Package openai provides an Extractor implementation using OpenAI.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/infrastructure/config"
)

const extractionPrompt = `You are an entity tagger for narrative fiction. Extract every character, location and object mentioned in the given chapter text.

For each mention, identify:
- kind: character, location, or object
- surface: The exact surface form as written in the text
- context: The sentence the mention appears in
- confidence: How confident you are (0.0-1.0)

Report every distinct surface form, including nicknames and shortened names. Return ONLY a valid JSON array, no other text.

Example:
Input: "Alexis entró al Bosque Encantado. Alex miró su espada."
Output: [
  {"kind": "character", "surface": "Alexis", "context": "Alexis entró al Bosque Encantado.", "confidence": 0.95},
  {"kind": "location", "surface": "Bosque Encantado", "context": "Alexis entró al Bosque Encantado.", "confidence": 0.9},
  {"kind": "character", "surface": "Alex", "context": "Alex miró su espada.", "confidence": 0.85},
  {"kind": "object", "surface": "espada", "context": "Alex miró su espada.", "confidence": 0.7}
]`

// Extractor implements the Extractor interface using OpenAI chat completions.
type Extractor struct {
	client *openai.Client
	model  string
}

// NewExtractor creates a new OpenAI extractor.
func NewExtractor(cfg config.OpenAIExtractorConfig) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	client := openai.NewClient(cfg.APIKey)

	model := "gpt-4o-mini"
	if cfg.Model != "" {
		model = cfg.Model
	}

	return &Extractor{
		client: client,
		model:  model,
	}, nil
}

// Name identifies this backend in candidate provenance.
func (e *Extractor) Name() string {
	return "openai"
}

// Extract tags entity mentions in the given chapter text.
func (e *Extractor) Extract(ctx context.Context, text string) ([]entities.EntityCandidate, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	content := cleanJSONResponse(resp.Choices[0].Message.Content)

	var raw []rawCandidate
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parsing candidates JSON: %w (response: %s)", err, content)
	}

	candidates := make([]entities.EntityCandidate, 0, len(raw))
	for _, rc := range raw {
		candidates = append(candidates, entities.EntityCandidate{
			Kind:       entities.EntityKind(rc.Kind),
			Surface:    rc.Surface,
			Context:    rc.Context,
			Confidence: rc.Confidence,
			Source:     e.Name(),
		})
	}
	return candidates, nil
}

// rawCandidate is the JSON structure for tagged mentions.
type rawCandidate struct {
	Kind       string  `json:"kind"`
	Surface    string  `json:"surface"`
	Context    string  `json:"context,omitempty"`
	Confidence float64 `json:"confidence"`
}

// cleanJSONResponse strips markdown code fences from the model output.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
