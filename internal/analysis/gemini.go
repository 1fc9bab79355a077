package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-3-flash-preview"

// Model is a vision-capable generative backend that answers a prompt about
// one inline media blob.
type Model interface {
	Generate(ctx context.Context, system, prompt string, data []byte, mimeType string) (string, error)
}

// Gemini implements Model with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ Model = (*Gemini)(nil)

// NewGemini creates a Gemini-backed model. An empty model name selects
// DefaultModel.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{client: client, model: model}, nil
}

// ModelName returns the configured model id.
func (g *Gemini) ModelName() string { return g.model }

func (g *Gemini) Generate(ctx context.Context, system, prompt string, data []byte, mimeType string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
		ResponseMIMEType: "application/json",
	}
	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
		{Text: prompt},
	}

	callStart := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{{Role: "user", Parts: parts}}, config)
	duration := time.Since(callStart)
	if err != nil {
		log.Error().Err(err).Str("model", g.model).Dur("duration", duration).Msg("Gemini analysis call failed")
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("received empty response from Gemini API")
	}
	text := resp.Text()
	log.Debug().
		Str("model", g.model).
		Int("response_length", len(text)).
		Dur("duration", duration).
		Msg("Gemini analysis response received")
	return text, nil
}
