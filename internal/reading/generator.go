// Package reading produces the paid content: horoscope, tarot, and
// numerology texts generated per subject profile.
package reading

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// SubjectProfile carries the birth details a reading is personalized with.
type SubjectProfile struct {
	FullName   string
	BirthDate  string // YYYY-MM-DD
	BirthPlace string
}

// Generator turns an access-granted request into reading text. Failures
// must not consume the category; callers mark consumption only on success.
type Generator interface {
	Generate(ctx context.Context, category string, profile SubjectProfile) (string, error)
}

const defaultModel = "gemini-1.5-flash"

// GeminiGenerator generates readings with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

func (g *GeminiGenerator) Generate(ctx context.Context, category string, profile SubjectProfile) (string, error) {
	prompt, err := buildPrompt(category, profile)
	if err != nil {
		return "", err
	}

	model := g.client.GenerativeModel(g.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate %s reading: %w", category, err)
	}

	text := extractText(resp)
	if text == "" {
		return "", fmt.Errorf("generate %s reading: empty response", category)
	}
	return text, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}
