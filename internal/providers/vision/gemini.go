package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"server/internal/domain"
	"server/internal/providers/genai"
)

const analyzeSystem = `You are a brand analyst for short promotional videos.
Study the supplied product image and the user's notes, then answer with a
single JSON object of this exact shape and nothing else:
{"brand": string, "character": string, "colors": [string], "style": string}
Describe the dominant brand identity, the main character or product, up to
five dominant colors as hex codes, and the overall visual style.`

// Analyzer produces a structured analysis of a product image.
type Analyzer interface {
	Analyze(ctx context.Context, imageURL, instructions string) (*domain.AnalysisResult, error)
}

// GeminiAnalyzer implements Analyzer on top of the Gemini JSON mode.
type GeminiAnalyzer struct {
	client *genai.Client
}

func NewGeminiAnalyzer(client *genai.Client) *GeminiAnalyzer {
	return &GeminiAnalyzer{client: client}
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, imageURL, instructions string) (*domain.AnalysisResult, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, errors.New("vision: image url required")
	}
	parts := []genai.Part{
		{FileURI: imageURL, MimeType: "image/png"},
		{Text: "User notes: " + instructions},
	}
	var result domain.AnalysisResult
	if err := g.client.GenerateJSON(ctx, analyzeSystem, parts, &result); err != nil {
		return nil, fmt.Errorf("vision: analyze image: %w", err)
	}
	if result.Brand == "" && result.Character == "" && result.Style == "" {
		return nil, fmt.Errorf("vision: %w: empty analysis", domain.ErrProviderFailure)
	}
	return &result, nil
}

var _ Analyzer = (*GeminiAnalyzer)(nil)
