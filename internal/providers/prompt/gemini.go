package prompt

import (
	"context"
	"fmt"
	"strings"

	"server/internal/domain"
	"server/internal/providers/genai"
)

// Drafter turns an image analysis into generation prompts.
type Drafter interface {
	// ImagePrompt drafts the single structured instruction for the image
	// edit stage.
	ImagePrompt(ctx context.Context, analysis *domain.AnalysisResult, instructions, aspect string) (*domain.ImagePrompt, error)
	// ScenePrompts drafts exactly n per-scene video instructions.
	ScenePrompts(ctx context.Context, analysis *domain.AnalysisResult, instructions, aspect string, n int) ([]domain.ScenePrompt, error)
}

// GeminiDrafter implements Drafter with Gemini JSON-mode calls and fixed
// system instruction templates.
type GeminiDrafter struct {
	client     *genai.Client
	videoModel string
}

func NewGeminiDrafter(client *genai.Client) *GeminiDrafter {
	return &GeminiDrafter{client: client, videoModel: client.VideoModel()}
}

func (g *GeminiDrafter) ImagePrompt(ctx context.Context, analysis *domain.AnalysisResult, instructions, aspect string) (*domain.ImagePrompt, error) {
	var out domain.ImagePrompt
	parts := []genai.Part{{Text: buildBrief(analysis, instructions, aspect)}}
	if err := g.client.GenerateJSON(ctx, imagePromptSystem, parts, &out); err != nil {
		return nil, fmt.Errorf("prompt: draft image prompt: %w", err)
	}
	if strings.TrimSpace(out.ImagePrompt) == "" {
		return nil, fmt.Errorf("prompt: %w: empty image prompt", domain.ErrProviderFailure)
	}
	if out.AspectRatioImage == "" {
		out.AspectRatioImage = aspect
	}
	return &out, nil
}

func (g *GeminiDrafter) ScenePrompts(ctx context.Context, analysis *domain.AnalysisResult, instructions, aspect string, n int) ([]domain.ScenePrompt, error) {
	if n < 1 {
		return nil, fmt.Errorf("prompt: scene count must be positive, got %d", n)
	}
	system := fmt.Sprintf(scenePromptSystem, n, domain.SceneSeconds, g.videoModel)
	parts := []genai.Part{{Text: buildBrief(analysis, instructions, aspect)}}
	var scenes []domain.ScenePrompt
	if err := g.client.GenerateJSON(ctx, system, parts, &scenes); err != nil {
		return nil, fmt.Errorf("prompt: draft scene prompts: %w", err)
	}
	// The template demands an exact count; anything else is a contract
	// violation we refuse to paper over.
	if len(scenes) != n {
		return nil, fmt.Errorf("prompt: %w: expected %d scenes, got %d", domain.ErrProviderFailure, n, len(scenes))
	}
	for i := range scenes {
		if strings.TrimSpace(scenes[i].VideoPrompt) == "" {
			return nil, fmt.Errorf("prompt: %w: scene %d has empty prompt", domain.ErrProviderFailure, i+1)
		}
		if scenes[i].AspectRatioVideo == "" {
			scenes[i].AspectRatioVideo = aspect
		}
		if scenes[i].Model == "" {
			scenes[i].Model = g.videoModel
		}
	}
	return scenes, nil
}

var _ Drafter = (*GeminiDrafter)(nil)
