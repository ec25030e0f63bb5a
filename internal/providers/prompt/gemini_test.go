package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"server/internal/domain"
	"server/internal/providers/genai"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func geminiTextResponse(t *testing.T, text string) *http.Response {
	t.Helper()
	body := map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]any{{"text": text}},
			},
		}},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(string(raw))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *genai.Client {
	t.Helper()
	client, err := genai.NewClient(genai.Options{
		APIKey:     "dummy",
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestImagePrompt(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		return geminiTextResponse(t, `{"image_prompt":"hero shot of the sauce bottle","aspect_ratio_image":"16:9"}`), nil
	})
	drafter := NewGeminiDrafter(client)
	out, err := drafter.ImagePrompt(context.Background(), &domain.AnalysisResult{Brand: "sambal rumahan"}, "make it pop", "16:9")
	if err != nil {
		t.Fatalf("ImagePrompt returned error: %v", err)
	}
	if out.ImagePrompt != "hero shot of the sauce bottle" {
		t.Fatalf("ImagePrompt = %q", out.ImagePrompt)
	}
	if out.AspectRatioImage != "16:9" {
		t.Fatalf("AspectRatioImage = %q", out.AspectRatioImage)
	}
}

func TestImagePromptDefaultsAspectRatio(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return geminiTextResponse(t, `{"image_prompt":"hero shot"}`), nil
	})
	out, err := NewGeminiDrafter(client).ImagePrompt(context.Background(), nil, "notes", "9:16")
	if err != nil {
		t.Fatalf("ImagePrompt returned error: %v", err)
	}
	if out.AspectRatioImage != "9:16" {
		t.Fatalf("AspectRatioImage = %q, want request aspect", out.AspectRatioImage)
	}
}

func TestScenePromptsExactCount(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return geminiTextResponse(t, `[
			{"video_prompt":"scene one","aspect_ratio_video":"16:9","model":"veo-2.0-generate-001"},
			{"video_prompt":"scene two","aspect_ratio_video":"16:9","model":"veo-2.0-generate-001"},
			{"video_prompt":"scene three","aspect_ratio_video":"16:9","model":"veo-2.0-generate-001"}
		]`), nil
	})
	scenes, err := NewGeminiDrafter(client).ScenePrompts(context.Background(), &domain.AnalysisResult{}, "notes", "16:9", 3)
	if err != nil {
		t.Fatalf("ScenePrompts returned error: %v", err)
	}
	if len(scenes) != 3 {
		t.Fatalf("len(scenes) = %d, want 3", len(scenes))
	}
	if scenes[1].VideoPrompt != "scene two" {
		t.Fatalf("scene order broken: %q", scenes[1].VideoPrompt)
	}
}

func TestScenePromptsCountMismatch(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return geminiTextResponse(t, `[{"video_prompt":"only one","aspect_ratio_video":"16:9","model":"m"}]`), nil
	})
	_, err := NewGeminiDrafter(client).ScenePrompts(context.Background(), nil, "notes", "16:9", 2)
	if err == nil {
		t.Fatal("expected error for wrong scene count")
	}
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("error = %v, want ErrProviderFailure", err)
	}
}

func TestScenePromptsFencedJSON(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return geminiTextResponse(t, "```json\n[{\"video_prompt\":\"scene\",\"aspect_ratio_video\":\"\",\"model\":\"\"}]\n```"), nil
	})
	scenes, err := NewGeminiDrafter(client).ScenePrompts(context.Background(), nil, "notes", "4:3", 1)
	if err != nil {
		t.Fatalf("ScenePrompts returned error: %v", err)
	}
	if scenes[0].AspectRatioVideo != "4:3" {
		t.Fatalf("AspectRatioVideo = %q, want request aspect", scenes[0].AspectRatioVideo)
	}
	if scenes[0].Model == "" {
		t.Fatal("Model not defaulted")
	}
}

func TestScenePromptsTransportError(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("boom")
	})
	_, err := NewGeminiDrafter(client).ScenePrompts(context.Background(), nil, "notes", "16:9", 1)
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("error = %v, want ErrProviderFailure", err)
	}
}
