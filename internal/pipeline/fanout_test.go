package pipeline

import (
	"context"
	"fmt"
	"testing"

	"server/internal/domain"
)

func fanoutProject(n int) *domain.Project {
	scenes := make([]domain.ScenePrompt, n)
	for i := range scenes {
		scenes[i] = domain.ScenePrompt{
			VideoPrompt:      fmt.Sprintf("scene %d", i+1),
			AspectRatioVideo: "16:9",
			Model:            "veo-2.0-generate-001",
		}
	}
	return &domain.Project{
		ID:                    "p1",
		Kind:                  domain.KindCampaign,
		Status:                domain.StatusVideoPromptsDone,
		ImageURL:              "https://cdn/source.png",
		GeneratedImageURL:     "https://cdn/edited.png",
		GeneratedVideoPrompts: scenes,
	}
}

func TestGenerateClipsPreservesSceneOrder(t *testing.T) {
	f := newFixture(t)
	p := fanoutProject(3)

	clips := f.orc.generateClips(context.Background(), p)

	if len(clips) != 3 {
		t.Fatalf("clips = %v, want 3", clips)
	}
	// Submission order is concurrent, but each clip must sit in its
	// scene's slot. Map each clip back to the prompt that produced it.
	for i, clip := range clips {
		taskID := clip[len("https://cdn/") : len(clip)-len(".mp4")]
		f.videos.mu.Lock()
		prompt := f.videos.prompts[taskID]
		f.videos.mu.Unlock()
		if want := p.GeneratedVideoPrompts[i].VideoPrompt; prompt != want {
			t.Fatalf("clip %d came from %q, want %q", i, prompt, want)
		}
	}
}

func TestGenerateClipsUsesEditedImageReference(t *testing.T) {
	f := newFixture(t)
	p := fanoutProject(2)

	f.orc.generateClips(context.Background(), p)

	for _, req := range f.videos.submits {
		if len(req.ImageURLs) != 1 || req.ImageURLs[0] != "https://cdn/edited.png" {
			t.Fatalf("submit reference = %v, want edited image", req.ImageURLs)
		}
		if req.Seconds != domain.SceneSeconds {
			t.Fatalf("Seconds = %d, want %d", req.Seconds, domain.SceneSeconds)
		}
	}
}

func TestGenerateClipsDropsTimedOutScene(t *testing.T) {
	f := newFixture(t)
	p := fanoutProject(3)
	f.videos.pendingScenes["scene 2"] = true // never settles within the attempt budget

	clips := f.orc.generateClips(context.Background(), p)

	if len(clips) != 2 {
		t.Fatalf("clips = %v, want the 2 settled scenes", clips)
	}
}

func TestGenerateSceneRetriesTransientStatusErrors(t *testing.T) {
	f := newFixture(t)
	p := fanoutProject(1)
	f.videos.statusErrs = 2 // fewer than PollMaxAttempts

	url, err := f.orc.generateScene(context.Background(), p, 0, p.GeneratedVideoPrompts[0])
	if err != nil {
		t.Fatalf("generateScene: %v", err)
	}
	if url == "" {
		t.Fatal("empty clip url after retries")
	}
}

func TestGenerateSceneTimesOut(t *testing.T) {
	f := newFixture(t)
	p := fanoutProject(1)
	f.videos.pendingScenes["scene 1"] = true

	_, err := f.orc.generateScene(context.Background(), p, 0, p.GeneratedVideoPrompts[0])
	if err != domain.ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestGenerateSceneCancelledContext(t *testing.T) {
	f := newFixture(t)
	p := fanoutProject(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orc.generateScene(ctx, p, 0, p.GeneratedVideoPrompts[0])
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
