package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"server/internal/domain"
	"server/internal/providers/video"
)

// generateClips submits every scene concurrently, polls each provider task
// to settlement, and returns the surviving clip URLs in scene order. Scene
// failures and timeouts leave gaps that are filtered out; they never abort
// the batch.
func (o *Orchestrator) generateClips(ctx context.Context, p *domain.Project) []string {
	scenes := p.GeneratedVideoPrompts
	slots := make([]string, len(scenes))

	var g errgroup.Group
	for i, scene := range scenes {
		i, scene := i, scene
		g.Go(func() error {
			url, err := o.generateScene(ctx, p, i, scene)
			if err != nil {
				o.logger.Warn().Err(err).Str("project_id", p.ID).Int("scene", i+1).Msg("pipeline: scene dropped")
				return nil
			}
			slots[i] = url
			return nil
		})
	}
	_ = g.Wait()

	clips := make([]string, 0, len(slots))
	for _, url := range slots {
		if url != "" {
			clips = append(clips, url)
		}
	}
	return clips
}

// generateScene runs one scene's submit-and-poll cycle to a terminal result.
func (o *Orchestrator) generateScene(ctx context.Context, p *domain.Project, idx int, scene domain.ScenePrompt) (string, error) {
	refImage := p.GeneratedImageURL
	if refImage == "" {
		// Image stage was skipped; fall back to the original upload.
		refImage = p.ImageURL
	}
	taskID, err := o.videos.Submit(ctx, video.SubmitRequest{
		ImageURLs:   []string{refImage},
		Prompt:      scene.VideoPrompt,
		AspectRatio: scene.AspectRatioVideo,
		Seconds:     domain.SceneSeconds,
		Model:       scene.Model,
	})
	if err != nil {
		return "", err
	}
	o.logger.Info().Str("project_id", p.ID).Int("scene", idx+1).Str("task_id", taskID).Msg("pipeline: scene submitted")

	for attempt := 0; attempt < o.cfg.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(o.cfg.PollInterval):
		}
		status, err := o.videos.Status(ctx, taskID)
		if err != nil {
			// Transient status check failure; the attempt budget bounds it.
			o.logger.Warn().Err(err).Str("task_id", taskID).Msg("pipeline: scene status check failed")
			continue
		}
		switch status.State {
		case video.TaskSucceeded:
			return status.VideoURL, nil
		case video.TaskFailed:
			return "", fmt.Errorf("%w: %s", domain.ErrProviderFailure, status.ErrorMsg)
		}
	}
	return "", domain.ErrTimeout
}
