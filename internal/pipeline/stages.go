package pipeline

import (
	"context"
	"fmt"

	"server/internal/domain"
	"server/internal/providers/video"
)

// analyzeImage runs the vision analysis over the uploaded source image.
func (o *Orchestrator) analyzeImage(ctx context.Context, p *domain.Project) stageResult {
	if p.ImageURL == "" {
		return missing("image_url")
	}
	analysis, err := o.analyzer.Analyze(ctx, p.ImageURL, p.Instructions)
	if err != nil {
		return stageResult{kind: resultFailure, err: err}
	}
	return stageResult{kind: resultSuccess, update: domain.ProjectUpdate{
		Status:         statusPtr(domain.StatusAnalysisComplete),
		AnalysisResult: analysis,
	}}
}

// generateImagePrompt drafts the structured instruction for the image edit.
func (o *Orchestrator) generateImagePrompt(ctx context.Context, p *domain.Project) stageResult {
	if p.Instructions == "" {
		return missing("instructions")
	}
	if p.AnalysisResult == nil {
		return missing("analysis_result")
	}
	drafted, err := o.drafter.ImagePrompt(ctx, p.AnalysisResult, p.Instructions, p.AspectRatio)
	if err != nil {
		return stageResult{kind: resultFailure, err: err}
	}
	return stageResult{kind: resultSuccess, update: domain.ProjectUpdate{
		Status:               statusPtr(domain.StatusImagePromptComplete),
		GeneratedImagePrompt: drafted,
	}}
}

// generateImage edits the source image into the campaign hero shot. A
// provider failure here is tolerated: the pipeline continues with the
// original image as the only reference.
func (o *Orchestrator) generateImage(ctx context.Context, p *domain.Project) stageResult {
	if p.GeneratedImagePrompt == nil || p.GeneratedImagePrompt.ImagePrompt == "" {
		return missing("generated_image_prompt")
	}
	if p.ImageURL == "" {
		return missing("image_url")
	}
	url, err := o.editor.Edit(ctx, p.ImageURL, p.GeneratedImagePrompt.ImagePrompt)
	if err != nil {
		return stageResult{
			kind:   resultSoftSkip,
			err:    err,
			update: domain.ProjectUpdate{Status: statusPtr(domain.StatusImageSkipped)},
		}
	}
	return stageResult{kind: resultSuccess, update: domain.ProjectUpdate{
		Status:            statusPtr(domain.StatusImageComplete),
		GeneratedImageURL: &url,
	}}
}

// generateVideoPrompts drafts one prompt per scene. The scene count is
// derived from the requested duration, never from the model's output.
func (o *Orchestrator) generateVideoPrompts(ctx context.Context, p *domain.Project) stageResult {
	if p.Instructions == "" {
		return missing("instructions")
	}
	if p.AnalysisResult == nil {
		return missing("analysis_result")
	}
	n := domain.SceneCount(p.DurationSeconds)
	scenes, err := o.drafter.ScenePrompts(ctx, p.AnalysisResult, p.Instructions, p.AspectRatio, n)
	if err != nil {
		return stageResult{kind: resultFailure, err: err}
	}
	return stageResult{kind: resultSuccess, update: domain.ProjectUpdate{
		Status:                statusPtr(domain.StatusVideoPromptsDone),
		GeneratedVideoPrompts: scenes,
	}}
}

// generateVideoClips fans out one generation task per scene and joins the
// results. A single surviving clip becomes the final video directly; more
// than one moves on to the merge stage.
func (o *Orchestrator) generateVideoClips(ctx context.Context, p *domain.Project) stageResult {
	if len(p.GeneratedVideoPrompts) == 0 {
		return missing("generated_video_prompts")
	}
	clips := o.generateClips(ctx, p)
	if len(clips) == 0 {
		return stageResult{kind: resultFailure, err: fmt.Errorf("%w: all %d scenes failed", domain.ErrNoScenes, len(p.GeneratedVideoPrompts))}
	}
	if len(clips) == 1 {
		// Single clip: skip the merge stage entirely.
		return stageResult{kind: resultSuccess, update: domain.ProjectUpdate{
			Status:             statusPtr(domain.StatusComplete),
			GeneratedVideoURLs: clips,
			VideoURL:           &clips[0],
		}}
	}
	return stageResult{kind: resultSuccess, update: domain.ProjectUpdate{
		Status:             statusPtr(domain.StatusVideosGenerated),
		GeneratedVideoURLs: clips,
	}}
}

// mergeVideoClips concatenates the surviving clips in scene order.
func (o *Orchestrator) mergeVideoClips(ctx context.Context, p *domain.Project) stageResult {
	if len(p.GeneratedVideoURLs) < 2 {
		return missing("generated_video_urls")
	}
	url, err := o.merger.Merge(ctx, p.GeneratedVideoURLs)
	if err != nil {
		return stageResult{kind: resultFailure, err: err}
	}
	return stageResult{kind: resultSuccess, update: domain.ProjectUpdate{
		Status:   statusPtr(domain.StatusComplete),
		VideoURL: &url,
	}}
}

// submitTargetImage starts the asynchronous edit that produces the target
// frame of a transition project, then parks the project until a webhook or
// poll resolves the task.
func (o *Orchestrator) submitTargetImage(ctx context.Context, p *domain.Project) stageResult {
	if p.GeneratedImagePrompt == nil || p.GeneratedImagePrompt.ImagePrompt == "" {
		return missing("generated_image_prompt")
	}
	if p.ImageURL == "" {
		return missing("image_url")
	}
	taskID, err := o.editor.CreateEditTask(ctx, p.ImageURL, p.GeneratedImagePrompt.ImagePrompt)
	if err != nil {
		return stageResult{kind: resultFailure, err: err}
	}
	return stageResult{kind: resultSuspend, update: domain.ProjectUpdate{
		Status:         statusPtr(domain.StatusImageBWaiting),
		ExternalTaskID: &taskID,
	}}
}

// submitTransitionVideo drafts the single morph prompt and submits the
// video task over both frames.
func (o *Orchestrator) submitTransitionVideo(ctx context.Context, p *domain.Project) stageResult {
	if p.GeneratedImageURL == "" {
		return missing("generated_image_url")
	}
	if p.AnalysisResult == nil {
		return missing("analysis_result")
	}
	scenes, err := o.drafter.ScenePrompts(ctx, p.AnalysisResult, p.Instructions, p.AspectRatio, 1)
	if err != nil {
		return stageResult{kind: resultFailure, err: err}
	}
	taskID, err := o.videos.Submit(ctx, video.SubmitRequest{
		ImageURLs:   []string{p.ImageURL, p.GeneratedImageURL},
		Prompt:      scenes[0].VideoPrompt,
		AspectRatio: scenes[0].AspectRatioVideo,
		Seconds:     domain.SceneSeconds,
		Model:       scenes[0].Model,
	})
	if err != nil {
		return stageResult{kind: resultFailure, err: err}
	}
	return stageResult{kind: resultSuspend, update: domain.ProjectUpdate{
		Status:                statusPtr(domain.StatusVideoWaiting),
		GeneratedVideoPrompts: scenes,
		ExternalTaskID:        &taskID,
	}}
}
