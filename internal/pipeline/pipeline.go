package pipeline

import (
	"context"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/providers/image"
	"server/internal/providers/prompt"
	"server/internal/providers/video"
	"server/internal/providers/videomerge"
	"server/internal/providers/vision"
)

// Config tunes the orchestrator's polling behavior.
type Config struct {
	// PollInterval is the delay between provider status checks.
	PollInterval time.Duration
	// PollMaxAttempts caps per-task polling; exceeding it is a timeout.
	PollMaxAttempts int
	// WaitTimeout bounds how long a project may sit in a waiting status
	// before the reconciler sweep marks it failed.
	WaitTimeout time.Duration
}

// Orchestrator drives projects through their generation pipeline. All state
// lives in the project repository; the orchestrator itself is stateless and
// safe for concurrent use.
type Orchestrator struct {
	ctx       context.Context
	repo      domain.ProjectRepository
	analytics domain.AnalyticsRepository
	analyzer  vision.Analyzer
	drafter   prompt.Drafter
	editor    image.Editor
	videos    video.Generator
	merger    videomerge.Merger
	logger    infra.Logger
	cfg       Config
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Repo      domain.ProjectRepository
	Analytics domain.AnalyticsRepository
	Analyzer  vision.Analyzer
	Drafter   prompt.Drafter
	Editor    image.Editor
	Videos    video.Generator
	Merger    videomerge.Merger
	Logger    infra.Logger
}

// New constructs an orchestrator. The context bounds all background stage
// continuations and is normally the process lifetime context.
func New(ctx context.Context, deps Deps, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Second
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 30
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 20 * time.Minute
	}
	return &Orchestrator{
		ctx:       ctx,
		repo:      deps.Repo,
		analytics: deps.Analytics,
		analyzer:  deps.Analyzer,
		drafter:   deps.Drafter,
		editor:    deps.Editor,
		videos:    deps.Videos,
		merger:    deps.Merger,
		logger:    deps.Logger,
		cfg:       cfg,
	}
}

// resultKind tags a stage outcome.
type resultKind int

const (
	resultSuccess resultKind = iota
	// resultSoftSkip continues the chain after a tolerated stage failure.
	resultSoftSkip
	// resultSuspend stops the chain; an external task will resume it.
	resultSuspend
	resultFailure
)

// stageResult is what a stage hands back to the pipeline loop. Update holds
// the fields to persist, including the next status.
type stageResult struct {
	kind   resultKind
	update domain.ProjectUpdate
	err    error
}

type stageFunc func(ctx context.Context, p *domain.Project) stageResult

type stage struct {
	name string
	run  stageFunc
}

// Start kicks off (or resumes) the pipeline for a project in the background.
// Callers never block on generation work.
func (o *Orchestrator) Start(id string) {
	go o.Advance(o.ctx, id)
}

// Advance runs stages for the project until it parks in a waiting status,
// reaches a terminal status, or a stage fails. All stage errors are written
// to the project record and swallowed here; nothing propagates.
func (o *Orchestrator) Advance(ctx context.Context, id string) {
	for {
		p, err := o.repo.GetByID(ctx, id)
		if err != nil {
			o.logger.Error().Err(err).Str("project_id", id).Msg("pipeline: load project failed")
			return
		}
		if p.Status.Terminal() || p.Status.Waiting() {
			return
		}
		st, ok := o.stageFor(p.Kind, p.Status)
		if !ok {
			o.logger.Error().Str("project_id", id).Str("status", string(p.Status)).Msg("pipeline: no stage for status")
			return
		}
		o.logger.Info().Str("project_id", id).Str("stage", st.name).Msg("pipeline: stage start")

		res := st.run(ctx, p)
		switch res.kind {
		case resultFailure:
			o.fail(ctx, p, st.name, res.err)
			return
		case resultSoftSkip:
			o.logger.Warn().Err(res.err).Str("project_id", id).Str("stage", st.name).Msg("pipeline: stage soft-skipped")
		}
		updated, err := o.repo.Update(ctx, id, res.update)
		if err != nil {
			o.logger.Error().Err(err).Str("project_id", id).Str("stage", st.name).Msg("pipeline: persist stage result failed")
			return
		}
		if updated.Status == domain.StatusComplete {
			o.recordCompletion(ctx, updated)
		}
		if res.kind == resultSuspend {
			o.logger.Info().Str("project_id", id).Str("status", string(updated.Status)).Str("task_id", updated.ExternalTaskID).Msg("pipeline: suspended on external task")
			return
		}
	}
}

// stageFor maps the project's current status to its next runnable stage.
func (o *Orchestrator) stageFor(kind domain.ProjectKind, status domain.ProjectStatus) (stage, bool) {
	table := o.campaignStages()
	if kind == domain.KindTransition {
		table = o.transitionStages()
	}
	st, ok := table[status]
	return st, ok
}

func (o *Orchestrator) campaignStages() map[domain.ProjectStatus]stage {
	return map[domain.ProjectStatus]stage{
		domain.StatusPending:             {name: "analyze_image", run: o.analyzeImage},
		domain.StatusAnalysisComplete:    {name: "generate_image_prompt", run: o.generateImagePrompt},
		domain.StatusImagePromptComplete: {name: "generate_image", run: o.generateImage},
		domain.StatusImageComplete:       {name: "generate_video_prompts", run: o.generateVideoPrompts},
		domain.StatusImageSkipped:        {name: "generate_video_prompts", run: o.generateVideoPrompts},
		domain.StatusVideoPromptsDone:    {name: "generate_video_clips", run: o.generateVideoClips},
		domain.StatusVideosGenerated:     {name: "merge_video_clips", run: o.mergeVideoClips},
	}
}

func (o *Orchestrator) transitionStages() map[domain.ProjectStatus]stage {
	return map[domain.ProjectStatus]stage{
		domain.StatusPending:             {name: "analyze_image", run: o.analyzeImage},
		domain.StatusAnalysisComplete:    {name: "generate_image_prompt", run: o.generateImagePrompt},
		domain.StatusImagePromptComplete: {name: "submit_target_image", run: o.submitTargetImage},
		domain.StatusImageComplete:       {name: "submit_transition_video", run: o.submitTransitionVideo},
	}
}

// fail writes the terminal error state for a project. Stage errors never
// propagate past this point.
func (o *Orchestrator) fail(ctx context.Context, p *domain.Project, stageName string, cause error) {
	o.logger.Error().Err(cause).Str("project_id", p.ID).Str("stage", stageName).Msg("pipeline: stage failed")
	status := domain.StatusError
	msg := cause.Error()
	if _, err := o.repo.Update(ctx, p.ID, domain.ProjectUpdate{
		Status:       &status,
		ErrorMessage: &msg,
	}); err != nil {
		o.logger.Error().Err(err).Str("project_id", p.ID).Msg("pipeline: persist failure state failed")
	}
	o.count(ctx, map[string]int{"projects_failed": 1})
}

func (o *Orchestrator) recordCompletion(ctx context.Context, p *domain.Project) {
	o.logger.Info().Str("project_id", p.ID).Str("video_url", p.VideoURL).Msg("pipeline: project complete")
	counters := map[string]int{"projects_completed": 1}
	if n := len(p.GeneratedVideoURLs); n > 0 {
		counters["clips_generated"] = n
	}
	if p.GeneratedImageURL != "" {
		counters["images_generated"] = 1
	}
	o.count(ctx, counters)
}

func (o *Orchestrator) count(ctx context.Context, counters map[string]int) {
	if o.analytics == nil {
		return
	}
	day := time.Now().UTC().Format("2006-01-02")
	if err := o.analytics.IncrementCounters(ctx, day, counters); err != nil {
		o.logger.Warn().Err(err).Msg("pipeline: analytics update failed")
	}
}

// missing builds the fail-fast result for an absent precondition field.
func missing(field string) stageResult {
	return stageResult{kind: resultFailure, err: fmt.Errorf("%w: %s", domain.ErrMissingField, field)}
}

func statusPtr(s domain.ProjectStatus) *domain.ProjectStatus { return &s }

func strPtr(s string) *string { return &s }
