package pipeline

import (
	"context"
	"errors"
	"time"

	"server/internal/domain"
	"server/internal/providers/image"
	"server/internal/providers/video"
)

// TaskOutcome is a provider's report about an asynchronous task, normalized
// from webhook payloads and poll responses alike. Both reconciliation paths
// converge on the same idempotent write.
type TaskOutcome struct {
	TaskID       string
	Succeeded    bool
	ResultURL    string
	ErrorMessage string
}

// Expectation tells the resolver which waiting state a webhook route serves,
// and which kind of project to fall back to when task id matching fails.
type Expectation struct {
	Kind    domain.ProjectKind
	Waiting domain.ProjectStatus
}

// ResolveWebhook matches a provider callback to a waiting project and
// applies the outcome. It never returns an error: webhook handlers must
// acknowledge regardless of internal state, so every miss is logged and
// dropped here.
func (o *Orchestrator) ResolveWebhook(ctx context.Context, outcome TaskOutcome, expect Expectation) {
	if outcome.TaskID == "" {
		o.logger.Warn().Str("waiting", string(expect.Waiting)).Msg("reconcile: webhook without task id, ignored")
		return
	}
	p, err := o.repo.FindByTaskID(ctx, outcome.TaskID)
	if errors.Is(err, domain.ErrNotFound) {
		// Safety net for provider payload drift: pick the newest project
		// still parked in the expected waiting status. Racy under
		// concurrent projects of the same kind, hence the loud log.
		p, err = o.repo.FindLatestAwaiting(ctx, expect.Kind, expect.Waiting)
		if err == nil {
			o.logger.Warn().
				Str("task_id", outcome.TaskID).
				Str("project_id", p.ID).
				Msg("reconcile: task id unmatched, using latest waiting project")
		}
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn().Str("task_id", outcome.TaskID).Msg("reconcile: webhook matched no project, ignored")
		} else {
			o.logger.Error().Err(err).Str("task_id", outcome.TaskID).Msg("reconcile: webhook lookup failed")
		}
		return
	}
	if p.Status != expect.Waiting {
		// Poll or a duplicate delivery got here first.
		o.logger.Info().Str("project_id", p.ID).Str("status", string(p.Status)).Msg("reconcile: webhook no-op, project already past waiting state")
		return
	}
	o.applyOutcome(ctx, p, outcome)
}

// applyOutcome advances a waiting project according to the provider report.
// The status write is a compare-and-set from the waiting status, so a
// concurrent webhook/poll pair can only land once; the loser is a no-op.
func (o *Orchestrator) applyOutcome(ctx context.Context, p *domain.Project, outcome TaskOutcome) {
	if !outcome.Succeeded {
		msg := outcome.ErrorMessage
		if msg == "" {
			msg = "provider reported failure"
		}
		if _, err := o.repo.UpdateStatusIf(ctx, p.ID, []domain.ProjectStatus{p.Status}, domain.ProjectUpdate{
			Status:       statusPtr(domain.StatusError),
			ErrorMessage: &msg,
		}); err != nil && !errors.Is(err, domain.ErrStatusConflict) {
			o.logger.Error().Err(err).Str("project_id", p.ID).Msg("reconcile: persist task failure failed")
			return
		}
		o.count(ctx, map[string]int{"projects_failed": 1})
		return
	}

	update := domain.ProjectUpdate{ErrorMessage: strPtr("")}
	switch p.Status {
	case domain.StatusImageBWaiting:
		update.Status = statusPtr(domain.StatusImageComplete)
		update.GeneratedImageURL = &outcome.ResultURL
	case domain.StatusVideoWaiting:
		update.Status = statusPtr(domain.StatusComplete)
		update.VideoURL = &outcome.ResultURL
	default:
		o.logger.Error().Str("project_id", p.ID).Str("status", string(p.Status)).Msg("reconcile: outcome for non-waiting status dropped")
		return
	}
	updated, err := o.repo.UpdateStatusIf(ctx, p.ID, []domain.ProjectStatus{p.Status}, update)
	if err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			o.logger.Info().Str("project_id", p.ID).Msg("reconcile: lost the write race, already resolved")
			return
		}
		o.logger.Error().Err(err).Str("project_id", p.ID).Msg("reconcile: persist task success failed")
		return
	}
	if updated.Status == domain.StatusComplete {
		o.recordCompletion(ctx, updated)
		return
	}
	// The chain continues past the resolved waiting state.
	o.Start(updated.ID)
}

// PollState classifies a poll response for the client.
type PollState string

const (
	PollSuccess    PollState = "success"
	PollError      PollState = "error"
	PollProcessing PollState = "processing"
)

// PollResult is returned by the poll endpoint's backing logic.
type PollResult struct {
	State         PollState
	VideoURL      string
	ImageURL      string
	ErrorMessage  string
	ProjectStatus domain.ProjectStatus
}

// Poll reconciles one project on demand. The provider is the primary source
// of truth for waiting projects; the store is re-checked before reporting
// "processing" so a webhook landing mid-poll is never shadowed.
func (o *Orchestrator) Poll(ctx context.Context, id string) (*PollResult, error) {
	p, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res, done := terminalResult(p); done {
		return res, nil
	}
	if p.Status.Waiting() && p.ExternalTaskID != "" {
		outcome, err := o.queryProvider(ctx, p)
		if err != nil {
			o.logger.Warn().Err(err).Str("project_id", p.ID).Msg("reconcile: provider poll failed, falling back to store")
		} else if outcome != nil {
			o.applyOutcome(ctx, p, *outcome)
		}
	}
	// Re-read the store: either we just advanced it, or a webhook did
	// while the provider call was in flight.
	p, err = o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res, done := terminalResult(p); done {
		return res, nil
	}
	return &PollResult{State: PollProcessing, ProjectStatus: p.Status}, nil
}

// queryProvider asks the owning provider for the task state. A nil outcome
// means the task is still in progress.
func (o *Orchestrator) queryProvider(ctx context.Context, p *domain.Project) (*TaskOutcome, error) {
	switch p.Status {
	case domain.StatusImageBWaiting:
		status, err := o.editor.GetEditTask(ctx, p.ExternalTaskID)
		if err != nil {
			return nil, err
		}
		switch status.State {
		case image.TaskSucceeded:
			return &TaskOutcome{TaskID: p.ExternalTaskID, Succeeded: true, ResultURL: status.ImageURL}, nil
		case image.TaskFailed:
			return &TaskOutcome{TaskID: p.ExternalTaskID, ErrorMessage: status.ErrorMsg}, nil
		}
		return nil, nil
	case domain.StatusVideoWaiting:
		status, err := o.videos.Status(ctx, p.ExternalTaskID)
		if err != nil {
			return nil, err
		}
		switch status.State {
		case video.TaskSucceeded:
			return &TaskOutcome{TaskID: p.ExternalTaskID, Succeeded: true, ResultURL: status.VideoURL}, nil
		case video.TaskFailed:
			return &TaskOutcome{TaskID: p.ExternalTaskID, ErrorMessage: status.ErrorMsg}, nil
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func terminalResult(p *domain.Project) (*PollResult, bool) {
	switch p.Status {
	case domain.StatusComplete:
		return &PollResult{
			State:         PollSuccess,
			VideoURL:      p.VideoURL,
			ImageURL:      p.GeneratedImageURL,
			ProjectStatus: p.Status,
		}, true
	case domain.StatusError:
		return &PollResult{
			State:         PollError,
			ErrorMessage:  p.ErrorMessage,
			ProjectStatus: p.Status,
		}, true
	default:
		return nil, false
	}
}

// Sweep is the reconciler daemon's unit of work: poll every waiting project
// and fail the ones that outlived the wait timeout. Returns how many
// projects were touched.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	waiting := []domain.ProjectStatus{domain.StatusImageBWaiting, domain.StatusVideoWaiting}
	projects, err := o.repo.ListAwaiting(ctx, waiting, time.Now())
	if err != nil {
		return 0, err
	}
	deadline := time.Now().Add(-o.cfg.WaitTimeout)
	for i := range projects {
		p := &projects[i]
		if p.UpdatedAt.Before(deadline) {
			msg := domain.ErrTimeout.Error()
			if _, err := o.repo.UpdateStatusIf(ctx, p.ID, []domain.ProjectStatus{p.Status}, domain.ProjectUpdate{
				Status:       statusPtr(domain.StatusError),
				ErrorMessage: &msg,
			}); err != nil && !errors.Is(err, domain.ErrStatusConflict) {
				o.logger.Error().Err(err).Str("project_id", p.ID).Msg("reconcile: persist wait timeout failed")
			} else {
				o.logger.Warn().Str("project_id", p.ID).Str("status", string(p.Status)).Msg("reconcile: waiting project timed out")
				o.count(ctx, map[string]int{"projects_failed": 1})
			}
			continue
		}
		if _, err := o.Poll(ctx, p.ID); err != nil {
			o.logger.Warn().Err(err).Str("project_id", p.ID).Msg("reconcile: sweep poll failed")
		}
	}
	return len(projects), nil
}
