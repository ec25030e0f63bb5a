package domain

import (
	"context"
	"time"
)

// ProjectUpdate carries a partial-field merge for a project record. Nil
// pointers leave the stored value untouched, so two stages touching
// different fields never clobber each other's writes.
type ProjectUpdate struct {
	Status                *ProjectStatus
	AnalysisResult        *AnalysisResult
	GeneratedImagePrompt  *ImagePrompt
	GeneratedImageURL     *string
	GeneratedVideoPrompts []ScenePrompt
	GeneratedVideoURLs    []string
	VideoURL              *string
	ExternalTaskID        *string
	ErrorMessage          *string
}

// ProjectRepository defines persistence for project records. All reads and
// writes of project state go through this interface.
type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id string) (*Project, error)
	// Update applies a partial-field merge and returns the updated record.
	Update(ctx context.Context, id string, update ProjectUpdate) (*Project, error)
	// UpdateStatusIf applies the update only when the current status is one
	// of from. It returns ErrStatusConflict otherwise, which makes webhook
	// and poll reconciliation strictly idempotent under concurrent firing.
	UpdateStatusIf(ctx context.Context, id string, from []ProjectStatus, update ProjectUpdate) (*Project, error)
	// FindByTaskID locates the project whose current external task id
	// matches the given provider task id.
	FindByTaskID(ctx context.Context, taskID string) (*Project, error)
	// FindLatestAwaiting returns the most recently created project of the
	// given kind still sitting in the given waiting status. Best-effort
	// webhook fallback when task id matching fails.
	FindLatestAwaiting(ctx context.Context, kind ProjectKind, status ProjectStatus) (*Project, error)
	// ListAwaiting returns projects parked in one of the waiting statuses
	// that were last touched before the cutoff.
	ListAwaiting(ctx context.Context, statuses []ProjectStatus, updatedBefore time.Time) ([]Project, error)
}

// AnalyticsRepository updates daily metric counters.
type AnalyticsRepository interface {
	IncrementCounters(ctx context.Context, day string, counters map[string]int) error
	GetSummary(ctx context.Context) (*AnalyticsDaily, error)
}
