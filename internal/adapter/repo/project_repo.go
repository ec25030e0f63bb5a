package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// ProjectRepositoryPG implements domain.ProjectRepository.
type ProjectRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a new project repository backed by PostgreSQL.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepositoryPG {
	return &ProjectRepositoryPG{pool: pool}
}

const projectColumns = `
id, kind, status, image_url, instructions, aspect_ratio, duration_seconds,
analysis_json, image_prompt_json, generated_image_url, video_prompts_json,
video_urls_json, video_url, external_task_id, error_message, created_at, updated_at`

// Create inserts a new project record.
func (r *ProjectRepositoryPG) Create(ctx context.Context, p *domain.Project) error {
	query := `
INSERT INTO projects (id, kind, status, image_url, instructions, aspect_ratio, duration_seconds)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.Kind,
		p.Status,
		p.ImageURL,
		p.Instructions,
		p.AspectRatio,
		p.DurationSeconds,
	)
	return err
}

// GetByID fetches a project by its identifier.
func (r *ProjectRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1;`
	return scanProject(r.pool.QueryRow(ctx, query, id))
}

// Update applies a partial-field merge. Nil fields keep their stored value,
// so concurrent stages touching different fields do not clobber each other.
func (r *ProjectRepositoryPG) Update(ctx context.Context, id string, u domain.ProjectUpdate) (*domain.Project, error) {
	query := `
UPDATE projects
SET status             = COALESCE($2, status),
    analysis_json      = COALESCE($3, analysis_json),
    image_prompt_json  = COALESCE($4, image_prompt_json),
    generated_image_url = COALESCE($5, generated_image_url),
    video_prompts_json = COALESCE($6, video_prompts_json),
    video_urls_json    = COALESCE($7, video_urls_json),
    video_url          = COALESCE($8, video_url),
    external_task_id   = COALESCE($9, external_task_id),
    error_message      = COALESCE($10, error_message),
    updated_at         = NOW()
WHERE id = $1
RETURNING ` + projectColumns + `;`
	args, err := updateArgs(id, u)
	if err != nil {
		return nil, err
	}
	return scanProject(r.pool.QueryRow(ctx, query, args...))
}

// UpdateStatusIf applies the update only when the current status is one of
// from. A lost race surfaces as ErrStatusConflict, never as a stale write.
func (r *ProjectRepositoryPG) UpdateStatusIf(ctx context.Context, id string, from []domain.ProjectStatus, u domain.ProjectUpdate) (*domain.Project, error) {
	query := `
UPDATE projects
SET status             = COALESCE($3, status),
    analysis_json      = COALESCE($4, analysis_json),
    image_prompt_json  = COALESCE($5, image_prompt_json),
    generated_image_url = COALESCE($6, generated_image_url),
    video_prompts_json = COALESCE($7, video_prompts_json),
    video_urls_json    = COALESCE($8, video_urls_json),
    video_url          = COALESCE($9, video_url),
    external_task_id   = COALESCE($10, external_task_id),
    error_message      = COALESCE($11, error_message),
    updated_at         = NOW()
WHERE id = $1 AND status = ANY($2)
RETURNING ` + projectColumns + `;`
	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}
	args, err := updateArgs(id, u)
	if err != nil {
		return nil, err
	}
	args = append([]any{id, statuses}, args[1:]...)
	project, err := scanProject(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	// Distinguish a missing record from a lost status race.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrStatusConflict
}

// FindByTaskID locates the project holding the given external task id.
func (r *ProjectRepositoryPG) FindByTaskID(ctx context.Context, taskID string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE external_task_id = $1 ORDER BY created_at DESC LIMIT 1;`
	return scanProject(r.pool.QueryRow(ctx, query, taskID))
}

// FindLatestAwaiting returns the newest project of the kind still in the
// given waiting status. Fallback path for webhook payloads without a
// matchable task id.
func (r *ProjectRepositoryPG) FindLatestAwaiting(ctx context.Context, kind domain.ProjectKind, status domain.ProjectStatus) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE kind = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1;`
	return scanProject(r.pool.QueryRow(ctx, query, kind, status))
}

// ListAwaiting returns projects in one of the waiting statuses last touched
// before the cutoff. Used by the reconciler sweep.
func (r *ProjectRepositoryPG) ListAwaiting(ctx context.Context, statuses []domain.ProjectStatus, updatedBefore time.Time) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE status = ANY($1) AND updated_at < $2 ORDER BY updated_at ASC LIMIT 100;`
	raw := make([]string, 0, len(statuses))
	for _, s := range statuses {
		raw = append(raw, string(s))
	}
	rows, err := r.pool.Query(ctx, query, raw, updatedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var projects []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func updateArgs(id string, u domain.ProjectUpdate) ([]any, error) {
	analysis, err := marshalOptional(u.AnalysisResult)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis: %w", err)
	}
	imagePrompt, err := marshalOptional(u.GeneratedImagePrompt)
	if err != nil {
		return nil, fmt.Errorf("marshal image prompt: %w", err)
	}
	var scenePrompts, videoURLs []byte
	if u.GeneratedVideoPrompts != nil {
		if scenePrompts, err = json.Marshal(u.GeneratedVideoPrompts); err != nil {
			return nil, fmt.Errorf("marshal scene prompts: %w", err)
		}
	}
	if u.GeneratedVideoURLs != nil {
		if videoURLs, err = json.Marshal(u.GeneratedVideoURLs); err != nil {
			return nil, fmt.Errorf("marshal video urls: %w", err)
		}
	}
	return []any{
		id,
		statusArg(u.Status),
		analysis,
		imagePrompt,
		u.GeneratedImageURL,
		scenePrompts,
		videoURLs,
		u.VideoURL,
		u.ExternalTaskID,
		u.ErrorMessage,
	}, nil
}

func statusArg(s *domain.ProjectStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func marshalOptional(v any) ([]byte, error) {
	switch t := v.(type) {
	case *domain.AnalysisResult:
		if t == nil {
			return nil, nil
		}
	case *domain.ImagePrompt:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var (
		p            domain.Project
		analysis     []byte
		imagePrompt  []byte
		scenePrompts []byte
		videoURLs    []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.Kind,
		&p.Status,
		&p.ImageURL,
		&p.Instructions,
		&p.AspectRatio,
		&p.DurationSeconds,
		&analysis,
		&imagePrompt,
		&p.GeneratedImageURL,
		&scenePrompts,
		&videoURLs,
		&p.VideoURL,
		&p.ExternalTaskID,
		&p.ErrorMessage,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(analysis) > 0 {
		p.AnalysisResult = &domain.AnalysisResult{}
		if err := json.Unmarshal(analysis, p.AnalysisResult); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
	}
	if len(imagePrompt) > 0 {
		p.GeneratedImagePrompt = &domain.ImagePrompt{}
		if err := json.Unmarshal(imagePrompt, p.GeneratedImagePrompt); err != nil {
			return nil, fmt.Errorf("decode image prompt: %w", err)
		}
	}
	if len(scenePrompts) > 0 {
		if err := json.Unmarshal(scenePrompts, &p.GeneratedVideoPrompts); err != nil {
			return nil, fmt.Errorf("decode scene prompts: %w", err)
		}
	}
	if len(videoURLs) > 0 {
		if err := json.Unmarshal(videoURLs, &p.GeneratedVideoURLs); err != nil {
			return nil, fmt.Errorf("decode video urls: %w", err)
		}
	}
	return &p, nil
}
