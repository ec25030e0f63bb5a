package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// AnalyticsRepositoryPG implements domain.AnalyticsRepository using PostgreSQL.
type AnalyticsRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAnalyticsRepository constructs the repository.
func NewAnalyticsRepository(pool *pgxpool.Pool) *AnalyticsRepositoryPG {
	return &AnalyticsRepositoryPG{pool: pool}
}

// IncrementCounters upserts metrics for the provided day. Country counters
// use the "country_XX" key convention and land in the by_country document.
func (r *AnalyticsRepositoryPG) IncrementCounters(ctx context.Context, day string, counters map[string]int) error {
	byCountry := map[string]int{}
	for key, n := range counters {
		if cc, ok := strings.CutPrefix(key, "country_"); ok && cc != "" {
			byCountry[cc] = n
		}
	}
	countryJSON, err := json.Marshal(byCountry)
	if err != nil {
		return fmt.Errorf("marshal country counters: %w", err)
	}
	query := `
INSERT INTO analytics_daily (
    day, projects_created, projects_completed, projects_failed, clips_generated, images_generated, by_country
) VALUES (
    $1, $2, $3, $4, $5, $6, $7
) ON CONFLICT (day) DO UPDATE SET
    projects_created = analytics_daily.projects_created + EXCLUDED.projects_created,
    projects_completed = analytics_daily.projects_completed + EXCLUDED.projects_completed,
    projects_failed = analytics_daily.projects_failed + EXCLUDED.projects_failed,
    clips_generated = analytics_daily.clips_generated + EXCLUDED.clips_generated,
    images_generated = analytics_daily.images_generated + EXCLUDED.images_generated,
    by_country = fn_merge_counters(analytics_daily.by_country, EXCLUDED.by_country),
    updated_at = NOW();
`
	_, err = r.pool.Exec(ctx, query,
		day,
		counters["projects_created"],
		counters["projects_completed"],
		counters["projects_failed"],
		counters["clips_generated"],
		counters["images_generated"],
		countryJSON,
	)
	return err
}

// GetSummary returns the latest daily aggregate.
func (r *AnalyticsRepositoryPG) GetSummary(ctx context.Context) (*domain.AnalyticsDaily, error) {
	row := r.pool.QueryRow(ctx, `
SELECT day, projects_created, projects_completed, projects_failed, clips_generated, images_generated, by_country, created_at, updated_at
FROM analytics_daily
ORDER BY day DESC
LIMIT 1;
`)

	var (
		summary     domain.AnalyticsDaily
		countryJSON []byte
	)
	if err := row.Scan(
		&summary.Day,
		&summary.ProjectsCreated,
		&summary.ProjectsCompleted,
		&summary.ProjectsFailed,
		&summary.ClipsGenerated,
		&summary.ImagesGenerated,
		&countryJSON,
		&summary.CreatedAt,
		&summary.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(countryJSON) > 0 {
		if err := json.Unmarshal(countryJSON, &summary.ByCountry); err != nil {
			return nil, fmt.Errorf("decode country counters: %w", err)
		}
	}
	return &summary, nil
}
