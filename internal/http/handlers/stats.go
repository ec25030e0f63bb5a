package handlers

import (
	"net/http"
)

// StatsSummary exposes the aggregated daily counters.
func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.Analytics.GetSummary(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("stats: summary load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"projects_created":   summary.ProjectsCreated,
		"projects_completed": summary.ProjectsCompleted,
		"projects_failed":    summary.ProjectsFailed,
		"clips_generated":    summary.ClipsGenerated,
		"images_generated":   summary.ImagesGenerated,
		"by_country":         summary.ByCountry,
	})
}
