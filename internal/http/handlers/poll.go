package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/pipeline"
)

// PollProject reconciles one project against its outstanding provider task
// and reports the terminal result or "processing". Clients call this on a
// timer as the fallback path when webhooks are delayed or unavailable.
func (a *App) PollProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := a.Pipeline.Poll(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "project not found")
			return
		}
		a.Logger.Error().Err(err).Str("project_id", id).Msg("poll: reconcile failed")
		a.error(w, http.StatusInternalServerError, "internal", "poll failed")
		return
	}

	switch res.State {
	case pipeline.PollSuccess:
		a.json(w, http.StatusOK, map[string]any{
			"status":    string(res.State),
			"video_url": res.VideoURL,
			"image_url": res.ImageURL,
		})
	case pipeline.PollError:
		a.json(w, http.StatusOK, map[string]any{
			"status": string(res.State),
			"error":  res.ErrorMessage,
		})
	default:
		a.json(w, http.StatusOK, map[string]any{
			"status":         string(res.State),
			"project_status": string(res.ProjectStatus),
		})
	}
}
