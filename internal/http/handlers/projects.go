package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/domain/jsoncfg"
)

// maxUploadBytes bounds the multipart body of project creation.
const maxUploadBytes = 15 << 20

var allowedImageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {},
}

// CreateProject accepts a multipart form with the source image and the
// creative brief, persists the project, and starts the pipeline in the
// background. The response carries only the id and the initial status; the
// client follows up via the status or poll endpoints.
func (a *App) CreateProject(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}

	req := jsoncfg.CreateRequest{
		Kind:         r.FormValue("kind"),
		Instructions: r.FormValue("instructions"),
		AspectRatio:  r.FormValue("aspect_ratio"),
	}
	if v := r.FormValue("duration_seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "duration_seconds must be an integer")
			return
		}
		req.DurationSeconds = n
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	imageURL, err := a.storeUpload(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	project := &domain.Project{
		ID:              uuid.NewString(),
		Kind:            domain.ProjectKind(req.Kind),
		Status:          domain.StatusPending,
		ImageURL:        imageURL,
		Instructions:    req.Instructions,
		AspectRatio:     req.AspectRatio,
		DurationSeconds: req.DurationSeconds,
	}
	if err := a.Projects.Create(r.Context(), project); err != nil {
		a.Logger.Error().Err(err).Msg("projects: create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create project")
		return
	}

	a.recordCreated(r.Context(), r)
	a.Pipeline.Start(project.ID)

	a.json(w, http.StatusAccepted, map[string]string{
		"project_id": project.ID,
		"status":     string(project.Status),
	})
}

// storeUpload writes the uploaded image into the file store and returns its
// public URL.
func (a *App) storeUpload(r *http.Request) (string, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		return "", errors.New("image file is required")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedImageExts[ext]; !ok {
		return "", fmt.Errorf("unsupported image type %q", ext)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", errors.New("failed to read image upload")
	}
	key := fmt.Sprintf("uploads/%s/%s%s", time.Now().UTC().Format("2006-01-02"), uuid.NewString(), ext)
	storedKey, err := a.Store.Write(r.Context(), key, data)
	if err != nil {
		return "", errors.New("failed to store image upload")
	}
	return a.publicURL(storedKey), nil
}

func (a *App) publicURL(key string) string {
	return strings.TrimRight(a.Config.StorageBaseURL, "/") + "/" + key
}

// projectResponse is the wire shape of a project record.
type projectResponse struct {
	ID                    string                 `json:"id"`
	Kind                  string                 `json:"kind"`
	Status                string                 `json:"status"`
	ImageURL              string                 `json:"image_url"`
	Instructions          string                 `json:"instructions"`
	AspectRatio           string                 `json:"aspect_ratio"`
	DurationSeconds       int                    `json:"duration_seconds"`
	AnalysisResult        *domain.AnalysisResult `json:"analysis_result,omitempty"`
	GeneratedImagePrompt  *domain.ImagePrompt    `json:"generated_image_prompt,omitempty"`
	GeneratedImageURL     string                 `json:"generated_image_url,omitempty"`
	GeneratedVideoPrompts []domain.ScenePrompt   `json:"generated_video_prompts,omitempty"`
	GeneratedVideoURLs    []string               `json:"generated_video_urls,omitempty"`
	VideoURL              string                 `json:"video_url,omitempty"`
	ErrorMessage          string                 `json:"error_message,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

func toProjectResponse(p *domain.Project) projectResponse {
	return projectResponse{
		ID:                    p.ID,
		Kind:                  string(p.Kind),
		Status:                string(p.Status),
		ImageURL:              p.ImageURL,
		Instructions:          p.Instructions,
		AspectRatio:           p.AspectRatio,
		DurationSeconds:       p.DurationSeconds,
		AnalysisResult:        p.AnalysisResult,
		GeneratedImagePrompt:  p.GeneratedImagePrompt,
		GeneratedImageURL:     p.GeneratedImageURL,
		GeneratedVideoPrompts: p.GeneratedVideoPrompts,
		GeneratedVideoURLs:    p.GeneratedVideoURLs,
		VideoURL:              p.VideoURL,
		ErrorMessage:          p.ErrorMessage,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

// GetProject returns the full project record for UI rendering.
func (a *App) GetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	project, err := a.Projects.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "project not found")
			return
		}
		a.Logger.Error().Err(err).Str("project_id", id).Msg("projects: load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load project")
		return
	}
	a.json(w, http.StatusOK, toProjectResponse(project))
}
