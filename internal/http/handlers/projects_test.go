package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

func TestCreateProjectStartsPipeline(t *testing.T) {
	ta := newTestApp(t)
	body, contentType := multipartBody(t, map[string]string{
		"kind":             "campaign",
		"instructions":     "promo for chili sauce",
		"aspect_ratio":     "16:9",
		"duration_seconds": "24",
	}, "product.png")

	req := httptest.NewRequest(http.MethodPost, "/v1/projects", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ta.app.CreateProject(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["project_id"] == "" || resp["status"] != "pending" {
		t.Fatalf("resp = %v", resp)
	}
	if len(ta.pipeline.started) != 1 || ta.pipeline.started[0] != resp["project_id"] {
		t.Fatalf("pipeline started for %v, want %s", ta.pipeline.started, resp["project_id"])
	}

	stored, err := ta.projects.GetByID(context.Background(), resp["project_id"])
	if err != nil {
		t.Fatalf("stored project: %v", err)
	}
	if stored.DurationSeconds != 24 || stored.Kind != domain.KindCampaign {
		t.Fatalf("stored = %+v", stored)
	}
	if !strings.HasPrefix(stored.ImageURL, "http://localhost:8080/static/uploads/") {
		t.Fatalf("ImageURL = %q", stored.ImageURL)
	}
	if ta.analytics.counters["projects_created"] != 1 {
		t.Fatalf("counters = %v", ta.analytics.counters)
	}
}

func TestCreateProjectDefaultsApplied(t *testing.T) {
	ta := newTestApp(t)
	body, contentType := multipartBody(t, map[string]string{
		"instructions": "promo",
	}, "product.jpg")

	req := httptest.NewRequest(http.MethodPost, "/v1/projects", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ta.app.CreateProject(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	stored, _ := ta.projects.GetByID(context.Background(), resp["project_id"])
	if stored.AspectRatio != "16:9" || stored.DurationSeconds != 8 || stored.Kind != domain.KindCampaign {
		t.Fatalf("defaults not applied: %+v", stored)
	}
}

func TestCreateProjectRejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		filename string
	}{
		{
			name:     "unsupported aspect ratio",
			fields:   map[string]string{"instructions": "promo", "aspect_ratio": "21:9"},
			filename: "product.png",
		},
		{
			name:     "unknown kind",
			fields:   map[string]string{"instructions": "promo", "kind": "billboard"},
			filename: "product.png",
		},
		{
			name:     "missing instructions",
			fields:   map[string]string{},
			filename: "product.png",
		},
		{
			name:     "missing image",
			fields:   map[string]string{"instructions": "promo"},
			filename: "",
		},
		{
			name:     "unsupported file type",
			fields:   map[string]string{"instructions": "promo"},
			filename: "product.gif",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ta := newTestApp(t)
			body, contentType := multipartBody(t, tc.fields, tc.filename)
			req := httptest.NewRequest(http.MethodPost, "/v1/projects", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			ta.app.CreateProject(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if len(ta.pipeline.started) != 0 {
				t.Fatal("pipeline started despite rejected input")
			}
		})
	}
}

func TestGetProject(t *testing.T) {
	ta := newTestApp(t)
	p := seedProject(t, ta, &domain.Project{
		ID:           "p1",
		Kind:         domain.KindCampaign,
		Status:       domain.StatusComplete,
		ImageURL:     "http://localhost:8080/static/uploads/a.png",
		Instructions: "promo",
		AspectRatio:  "16:9",
		VideoURL:     "https://cdn/final.mp4",
	})

	rec := httptest.NewRecorder()
	ta.app.GetProject(rec, requestWithID(http.MethodGet, "/v1/projects/p1", p.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp projectResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "p1" || resp.Status != "complete" || resp.VideoURL != "https://cdn/final.mp4" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	ta := newTestApp(t)
	rec := httptest.NewRecorder()
	ta.app.GetProject(rec, requestWithID(http.MethodGet, "/v1/projects/nope", "nope"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

// requestWithID builds a request whose chi route context carries the id
// parameter, so handlers can be exercised without a full router.
func requestWithID(method, target, id string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
