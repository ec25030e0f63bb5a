package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"server/internal/domain"
)

func TestProjectAssetsListsArtifactsInOrder(t *testing.T) {
	ta := newTestApp(t)
	seedProject(t, ta, &domain.Project{
		ID:                 "p1",
		Kind:               domain.KindCampaign,
		Status:             domain.StatusComplete,
		ImageURL:           "https://cdn/source.png",
		GeneratedImageURL:  "https://cdn/edited.png",
		GeneratedVideoURLs: []string{"https://cdn/s1.mp4", "https://cdn/s2.mp4"},
		VideoURL:           "https://cdn/final.mp4",
	})

	rec := httptest.NewRecorder()
	ta.app.ProjectAssets(rec, requestWithID(http.MethodGet, "/v1/projects/p1/assets", "p1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Items []assetItem `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantTypes := []string{"source_image", "generated_image", "clip", "clip", "final_video"}
	if len(resp.Items) != len(wantTypes) {
		t.Fatalf("items = %+v", resp.Items)
	}
	for i, want := range wantTypes {
		if resp.Items[i].Type != want {
			t.Fatalf("item %d type = %s, want %s", i, resp.Items[i].Type, want)
		}
	}
}

func TestDownloadProjectZip(t *testing.T) {
	ta := newTestApp(t)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("clip bytes for " + r.URL.Path))
	}))
	defer remote.Close()
	ta.app.Client = remote.Client()

	// One asset lives on our own file store, the rest are remote.
	key, err := ta.app.Store.Write(context.Background(), "uploads/p1/source.png", []byte("local png bytes"))
	if err != nil {
		t.Fatalf("store write: %v", err)
	}
	seedProject(t, ta, &domain.Project{
		ID:                 "p1",
		Kind:               domain.KindCampaign,
		Status:             domain.StatusComplete,
		ImageURL:           ta.app.publicURL(key),
		GeneratedVideoURLs: []string{remote.URL + "/s1.mp4", remote.URL + "/s2.mp4"},
		VideoURL:           remote.URL + "/final.mp4",
	})

	rec := httptest.NewRecorder()
	ta.app.DownloadProjectZip(rec, requestWithID(http.MethodGet, "/v1/projects/p1/assets/download", "p1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("Content-Type = %q", ct)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	names := map[string]bool{}
	for _, file := range zr.File {
		names[file.Name] = true
	}
	for _, want := range []string{"source_image.png", "scene_01.mp4", "scene_02.mp4", "final_video.mp4"} {
		if !names[want] {
			t.Fatalf("archive missing %s, has %v", want, names)
		}
	}
}

func TestDownloadProjectZipNoAssets(t *testing.T) {
	ta := newTestApp(t)
	seedProject(t, ta, &domain.Project{
		ID:     "p1",
		Kind:   domain.KindCampaign,
		Status: domain.StatusPending,
	})

	rec := httptest.NewRecorder()
	ta.app.DownloadProjectZip(rec, requestWithID(http.MethodGet, "/v1/projects/p1/assets/download", "p1"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}
