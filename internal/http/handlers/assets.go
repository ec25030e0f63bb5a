package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/pkg/zip"
)

type assetItem struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// collectAssets lists every artifact a project has produced so far, in
// pipeline order.
func collectAssets(p *domain.Project) []assetItem {
	var items []assetItem
	if p.ImageURL != "" {
		items = append(items, assetItem{Type: "source_image", URL: p.ImageURL})
	}
	if p.GeneratedImageURL != "" {
		items = append(items, assetItem{Type: "generated_image", URL: p.GeneratedImageURL})
	}
	for _, u := range p.GeneratedVideoURLs {
		items = append(items, assetItem{Type: "clip", URL: u})
	}
	if p.VideoURL != "" {
		items = append(items, assetItem{Type: "final_video", URL: p.VideoURL})
	}
	return items
}

// ProjectAssets lists a project's artifacts.
func (a *App) ProjectAssets(w http.ResponseWriter, r *http.Request) {
	project, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	items := collectAssets(project)
	if items == nil {
		items = []assetItem{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// DownloadProjectZip streams every artifact of a project as a zip archive.
// Remote assets are fetched through the app's HTTP client; assets hosted on
// our own file store are read directly from disk.
func (a *App) DownloadProjectZip(w http.ResponseWriter, r *http.Request) {
	project, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	items := collectAssets(project)
	if len(items) == 0 {
		a.error(w, http.StatusConflict, "no_assets", "project has no downloadable assets yet")
		return
	}

	var assets []zip.Asset
	counts := map[string]int{}
	for _, item := range items {
		data, err := a.fetchAsset(r, item.URL)
		if err != nil {
			a.Logger.Warn().Err(err).Str("url", item.URL).Msg("assets: artifact skipped in archive")
			continue
		}
		counts[item.Type]++
		assets = append(assets, zip.Asset{
			Filename: archiveFilename(item, counts[item.Type]),
			Data:     data,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusBadGateway, "fetch_failed", "no project asset could be fetched")
		return
	}

	archive := zip.ArchiveAssets(assets)
	if archive == nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", project.ID+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) loadProject(w http.ResponseWriter, r *http.Request) (*domain.Project, bool) {
	id := chi.URLParam(r, "id")
	project, err := a.Projects.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "project not found")
		} else {
			a.Logger.Error().Err(err).Str("project_id", id).Msg("assets: project load failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load project")
		}
		return nil, false
	}
	return project, true
}

// fetchAsset resolves an artifact URL to bytes, short-circuiting through the
// local file store for assets we host ourselves.
func (a *App) fetchAsset(r *http.Request, url string) ([]byte, error) {
	base := strings.TrimRight(a.Config.StorageBaseURL, "/") + "/"
	if a.Store != nil && strings.HasPrefix(url, base) {
		return a.Store.Read(r.Context(), strings.TrimPrefix(url, base))
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func archiveFilename(item assetItem, n int) string {
	ext := path.Ext(item.URL)
	if ext == "" || len(ext) > 5 {
		if item.Type == "clip" || item.Type == "final_video" {
			ext = ".mp4"
		} else {
			ext = ".png"
		}
	}
	if item.Type == "clip" {
		return fmt.Sprintf("scene_%02d%s", n, ext)
	}
	return item.Type + ext
}
