package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/pipeline"
	"server/internal/storage"
)

// Pipeline is the orchestration surface the handlers depend on.
type Pipeline interface {
	Start(id string)
	Poll(ctx context.Context, id string) (*pipeline.PollResult, error)
	ResolveWebhook(ctx context.Context, outcome pipeline.TaskOutcome, expect pipeline.Expectation)
}

// App carries the handler dependencies. One instance is built in main and
// shared by every route.
type App struct {
	Logger    infra.Logger
	Config    *infra.Config
	Projects  domain.ProjectRepository
	Analytics domain.AnalyticsRepository
	Pipeline  Pipeline
	Store     *storage.FileStore
	Geo       geoip.CountryResolver

	// Client is used for fetching remote assets (zip downloads). Defaults
	// to a timeout-bounded client when nil.
	Client *http.Client
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func (a *App) httpClient() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// recordCreated bumps the daily creation counters, tagging the caller's
// country when the GeoIP resolver is configured. Analytics must never fail a
// request, so errors are logged and dropped.
func (a *App) recordCreated(ctx context.Context, r *http.Request) {
	if a.Analytics == nil {
		return
	}
	counters := map[string]int{"projects_created": 1}
	if a.Geo != nil {
		if code, err := a.Geo.CountryCode(clientIP(r)); err == nil && code != "" {
			counters["country_"+code] = 1
		}
	}
	day := time.Now().UTC().Format("2006-01-02")
	if err := a.Analytics.IncrementCounters(ctx, day, counters); err != nil {
		a.Logger.Warn().Err(err).Msg("analytics: creation counters not recorded")
	}
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
