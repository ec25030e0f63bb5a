package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

// NewRouter assembles the public HTTP surface.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Config.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/stats", app.StatsSummary)

	r.Route("/v1/projects", func(r chi.Router) {
		r.With(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute)).
			Post("/", app.CreateProject)
		r.Get("/{id}", app.GetProject)
		r.Get("/{id}/poll", app.PollProject)
		r.Get("/{id}/assets", app.ProjectAssets)
		r.Get("/{id}/assets/download", app.DownloadProjectZip)
	})

	r.Route("/v1/webhooks", func(r chi.Router) {
		r.Post("/image", app.ImageWebhook)
		r.Post("/video", app.VideoWebhook)
		r.Post("/template-video", app.TemplateVideoWebhook)
		// GET answers liveness checks during webhook registration.
		r.Get("/image", app.WebhookLiveness)
		r.Get("/video", app.WebhookLiveness)
		r.Get("/template-video", app.WebhookLiveness)
	})

	if app.Store != nil {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(app.Store.BasePath())))
		r.Handle("/static/*", fs)
	}

	return r
}
