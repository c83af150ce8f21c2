package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vidqueue/internal/http/handlers"
	"vidqueue/internal/middleware"
)

func NewRouter(app *handlers.App, rateLimitPerMin int, allowedOrigins []string) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer, chimw.Logger)
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(middleware.RateLimit(rateLimitPerMin, time.Minute))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.CreateJobs)
		r.Get("/", app.ListJobs)
		r.Post("/export", app.ExportAll)
		r.Get("/archive", app.Archive)
		r.Post("/{id}/retry", app.RetryJob)
		r.Get("/{id}/download", app.DownloadJob)
	})

	r.Route("/v1/credentials", func(r chi.Router) {
		r.Get("/", app.CredentialStatus)
		r.Put("/", app.SetCredential)
	})

	return r
}
