package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"harmoniq/internal/http/handlers"
	"harmoniq/internal/middleware"
)

// RouterOptions bundles the cross-cutting dependencies for the HTTP surface.
type RouterOptions struct {
	AllowedOrigins []string
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
	ResolveAPIKey  middleware.APIKeyResolver
	RateLimit      int
	StaticDir      string
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Handle("/static/*", fs)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(opts.ResolveAPIKey))
		if opts.RateLimit > 0 {
			r.Use(middleware.RateLimit(opts.RateLimit, time.Minute))
		}

		r.Route("/v1/generations", func(r chi.Router) {
			r.Post("/", app.GenerationsCreate)
			r.Get("/", app.GenerationsList)
			r.Get("/{id}", app.GenerationsGet)
			r.Get("/{id}/status", app.GenerationsStatus)
			r.Get("/{id}/download", app.GenerationsDownload)
		})
		r.Post("/v1/sfx", app.SFXCreate)
		r.Post("/v1/lyrics", app.LyricsCreate)
		r.Get("/v1/account/provider", app.ProviderStatus)
	})

	return r
}
