package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"genstudio/internal/http/handlers"
	"genstudio/internal/infra"
	"genstudio/internal/middleware"
)

// Options wires the router's middleware.
type Options struct {
	Logger          infra.Logger
	JWT             middleware.JWTConfig
	CORSOrigins     []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	// StaticDir, when set, serves the file storage backend under /static/.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
		chimw.Timeout(60*time.Second),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/pricing", app.PriceList)

	if dir := strings.TrimSpace(opts.StaticDir); dir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWT))
		r.Use(middleware.RateLimit(opts.RateLimitPerMin))

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.CreateJob)
			r.Get("/", app.ListJobs)
			r.Get("/{job_id}", app.GetJob)
		})
		r.Get("/v1/credits", app.Credits)
	})

	return r
}
