package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"portraitbot/internal/http/handlers"
	"portraitbot/internal/middleware"
)

// Options tunes the router surface.
type Options struct {
	// StaticDir, when set, serves the filesystem object store under /static
	// for development setups without a real bucket.
	StaticDir string
}

// NewRouter assembles the HTTP surface: health, the two webhook entry points,
// and the admin read endpoints.
func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer, middleware.Logger(app.Logger))

	r.Get("/v1/healthz", app.Health)

	r.Post("/v1/telegram/webhook", app.TelegramWebhook)
	r.Post("/v1/callbacks/provider", app.ProviderCallback)

	r.Route("/v1/admin", func(r chi.Router) {
		r.Get("/sessions/{id}", app.AdminGetSession)
		r.Get("/jobs/{id}", app.AdminGetJob)
		r.Get("/chats/{chat_id}/session", app.AdminGetChatSession)
	})

	if opts.StaticDir != "" {
		fs := stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
