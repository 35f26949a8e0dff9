package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"portraitbot/internal/bot"
	"portraitbot/internal/domain"
	"portraitbot/internal/infra"
)

// App bundles the dependencies shared by the HTTP handlers.
type App struct {
	Cfg        *infra.Config
	Logger     zerolog.Logger
	Updates    domain.ProcessedUpdateRepository
	Sessions   domain.SessionRepository
	Jobs       domain.JobRepository
	Controller *bot.Controller
	Reconciler *bot.Reconciler
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]string{"error": slug, "message": message})
}
