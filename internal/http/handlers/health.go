package handlers

import (
	"net/http"
)

// Health is the liveness endpoint polled by the hosting platform.
func (a *App) Health(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "service": "portraitbot"})
}
