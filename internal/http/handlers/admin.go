package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"portraitbot/internal/domain"
)

// AdminGetSession returns one session by ID.
func (a *App) AdminGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := a.Sessions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load session")
		return
	}
	a.json(w, http.StatusOK, sessionView(session))
}

// AdminGetChatSession returns the chat's active session, if any.
func (a *App) AdminGetChatSession(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chat_id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid chat id")
		return
	}
	session, err := a.Sessions.GetActiveByChat(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no active session")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load session")
		return
	}
	a.json(w, http.StatusOK, sessionView(session))
}

// AdminGetJob returns one job by ID. The callback secret never leaves the
// ledger.
func (a *App) AdminGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Jobs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":              job.ID,
		"chat_id":         job.ChatID,
		"session_id":      job.SessionID,
		"status":          job.Status,
		"provider_job_id": job.ProviderJobID,
		"input":           job.Input,
		"output":          job.Output,
		"result_path":     job.ResultPath,
		"error_message":   job.ErrorMessage,
		"attempts":        job.Attempts,
		"created_at":      job.CreatedAt,
		"updated_at":      job.UpdatedAt,
	})
}

func sessionView(s *domain.Session) map[string]any {
	return map[string]any{
		"id":            s.ID,
		"chat_id":       s.ChatID,
		"user_id":       s.UserID,
		"status":        s.Status,
		"images":        s.Images,
		"prompt":        s.Prompt,
		"settings":      s.Settings,
		"job_id":        s.JobID,
		"error_message": s.ErrorMessage,
		"created_at":    s.CreatedAt,
		"updated_at":    s.UpdatedAt,
	}
}
