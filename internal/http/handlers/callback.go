package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"portraitbot/internal/domain"
	"portraitbot/internal/provider"
	"portraitbot/internal/redact"
)

// ProviderCallback is the inbound provider notification entry point. Once the
// signature verifies the request is acknowledged with 200 regardless of
// processing outcome, so the provider does not retry a request we understood.
func (a *App) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job")
	if jobID == "" {
		// Nothing to resolve; acknowledge and drop to avoid a retry storm.
		a.Logger.Warn().Msg("provider callback without job reference")
		a.json(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	var cb provider.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("provider callback with invalid payload")
		a.json(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	signature := r.Header.Get(provider.SignatureHeader)
	if err := a.Reconciler.Apply(r.Context(), jobID, signature, cb); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			a.error(w, http.StatusUnauthorized, "unauthorized", "bad callback signature")
			return
		}
		a.Logger.Error().Err(err).
			Str("job_id", jobID).
			Str("status", cb.Status).
			Interface("payload", redact.Value(map[string]any{
				"task_id": cb.TaskID,
				"status":  cb.Status,
				"error":   cb.Error,
			})).
			Msg("provider callback processing failed")
	}
	a.json(w, http.StatusOK, map[string]bool{"ok": true})
}
