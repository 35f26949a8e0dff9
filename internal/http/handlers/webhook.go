package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"portraitbot/internal/dispatch"
	"portraitbot/internal/domain"
	"portraitbot/internal/telegram"
)

// webhookSecretHeader carries the shared secret registered with the chat
// platform alongside the webhook URL.
const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// TelegramWebhook is the inbound chat update entry point. After
// authentication the request is always acknowledged with 200 so the
// platform's retry policy cannot amplify an internal failure into a retry
// storm; failures are logged and user-notified instead.
func (a *App) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if a.Cfg.Production() && a.Cfg.WebhookSecret == "" {
		// Fail closed on misconfiguration, never silently open.
		a.Logger.Error().Msg("webhook secret not configured in production")
		a.error(w, http.StatusInternalServerError, "misconfigured", "webhook secret not configured")
		return
	}
	if a.Cfg.WebhookSecret != "" {
		presented := r.Header.Get(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(a.Cfg.WebhookSecret)) != 1 {
			a.Logger.Warn().Str("remote", r.RemoteAddr).Msg("webhook secret mismatch")
			a.error(w, http.StatusUnauthorized, "unauthorized", "bad secret token")
			return
		}
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	ctx := r.Context()

	// Idempotency gate before any handler logic. Ledger errors are logged and
	// the update let through: fail open rather than block the bot.
	seen, err := a.Updates.Seen(ctx, update.UpdateID)
	if err != nil {
		a.Logger.Error().Err(err).Int64("update_id", update.UpdateID).Msg("idempotency ledger check failed")
	}
	if seen {
		a.json(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	classified := dispatch.Classify(update)
	if err := a.Updates.Mark(ctx, update.UpdateID, classified.ChatID, updateKind(classified.Kind)); err != nil {
		a.Logger.Error().Err(err).Int64("update_id", update.UpdateID).Msg("idempotency ledger mark failed")
	}

	if err := a.route(ctx, classified); err != nil {
		// The outermost catch: unexpected failures are logged and swallowed;
		// the update stays marked processed so redelivery cannot duplicate
		// side effects.
		a.Logger.Error().Err(err).
			Int64("update_id", update.UpdateID).
			Int64("chat_id", classified.ChatID).
			Str("kind", string(classified.Kind)).
			Msg("update handling failed")
	}
	a.json(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) route(ctx context.Context, classified dispatch.Classified) error {
	switch classified.Kind {
	case dispatch.KindCommand:
		cmd := classified.Command
		switch cmd.Name {
		case "/start":
			return a.Controller.Begin(ctx, cmd.ChatID, cmd.LanguageCode)
		case "/done":
			return a.Controller.Finalize(ctx, cmd.ChatID, cmd.LanguageCode)
		case "/cancel":
			return a.Controller.Cancel(ctx, cmd.ChatID, cmd.LanguageCode)
		case "/tips", "/help":
			return a.Controller.Tips(ctx, cmd.ChatID, cmd.LanguageCode)
		default:
			// Unknown commands are side-effect-free.
			return nil
		}
	case dispatch.KindImage:
		return a.Controller.IngestImage(ctx, *classified.Image)
	case dispatch.KindCallback:
		return a.Controller.HandleCallback(ctx, *classified.Callback)
	default:
		// Unrecognized updates never create a session or send a welcome.
		return nil
	}
}

func updateKind(kind dispatch.Kind) domain.UpdateKind {
	switch kind {
	case dispatch.KindCommand:
		return domain.UpdateKindCommand
	case dispatch.KindImage:
		return domain.UpdateKindImage
	case dispatch.KindCallback:
		return domain.UpdateKindCallback
	default:
		return domain.UpdateKindOther
	}
}
