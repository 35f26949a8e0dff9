// Package bot owns the session lifecycle state machine and the reconciliation
// of provider callbacks. All state lives in the repositories; every
// side-effecting transition re-checks a persisted guard immediately before
// acting, so duplicate or racing invocations degrade to no-ops.
package bot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"portraitbot/internal/dispatch"
	"portraitbot/internal/domain"
	"portraitbot/internal/provider"
	"portraitbot/internal/storage"
	"portraitbot/internal/telegram"
)

// Transport is the subset of chat operations the lifecycle needs.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error
	DownloadByFileID(ctx context.Context, fileID string) ([]byte, string, error)
}

// Submitter creates generation tasks at the external provider.
type Submitter interface {
	Submit(ctx context.Context, req provider.SubmitRequest) (string, error)
}

// Config tunes the lifecycle controller.
type Config struct {
	// DownloadTimeout bounds the transport file download; an unbounded hang
	// here would hold the invocation long enough for upstream webhook
	// redelivery.
	DownloadTimeout time.Duration
	// MaxFileBytes is the per-file upload cap.
	MaxFileBytes int64
	// SignedURLTTL is how long provider-facing input URLs stay valid.
	SignedURLTTL time.Duration
	// CallbackBaseURL is the public base under which the provider callback
	// endpoint is reachable.
	CallbackBaseURL string
}

func (c *Config) applyDefaults() {
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 45 * time.Second
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 20 << 20
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = 24 * time.Hour
	}
}

// Controller drives the session state machine:
// collecting → processing → {done | failed | cancelled}.
type Controller struct {
	sessions  domain.SessionRepository
	jobs      domain.JobRepository
	transport Transport
	store     storage.ObjectStore
	provider  Submitter
	logger    zerolog.Logger
	cfg       Config
}

// NewController wires a lifecycle controller.
func NewController(
	sessions domain.SessionRepository,
	jobs domain.JobRepository,
	transport Transport,
	store storage.ObjectStore,
	submitter Submitter,
	logger zerolog.Logger,
	cfg Config,
) *Controller {
	cfg.applyDefaults()
	return &Controller{
		sessions:  sessions,
		jobs:      jobs,
		transport: transport,
		store:     store,
		provider:  submitter,
		logger:    logger,
		cfg:       cfg,
	}
}

// Begin handles /start. It only sends instructions; session creation is
// deferred to the first image upload so idle /start presses leave no
// persistent state behind.
func (c *Controller) Begin(ctx context.Context, chatID int64, languageCode string) error {
	locale := matchLocale(languageCode)
	_, err := c.transport.SendMessage(ctx, chatID, replyf(locale, "welcome", domain.MaxSessionImages), nil)
	return err
}

// Tips sends usage guidance; pure read, no state transition.
func (c *Controller) Tips(ctx context.Context, chatID int64, languageCode string) error {
	locale := matchLocale(languageCode)
	_, err := c.transport.SendMessage(ctx, chatID, reply(locale, "tips"), nil)
	return err
}

// IngestImage collects one uploaded photo into the chat's active session,
// creating the session when none exists. This is the only implicit
// session-creation path.
func (c *Controller) IngestImage(ctx context.Context, up dispatch.ImageUpload) error {
	locale := matchLocale(up.LanguageCode)

	session, err := c.sessions.GetActiveByChat(ctx, up.ChatID)
	if errors.Is(err, domain.ErrNotFound) {
		session = &domain.Session{
			ID:       uuid.NewString(),
			ChatID:   up.ChatID,
			UserID:   up.UserID,
			Locale:   locale,
			Status:   domain.SessionStatusCollecting,
			Settings: domain.DefaultGenerationSettings(),
		}
		if err := c.sessions.Create(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("load active session: %w", err)
	}

	if session.Status != domain.SessionStatusCollecting {
		_, err := c.transport.SendMessage(ctx, up.ChatID, reply(locale, "already_working"), nil)
		return err
	}
	if session.HasImage(up.MessageID) {
		// Redelivered upload; the first delivery already handled it.
		return nil
	}
	if len(session.Images) >= domain.MaxSessionImages {
		_, err := c.transport.SendMessage(ctx, up.ChatID, replyf(locale, "too_many_images", domain.MaxSessionImages), collectKeyboard(locale))
		return err
	}
	if up.FileSize > c.cfg.MaxFileBytes {
		_, err := c.transport.SendMessage(ctx, up.ChatID, replyf(locale, "file_too_large", c.cfg.MaxFileBytes>>20), nil)
		return err
	}

	downloadCtx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	data, filePath, err := c.transport.DownloadByFileID(downloadCtx, up.FileID)
	cancel()
	if err != nil {
		key := "download_failed"
		if errors.Is(err, context.DeadlineExceeded) {
			key = "download_timeout"
		}
		c.logger.Warn().Err(err).Int64("chat_id", up.ChatID).Str("file_id", up.FileID).Msg("image download failed")
		_, sendErr := c.transport.SendMessage(ctx, up.ChatID, reply(locale, key), nil)
		return sendErr
	}
	if int64(len(data)) > c.cfg.MaxFileBytes {
		_, err := c.transport.SendMessage(ctx, up.ChatID, replyf(locale, "file_too_large", c.cfg.MaxFileBytes>>20), nil)
		return err
	}

	name := storedFileName(up.FileName, filePath)
	key := fmt.Sprintf("sessions/%s/%d_%s", session.ID, up.MessageID, name)
	storedKey, err := c.store.Write(ctx, key, data, contentTypeFor(name))
	if err != nil {
		c.logger.Error().Err(err).Str("session_id", session.ID).Msg("image upload to storage failed")
		_, sendErr := c.transport.SendMessage(ctx, up.ChatID, reply(locale, "download_failed"), nil)
		return sendErr
	}

	updated, err := c.sessions.AppendImage(ctx, session.ID, domain.SessionImage{
		FileID:    up.FileID,
		MessageID: up.MessageID,
		Bucket:    c.store.Bucket(),
		Path:      storedKey,
		FileName:  name,
		AddedAt:   time.Now().UTC(),
	})
	switch {
	case errors.Is(err, domain.ErrSessionFrozen):
		_, sendErr := c.transport.SendMessage(ctx, up.ChatID, reply(locale, "already_working"), nil)
		return sendErr
	case errors.Is(err, domain.ErrTooManyImages):
		_, sendErr := c.transport.SendMessage(ctx, up.ChatID, replyf(locale, "too_many_images", domain.MaxSessionImages), collectKeyboard(locale))
		return sendErr
	case err != nil:
		return fmt.Errorf("append image: %w", err)
	}

	_, err = c.transport.SendMessage(ctx, up.ChatID, replyf(locale, "image_received", len(updated.Images)), collectKeyboard(locale))
	return err
}

// Finalize moves the chat's session to processing and submits exactly one
// generation job. The claim on the session's job_id column is the idempotency
// boundary against a double press or a redelivered button callback.
func (c *Controller) Finalize(ctx context.Context, chatID int64, languageCode string) error {
	locale := matchLocale(languageCode)

	session, err := c.sessions.GetActiveByChat(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		_, sendErr := c.transport.SendMessage(ctx, chatID, reply(locale, "need_photos"), nil)
		return sendErr
	}
	if err != nil {
		return fmt.Errorf("load active session: %w", err)
	}
	if session.Status != domain.SessionStatusCollecting || session.JobID != "" {
		_, sendErr := c.transport.SendMessage(ctx, chatID, reply(locale, "already_working"), nil)
		return sendErr
	}
	if len(session.Images) == 0 {
		_, sendErr := c.transport.SendMessage(ctx, chatID, reply(locale, "need_photos"), nil)
		return sendErr
	}

	jobID := uuid.NewString()
	claimed, err := c.sessions.ClaimForSubmission(ctx, session.ID, jobID)
	if err != nil {
		return fmt.Errorf("claim session: %w", err)
	}
	if claimed == nil {
		// A concurrent finalize won the claim; this invocation is a no-op.
		_, sendErr := c.transport.SendMessage(ctx, chatID, reply(locale, "already_working"), nil)
		return sendErr
	}
	// The claimed row, not the pre-claim read, is the frozen input set. An
	// image appended between the read and the claim belongs to the job.
	session = claimed

	imageURLs := make([]string, 0, len(session.Images))
	imagePaths := make([]string, 0, len(session.Images))
	for _, img := range session.Images {
		signed, err := c.store.SignedURL(img.Path, c.cfg.SignedURLTTL)
		if err != nil {
			return c.failSubmission(ctx, session, jobID, locale, fmt.Errorf("sign input url: %w", err))
		}
		imageURLs = append(imageURLs, signed)
		imagePaths = append(imagePaths, img.Path)
	}

	secret, err := newCallbackSecret()
	if err != nil {
		return c.failSubmission(ctx, session, jobID, locale, fmt.Errorf("generate callback secret: %w", err))
	}

	prompt := buildPrompt(len(session.Images), session.Prompt)
	job := &domain.Job{
		ID:        jobID,
		ChatID:    chatID,
		SessionID: session.ID,
		Status:    domain.JobStatusPending,
		Input: domain.JobInput{
			Images:   imagePaths,
			Prompt:   prompt,
			Settings: session.Settings,
		},
		CallbackSecret: secret,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return c.failSubmission(ctx, session, jobID, locale, fmt.Errorf("create job: %w", err))
	}

	providerJobID, err := c.provider.Submit(ctx, provider.SubmitRequest{
		Prompt:         prompt,
		ImageURLs:      imageURLs,
		AspectRatio:    session.Settings.AspectRatio,
		Resolution:     session.Settings.Resolution,
		OutputFormat:   session.Settings.OutputFormat,
		CallbackURL:    c.callbackURL(jobID),
		CallbackSecret: secret,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("provider submission failed")
		if _, markErr := c.jobs.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
			c.logger.Error().Err(markErr).Str("job_id", jobID).Msg("mark job failed")
		}
		return c.failSubmission(ctx, session, jobID, locale, err)
	}
	if err := c.jobs.MarkRunning(ctx, jobID, providerJobID); err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("mark job running")
	}

	notice, err := c.transport.SendMessage(ctx, chatID, reply(locale, "creating"), nil)
	if err != nil {
		c.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("send processing notice")
		return nil
	}
	if err := c.sessions.SetNoticeMessage(ctx, session.ID, notice.MessageID); err != nil {
		c.logger.Warn().Err(err).Str("session_id", session.ID).Msg("record processing notice")
	}
	return nil
}

// Cancel moves the chat's active session to cancelled. Safe to call
// repeatedly; a second call finds no active session.
func (c *Controller) Cancel(ctx context.Context, chatID int64, languageCode string) error {
	locale := matchLocale(languageCode)

	session, err := c.sessions.GetActiveByChat(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		_, sendErr := c.transport.SendMessage(ctx, chatID, reply(locale, "nothing_to_cancel"), nil)
		return sendErr
	}
	if err != nil {
		return fmt.Errorf("load active session: %w", err)
	}
	moved, err := c.sessions.SetStatus(ctx, session.ID, domain.SessionStatusCancelled, nil)
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	if !moved {
		// The session reached a terminal status between the read and the
		// update; there is nothing left to cancel.
		_, sendErr := c.transport.SendMessage(ctx, chatID, reply(locale, "nothing_to_cancel"), nil)
		return sendErr
	}
	_, err = c.transport.SendMessage(ctx, chatID, reply(locale, "cancelled"), nil)
	return err
}

// HandleCallback routes a button press. Unknown actions are ignored.
func (c *Controller) HandleCallback(ctx context.Context, cb dispatch.CallbackAction) error {
	if err := c.transport.AnswerCallbackQuery(ctx, cb.QueryID); err != nil {
		c.logger.Warn().Err(err).Str("query_id", cb.QueryID).Msg("answer callback query")
	}
	switch cb.Action {
	case ActionFinalize:
		c.clearKeyboard(ctx, cb)
		return c.Finalize(ctx, cb.ChatID, cb.LanguageCode)
	case ActionCancel:
		c.clearKeyboard(ctx, cb)
		return c.Cancel(ctx, cb.ChatID, cb.LanguageCode)
	default:
		c.logger.Debug().Str("action", cb.Action).Msg("ignoring unknown callback action")
		return nil
	}
}

// clearKeyboard removes the buttons from the pressed message; a stale
// keyboard invites double presses.
func (c *Controller) clearKeyboard(ctx context.Context, cb dispatch.CallbackAction) {
	if cb.MessageID == 0 {
		return
	}
	if err := c.transport.EditMessageReplyMarkup(ctx, cb.ChatID, cb.MessageID, nil); err != nil {
		c.logger.Warn().Err(err).Int64("message_id", cb.MessageID).Msg("clear keyboard")
	}
}

func (c *Controller) failSubmission(ctx context.Context, session *domain.Session, jobID, locale string, cause error) error {
	msg := cause.Error()
	if _, err := c.sessions.SetStatus(ctx, session.ID, domain.SessionStatusFailed, &msg); err != nil {
		c.logger.Error().Err(err).Str("session_id", session.ID).Msg("mark session failed")
	}
	c.logger.Error().Err(cause).Str("session_id", session.ID).Str("job_id", jobID).Msg("submission failed")
	_, sendErr := c.transport.SendMessage(ctx, session.ChatID, reply(locale, "submit_failed"), nil)
	return sendErr
}

func (c *Controller) callbackURL(jobID string) string {
	return strings.TrimRight(c.cfg.CallbackBaseURL, "/") + "/v1/callbacks/provider?job=" + jobID
}

func newCallbackSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func storedFileName(fileName, filePath string) string {
	name := strings.TrimSpace(fileName)
	if name == "" {
		name = path.Base(filePath)
	}
	if name == "" || name == "." || name == "/" {
		name = "photo.jpg"
	}
	return name
}

func contentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
