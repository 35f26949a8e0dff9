package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"portraitbot/internal/domain"
	"portraitbot/internal/imagemeta"
	"portraitbot/internal/provider"
	"portraitbot/internal/storage"
)

// defaultMaxOutputBytes caps the provider result download. A single portrait
// image fits well under this; anything larger is a misbehaving provider.
const defaultMaxOutputBytes = 50 << 20

// Reconciler applies asynchronous provider callbacks to the matching
// job/session pair. Each gate is hard: an unknown job or a duplicate success
// is acknowledged and dropped, a bad signature is rejected outright, and a
// non-terminal status never mutates state.
type Reconciler struct {
	jobs           domain.JobRepository
	sessions       domain.SessionRepository
	transport      Transport
	store          storage.ObjectStore
	httpClient     *http.Client
	logger         zerolog.Logger
	signedURLTTL   time.Duration
	maxOutputBytes int64
}

// NewReconciler wires a callback reconciler. httpClient fetches the
// provider's output reference; a nil client gets a bounded default.
func NewReconciler(
	jobs domain.JobRepository,
	sessions domain.SessionRepository,
	transport Transport,
	store storage.ObjectStore,
	httpClient *http.Client,
	logger zerolog.Logger,
	signedURLTTL time.Duration,
) *Reconciler {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if signedURLTTL <= 0 {
		signedURLTTL = 24 * time.Hour
	}
	return &Reconciler{
		jobs:           jobs,
		sessions:       sessions,
		transport:      transport,
		store:          store,
		httpClient:     httpClient,
		logger:         logger,
		signedURLTTL:   signedURLTTL,
		maxOutputBytes: defaultMaxOutputBytes,
	}
}

// Apply validates and applies one callback. A domain.ErrUnauthorized return
// means the signature did not verify and the caller must answer 401; any
// other outcome is acknowledged upstream regardless of processing success.
func (r *Reconciler) Apply(ctx context.Context, jobID, signature string, cb provider.Callback) error {
	job, err := r.jobs.GetByID(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.Warn().Str("job_id", jobID).Msg("callback for unknown job dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status == domain.JobStatusSuccess {
		// Duplicate terminal callback; the first one already notified.
		return nil
	}
	if !provider.VerifySignature(jobID, job.CallbackSecret, signature) {
		r.logger.Warn().Str("job_id", jobID).Msg("callback signature mismatch")
		return domain.ErrUnauthorized
	}

	switch cb.Status {
	case provider.StatusFailed, provider.StatusCanceled:
		return r.applyFailure(ctx, job, cb.Error)
	case provider.StatusSucceeded:
		if cb.Output == nil || cb.Output.URL == "" {
			// No output on a reported success is a failure, never a silent pass.
			return r.applyFailure(ctx, job, "provider reported success without an output reference")
		}
		return r.applySuccess(ctx, job, cb.Output.URL)
	default:
		r.logger.Info().Str("job_id", jobID).Str("status", cb.Status).Msg("ignoring non-terminal callback status")
		return nil
	}
}

func (r *Reconciler) applyFailure(ctx context.Context, job *domain.Job, providerErr string) error {
	moved, err := r.jobs.MarkFailed(ctx, job.ID, providerErr)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if !moved {
		// Already terminal; the earlier callback owned the notification.
		return nil
	}
	// Provider error text stays in the ledger and logs only; the user gets a
	// generic message.
	r.logger.Info().Str("job_id", job.ID).Str("provider_error", providerErr).Msg("job failed")

	failMsg := "generation failed"
	sessionMoved, err := r.sessions.SetStatus(ctx, job.SessionID, domain.SessionStatusFailed, &failMsg)
	if err != nil {
		r.logger.Error().Err(err).Str("session_id", job.SessionID).Msg("mark session failed")
	} else if !sessionMoved {
		// The session reached a terminal status before this callback, e.g. the
		// user cancelled mid-flight. The outcome stays in the job ledger; the
		// chat hears nothing.
		r.logger.Info().Str("session_id", job.SessionID).Msg("session already terminal, failure notification discarded")
		return nil
	}
	locale := r.sessionLocale(ctx, job)
	if _, err := r.transport.SendMessage(ctx, job.ChatID, reply(locale, "generation_failed"), nil); err != nil {
		return fmt.Errorf("notify failure: %w", err)
	}
	return nil
}

func (r *Reconciler) applySuccess(ctx context.Context, job *domain.Job, outputURL string) error {
	data, err := r.fetchOutput(ctx, outputURL)
	if err != nil {
		// Leave the job non-terminal so a provider redelivery can retry.
		return fmt.Errorf("fetch output: %w", err)
	}

	meta := imagemeta.Probe(data)
	ext := job.Input.Settings.OutputFormat
	if ext == "" {
		ext = "png"
	}
	key := fmt.Sprintf("results/%s/portrait.%s", job.ID, ext)
	storedKey, err := r.store.Write(ctx, key, data, contentTypeFor(key))
	if err != nil {
		return fmt.Errorf("persist output: %w", err)
	}

	moved, err := r.jobs.MarkSuccess(ctx, job.ID, storedKey, domain.JobOutput{
		URL:      outputURL,
		Checksum: meta.SHA256,
		Width:    meta.Width,
		Height:   meta.Height,
		Bytes:    meta.Bytes,
	})
	if err != nil {
		return fmt.Errorf("mark job success: %w", err)
	}
	if !moved {
		// A concurrent duplicate already finalized and notified.
		return nil
	}

	session, sessErr := r.sessions.GetByID(ctx, job.SessionID)
	if sessErr != nil {
		r.logger.Error().Err(sessErr).Str("session_id", job.SessionID).Msg("load session after success")
	}
	sessionMoved, err := r.sessions.SetStatus(ctx, job.SessionID, domain.SessionStatusDone, nil)
	if err != nil {
		// Job success with a stuck session is a reportable anomaly, not a crash.
		r.logger.Error().Err(err).Str("session_id", job.SessionID).Msg("mark session done")
	} else if !sessionMoved {
		// The user cancelled while the provider was still working. The result
		// stays on the job record; the cancelled session is never revived and
		// the chat gets no delivery.
		r.logger.Info().Str("session_id", job.SessionID).Msg("session already terminal, result delivery discarded")
		return nil
	}

	locale := "en"
	if session != nil && session.Locale != "" {
		locale = session.Locale
	}

	signedURL, err := r.store.SignedURL(storedKey, r.signedURLTTL)
	if err != nil {
		return fmt.Errorf("sign result url: %w", err)
	}
	if _, err := r.transport.SendPhoto(ctx, job.ChatID, signedURL, reply(locale, "result_caption")); err != nil {
		return fmt.Errorf("deliver result: %w", err)
	}
	if session != nil && session.NoticeMessageID != 0 {
		if err := r.transport.EditMessageText(ctx, job.ChatID, session.NoticeMessageID, reply(locale, "result_ready")); err != nil {
			r.logger.Warn().Err(err).Int64("message_id", session.NoticeMessageID).Msg("edit processing notice")
		}
	}
	return nil
}

func (r *Reconciler) fetchOutput(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxOutputBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > r.maxOutputBytes {
		return nil, fmt.Errorf("output exceeds %d byte limit", r.maxOutputBytes)
	}
	return data, nil
}

func (r *Reconciler) sessionLocale(ctx context.Context, job *domain.Job) string {
	session, err := r.sessions.GetByID(ctx, job.SessionID)
	if err != nil || session.Locale == "" {
		return "en"
	}
	return session.Locale
}
