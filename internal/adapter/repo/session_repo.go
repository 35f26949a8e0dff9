package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"portraitbot/internal/domain"
)

const sessionColumns = `id, chat_id, user_id, locale, status, images, prompt, aspect_ratio, resolution, output_format, job_id, notice_message_id, error_message, created_at, updated_at`

// SessionRepositoryPG implements domain.SessionRepository backed by PostgreSQL.
type SessionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepositoryPG {
	return &SessionRepositoryPG{pool: pool}
}

// Create inserts a new session record.
func (r *SessionRepositoryPG) Create(ctx context.Context, s *domain.Session) error {
	images, err := json.Marshal(imagesOrEmpty(s.Images))
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}
	query := `
INSERT INTO sessions (id, chat_id, user_id, locale, status, images, prompt, aspect_ratio, resolution, output_format)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.ChatID,
		nullableInt64(s.UserID),
		s.Locale,
		s.Status,
		images,
		s.Prompt,
		s.Settings.AspectRatio,
		s.Settings.Resolution,
		s.Settings.OutputFormat,
	)
	return err
}

// GetByID fetches a session by its identifier.
func (r *SessionRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1;`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// GetActiveByChat fetches the chat's session in an active status. The partial
// unique index on (chat_id) WHERE status IN ('collecting','processing')
// guarantees at most one row.
func (r *SessionRepositoryPG) GetActiveByChat(ctx context.Context, chatID int64) (*domain.Session, error) {
	query := `
SELECT ` + sessionColumns + `
FROM sessions
WHERE chat_id = $1 AND status IN ('collecting', 'processing');
`
	return scanSession(r.pool.QueryRow(ctx, query, chatID))
}

// AppendImage appends one image with every guard re-checked inside a single
// conditional update: the session must still be collecting, the message ID
// must be new, and the image cap must hold. When the update matches no row
// the failed guard is diagnosed from a fresh read; a duplicate message ID is
// reported as success with the unchanged session.
func (r *SessionRepositoryPG) AppendImage(ctx context.Context, sessionID string, img domain.SessionImage) (*domain.Session, error) {
	payload, err := json.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("marshal image: %w", err)
	}
	query := `
UPDATE sessions
SET images = images || $2::jsonb,
    updated_at = NOW()
WHERE id = $1
  AND status = 'collecting'
  AND jsonb_array_length(images) < $4
  AND NOT EXISTS (
      SELECT 1 FROM jsonb_array_elements(images) e
      WHERE (e->>'message_id')::bigint = $3
  )
RETURNING ` + sessionColumns + `;
`
	session, err := scanSession(r.pool.QueryRow(ctx, query, sessionID, payload, img.MessageID, domain.MaxSessionImages))
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	current, err := r.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case current.HasImage(img.MessageID):
		return current, nil
	case current.Status != domain.SessionStatusCollecting:
		return nil, domain.ErrSessionFrozen
	case len(current.Images) >= domain.MaxSessionImages:
		return nil, domain.ErrTooManyImages
	default:
		return nil, fmt.Errorf("append image to session %s: guard failed", sessionID)
	}
}

// ClaimForSubmission links a job to the session and moves it to processing in
// one conditional update. The job_id IS NULL guard is the idempotency
// boundary against double-submission. The claimed row is returned so the
// caller submits exactly the image set that got frozen, including any image
// appended after its earlier read.
func (r *SessionRepositoryPG) ClaimForSubmission(ctx context.Context, sessionID, jobID string) (*domain.Session, error) {
	query := `
UPDATE sessions
SET status = 'processing',
    job_id = $2,
    updated_at = NOW()
WHERE id = $1 AND status = 'collecting' AND job_id IS NULL
RETURNING ` + sessionColumns + `;
`
	session, err := scanSession(r.pool.QueryRow(ctx, query, sessionID, jobID))
	if errors.Is(err, domain.ErrNotFound) {
		// Guard failed: another invocation claimed it first, or the session
		// left collecting.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SetStatus records a status transition and an optional error message. Only
// an active session moves; a session that already reached a terminal status
// stays put and the no-op is reported to the caller.
func (r *SessionRepositoryPG) SetStatus(ctx context.Context, sessionID string, status domain.SessionStatus, errMsg *string) (bool, error) {
	query := `
UPDATE sessions
SET status = $2,
    error_message = COALESCE($3, error_message),
    updated_at = NOW()
WHERE id = $1 AND status IN ('collecting', 'processing');
`
	tag, err := r.pool.Exec(ctx, query, sessionID, status, errMsg)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetNoticeMessage records the message ID of the "processing" notice.
func (r *SessionRepositoryPG) SetNoticeMessage(ctx context.Context, sessionID string, messageID int64) error {
	query := `UPDATE sessions SET notice_message_id = $2, updated_at = NOW() WHERE id = $1;`
	_, err := r.pool.Exec(ctx, query, sessionID, messageID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s        domain.Session
		userID   *int64
		images   []byte
		jobID    *string
		noticeID *int64
		errMsg   *string
	)
	if err := row.Scan(
		&s.ID,
		&s.ChatID,
		&userID,
		&s.Locale,
		&s.Status,
		&images,
		&s.Prompt,
		&s.Settings.AspectRatio,
		&s.Settings.Resolution,
		&s.Settings.OutputFormat,
		&jobID,
		&noticeID,
		&errMsg,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &s.Images); err != nil {
			return nil, fmt.Errorf("unmarshal images: %w", err)
		}
	}
	if userID != nil {
		s.UserID = *userID
	}
	if jobID != nil {
		s.JobID = *jobID
	}
	if noticeID != nil {
		s.NoticeMessageID = *noticeID
	}
	if errMsg != nil {
		s.ErrorMessage = *errMsg
	}
	return &s, nil
}

func imagesOrEmpty(images []domain.SessionImage) []domain.SessionImage {
	if images == nil {
		return []domain.SessionImage{}
	}
	return images
}

func nullableInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
