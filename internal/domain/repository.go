package domain

import (
	"context"
	"time"
)

// SessionRepository defines persistence for portrait sessions. All mutations
// are single-row conditional updates; guards are re-checked at the store so a
// racing invocation degrades to a no-op instead of a double side effect.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	// GetActiveByChat returns the chat's session in collecting or processing
	// status, or ErrNotFound when the chat has no active session.
	GetActiveByChat(ctx context.Context, chatID int64) (*Session, error)
	// AppendImage appends one image iff the session is still collecting, the
	// image's message ID is not already present, and the image cap is not
	// exceeded. A duplicate message ID is a no-op returning the unchanged
	// session. Returns the session as stored after the call.
	AppendImage(ctx context.Context, sessionID string, img SessionImage) (*Session, error)
	// ClaimForSubmission atomically moves a collecting session to processing
	// and links it to jobID, iff no job is linked yet. Returns the session as
	// claimed, or nil when the guard fails (already claimed, already terminal,
	// or cancelled). The claimed row is the authoritative input snapshot for
	// the submission; images appended after an earlier read are included.
	ClaimForSubmission(ctx context.Context, sessionID, jobID string) (*Session, error)
	// SetStatus moves an active session to the given status and records an
	// optional error message. Returns false when the session had already
	// reached a terminal status; terminal sessions are never revived.
	SetStatus(ctx context.Context, sessionID string, status SessionStatus, errMsg *string) (bool, error)
	// SetNoticeMessage records the transport message carrying the
	// "processing" notice so the reconciler can edit it later.
	SetNoticeMessage(ctx context.Context, sessionID string, messageID int64) error
}

// JobRepository defines persistence for generation jobs.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	// MarkRunning records provider acceptance. Only a pending job moves.
	MarkRunning(ctx context.Context, id, providerJobID string) error
	// MarkSuccess finalizes the job iff it is not already terminal. Returns
	// false when the job had already reached a terminal state.
	MarkSuccess(ctx context.Context, id, resultPath string, output JobOutput) (bool, error)
	// MarkFailed finalizes the job iff it is not already terminal.
	MarkFailed(ctx context.Context, id, errMsg string) (bool, error)
}

// ProcessedUpdateRepository is the idempotency ledger for inbound updates.
type ProcessedUpdateRepository interface {
	Seen(ctx context.Context, updateID int64) (bool, error)
	// Mark is insert-or-ignore on the update ID.
	Mark(ctx context.Context, updateID, chatID int64, kind UpdateKind) error
	// DeleteOlderThan removes markers past the retention window.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
