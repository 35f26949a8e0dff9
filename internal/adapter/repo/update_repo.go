package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"portraitbot/internal/domain"
)

// ProcessedUpdateRepositoryPG implements the idempotency ledger backed by
// PostgreSQL. Marking is INSERT ... ON CONFLICT DO NOTHING so a redelivered
// update never errors.
type ProcessedUpdateRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProcessedUpdateRepository creates a new idempotency ledger repository.
func NewProcessedUpdateRepository(pool *pgxpool.Pool) *ProcessedUpdateRepositoryPG {
	return &ProcessedUpdateRepositoryPG{pool: pool}
}

// Seen reports whether the update ID is already in the ledger.
func (r *ProcessedUpdateRepositoryPG) Seen(ctx context.Context, updateID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM processed_updates WHERE update_id = $1);`
	var seen bool
	if err := r.pool.QueryRow(ctx, query, updateID).Scan(&seen); err != nil {
		return false, err
	}
	return seen, nil
}

// Mark records the update as handled; a duplicate insert is a silent no-op.
func (r *ProcessedUpdateRepositoryPG) Mark(ctx context.Context, updateID, chatID int64, kind domain.UpdateKind) error {
	query := `
INSERT INTO processed_updates (update_id, chat_id, kind)
VALUES ($1, $2, $3)
ON CONFLICT (update_id) DO NOTHING;
`
	_, err := r.pool.Exec(ctx, query, updateID, chatID, kind)
	return err
}

// DeleteOlderThan removes markers created before the cutoff and returns the
// number of rows swept.
func (r *ProcessedUpdateRepositoryPG) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM processed_updates WHERE created_at < $1;`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
