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

const jobColumns = `id, chat_id, session_id, status, provider_job_id, input, output, result_path, error_message, callback_secret, attempts, created_at, updated_at`

// JobRepositoryPG implements domain.JobRepository backed by PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	input, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("marshal job input: %w", err)
	}
	query := `
INSERT INTO jobs (id, chat_id, session_id, status, input, callback_secret, attempts)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.ChatID,
		job.SessionID,
		job.Status,
		input,
		job.CallbackSecret,
		job.Attempts,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	row := r.pool.QueryRow(ctx, query, id)
	var (
		job           domain.Job
		providerJobID *string
		input         []byte
		output        []byte
		resultPath    *string
		errMsg        *string
	)
	if err := row.Scan(
		&job.ID,
		&job.ChatID,
		&job.SessionID,
		&job.Status,
		&providerJobID,
		&input,
		&output,
		&resultPath,
		&errMsg,
		&job.CallbackSecret,
		&job.Attempts,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &job.Input); err != nil {
			return nil, fmt.Errorf("unmarshal job input: %w", err)
		}
	}
	if len(output) > 0 {
		var out domain.JobOutput
		if err := json.Unmarshal(output, &out); err != nil {
			return nil, fmt.Errorf("unmarshal job output: %w", err)
		}
		job.Output = &out
	}
	if providerJobID != nil {
		job.ProviderJobID = *providerJobID
	}
	if resultPath != nil {
		job.ResultPath = *resultPath
	}
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	return &job, nil
}

// MarkRunning records provider acceptance; only a pending job moves.
func (r *JobRepositoryPG) MarkRunning(ctx context.Context, id, providerJobID string) error {
	query := `
UPDATE jobs
SET status = 'running',
    provider_job_id = $2,
    attempts = attempts + 1,
    updated_at = NOW()
WHERE id = $1 AND status = 'pending';
`
	_, err := r.pool.Exec(ctx, query, id, providerJobID)
	return err
}

// MarkSuccess finalizes the job unless it already reached a terminal state.
// The status guard makes a duplicate terminal callback a detectable no-op.
func (r *JobRepositoryPG) MarkSuccess(ctx context.Context, id, resultPath string, output domain.JobOutput) (bool, error) {
	payload, err := json.Marshal(output)
	if err != nil {
		return false, fmt.Errorf("marshal job output: %w", err)
	}
	query := `
UPDATE jobs
SET status = 'success',
    result_path = $2,
    output = $3,
    updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'running');
`
	tag, err := r.pool.Exec(ctx, query, id, resultPath, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed finalizes the job unless it already reached a terminal state.
func (r *JobRepositoryPG) MarkFailed(ctx context.Context, id, errMsg string) (bool, error) {
	query := `
UPDATE jobs
SET status = 'failed',
    error_message = $2,
    updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'running');
`
	tag, err := r.pool.Exec(ctx, query, id, errMsg)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
