package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
	"crime-scene-platform/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, case_id, type, status, progress, input, output, error, idempotency_key, retry_count, created_at, updated_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status, jobType string
	err := row.Scan(
		&j.ID, &j.CaseID, &jobType, &status, &j.Progress,
		&j.Input, &j.Output, &j.Error, &j.IdempotencyKey,
		&j.RetryCount, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Type = model.JobType(jobType)
	j.Status = model.JobStatus(status)
	return &j, nil
}

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	const q = `
INSERT INTO jobs (id, case_id, type, status, progress, input, output, error, idempotency_key, retry_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.CaseID, job.Type, job.Status, job.Progress,
		job.Input, job.Output, job.Error, job.IdempotencyKey,
		job.RetryCount, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "jobs_idempotency_key_uq") {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id uuid.UUID) (*model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) FindByIdempotencyKey(ctx context.Context, key string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE idempotency_key=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, nil, q, key)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// MarkRunning flips queued -> running in one guarded statement, so two
// workers racing on a redelivered message cannot both win.
func (r *jobRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE jobs SET status='running', heartbeat_at=NOW(), updated_at=NOW()
WHERE id=$1 AND status='queued';`
	tag, err := execSQL(ctx, r.pool, nil, q, id)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *jobRepo) SetProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", domain.ErrInvalidArgument, progress)
	}
	// GREATEST keeps progress monotonic even when a stale worker reports late.
	const q = `
UPDATE jobs SET progress=GREATEST(progress, $2), updated_at=NOW()
WHERE id=$1 AND status='running';`
	_, err := execSQL(ctx, r.pool, nil, q, id, progress)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

func (r *jobRepo) MarkDone(ctx context.Context, tx repository.Tx, id uuid.UUID, output json.RawMessage) error {
	const q = `
UPDATE jobs SET status='done', progress=100, output=$2, updated_at=NOW()
WHERE id=$1 AND status='running';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, output)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *jobRepo) MarkRequeued(ctx context.Context, id uuid.UUID, errMsg string) error {
	const q = `
UPDATE jobs SET status='queued', progress=0, error=$2, retry_count=retry_count+1, updated_at=NOW()
WHERE id=$1 AND status='running';`
	tag, err := execSQL(ctx, r.pool, nil, q, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark requeued: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *jobRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	const q = `
UPDATE jobs SET status='failed', error=$2, updated_at=NOW()
WHERE id=$1 AND status IN ('queued','running');`
	tag, err := execSQL(ctx, r.pool, nil, q, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *jobRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE jobs SET status='canceled', updated_at=NOW()
WHERE id=$1 AND status IN ('queued','running');`
	tag, err := execSQL(ctx, r.pool, nil, q, id)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already terminal; distinguish for the caller.
		if _, ferr := r.FindByID(ctx, nil, id); ferr != nil {
			return ferr
		}
		return domain.ErrJobNotCancelable
	}
	return nil
}

func (r *jobRepo) Heartbeat(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE jobs SET heartbeat_at=NOW() WHERE id=$1 AND status='running';`
	_, err := execSQL(ctx, r.pool, nil, q, id)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// FindZombies returns running jobs whose worker stopped heartbeating. Jobs
// that never heartbeated fall back to their last update time.
func (r *jobRepo) FindZombies(ctx context.Context, olderThan time.Duration) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + ` FROM jobs
WHERE status='running' AND COALESCE(heartbeat_at, updated_at) < NOW() - make_interval(secs => $1)
ORDER BY updated_at;`
	rows, err := pickRows(ctx, r.pool, nil, q, olderThan.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
