package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain/model"
)

type JobRepository interface {
	// Create inserts the job. When the job carries an idempotency key that
	// already exists, Create returns domain.ErrAlreadyExists and the caller
	// is expected to fetch the prior job instead.
	Create(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id uuid.UUID) (*model.Job, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Job, error)

	// MarkRunning flips queued -> running; it affects no row when the job is
	// in any other state, in which case it returns domain.ErrInvalidTransition.
	MarkRunning(ctx context.Context, id uuid.UUID) error
	// SetProgress never lowers progress; the stored value is the max of the
	// current and supplied value while the job is running.
	SetProgress(ctx context.Context, id uuid.UUID, progress int) error
	MarkDone(ctx context.Context, tx Tx, id uuid.UUID, output json.RawMessage) error
	MarkRequeued(ctx context.Context, id uuid.UUID, errMsg string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	// Cancel flips queued|running -> canceled and reports whether any row
	// changed; terminal jobs return domain.ErrJobNotCancelable.
	Cancel(ctx context.Context, id uuid.UUID) error

	Heartbeat(ctx context.Context, id uuid.UUID) error
	// FindZombies returns running jobs whose heartbeat is older than cutoff.
	FindZombies(ctx context.Context, olderThan time.Duration) ([]*model.Job, error)
}
