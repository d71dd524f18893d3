package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
	qport "crime-scene-platform/internal/domain/ports/queue"
	"crime-scene-platform/internal/domain/ports/repository"
	"crime-scene-platform/internal/infra/logging"
	"crime-scene-platform/internal/infra/metrics"
)

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

// JobResult is what a worker hands back after processing: the job output and
// the commit that records it on the timeline.
type JobResult struct {
	Output  json.RawMessage
	Summary string
}

// commitTypeForJob maps each job type to the commit type its result appends.
var commitTypeForJob = map[model.JobType]model.CommitType{
	model.JobTypeReconstruction: model.CommitTypeReconstructionUpdate,
	model.JobTypeSceneAnalysis:  model.CommitTypeSceneAnalysisUpdate,
	model.JobTypeProfile:        model.CommitTypeProfileUpdate,
	model.JobTypeReasoning:      model.CommitTypeReasoningResult,
	model.JobTypeImageGen:       model.CommitTypeImageGenerated,
	model.JobTypeAsset3D:        model.CommitTypeAssetGenerated,
	model.JobTypeReplay:         model.CommitTypeReplayGenerated,
	model.JobTypeExport:         model.CommitTypeExportReport,
}

// JobUseCase owns the job lifecycle from submission to the terminal states.
type JobUseCase interface {
	// Submit validates and persists a job, then enqueues it. A repeated
	// idempotency key returns the prior job with replayed=true instead of
	// creating a duplicate.
	Submit(ctx context.Context, caseID uuid.UUID, t model.JobType, input json.RawMessage, idempotencyKey string) (job *model.Job, replayed bool, err error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	// Cancel is cooperative: a running Process call is not interrupted, but
	// its result will be discarded at completion time.
	Cancel(ctx context.Context, id uuid.UUID) error

	// Complete atomically appends the result commit, reprojects the
	// snapshots and marks the job done. committed=false means the result was
	// deliberately discarded (canceled job, or a duplicate redelivery that
	// already committed); the caller still acks the message.
	Complete(ctx context.Context, msg *qport.JobMessage, res *JobResult) (committed bool, err error)
}

type jobUC struct {
	jobs    repository.JobRepository
	commits repository.CommitRepository
	snaps   SnapshotUseCase
	queue   qport.JobQueue
	tm      repository.TransactionManager
	// registered is the set of job types some worker handles; submissions
	// for anything else are rejected up front.
	registered map[model.JobType]bool
	log        *zerolog.Logger
}

func NewJobUseCase(
	jobs repository.JobRepository,
	commits repository.CommitRepository,
	snaps SnapshotUseCase,
	queue qport.JobQueue,
	tm repository.TransactionManager,
	registeredTypes []model.JobType,
	logger *zerolog.Logger,
) *jobUC {
	reg := make(map[model.JobType]bool, len(registeredTypes))
	for _, t := range registeredTypes {
		reg[t] = true
	}
	return &jobUC{
		jobs:       jobs,
		commits:    commits,
		snaps:      snaps,
		queue:      queue,
		tm:         tm,
		registered: reg,
		log:        logger,
	}
}

func (u *jobUC) Submit(ctx context.Context, caseID uuid.UUID, t model.JobType, input json.RawMessage, idempotencyKey string) (*model.Job, bool, error) {
	defer logging.TraceDuration(u.log, "JobUC.Submit")()

	if !u.registered[t] {
		return nil, false, fmt.Errorf("%w: %q", domain.ErrUnsupportedJobType, t)
	}
	if _, err := model.DecodeJobInput(t, input); err != nil {
		return nil, false, err
	}

	if idempotencyKey != "" {
		prior, err := u.jobs.FindByIdempotencyKey(ctx, idempotencyKey)
		switch {
		case err == nil:
			metrics.IncJobSubmitted(string(t), true)
			return prior, true, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, false, err
		}
	}

	job, err := model.NewJob(caseID, t, input)
	if err != nil {
		return nil, false, err
	}
	job.IdempotencyKey = idempotencyKey

	if err := u.jobs.Create(ctx, repository.NoTX, job); err != nil {
		// Two submitters raced on the same key; the earlier insert wins and
		// this call returns it.
		if errors.Is(err, domain.ErrAlreadyExists) && idempotencyKey != "" {
			prior, ferr := u.jobs.FindByIdempotencyKey(ctx, idempotencyKey)
			if ferr != nil {
				return nil, false, ferr
			}
			metrics.IncJobSubmitted(string(t), true)
			return prior, true, nil
		}
		return nil, false, err
	}

	if err := u.queue.Enqueue(ctx, job); err != nil {
		// The durable row stays queued; the zombie/stale machinery cannot see
		// it, so surface the broker failure to the submitter.
		u.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("enqueue after create failed")
		return nil, false, err
	}

	metrics.IncJobSubmitted(string(t), false)
	return job, false, nil
}

func (u *jobUC) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	return u.jobs.FindByID(ctx, repository.NoTX, id)
}

func (u *jobUC) Cancel(ctx context.Context, id uuid.UUID) error {
	defer logging.TraceDuration(u.log, "JobUC.Cancel")()
	return u.jobs.Cancel(ctx, id)
}

func (u *jobUC) Complete(ctx context.Context, msg *qport.JobMessage, res *JobResult) (bool, error) {
	defer logging.TraceDuration(u.log, "JobUC.Complete")()

	commitType, ok := commitTypeForJob[msg.Type]
	if !ok {
		return false, fmt.Errorf("%w: %q", domain.ErrUnsupportedJobType, msg.Type)
	}

	committed := false
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByID(ctx, tx, msg.JobID)
		if err != nil {
			return err
		}
		switch job.Status {
		case model.JobStatusCanceled:
			// Cooperative cancel: the work is done but the result is dropped.
			return nil
		case model.JobStatusDone:
			// A stale redelivery finished after the first delivery committed.
			return nil
		case model.JobStatusRunning:
		default:
			return fmt.Errorf("%w: complete from %s", domain.ErrInvalidTransition, job.Status)
		}

		commit, err := model.NewCommit(msg.CaseID, commitType, res.Summary, res.Output)
		if err != nil {
			return err
		}
		commit.SetJob(msg.JobID)
		head, err := u.commits.Head(ctx, tx, msg.CaseID, nil)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if head != nil {
			commit.SetParent(head.ID)
		}

		if err := u.commits.Create(ctx, tx, commit); err != nil {
			// The unique job_id guard fired: another delivery already
			// committed this job's result. Treat as success.
			if errors.Is(err, domain.ErrAlreadyExists) {
				return nil
			}
			return err
		}
		if err := u.snaps.ProjectAt(ctx, tx, msg.CaseID, commit.ID); err != nil {
			return err
		}
		if err := u.jobs.MarkDone(ctx, tx, msg.JobID, res.Output); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if committed {
		metrics.IncCommitAppended(string(commitType))
		metrics.IncJobProcessed(string(msg.Type), "done")
	}
	return committed, nil
}
