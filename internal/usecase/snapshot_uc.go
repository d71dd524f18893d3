package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
	"crime-scene-platform/internal/domain/ports/repository"
	"crime-scene-platform/internal/infra/logging"
	"crime-scene-platform/internal/infra/metrics"
)

// Compile-time check
var _ SnapshotUseCase = (*snapshotUC)(nil)

// SnapshotUseCase materializes and serves the per-case projections: the
// scene graph and the suspect profile. Snapshots are caches over the commit
// log; every operation here is a deterministic recompute.
type SnapshotUseCase interface {
	// ProjectAt replays the chain up to headID and overwrites both
	// snapshots. Runs inside the caller's transaction when tx is non-nil.
	ProjectAt(ctx context.Context, tx repository.Tx, caseID uuid.UUID, headID string) error
	// Rebuild reprojects from the current main-line head.
	Rebuild(ctx context.Context, caseID uuid.UUID) error
	// SwitchBranch reprojects from the head of the given branch. The commit
	// log is untouched; only the materialized views move.
	SwitchBranch(ctx context.Context, caseID, branchID uuid.UUID) error
	GetScene(ctx context.Context, caseID uuid.UUID) (*model.SceneSnapshot, error)
	GetProfile(ctx context.Context, caseID uuid.UUID) (*model.SuspectProfile, error)
	// ProjectedSceneAt returns the scene graph as of a commit without
	// touching the stored snapshots.
	ProjectedSceneAt(ctx context.Context, tx repository.Tx, caseID uuid.UUID, commitID string) (*model.SceneGraph, error)
}

type snapshotUC struct {
	commits   repository.CommitRepository
	snapshots repository.SnapshotRepository
	tm        repository.TransactionManager
	log       *zerolog.Logger
}

func NewSnapshotUseCase(
	commits repository.CommitRepository,
	snapshots repository.SnapshotRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *snapshotUC {
	return &snapshotUC{commits: commits, snapshots: snapshots, tm: tm, log: logger}
}

func (u *snapshotUC) ProjectAt(ctx context.Context, tx repository.Tx, caseID uuid.UUID, headID string) error {
	return u.projectAt(ctx, tx, caseID, headID, "commit")
}

func (u *snapshotUC) projectAt(ctx context.Context, tx repository.Tx, caseID uuid.UUID, headID, trigger string) error {
	chain, err := u.commits.Chain(ctx, tx, caseID, headID)
	if err != nil {
		return err
	}
	p, err := replayChain(chain)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := u.snapshots.UpsertScene(ctx, tx, &model.SceneSnapshot{
		CaseID:     caseID,
		CommitID:   headID,
		Scenegraph: p.Scene,
		UpdatedAt:  now,
	}); err != nil {
		return err
	}
	if err := u.snapshots.UpsertProfile(ctx, tx, &model.SuspectProfile{
		CaseID:           caseID,
		CommitID:         headID,
		Attributes:       p.Attributes,
		PortraitAssetKey: p.PortraitAssetKey,
		UpdatedAt:        now,
	}); err != nil {
		return err
	}
	metrics.IncSnapshotProjection(trigger)
	return nil
}

func (u *snapshotUC) Rebuild(ctx context.Context, caseID uuid.UUID) error {
	defer logging.TraceDuration(u.log, "SnapshotUC.Rebuild")()

	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		head, err := u.commits.Head(ctx, tx, caseID, nil)
		if err != nil {
			return err
		}
		return u.projectAt(ctx, tx, caseID, head.ID, "rebuild")
	})
}

func (u *snapshotUC) SwitchBranch(ctx context.Context, caseID, branchID uuid.UUID) error {
	defer logging.TraceDuration(u.log, "SnapshotUC.SwitchBranch")()

	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		head, err := u.commits.Head(ctx, tx, caseID, &branchID)
		if err != nil {
			return err
		}
		return u.projectAt(ctx, tx, caseID, head.ID, "branch_switch")
	})
}

func (u *snapshotUC) GetScene(ctx context.Context, caseID uuid.UUID) (*model.SceneSnapshot, error) {
	snap, err := u.snapshots.FindScene(ctx, caseID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	// Cold start: materialize on first read if the case has commits.
	if err := u.Rebuild(ctx, caseID); err != nil {
		return nil, err
	}
	return u.snapshots.FindScene(ctx, caseID)
}

func (u *snapshotUC) GetProfile(ctx context.Context, caseID uuid.UUID) (*model.SuspectProfile, error) {
	return u.snapshots.FindProfile(ctx, caseID)
}

func (u *snapshotUC) ProjectedSceneAt(ctx context.Context, tx repository.Tx, caseID uuid.UUID, commitID string) (*model.SceneGraph, error) {
	chain, err := u.commits.Chain(ctx, tx, caseID, commitID)
	if err != nil {
		return nil, err
	}
	p, err := replayChain(chain)
	if err != nil {
		return nil, err
	}
	return p.Scene, nil
}
