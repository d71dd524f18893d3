package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
var _ TimelineUseCase = (*timelineUC)(nil)

// AppendCommitParams carries a manual commit from the API boundary.
type AppendCommitParams struct {
	CaseID    uuid.UUID
	Type      model.CommitType
	Summary   string
	Payload   json.RawMessage
	ParentID  *string    // nil appends to the current head
	BranchID  *uuid.UUID // nil appends to the main line
	CreatedBy *uuid.UUID
}

// TimelineUseCase is the append-only case history: commits, branches, diffs.
type TimelineUseCase interface {
	// AppendCommit appends an investigator-authored commit (scan upload,
	// witness statement, manual scene edit). Job result commits are appended
	// by the worker pipeline, never through here.
	AppendCommit(ctx context.Context, p AppendCommitParams) (*model.Commit, error)
	GetCommit(ctx context.Context, caseID uuid.UUID, commitID string) (*model.Commit, error)
	ListTimeline(ctx context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]*model.Commit, error)
	Head(ctx context.Context, caseID uuid.UUID, branchID *uuid.UUID) (*model.Commit, error)

	CreateBranch(ctx context.Context, caseID uuid.UUID, name, baseCommitID string) (*model.Branch, error)
	ListBranches(ctx context.Context, caseID uuid.UUID) ([]*model.Branch, error)
	// MergeBranch folds a branch back into the main line as a single commit
	// whose payload is the branch's projected scene. Last writer wins; no
	// conflict resolution.
	MergeBranch(ctx context.Context, caseID, branchID uuid.UUID, createdBy *uuid.UUID) (*model.Commit, error)

	// Diff reports the scene delta between two commits of the same case.
	Diff(ctx context.Context, caseID uuid.UUID, fromID, toID string) (*SceneDiff, error)
}

// manualCommitTypes are the commit types an investigator may append directly.
var manualCommitTypes = map[model.CommitType]bool{
	model.CommitTypeUploadScan:       true,
	model.CommitTypeWitnessStatement: true,
	model.CommitTypeManualEdit:       true,
}

type timelineUC struct {
	commits   repository.CommitRepository
	branches  repository.BranchRepository
	snapshots SnapshotUseCase
	tm        repository.TransactionManager
	log       *zerolog.Logger
}

func NewTimelineUseCase(
	commits repository.CommitRepository,
	branches repository.BranchRepository,
	snapshots SnapshotUseCase,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *timelineUC {
	return &timelineUC{
		commits:   commits,
		branches:  branches,
		snapshots: snapshots,
		tm:        tm,
		log:       logger,
	}
}

func (u *timelineUC) AppendCommit(ctx context.Context, p AppendCommitParams) (*model.Commit, error) {
	defer logging.TraceDuration(u.log, "TimelineUC.AppendCommit")()

	if !manualCommitTypes[p.Type] {
		return nil, fmt.Errorf("%w: commit type %q is not investigator-authored", domain.ErrInvalidArgument, p.Type)
	}
	commit, err := model.NewCommit(p.CaseID, p.Type, p.Summary, p.Payload)
	if err != nil {
		return nil, err
	}
	commit.CreatedBy = p.CreatedBy
	if p.BranchID != nil {
		if _, err := u.branchInCase(ctx, p.CaseID, *p.BranchID); err != nil {
			return nil, err
		}
		commit.SetBranch(*p.BranchID)
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		parentID, err := u.resolveParent(ctx, tx, p)
		if err != nil {
			return err
		}
		if parentID != nil {
			commit.SetParent(*parentID)
		}
		if err := u.commits.Create(ctx, tx, commit); err != nil {
			return err
		}
		// Main-line commits refresh the materialized views in the same
		// transaction; branch commits wait for an explicit branch switch.
		if p.BranchID == nil {
			return u.snapshots.ProjectAt(ctx, tx, p.CaseID, commit.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncCommitAppended(string(commit.Type))
	return commit, nil
}

// resolveParent picks the explicit parent when given (verifying it belongs to
// the case) or the current head of the target line. The very first commit of
// a case has no parent.
func (u *timelineUC) resolveParent(ctx context.Context, tx repository.Tx, p AppendCommitParams) (*string, error) {
	if p.ParentID != nil {
		parent, err := u.commits.FindByID(ctx, tx, *p.ParentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrParentCommitNotFound
			}
			return nil, err
		}
		if parent.CaseID != p.CaseID {
			return nil, domain.ErrParentCommitNotFound
		}
		return &parent.ID, nil
	}

	head, err := u.commits.Head(ctx, tx, p.CaseID, p.BranchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil // first commit of the case
		}
		return nil, err
	}
	return &head.ID, nil
}

func (u *timelineUC) GetCommit(ctx context.Context, caseID uuid.UUID, commitID string) (*model.Commit, error) {
	c, err := u.commits.FindByID(ctx, repository.NoTX, commitID)
	if err != nil {
		return nil, err
	}
	if c.CaseID != caseID {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (u *timelineUC) ListTimeline(ctx context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]*model.Commit, error) {
	return u.commits.ListByCase(ctx, caseID, limit, before)
}

func (u *timelineUC) Head(ctx context.Context, caseID uuid.UUID, branchID *uuid.UUID) (*model.Commit, error) {
	return u.commits.Head(ctx, repository.NoTX, caseID, branchID)
}

func (u *timelineUC) CreateBranch(ctx context.Context, caseID uuid.UUID, name, baseCommitID string) (*model.Branch, error) {
	defer logging.TraceDuration(u.log, "TimelineUC.CreateBranch")()

	branch, err := model.NewBranch(caseID, name, baseCommitID)
	if err != nil {
		return nil, err
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		base, err := u.commits.FindByID(ctx, tx, baseCommitID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrBaseCommitNotFound
			}
			return err
		}
		if base.CaseID != caseID {
			return domain.ErrBaseCommitNotFound
		}
		return u.branches.Create(ctx, tx, branch)
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}

func (u *timelineUC) ListBranches(ctx context.Context, caseID uuid.UUID) ([]*model.Branch, error) {
	return u.branches.ListByCase(ctx, caseID)
}

func (u *timelineUC) MergeBranch(ctx context.Context, caseID, branchID uuid.UUID, createdBy *uuid.UUID) (*model.Commit, error) {
	defer logging.TraceDuration(u.log, "TimelineUC.MergeBranch")()

	branch, err := u.branchInCase(ctx, caseID, branchID)
	if err != nil {
		return nil, err
	}

	var commit *model.Commit
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		branchHead, err := u.commits.Head(ctx, tx, caseID, &branchID)
		if err != nil {
			return err
		}
		scene, err := u.snapshots.ProjectedSceneAt(ctx, tx, caseID, branchHead.ID)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(scenePatch{Scenegraph: scene})
		if err != nil {
			return err
		}

		summary := fmt.Sprintf("merge branch %q", branch.Name)
		c, err := model.NewCommit(caseID, model.CommitTypeBranchMerge, summary, payload)
		if err != nil {
			return err
		}
		c.CreatedBy = createdBy
		mainHead, err := u.commits.Head(ctx, tx, caseID, nil)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if mainHead != nil {
			c.SetParent(mainHead.ID)
		}
		if err := u.commits.Create(ctx, tx, c); err != nil {
			return err
		}
		if err := u.snapshots.ProjectAt(ctx, tx, caseID, c.ID); err != nil {
			return err
		}
		commit = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncCommitAppended(string(model.CommitTypeBranchMerge))
	return commit, nil
}

func (u *timelineUC) Diff(ctx context.Context, caseID uuid.UUID, fromID, toID string) (*SceneDiff, error) {
	defer logging.TraceDuration(u.log, "TimelineUC.Diff")()

	fromScene, err := u.snapshots.ProjectedSceneAt(ctx, repository.NoTX, caseID, fromID)
	if err != nil {
		return nil, err
	}
	toScene, err := u.snapshots.ProjectedSceneAt(ctx, repository.NoTX, caseID, toID)
	if err != nil {
		return nil, err
	}

	d := diffScenes(fromScene, toScene)
	d.FromCommitID = fromID
	d.ToCommitID = toID
	return d, nil
}

func (u *timelineUC) branchInCase(ctx context.Context, caseID, branchID uuid.UUID) (*model.Branch, error) {
	branch, err := u.branches.FindByID(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if branch.CaseID != caseID {
		return nil, domain.ErrNotFound
	}
	return branch, nil
}
