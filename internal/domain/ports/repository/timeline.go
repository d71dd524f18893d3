package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain/model"
)

type CommitRepository interface {
	// Create appends a commit. A commit carrying a job id that already
	// produced a commit returns domain.ErrAlreadyExists (redelivery guard).
	Create(ctx context.Context, tx Tx, c *model.Commit) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Commit, error)
	FindByJobID(ctx context.Context, jobID uuid.UUID) (*model.Commit, error)
	// ListByCase returns newest-first commits with cursor pagination.
	ListByCase(ctx context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]*model.Commit, error)
	// Head returns the latest commit on the main line (branchID nil) or on
	// the given branch, falling back to the branch base when the branch has
	// no commits of its own yet. Returns domain.ErrNotFound for empty cases.
	Head(ctx context.Context, tx Tx, caseID uuid.UUID, branchID *uuid.UUID) (*model.Commit, error)
	// Chain returns root..target following parent links, oldest first.
	Chain(ctx context.Context, tx Tx, caseID uuid.UUID, targetID string) ([]*model.Commit, error)
}

type BranchRepository interface {
	// Create returns domain.ErrDuplicateBranchName when name is taken.
	Create(ctx context.Context, tx Tx, b *model.Branch) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Branch, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*model.Branch, error)
}
