package postgres

import (
	"context"
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

var _ repository.CommitRepository = (*commitRepo)(nil)

type commitRepo struct {
	pool *pgxpool.Pool
}

func NewCommitRepo(pool *pgxpool.Pool) *commitRepo {
	return &commitRepo{pool: pool}
}

const commitColumns = `id, case_id, parent_commit_id, branch_id, job_id, type, summary, payload, created_by, created_at`

func scanCommit(row pgx.Row) (*model.Commit, error) {
	var c model.Commit
	var commitType string
	err := row.Scan(
		&c.ID, &c.CaseID, &c.ParentCommitID, &c.BranchID, &c.JobID,
		&commitType, &c.Summary, &c.Payload, &c.CreatedBy, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	c.Type = model.CommitType(commitType)
	return &c, nil
}

func (r *commitRepo) Create(ctx context.Context, tx repository.Tx, c *model.Commit) error {
	const q = `
INSERT INTO commits (id, case_id, parent_commit_id, branch_id, job_id, type, summary, payload, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.CaseID, c.ParentCommitID, c.BranchID, c.JobID,
		c.Type, c.Summary, c.Payload, c.CreatedBy, c.CreatedAt)
	if err != nil {
		// The unique job_id column is the redelivery guard: a second result
		// commit for the same job cannot land.
		if isUniqueViolation(err, "commits_job_id_uq") {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert commit: %w", err)
	}
	return nil
}

func (r *commitRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Commit, error) {
	const q = `SELECT ` + commitColumns + ` FROM commits WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanCommit(row)
}

func (r *commitRepo) FindByJobID(ctx context.Context, jobID uuid.UUID) (*model.Commit, error) {
	const q = `SELECT ` + commitColumns + ` FROM commits WHERE job_id=$1;`
	row, err := pickRow(ctx, r.pool, nil, q, jobID)
	if err != nil {
		return nil, err
	}
	return scanCommit(row)
}

func (r *commitRepo) ListByCase(ctx context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]*model.Commit, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT ` + commitColumns + ` FROM commits WHERE case_id=$1`
	args := []interface{}{caseID}
	if before != nil {
		q += ` AND created_at < $2`
		args = append(args, *before)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d;`, limit)

	rows, err := pickRows(ctx, r.pool, nil, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCommits(rows)
}

func (r *commitRepo) Head(ctx context.Context, tx repository.Tx, caseID uuid.UUID, branchID *uuid.UUID) (*model.Commit, error) {
	if branchID == nil {
		const q = `
SELECT ` + commitColumns + ` FROM commits
WHERE case_id=$1 AND branch_id IS NULL
ORDER BY created_at DESC, id DESC LIMIT 1;`
		row, err := pickRow(ctx, r.pool, tx, q, caseID)
		if err != nil {
			return nil, err
		}
		return scanCommit(row)
	}

	const q = `
SELECT ` + commitColumns + ` FROM commits
WHERE case_id=$1 AND branch_id=$2
ORDER BY created_at DESC, id DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, caseID, *branchID)
	if err != nil {
		return nil, err
	}
	head, err := scanCommit(row)
	if err == nil {
		return head, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// A fresh branch has no commits of its own; its head is the base commit.
	const baseQ = `
SELECT ` + commitColumns + ` FROM commits
WHERE case_id=$1 AND id=(SELECT base_commit_id FROM branches WHERE id=$2 AND case_id=$1);`
	row, err = pickRow(ctx, r.pool, tx, baseQ, caseID, *branchID)
	if err != nil {
		return nil, err
	}
	return scanCommit(row)
}

// Chain walks parent links from target back to the root and returns the
// commits oldest first. The case filter keeps a target id from another case
// from resolving at all.
func (r *commitRepo) Chain(ctx context.Context, tx repository.Tx, caseID uuid.UUID, targetID string) ([]*model.Commit, error) {
	const q = `
WITH RECURSIVE chain AS (
    SELECT ` + commitColumns + `, 0 AS depth
    FROM commits WHERE id=$2 AND case_id=$1
  UNION ALL
    SELECT c.id, c.case_id, c.parent_commit_id, c.branch_id, c.job_id, c.type, c.summary, c.payload, c.created_by, c.created_at, chain.depth+1
    FROM commits c JOIN chain ON c.id = chain.parent_commit_id
)
SELECT ` + commitColumns + ` FROM chain ORDER BY depth DESC;`

	rows, err := pickRows(ctx, r.pool, tx, q, caseID, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	commits, err := collectCommits(rows)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, domain.ErrNotFound
	}
	// Parent links always point at earlier commits, so a cycle cannot be
	// written; a duplicate id here means the table was tampered with.
	seen := make(map[string]struct{}, len(commits))
	for _, c := range commits {
		if _, dup := seen[c.ID]; dup {
			return nil, domain.ErrCommitChainCorrupt
		}
		seen[c.ID] = struct{}{}
	}
	return commits, nil
}

func collectCommits(rows pgx.Rows) ([]*model.Commit, error) {
	var out []*model.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
