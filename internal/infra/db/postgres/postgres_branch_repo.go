package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
	"crime-scene-platform/internal/domain/ports/repository"
)

var _ repository.BranchRepository = (*branchRepo)(nil)

type branchRepo struct {
	pool *pgxpool.Pool
}

func NewBranchRepo(pool *pgxpool.Pool) *branchRepo {
	return &branchRepo{pool: pool}
}

func scanBranch(row pgx.Row) (*model.Branch, error) {
	var b model.Branch
	err := row.Scan(&b.ID, &b.CaseID, &b.Name, &b.BaseCommitID, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &b, nil
}

func (r *branchRepo) Create(ctx context.Context, tx repository.Tx, b *model.Branch) error {
	const q = `
INSERT INTO branches (id, case_id, name, base_commit_id, created_at)
VALUES ($1, $2, $3, $4, $5);`
	_, err := execSQL(ctx, r.pool, tx, q, b.ID, b.CaseID, b.Name, b.BaseCommitID, b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "branches_case_name_uq") {
			return domain.ErrDuplicateBranchName
		}
		return fmt.Errorf("insert branch: %w", err)
	}
	return nil
}

func (r *branchRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Branch, error) {
	const q = `SELECT id, case_id, name, base_commit_id, created_at FROM branches WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, nil, q, id)
	if err != nil {
		return nil, err
	}
	return scanBranch(row)
}

func (r *branchRepo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*model.Branch, error) {
	const q = `SELECT id, case_id, name, base_commit_id, created_at FROM branches WHERE case_id=$1 ORDER BY created_at;`
	rows, err := pickRows(ctx, r.pool, nil, q, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
