package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
	"crime-scene-platform/internal/domain/ports/repository"
)

var _ repository.SnapshotRepository = (*snapshotRepo)(nil)

type snapshotRepo struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepo(pool *pgxpool.Pool) *snapshotRepo {
	return &snapshotRepo{pool: pool}
}

func (r *snapshotRepo) UpsertScene(ctx context.Context, tx repository.Tx, s *model.SceneSnapshot) error {
	graph, err := json.Marshal(s.Scenegraph)
	if err != nil {
		return fmt.Errorf("marshal scenegraph: %w", err)
	}
	const q = `
INSERT INTO scene_snapshots (case_id, commit_id, scenegraph, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (case_id) DO UPDATE SET
  commit_id = EXCLUDED.commit_id,
  scenegraph = EXCLUDED.scenegraph,
  updated_at = EXCLUDED.updated_at;`
	if _, err := execSQL(ctx, r.pool, tx, q, s.CaseID, s.CommitID, graph); err != nil {
		return fmt.Errorf("upsert scene snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepo) FindScene(ctx context.Context, caseID uuid.UUID) (*model.SceneSnapshot, error) {
	const q = `SELECT case_id, commit_id, scenegraph, updated_at FROM scene_snapshots WHERE case_id=$1;`
	row, err := pickRow(ctx, r.pool, nil, q, caseID)
	if err != nil {
		return nil, err
	}

	var s model.SceneSnapshot
	var graph []byte
	if err := row.Scan(&s.CaseID, &s.CommitID, &graph, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if err := json.Unmarshal(graph, &s.Scenegraph); err != nil {
		return nil, fmt.Errorf("unmarshal scenegraph: %w", err)
	}
	return &s, nil
}

func (r *snapshotRepo) UpsertProfile(ctx context.Context, tx repository.Tx, p *model.SuspectProfile) error {
	attrs, err := json.Marshal(p.Attributes)
	if err != nil {
		return fmt.Errorf("marshal profile attributes: %w", err)
	}
	const q = `
INSERT INTO suspect_profiles (case_id, commit_id, attributes, portrait_asset_key, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (case_id) DO UPDATE SET
  commit_id = EXCLUDED.commit_id,
  attributes = EXCLUDED.attributes,
  portrait_asset_key = EXCLUDED.portrait_asset_key,
  updated_at = EXCLUDED.updated_at;`
	if _, err := execSQL(ctx, r.pool, tx, q, p.CaseID, p.CommitID, attrs, p.PortraitAssetKey); err != nil {
		return fmt.Errorf("upsert suspect profile: %w", err)
	}
	return nil
}

func (r *snapshotRepo) FindProfile(ctx context.Context, caseID uuid.UUID) (*model.SuspectProfile, error) {
	const q = `SELECT case_id, commit_id, attributes, portrait_asset_key, updated_at FROM suspect_profiles WHERE case_id=$1;`
	row, err := pickRow(ctx, r.pool, nil, q, caseID)
	if err != nil {
		return nil, err
	}

	var p model.SuspectProfile
	var attrs []byte
	if err := row.Scan(&p.CaseID, &p.CommitID, &attrs, &p.PortraitAssetKey, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshal profile attributes: %w", err)
	}
	return &p, nil
}
