package repository

import (
	"context"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain/model"
)

type SnapshotRepository interface {
	// UpsertScene overwrites the materialized scene snapshot for a case.
	// Snapshots are caches: losing one only costs a reprojection.
	UpsertScene(ctx context.Context, tx Tx, s *model.SceneSnapshot) error
	FindScene(ctx context.Context, caseID uuid.UUID) (*model.SceneSnapshot, error)

	UpsertProfile(ctx context.Context, tx Tx, p *model.SuspectProfile) error
	FindProfile(ctx context.Context, caseID uuid.UUID) (*model.SuspectProfile, error)
}
