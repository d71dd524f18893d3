package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain/model"
	"crime-scene-platform/internal/domain/ports/repository"
	"crime-scene-platform/internal/infra/metrics"
	red "crime-scene-platform/internal/infra/redis"
)

var _ repository.SnapshotRepository = (*snapshotRepoCacheDecorator)(nil)

// snapshotRepoCacheDecorator keeps the hot read path (the viewer polls the
// scene snapshot constantly) off Postgres. Writes invalidate; reads fill.
type snapshotRepoCacheDecorator struct {
	inner repository.SnapshotRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewSnapshotRepoCacheDecorator(inner repository.SnapshotRepository, cache red.RedisClient) repository.SnapshotRepository {
	return &snapshotRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   10 * time.Minute,
	}
}

func sceneKey(caseID uuid.UUID) string   { return fmt.Sprintf("snapshot:scene:%s", caseID) }
func profileKey(caseID uuid.UUID) string { return fmt.Sprintf("snapshot:profile:%s", caseID) }

func (d *snapshotRepoCacheDecorator) UpsertScene(ctx context.Context, tx repository.Tx, s *model.SceneSnapshot) error {
	// Invalidate before the write; the next read repopulates from Postgres.
	_ = d.cache.Del(ctx, sceneKey(s.CaseID))
	return d.inner.UpsertScene(ctx, tx, s)
}

func (d *snapshotRepoCacheDecorator) FindScene(ctx context.Context, caseID uuid.UUID) (*model.SceneSnapshot, error) {
	key := sceneKey(caseID)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var s model.SceneSnapshot
		if json.Unmarshal([]byte(val), &s) == nil {
			metrics.IncCacheRequest("scene_snapshot", "hit")
			return &s, nil
		}
	}

	metrics.IncCacheRequest("scene_snapshot", "miss")
	s, err := d.inner.FindScene(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(s); err == nil {
		_ = d.cache.Set(ctx, key, data, d.ttl)
	}
	return s, nil
}

func (d *snapshotRepoCacheDecorator) UpsertProfile(ctx context.Context, tx repository.Tx, p *model.SuspectProfile) error {
	_ = d.cache.Del(ctx, profileKey(p.CaseID))
	return d.inner.UpsertProfile(ctx, tx, p)
}

func (d *snapshotRepoCacheDecorator) FindProfile(ctx context.Context, caseID uuid.UUID) (*model.SuspectProfile, error) {
	key := profileKey(caseID)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var p model.SuspectProfile
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.IncCacheRequest("suspect_profile", "hit")
			return &p, nil
		}
	}

	metrics.IncCacheRequest("suspect_profile", "miss")
	p, err := d.inner.FindProfile(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(p); err == nil {
		_ = d.cache.Set(ctx, key, data, d.ttl)
	}
	return p, nil
}
