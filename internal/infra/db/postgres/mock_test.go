//go:build !integration

package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain/model"
	"crime-scene-platform/internal/domain/ports/repository"
	red "crime-scene-platform/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerSnapshotRepo mocks the database repository that the snapshot
// decorator wraps.
type mockInnerSnapshotRepo struct {
	UpsertSceneFunc   func(ctx context.Context, tx repository.Tx, s *model.SceneSnapshot) error
	FindSceneFunc     func(ctx context.Context, caseID uuid.UUID) (*model.SceneSnapshot, error)
	UpsertProfileFunc func(ctx context.Context, tx repository.Tx, p *model.SuspectProfile) error
	FindProfileFunc   func(ctx context.Context, caseID uuid.UUID) (*model.SuspectProfile, error)
}

func (m *mockInnerSnapshotRepo) UpsertScene(ctx context.Context, tx repository.Tx, s *model.SceneSnapshot) error {
	return m.UpsertSceneFunc(ctx, tx, s)
}
func (m *mockInnerSnapshotRepo) FindScene(ctx context.Context, caseID uuid.UUID) (*model.SceneSnapshot, error) {
	return m.FindSceneFunc(ctx, caseID)
}
func (m *mockInnerSnapshotRepo) UpsertProfile(ctx context.Context, tx repository.Tx, p *model.SuspectProfile) error {
	return m.UpsertProfileFunc(ctx, tx, p)
}
func (m *mockInnerSnapshotRepo) FindProfile(ctx context.Context, caseID uuid.UUID) (*model.SuspectProfile, error) {
	return m.FindProfileFunc(ctx, caseID)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc  func(ctx context.Context, key string) (string, error)
	SetFunc  func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc  func(ctx context.Context, keys ...string) error
	PingFunc func(ctx context.Context) error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Close() error                   { return nil }
