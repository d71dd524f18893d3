package web

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain/model"
	qport "crime-scene-platform/internal/domain/ports/queue"
	"crime-scene-platform/internal/domain/ports/repository"
	"crime-scene-platform/internal/usecase"
)

var errNotStubbed = errors.New("not stubbed")

type mockJobUC struct {
	SubmitFunc func(ctx context.Context, caseID uuid.UUID, t model.JobType, input json.RawMessage, key string) (*model.Job, bool, error)
	GetFunc    func(ctx context.Context, id uuid.UUID) (*model.Job, error)
	CancelFunc func(ctx context.Context, id uuid.UUID) error
}

func (m *mockJobUC) Submit(ctx context.Context, caseID uuid.UUID, t model.JobType, input json.RawMessage, key string) (*model.Job, bool, error) {
	if m.SubmitFunc == nil {
		return nil, false, errNotStubbed
	}
	return m.SubmitFunc(ctx, caseID, t, input, key)
}

func (m *mockJobUC) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	if m.GetFunc == nil {
		return nil, errNotStubbed
	}
	return m.GetFunc(ctx, id)
}

func (m *mockJobUC) Cancel(ctx context.Context, id uuid.UUID) error {
	if m.CancelFunc == nil {
		return errNotStubbed
	}
	return m.CancelFunc(ctx, id)
}

func (m *mockJobUC) Complete(ctx context.Context, msg *qport.JobMessage, res *usecase.JobResult) (bool, error) {
	return false, errNotStubbed
}

type mockTimelineUC struct {
	AppendCommitFunc func(ctx context.Context, p usecase.AppendCommitParams) (*model.Commit, error)
	GetCommitFunc    func(ctx context.Context, caseID uuid.UUID, commitID string) (*model.Commit, error)
	ListTimelineFunc func(ctx context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]*model.Commit, error)
	CreateBranchFunc func(ctx context.Context, caseID uuid.UUID, name, baseCommitID string) (*model.Branch, error)
	ListBranchesFunc func(ctx context.Context, caseID uuid.UUID) ([]*model.Branch, error)
	MergeBranchFunc  func(ctx context.Context, caseID, branchID uuid.UUID, createdBy *uuid.UUID) (*model.Commit, error)
	DiffFunc         func(ctx context.Context, caseID uuid.UUID, fromID, toID string) (*usecase.SceneDiff, error)
}

func (m *mockTimelineUC) AppendCommit(ctx context.Context, p usecase.AppendCommitParams) (*model.Commit, error) {
	if m.AppendCommitFunc == nil {
		return nil, errNotStubbed
	}
	return m.AppendCommitFunc(ctx, p)
}

func (m *mockTimelineUC) GetCommit(ctx context.Context, caseID uuid.UUID, commitID string) (*model.Commit, error) {
	if m.GetCommitFunc == nil {
		return nil, errNotStubbed
	}
	return m.GetCommitFunc(ctx, caseID, commitID)
}

func (m *mockTimelineUC) ListTimeline(ctx context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]*model.Commit, error) {
	if m.ListTimelineFunc == nil {
		return nil, errNotStubbed
	}
	return m.ListTimelineFunc(ctx, caseID, limit, before)
}

func (m *mockTimelineUC) Head(ctx context.Context, caseID uuid.UUID, branchID *uuid.UUID) (*model.Commit, error) {
	return nil, errNotStubbed
}

func (m *mockTimelineUC) CreateBranch(ctx context.Context, caseID uuid.UUID, name, baseCommitID string) (*model.Branch, error) {
	if m.CreateBranchFunc == nil {
		return nil, errNotStubbed
	}
	return m.CreateBranchFunc(ctx, caseID, name, baseCommitID)
}

func (m *mockTimelineUC) ListBranches(ctx context.Context, caseID uuid.UUID) ([]*model.Branch, error) {
	if m.ListBranchesFunc == nil {
		return nil, errNotStubbed
	}
	return m.ListBranchesFunc(ctx, caseID)
}

func (m *mockTimelineUC) MergeBranch(ctx context.Context, caseID, branchID uuid.UUID, createdBy *uuid.UUID) (*model.Commit, error) {
	if m.MergeBranchFunc == nil {
		return nil, errNotStubbed
	}
	return m.MergeBranchFunc(ctx, caseID, branchID, createdBy)
}

func (m *mockTimelineUC) Diff(ctx context.Context, caseID uuid.UUID, fromID, toID string) (*usecase.SceneDiff, error) {
	if m.DiffFunc == nil {
		return nil, errNotStubbed
	}
	return m.DiffFunc(ctx, caseID, fromID, toID)
}

type mockSnapshotUC struct {
	GetSceneFunc     func(ctx context.Context, caseID uuid.UUID) (*model.SceneSnapshot, error)
	GetProfileFunc   func(ctx context.Context, caseID uuid.UUID) (*model.SuspectProfile, error)
	SwitchBranchFunc func(ctx context.Context, caseID, branchID uuid.UUID) error
	RebuildFunc      func(ctx context.Context, caseID uuid.UUID) error
}

func (m *mockSnapshotUC) ProjectAt(ctx context.Context, tx repository.Tx, caseID uuid.UUID, headID string) error {
	return errNotStubbed
}

func (m *mockSnapshotUC) Rebuild(ctx context.Context, caseID uuid.UUID) error {
	if m.RebuildFunc == nil {
		return errNotStubbed
	}
	return m.RebuildFunc(ctx, caseID)
}

func (m *mockSnapshotUC) SwitchBranch(ctx context.Context, caseID, branchID uuid.UUID) error {
	if m.SwitchBranchFunc == nil {
		return errNotStubbed
	}
	return m.SwitchBranchFunc(ctx, caseID, branchID)
}

func (m *mockSnapshotUC) GetScene(ctx context.Context, caseID uuid.UUID) (*model.SceneSnapshot, error) {
	if m.GetSceneFunc == nil {
		return nil, errNotStubbed
	}
	return m.GetSceneFunc(ctx, caseID)
}

func (m *mockSnapshotUC) GetProfile(ctx context.Context, caseID uuid.UUID) (*model.SuspectProfile, error) {
	if m.GetProfileFunc == nil {
		return nil, errNotStubbed
	}
	return m.GetProfileFunc(ctx, caseID)
}

func (m *mockSnapshotUC) ProjectedSceneAt(ctx context.Context, tx repository.Tx, caseID uuid.UUID, commitID string) (*model.SceneGraph, error) {
	return nil, errNotStubbed
}

type mockQueueInspector struct {
	main, processing, dlq int64
}

func (m *mockQueueInspector) Len(ctx context.Context, t model.JobType) (int64, error) {
	return m.main, nil
}

func (m *mockQueueInspector) ProcessingLen(ctx context.Context, t model.JobType) (int64, error) {
	return m.processing, nil
}

func (m *mockQueueInspector) DLQLen(ctx context.Context, t model.JobType) (int64, error) {
	return m.dlq, nil
}
