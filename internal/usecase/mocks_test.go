package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
	qport "crime-scene-platform/internal/domain/ports/queue"
	"crime-scene-platform/internal/domain/ports/repository"
)

// ---- In-memory JobRepository ----

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*model.Job
}

var _ repository.JobRepository = (*memJobRepo)(nil)

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[uuid.UUID]*model.Job)}
}

func (r *memJobRepo) clone(j *model.Job) *model.Job {
	cp := *j
	return &cp
}

func (r *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.IdempotencyKey != "" {
		for _, j := range r.jobs {
			if j.IdempotencyKey == job.IdempotencyKey {
				return domain.ErrAlreadyExists
			}
		}
	}
	r.jobs[job.ID] = r.clone(job)
	return nil
}

func (r *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id uuid.UUID) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.clone(j), nil
}

func (r *memJobRepo) FindByIdempotencyKey(ctx context.Context, key string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.IdempotencyKey == key {
			return r.clone(j), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memJobRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	return j.MarkRunning()
}

func (r *memJobRepo) SetProgress(ctx context.Context, id uuid.UUID, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != model.JobStatusRunning {
		return nil
	}
	return j.SetProgress(progress)
}

func (r *memJobRepo) MarkDone(ctx context.Context, tx repository.Tx, id uuid.UUID, output json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	return j.MarkDone(output)
}

func (r *memJobRepo) MarkRequeued(ctx context.Context, id uuid.UUID, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	return j.MarkRequeued(errMsg)
}

func (r *memJobRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	return j.MarkFailed(errMsg)
}

func (r *memJobRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	return j.MarkCanceled()
}

func (r *memJobRepo) Heartbeat(ctx context.Context, id uuid.UUID) error { return nil }

func (r *memJobRepo) FindZombies(ctx context.Context, olderThan time.Duration) ([]*model.Job, error) {
	return nil, nil
}

// ---- In-memory CommitRepository ----

type memCommitRepo struct {
	mu      sync.Mutex
	commits map[string]*model.Commit
	byJob   map[uuid.UUID]string
	// branch bases, shared with memBranchRepo via the same fixture
	branches map[uuid.UUID]*model.Branch
}

var _ repository.CommitRepository = (*memCommitRepo)(nil)

func newMemCommitRepo() *memCommitRepo {
	return &memCommitRepo{
		commits:  make(map[string]*model.Commit),
		byJob:    make(map[uuid.UUID]string),
		branches: make(map[uuid.UUID]*model.Branch),
	}
}

func (r *memCommitRepo) Create(ctx context.Context, tx repository.Tx, c *model.Commit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.JobID != nil {
		if _, taken := r.byJob[*c.JobID]; taken {
			return domain.ErrAlreadyExists
		}
		r.byJob[*c.JobID] = c.ID
	}
	cp := *c
	r.commits[c.ID] = &cp
	return nil
}

func (r *memCommitRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commits[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCommitRepo) FindByJobID(ctx context.Context, jobID uuid.UUID) (*model.Commit, error) {
	r.mu.Lock()
	id, ok := r.byJob[jobID]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.FindByID(ctx, nil, id)
}

func (r *memCommitRepo) caseCommits(caseID uuid.UUID) []*model.Commit {
	var out []*model.Commit
	for _, c := range r.commits {
		if c.CaseID == caseID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *memCommitRepo) ListByCase(ctx context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]*model.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	asc := r.caseCommits(caseID)
	var out []*model.Commit
	for i := len(asc) - 1; i >= 0; i-- {
		c := asc[i]
		if before != nil && !c.CreatedAt.Before(*before) {
			continue
		}
		cp := *c
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memCommitRepo) Head(ctx context.Context, tx repository.Tx, caseID uuid.UUID, branchID *uuid.UUID) (*model.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	asc := r.caseCommits(caseID)
	for i := len(asc) - 1; i >= 0; i-- {
		c := asc[i]
		if branchID == nil && c.BranchID == nil {
			cp := *c
			return &cp, nil
		}
		if branchID != nil && c.BranchID != nil && *c.BranchID == *branchID {
			cp := *c
			return &cp, nil
		}
	}
	if branchID != nil {
		if b, ok := r.branches[*branchID]; ok {
			if base, ok := r.commits[b.BaseCommitID]; ok {
				cp := *base
				return &cp, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memCommitRepo) Chain(ctx context.Context, tx repository.Tx, caseID uuid.UUID, targetID string) ([]*model.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commits[targetID]
	if !ok || c.CaseID != caseID {
		return nil, domain.ErrNotFound
	}
	var rev []*model.Commit
	for cur := c; cur != nil; {
		cp := *cur
		rev = append(rev, &cp)
		if cur.ParentCommitID == nil {
			break
		}
		next, ok := r.commits[*cur.ParentCommitID]
		if !ok {
			return nil, domain.ErrCommitChainCorrupt
		}
		cur = next
		if len(rev) > len(r.commits) {
			return nil, domain.ErrCommitChainCorrupt
		}
	}
	out := make([]*model.Commit, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return out, nil
}

// ---- In-memory BranchRepository ----

type memBranchRepo struct {
	commits *memCommitRepo
}

var _ repository.BranchRepository = (*memBranchRepo)(nil)

func newMemBranchRepo(commits *memCommitRepo) *memBranchRepo {
	return &memBranchRepo{commits: commits}
}

func (r *memBranchRepo) Create(ctx context.Context, tx repository.Tx, b *model.Branch) error {
	r.commits.mu.Lock()
	defer r.commits.mu.Unlock()
	for _, other := range r.commits.branches {
		if other.CaseID == b.CaseID && other.Name == b.Name {
			return domain.ErrDuplicateBranchName
		}
	}
	cp := *b
	r.commits.branches[b.ID] = &cp
	return nil
}

func (r *memBranchRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Branch, error) {
	r.commits.mu.Lock()
	defer r.commits.mu.Unlock()
	b, ok := r.commits.branches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memBranchRepo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*model.Branch, error) {
	r.commits.mu.Lock()
	defer r.commits.mu.Unlock()
	var out []*model.Branch
	for _, b := range r.commits.branches {
		if b.CaseID == caseID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- In-memory SnapshotRepository ----

type memSnapshotRepo struct {
	mu       sync.Mutex
	scenes   map[uuid.UUID]*model.SceneSnapshot
	profiles map[uuid.UUID]*model.SuspectProfile
}

var _ repository.SnapshotRepository = (*memSnapshotRepo)(nil)

func newMemSnapshotRepo() *memSnapshotRepo {
	return &memSnapshotRepo{
		scenes:   make(map[uuid.UUID]*model.SceneSnapshot),
		profiles: make(map[uuid.UUID]*model.SuspectProfile),
	}
}

func (r *memSnapshotRepo) UpsertScene(ctx context.Context, tx repository.Tx, s *model.SceneSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.scenes[s.CaseID] = &cp
	return nil
}

func (r *memSnapshotRepo) FindScene(ctx context.Context, caseID uuid.UUID) (*model.SceneSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scenes[caseID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSnapshotRepo) UpsertProfile(ctx context.Context, tx repository.Tx, p *model.SuspectProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.profiles[p.CaseID] = &cp
	return nil
}

func (r *memSnapshotRepo) FindProfile(ctx context.Context, caseID uuid.UUID) (*model.SuspectProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[caseID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs the function immediately without a real transaction. For
// transactional assertions assign a custom WithTxFunc.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock JobQueue ----

type mockJobQueue struct {
	mu       sync.Mutex
	enqueued []*model.Job
	failWith error
}

var _ qport.JobQueue = (*mockJobQueue)(nil)

func (q *mockJobQueue) Enqueue(ctx context.Context, job *model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failWith != nil {
		return q.failWith
	}
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *mockJobQueue) Dequeue(ctx context.Context, t model.JobType, timeout time.Duration) (*qport.JobMessage, error) {
	return nil, nil
}
func (q *mockJobQueue) Ack(ctx context.Context, msg *qport.JobMessage) error { return nil }
func (q *mockJobQueue) Nack(ctx context.Context, msg *qport.JobMessage, maxRetries int) error {
	return nil
}
func (q *mockJobQueue) RecoverStale(ctx context.Context, t model.JobType) (int, error) {
	return 0, nil
}
func (q *mockJobQueue) Len(ctx context.Context, t model.JobType) (int64, error)           { return 0, nil }
func (q *mockJobQueue) ProcessingLen(ctx context.Context, t model.JobType) (int64, error) { return 0, nil }
func (q *mockJobQueue) DLQLen(ctx context.Context, t model.JobType) (int64, error)        { return 0, nil }
func (q *mockJobQueue) Close() error                                                      { return nil }
