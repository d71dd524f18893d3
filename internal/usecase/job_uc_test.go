package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
	qport "crime-scene-platform/internal/domain/ports/queue"
)

type jobFixture struct {
	jobs  *memJobRepo
	comms *memCommitRepo
	snaps *memSnapshotRepo
	queue *mockJobQueue
	uc    JobUseCase
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	log := zerolog.Nop()
	jobs := newMemJobRepo()
	comms := newMemCommitRepo()
	snaps := newMemSnapshotRepo()
	queue := &mockJobQueue{}
	tm := &MockTxManager{}
	snapUC := NewSnapshotUseCase(comms, snaps, tm, &log)
	uc := NewJobUseCase(jobs, comms, snapUC, queue, tm, model.AllJobTypes(), &log)
	return &jobFixture{jobs: jobs, comms: comms, snaps: snaps, queue: queue, uc: uc}
}

var validReconInput = json.RawMessage(`{"scan_keys":["s3://scan-1","s3://scan-2"]}`)

func TestJobUC_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts a valid job and enqueues it", func(t *testing.T) {
		f := newJobFixture(t)

		job, replayed, err := f.uc.Submit(ctx, uuid.New(), model.JobTypeReconstruction, validReconInput, "")
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if replayed {
			t.Error("fresh submission reported as replay")
		}
		if job.Status != model.JobStatusQueued {
			t.Errorf("status = %s, want queued", job.Status)
		}
		if len(f.queue.enqueued) != 1 || f.queue.enqueued[0].ID != job.ID {
			t.Errorf("enqueued = %v, want the new job", f.queue.enqueued)
		}
	})

	t.Run("rejects an unregistered job type", func(t *testing.T) {
		log := zerolog.Nop()
		jobs := newMemJobRepo()
		comms := newMemCommitRepo()
		tm := &MockTxManager{}
		snapUC := NewSnapshotUseCase(comms, newMemSnapshotRepo(), tm, &log)
		// Only reconstruction workers registered.
		uc := NewJobUseCase(jobs, comms, snapUC, &mockJobQueue{}, tm, []model.JobType{model.JobTypeReconstruction}, &log)

		_, _, err := uc.Submit(ctx, uuid.New(), model.JobTypeExport, json.RawMessage(`{"format":"pdf"}`), "")
		if !errors.Is(err, domain.ErrUnsupportedJobType) {
			t.Fatalf("submit = %v, want ErrUnsupportedJobType", err)
		}
	})

	t.Run("rejects invalid typed input", func(t *testing.T) {
		f := newJobFixture(t)

		cases := []struct {
			name  string
			typ   model.JobType
			input string
		}{
			{"reconstruction without scans", model.JobTypeReconstruction, `{"scan_keys":[]}`},
			{"imagegen bad resolution", model.JobTypeImageGen, `{"gen_type":"portrait","attributes":{"hair":"dark"},"resolution":"8k"}`},
			{"reasoning budget over cap", model.JobTypeReasoning, `{"thinking_budget":30000}`},
			{"export bad format", model.JobTypeExport, `{"format":"docx"}`},
			{"replay missing trajectory", model.JobTypeReplay, `{}`},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, _, err := f.uc.Submit(ctx, uuid.New(), tc.typ, json.RawMessage(tc.input), "")
				if !errors.Is(err, domain.ErrInvalidArgument) {
					t.Errorf("submit = %v, want ErrInvalidArgument", err)
				}
			})
		}
	})

	t.Run("replays on duplicate idempotency key", func(t *testing.T) {
		f := newJobFixture(t)
		caseID := uuid.New()

		first, _, err := f.uc.Submit(ctx, caseID, model.JobTypeReconstruction, validReconInput, "case:recon:v1")
		if err != nil {
			t.Fatalf("first submit: %v", err)
		}
		second, replayed, err := f.uc.Submit(ctx, caseID, model.JobTypeReconstruction, validReconInput, "case:recon:v1")
		if err != nil {
			t.Fatalf("second submit: %v", err)
		}
		if !replayed {
			t.Error("duplicate submission not reported as replay")
		}
		if second.ID != first.ID {
			t.Errorf("replay returned job %s, want %s", second.ID, first.ID)
		}
		if len(f.queue.enqueued) != 1 {
			t.Errorf("enqueued %d messages, want 1", len(f.queue.enqueued))
		}
	})

	t.Run("surfaces broker failure to the submitter", func(t *testing.T) {
		f := newJobFixture(t)
		f.queue.failWith = domain.ErrBrokerUnavailable

		_, _, err := f.uc.Submit(ctx, uuid.New(), model.JobTypeReconstruction, validReconInput, "")
		if !errors.Is(err, domain.ErrBrokerUnavailable) {
			t.Fatalf("submit = %v, want ErrBrokerUnavailable", err)
		}
	})
}

func TestJobUC_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)

	job, _, err := f.uc.Submit(ctx, uuid.New(), model.JobTypeReconstruction, validReconInput, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := f.uc.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := f.uc.Get(ctx, job.ID)
	if got.Status != model.JobStatusCanceled {
		t.Errorf("status = %s, want canceled", got.Status)
	}
	if err := f.uc.Cancel(ctx, job.ID); !errors.Is(err, domain.ErrJobNotCancelable) {
		t.Errorf("second cancel = %v, want ErrJobNotCancelable", err)
	}
}

func TestJobUC_Complete(t *testing.T) {
	ctx := context.Background()

	submitRunning := func(t *testing.T, f *jobFixture) (*model.Job, *qport.JobMessage) {
		t.Helper()
		job, _, err := f.uc.Submit(ctx, uuid.New(), model.JobTypeReconstruction, validReconInput, "")
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if err := f.jobs.MarkRunning(ctx, job.ID); err != nil {
			t.Fatalf("mark running: %v", err)
		}
		return job, &qport.JobMessage{
			JobID:      job.ID,
			CaseID:     job.CaseID,
			Type:       job.Type,
			Input:      job.Input,
			EnqueuedAt: time.Now().UTC(),
			Attempts:   1,
		}
	}

	result := &JobResult{
		Output:  json.RawMessage(`{"scenegraph":{"version":"1","objects":[{"id":"obj-1","type":"furniture","label":"table"}],"evidence":[]}}`),
		Summary: "3D reconstruction from 2 scans",
	}

	t.Run("appends the commit, projects the snapshot and finishes the job", func(t *testing.T) {
		f := newJobFixture(t)
		job, msg := submitRunning(t, f)

		committed, err := f.uc.Complete(ctx, msg, result)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if !committed {
			t.Fatal("expected the result to commit")
		}

		got, _ := f.uc.Get(ctx, job.ID)
		if got.Status != model.JobStatusDone || got.Progress != 100 {
			t.Errorf("job = %s/%d, want done/100", got.Status, got.Progress)
		}

		commit, err := f.comms.FindByJobID(ctx, job.ID)
		if err != nil {
			t.Fatalf("find commit: %v", err)
		}
		if commit.Type != model.CommitTypeReconstructionUpdate {
			t.Errorf("commit type = %s, want reconstruction_update", commit.Type)
		}

		snap, err := f.snaps.FindScene(ctx, job.CaseID)
		if err != nil {
			t.Fatalf("find scene: %v", err)
		}
		if snap.CommitID != commit.ID {
			t.Errorf("snapshot head = %s, want %s", snap.CommitID, commit.ID)
		}
		if len(snap.Scenegraph.Objects) != 1 || snap.Scenegraph.Objects[0].ID != "obj-1" {
			t.Errorf("scene objects = %+v, want obj-1", snap.Scenegraph.Objects)
		}
	})

	t.Run("second delivery of a finished job commits nothing", func(t *testing.T) {
		f := newJobFixture(t)
		job, msg := submitRunning(t, f)

		if _, err := f.uc.Complete(ctx, msg, result); err != nil {
			t.Fatalf("first complete: %v", err)
		}
		committed, err := f.uc.Complete(ctx, msg, result)
		if err != nil {
			t.Fatalf("second complete: %v", err)
		}
		if committed {
			t.Error("duplicate delivery committed a second result")
		}
		// Exactly one commit exists for the job.
		if _, err := f.comms.FindByJobID(ctx, job.ID); err != nil {
			t.Fatalf("find commit: %v", err)
		}
		if n := len(f.comms.commits); n != 1 {
			t.Errorf("commit count = %d, want 1", n)
		}
	})

	t.Run("canceled job discards the result", func(t *testing.T) {
		f := newJobFixture(t)
		job, msg := submitRunning(t, f)
		if err := f.jobs.Cancel(ctx, job.ID); err != nil {
			t.Fatalf("cancel: %v", err)
		}

		committed, err := f.uc.Complete(ctx, msg, result)
		if err != nil {
			t.Fatalf("complete after cancel: %v", err)
		}
		if committed {
			t.Error("canceled job committed its result")
		}
		if _, err := f.comms.FindByJobID(ctx, job.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("commit lookup = %v, want ErrNotFound", err)
		}
		got, _ := f.uc.Get(ctx, job.ID)
		if got.Status != model.JobStatusCanceled {
			t.Errorf("status = %s, want canceled to stick", got.Status)
		}
	})
}
