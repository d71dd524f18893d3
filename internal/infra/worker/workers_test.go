package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
	qport "crime-scene-platform/internal/domain/ports/queue"
	"crime-scene-platform/internal/domain/ports/repository"
)

type stubBackend struct {
	reconstruct    func(ctx context.Context, caseID uuid.UUID, in *model.ReconstructionInput) (*model.ReconstructionOutput, error)
	generateImage  func(ctx context.Context, caseID uuid.UUID, in *model.ImageGenInput) (*model.ImageGenOutput, error)
	reason         func(ctx context.Context, caseID uuid.UUID, scene *model.SceneGraph, in *model.ReasoningInput) (json.RawMessage, error)
	extractProfile func(ctx context.Context, caseID uuid.UUID, in *model.ProfileInput, existing map[string]any) (*model.ProfileOutput, error)
}

func (b *stubBackend) Reconstruct(ctx context.Context, caseID uuid.UUID, in *model.ReconstructionInput) (*model.ReconstructionOutput, error) {
	return b.reconstruct(ctx, caseID, in)
}

func (b *stubBackend) AnalyzeScene(ctx context.Context, caseID uuid.UUID, in *model.SceneAnalysisInput) (*model.SceneAnalysisOutput, error) {
	return &model.SceneAnalysisOutput{}, nil
}

func (b *stubBackend) Reason(ctx context.Context, caseID uuid.UUID, scene *model.SceneGraph, in *model.ReasoningInput) (json.RawMessage, error) {
	return b.reason(ctx, caseID, scene, in)
}

func (b *stubBackend) ExtractProfile(ctx context.Context, caseID uuid.UUID, in *model.ProfileInput, existing map[string]any) (*model.ProfileOutput, error) {
	return b.extractProfile(ctx, caseID, in, existing)
}

func (b *stubBackend) GenerateImage(ctx context.Context, caseID uuid.UUID, in *model.ImageGenInput) (*model.ImageGenOutput, error) {
	return b.generateImage(ctx, caseID, in)
}

func (b *stubBackend) GenerateAsset(ctx context.Context, caseID uuid.UUID, in *model.Asset3DInput) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (b *stubBackend) RenderReplay(ctx context.Context, caseID uuid.UUID, in *model.ReplayInput) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (b *stubBackend) ExportReport(ctx context.Context, caseID uuid.UUID, scene *model.SceneGraph, in *model.ExportInput) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type stubSnapshots struct {
	scene   *model.SceneSnapshot
	profile *model.SuspectProfile
}

func (s *stubSnapshots) UpsertScene(ctx context.Context, tx repository.Tx, snap *model.SceneSnapshot) error {
	s.scene = snap
	return nil
}

func (s *stubSnapshots) FindScene(ctx context.Context, caseID uuid.UUID) (*model.SceneSnapshot, error) {
	if s.scene == nil {
		return nil, domain.ErrNotFound
	}
	return s.scene, nil
}

func (s *stubSnapshots) UpsertProfile(ctx context.Context, tx repository.Tx, p *model.SuspectProfile) error {
	s.profile = p
	return nil
}

func (s *stubSnapshots) FindProfile(ctx context.Context, caseID uuid.UUID) (*model.SuspectProfile, error) {
	if s.profile == nil {
		return nil, domain.ErrNotFound
	}
	return s.profile, nil
}

func testMessage(typ model.JobType, input string) *qport.JobMessage {
	return &qport.JobMessage{
		JobID:      uuid.New(),
		CaseID:     uuid.New(),
		Type:       typ,
		Input:      json.RawMessage(input),
		EnqueuedAt: time.Now().UTC(),
		Attempts:   1,
	}
}

func TestReconstructionWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the scenegraph output", func(t *testing.T) {
		backend := &stubBackend{reconstruct: func(ctx context.Context, caseID uuid.UUID, in *model.ReconstructionInput) (*model.ReconstructionOutput, error) {
			return &model.ReconstructionOutput{
				Scenegraph: &model.SceneGraph{
					Objects: []model.SceneObject{{ID: "table-1", Type: "furniture", Label: "table"}},
				},
			}, nil
		}}
		w := &reconstructionWorker{backend: backend}

		var stages []int
		res, err := w.Process(ctx, testMessage(model.JobTypeReconstruction, `{"scan_keys":["s3://a","s3://b"]}`), func(p int) {
			stages = append(stages, p)
		})
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		if len(stages) == 0 || stages[len(stages)-1] != 90 {
			t.Errorf("progress stages = %v, want staged reports ending at 90", stages)
		}
		var out model.ReconstructionOutput
		if err := json.Unmarshal(res.Output, &out); err != nil {
			t.Fatalf("unmarshal output: %v", err)
		}
		if len(out.Scenegraph.Objects) != 1 || out.Scenegraph.Objects[0].ID != "table-1" {
			t.Errorf("objects = %+v, want table-1", out.Scenegraph.Objects)
		}
		if res.Summary != "3D reconstruction from 2 scans" {
			t.Errorf("summary = %q", res.Summary)
		}
	})

	t.Run("invalid input is fatal", func(t *testing.T) {
		w := &reconstructionWorker{backend: &stubBackend{}}
		_, err := w.Process(ctx, testMessage(model.JobTypeReconstruction, `{"scan_keys":[]}`), NoProgress)
		if !IsFatal(err) {
			t.Fatalf("process = %v, want a fatal error", err)
		}
	})
}

func TestImageGenWorker(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{generateImage: func(ctx context.Context, caseID uuid.UUID, in *model.ImageGenInput) (*model.ImageGenOutput, error) {
		return &model.ImageGenOutput{AssetKey: "assets/img-1.png", Width: 1024, Height: 1024}, nil
	}}
	w := &imageGenWorker{backend: backend}

	t.Run("portrait output carries the portrait key", func(t *testing.T) {
		res, err := w.Process(ctx, testMessage(model.JobTypeImageGen,
			`{"gen_type":"portrait","attributes":{"hair":"dark"},"resolution":"1k"}`), NoProgress)
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		var out map[string]any
		if err := json.Unmarshal(res.Output, &out); err != nil {
			t.Fatal(err)
		}
		if out["portrait_asset_key"] != "assets/img-1.png" {
			t.Errorf("portrait_asset_key = %v, want the generated asset", out["portrait_asset_key"])
		}
	})

	t.Run("non-portrait output omits the portrait key", func(t *testing.T) {
		res, err := w.Process(ctx, testMessage(model.JobTypeImageGen,
			`{"gen_type":"evidence_board","resolution":"1k"}`), NoProgress)
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		var out map[string]any
		if err := json.Unmarshal(res.Output, &out); err != nil {
			t.Fatal(err)
		}
		if _, ok := out["portrait_asset_key"]; ok {
			t.Error("portrait_asset_key set on a non-portrait generation")
		}
	})
}

func TestReasoningWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("passes the materialized scene to the backend", func(t *testing.T) {
		snaps := &stubSnapshots{scene: &model.SceneSnapshot{
			Scenegraph: &model.SceneGraph{Objects: []model.SceneObject{{ID: "knife-1"}}},
		}}
		var gotScene *model.SceneGraph
		backend := &stubBackend{reason: func(ctx context.Context, caseID uuid.UUID, scene *model.SceneGraph, in *model.ReasoningInput) (json.RawMessage, error) {
			gotScene = scene
			return json.RawMessage(`{"trajectories":[]}`), nil
		}}
		w := &reasoningWorker{backend: backend, snapshots: snaps}

		if _, err := w.Process(ctx, testMessage(model.JobTypeReasoning, `{}`), NoProgress); err != nil {
			t.Fatalf("process: %v", err)
		}
		if gotScene == nil || len(gotScene.Objects) != 1 {
			t.Errorf("scene = %+v, want the snapshot scene", gotScene)
		}
	})

	t.Run("missing snapshot falls back to an empty scene", func(t *testing.T) {
		var gotScene *model.SceneGraph
		backend := &stubBackend{reason: func(ctx context.Context, caseID uuid.UUID, scene *model.SceneGraph, in *model.ReasoningInput) (json.RawMessage, error) {
			gotScene = scene
			return json.RawMessage(`{}`), nil
		}}
		w := &reasoningWorker{backend: backend, snapshots: &stubSnapshots{}}

		if _, err := w.Process(ctx, testMessage(model.JobTypeReasoning, `{}`), NoProgress); err != nil {
			t.Fatalf("process: %v", err)
		}
		if gotScene == nil || len(gotScene.Objects) != 0 {
			t.Errorf("scene = %+v, want an empty graph", gotScene)
		}
	})
}

func TestProfileWorker(t *testing.T) {
	ctx := context.Background()
	snaps := &stubSnapshots{profile: &model.SuspectProfile{
		Attributes: map[string]any{"height": "tall"},
	}}
	var gotExisting map[string]any
	backend := &stubBackend{extractProfile: func(ctx context.Context, caseID uuid.UUID, in *model.ProfileInput, existing map[string]any) (*model.ProfileOutput, error) {
		gotExisting = existing
		return &model.ProfileOutput{Attributes: map[string]any{"hair": "grey"}}, nil
	}}
	w := &profileWorker{backend: backend, snapshots: snaps}

	res, err := w.Process(ctx, testMessage(model.JobTypeProfile, `{"statements":["he was tall"]}`), NoProgress)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if gotExisting["height"] != "tall" {
		t.Errorf("existing = %v, want the stored profile attributes", gotExisting)
	}
	var out model.ProfileOutput
	if err := json.Unmarshal(res.Output, &out); err != nil {
		t.Fatal(err)
	}
	if out.Attributes["hair"] != "grey" {
		t.Errorf("attributes = %v", out.Attributes)
	}
}

func TestAllWorkersCoverEveryJobType(t *testing.T) {
	workers := AllWorkers(&stubBackend{}, &stubSnapshots{})
	seen := map[model.JobType]bool{}
	for _, w := range workers {
		seen[w.Type()] = true
	}
	for _, typ := range model.AllJobTypes() {
		if !seen[typ] {
			t.Errorf("no worker registered for %s", typ)
		}
	}
}
