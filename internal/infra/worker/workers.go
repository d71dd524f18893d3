package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
	"crime-scene-platform/internal/domain/ports/adapter"
	qport "crime-scene-platform/internal/domain/ports/queue"
	"crime-scene-platform/internal/domain/ports/repository"
	"crime-scene-platform/internal/usecase"
)

// AllWorkers wires one worker per job type against the backend.
func AllWorkers(backend adapter.ProcessingBackend, snapshots repository.SnapshotRepository) []Worker {
	return []Worker{
		&reconstructionWorker{backend: backend},
		&sceneAnalysisWorker{backend: backend},
		&reasoningWorker{backend: backend, snapshots: snapshots},
		&profileWorker{backend: backend, snapshots: snapshots},
		&imageGenWorker{backend: backend},
		&asset3DWorker{backend: backend},
		&replayWorker{backend: backend},
		&exportWorker{backend: backend, snapshots: snapshots},
	}
}

// decodeInput re-validates the message payload. Submission already validated
// it, but a message can outlive a deploy; a payload the current build cannot
// decode is fatal, not retryable.
func decodeInput[T model.JobInput](t model.JobType, raw json.RawMessage) (T, error) {
	var zero T
	in, err := model.DecodeJobInput(t, raw)
	if err != nil {
		return zero, Fatal(err)
	}
	typed, ok := in.(T)
	if !ok {
		return zero, Fatal(fmt.Errorf("%w: unexpected input shape for %s", domain.ErrInvalidArgument, t))
	}
	return typed, nil
}

// currentScene loads the materialized scene, falling back to an empty graph
// for cases that have not produced one yet.
func currentScene(ctx context.Context, snapshots repository.SnapshotRepository, caseID uuid.UUID) (*model.SceneGraph, error) {
	snap, err := snapshots.FindScene(ctx, caseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.NewEmptySceneGraph(), nil
		}
		return nil, err
	}
	return snap.Scenegraph, nil
}

// --- reconstruction ---

type reconstructionWorker struct {
	backend adapter.ProcessingBackend
}

func (w *reconstructionWorker) Type() model.JobType { return model.JobTypeReconstruction }

func (w *reconstructionWorker) Process(ctx context.Context, msg *qport.JobMessage, report ProgressFunc) (*usecase.JobResult, error) {
	in, err := decodeInput[*model.ReconstructionInput](msg.Type, msg.Input)
	if err != nil {
		return nil, err
	}
	report(10)
	out, err := w.backend.Reconstruct(ctx, msg.CaseID, in)
	if err != nil {
		return nil, err
	}
	report(90)
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, Fatal(err)
	}
	return &usecase.JobResult{
		Output:  payload,
		Summary: fmt.Sprintf("3D reconstruction from %d scans", len(in.ScanKeys)),
	}, nil
}

// --- scene analysis ---

type sceneAnalysisWorker struct {
	backend adapter.ProcessingBackend
}

func (w *sceneAnalysisWorker) Type() model.JobType { return model.JobTypeSceneAnalysis }

func (w *sceneAnalysisWorker) Process(ctx context.Context, msg *qport.JobMessage, report ProgressFunc) (*usecase.JobResult, error) {
	in, err := decodeInput[*model.SceneAnalysisInput](msg.Type, msg.Input)
	if err != nil {
		return nil, err
	}
	report(10)
	out, err := w.backend.AnalyzeScene(ctx, msg.CaseID, in)
	if err != nil {
		return nil, err
	}
	report(90)
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, Fatal(err)
	}
	return &usecase.JobResult{
		Output:  payload,
		Summary: fmt.Sprintf("scene analysis of %d images", len(in.ImageKeys)),
	}, nil
}

// --- reasoning ---

type reasoningWorker struct {
	backend   adapter.ProcessingBackend
	snapshots repository.SnapshotRepository
}

func (w *reasoningWorker) Type() model.JobType { return model.JobTypeReasoning }

func (w *reasoningWorker) Process(ctx context.Context, msg *qport.JobMessage, report ProgressFunc) (*usecase.JobResult, error) {
	in, err := decodeInput[*model.ReasoningInput](msg.Type, msg.Input)
	if err != nil {
		return nil, err
	}
	report(10)
	scene, err := currentScene(ctx, w.snapshots, msg.CaseID)
	if err != nil {
		return nil, err
	}
	report(25)
	out, err := w.backend.Reason(ctx, msg.CaseID, scene, in)
	if err != nil {
		return nil, err
	}
	report(90)
	return &usecase.JobResult{
		Output:  out,
		Summary: "event reconstruction reasoning",
	}, nil
}

// --- profile ---

type profileWorker struct {
	backend   adapter.ProcessingBackend
	snapshots repository.SnapshotRepository
}

func (w *profileWorker) Type() model.JobType { return model.JobTypeProfile }

func (w *profileWorker) Process(ctx context.Context, msg *qport.JobMessage, report ProgressFunc) (*usecase.JobResult, error) {
	in, err := decodeInput[*model.ProfileInput](msg.Type, msg.Input)
	if err != nil {
		return nil, err
	}
	report(10)
	existing := map[string]any{}
	if prof, err := w.snapshots.FindProfile(ctx, msg.CaseID); err == nil {
		existing = prof.Attributes
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	report(25)
	out, err := w.backend.ExtractProfile(ctx, msg.CaseID, in, existing)
	if err != nil {
		return nil, err
	}
	report(90)
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, Fatal(err)
	}
	return &usecase.JobResult{
		Output:  payload,
		Summary: fmt.Sprintf("suspect profile from %d statements", len(in.Statements)),
	}, nil
}

// --- image generation ---

type imageGenWorker struct {
	backend adapter.ProcessingBackend
}

func (w *imageGenWorker) Type() model.JobType { return model.JobTypeImageGen }

func (w *imageGenWorker) Process(ctx context.Context, msg *qport.JobMessage, report ProgressFunc) (*usecase.JobResult, error) {
	in, err := decodeInput[*model.ImageGenInput](msg.Type, msg.Input)
	if err != nil {
		return nil, err
	}
	report(10)
	out, err := w.backend.GenerateImage(ctx, msg.CaseID, in)
	if err != nil {
		return nil, err
	}
	report(90)

	// Portraits also feed the profile projection.
	result := struct {
		*model.ImageGenOutput
		PortraitAssetKey string `json:"portrait_asset_key,omitempty"`
	}{ImageGenOutput: out}
	if in.GenType == "portrait" {
		result.PortraitAssetKey = out.AssetKey
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, Fatal(err)
	}
	return &usecase.JobResult{
		Output:  payload,
		Summary: fmt.Sprintf("%s image generated at %s", in.GenType, in.Resolution),
	}, nil
}

// --- 3d asset ---

type asset3DWorker struct {
	backend adapter.ProcessingBackend
}

func (w *asset3DWorker) Type() model.JobType { return model.JobTypeAsset3D }

func (w *asset3DWorker) Process(ctx context.Context, msg *qport.JobMessage, report ProgressFunc) (*usecase.JobResult, error) {
	in, err := decodeInput[*model.Asset3DInput](msg.Type, msg.Input)
	if err != nil {
		return nil, err
	}
	report(10)
	out, err := w.backend.GenerateAsset(ctx, msg.CaseID, in)
	if err != nil {
		return nil, err
	}
	report(90)
	return &usecase.JobResult{
		Output:  out,
		Summary: "3D asset generated from image",
	}, nil
}

// --- replay ---

type replayWorker struct {
	backend adapter.ProcessingBackend
}

func (w *replayWorker) Type() model.JobType { return model.JobTypeReplay }

func (w *replayWorker) Process(ctx context.Context, msg *qport.JobMessage, report ProgressFunc) (*usecase.JobResult, error) {
	in, err := decodeInput[*model.ReplayInput](msg.Type, msg.Input)
	if err != nil {
		return nil, err
	}
	report(10)
	out, err := w.backend.RenderReplay(ctx, msg.CaseID, in)
	if err != nil {
		return nil, err
	}
	report(90)
	return &usecase.JobResult{
		Output:  out,
		Summary: fmt.Sprintf("replay rendered for trajectory %s", in.TrajectoryID),
	}, nil
}

// --- export ---

type exportWorker struct {
	backend   adapter.ProcessingBackend
	snapshots repository.SnapshotRepository
}

func (w *exportWorker) Type() model.JobType { return model.JobTypeExport }

func (w *exportWorker) Process(ctx context.Context, msg *qport.JobMessage, report ProgressFunc) (*usecase.JobResult, error) {
	in, err := decodeInput[*model.ExportInput](msg.Type, msg.Input)
	if err != nil {
		return nil, err
	}
	report(10)
	scene, err := currentScene(ctx, w.snapshots, msg.CaseID)
	if err != nil {
		return nil, err
	}
	report(25)
	out, err := w.backend.ExportReport(ctx, msg.CaseID, scene, in)
	if err != nil {
		return nil, err
	}
	report(90)
	return &usecase.JobResult{
		Output:  out,
		Summary: fmt.Sprintf("case report exported as %s", in.Format),
	}, nil
}
