package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain/model"
	"crime-scene-platform/internal/domain/ports/adapter"
)

var _ adapter.ProcessingBackend = (*NoopBackend)(nil)

// NoopBackend implements adapter.ProcessingBackend for local/dev runs. It
// produces small deterministic outputs instead of calling real AI services,
// so the full pipeline (queue, commits, snapshots) can be exercised offline.
type NoopBackend struct {
	// Delay simulates processing time per call; zero means immediate.
	Delay time.Duration
}

func NewNoopBackend() *NoopBackend {
	return &NoopBackend{Delay: 100 * time.Millisecond}
}

func (b *NoopBackend) wait(ctx context.Context) error {
	if b.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(b.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *NoopBackend) Reconstruct(ctx context.Context, caseID uuid.UUID, in *model.ReconstructionInput) (*model.ReconstructionOutput, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	out := &model.ReconstructionOutput{
		Scenegraph: &model.SceneGraph{
			Version: "1",
			Objects: make([]model.SceneObject, 0, len(in.ScanKeys)),
		},
	}
	for i := range in.ScanKeys {
		out.Scenegraph.Objects = append(out.Scenegraph.Objects, model.SceneObject{
			ID:         fmt.Sprintf("noop-obj-%d", i+1),
			Type:       "object",
			Label:      fmt.Sprintf("detected object %d", i+1),
			Confidence: 0.5,
		})
	}
	out.Stats.InputImages = len(in.ScanKeys)
	out.Stats.DetectedObjects = len(out.Scenegraph.Objects)
	return out, nil
}

func (b *NoopBackend) AnalyzeScene(ctx context.Context, caseID uuid.UUID, in *model.SceneAnalysisInput) (*model.SceneAnalysisOutput, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return &model.SceneAnalysisOutput{
		Scenegraph: &model.SceneGraph{Version: "1"},
	}, nil
}

func (b *NoopBackend) Reason(ctx context.Context, caseID uuid.UUID, scene *model.SceneGraph, in *model.ReasoningInput) (json.RawMessage, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"trajectories":[],"considered_objects":%d}`, len(scene.Objects))), nil
}

func (b *NoopBackend) ExtractProfile(ctx context.Context, caseID uuid.UUID, in *model.ProfileInput, existing map[string]any) (*model.ProfileOutput, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	attrs := map[string]any{"statements_seen": len(in.Statements)}
	for k, v := range existing {
		attrs[k] = v
	}
	return &model.ProfileOutput{Attributes: attrs}, nil
}

func (b *NoopBackend) GenerateImage(ctx context.Context, caseID uuid.UUID, in *model.ImageGenInput) (*model.ImageGenOutput, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return &model.ImageGenOutput{
		AssetKey: fmt.Sprintf("noop/%s/%s.png", caseID, in.GenType),
		Width:    1024,
		Height:   1024,
	}, nil
}

func (b *NoopBackend) GenerateAsset(ctx context.Context, caseID uuid.UUID, in *model.Asset3DInput) (json.RawMessage, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"asset_key":"noop/%s/asset.glb"}`, caseID)), nil
}

func (b *NoopBackend) RenderReplay(ctx context.Context, caseID uuid.UUID, in *model.ReplayInput) (json.RawMessage, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"replay_key":"noop/%s/%s.mp4"}`, caseID, in.TrajectoryID)), nil
}

func (b *NoopBackend) ExportReport(ctx context.Context, caseID uuid.UUID, scene *model.SceneGraph, in *model.ExportInput) (json.RawMessage, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"report_key":"noop/%s/report.%s","objects":%d}`, caseID, in.Format, len(scene.Objects))), nil
}
