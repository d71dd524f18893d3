package adapter

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain/model"
)

// ProcessingBackend is the narrow request/response contract to the external
// AI services (vision, reasoning, image generation, 3D). The core never
// inspects how results are produced; calls must honor ctx cancellation.
type ProcessingBackend interface {
	Reconstruct(ctx context.Context, caseID uuid.UUID, in *model.ReconstructionInput) (*model.ReconstructionOutput, error)
	AnalyzeScene(ctx context.Context, caseID uuid.UUID, in *model.SceneAnalysisInput) (*model.SceneAnalysisOutput, error)
	Reason(ctx context.Context, caseID uuid.UUID, scene *model.SceneGraph, in *model.ReasoningInput) (json.RawMessage, error)
	ExtractProfile(ctx context.Context, caseID uuid.UUID, in *model.ProfileInput, existing map[string]any) (*model.ProfileOutput, error)
	GenerateImage(ctx context.Context, caseID uuid.UUID, in *model.ImageGenInput) (*model.ImageGenOutput, error)
	GenerateAsset(ctx context.Context, caseID uuid.UUID, in *model.Asset3DInput) (json.RawMessage, error)
	RenderReplay(ctx context.Context, caseID uuid.UUID, in *model.ReplayInput) (json.RawMessage, error)
	ExportReport(ctx context.Context, caseID uuid.UUID, scene *model.SceneGraph, in *model.ExportInput) (json.RawMessage, error)
}
