package model

import (
	"encoding/json"
	"fmt"

	"crime-scene-platform/internal/domain"
)

// Job inputs are tagged variants keyed by job type. The queue and commit
// layers treat them as opaque bytes; validation happens once, at submission.

type JobInput interface {
	Validate() error
}

// DecodeJobInput parses and validates the raw input payload for a job type.
func DecodeJobInput(t JobType, raw json.RawMessage) (JobInput, error) {
	var in JobInput
	switch t {
	case JobTypeReconstruction:
		in = &ReconstructionInput{}
	case JobTypeImageGen:
		in = &ImageGenInput{}
	case JobTypeReasoning:
		in = &ReasoningInput{}
	case JobTypeProfile:
		in = &ProfileInput{}
	case JobTypeExport:
		in = &ExportInput{}
	case JobTypeReplay:
		in = &ReplayInput{}
	case JobTypeAsset3D:
		in = &Asset3DInput{}
	case JobTypeSceneAnalysis:
		in = &SceneAnalysisInput{}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedJobType, t)
	}
	if err := json.Unmarshal(raw, in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

type ReconstructionInput struct {
	ScanKeys  []string `json:"scan_keys"`
	DepthMaps []string `json:"depth_maps,omitempty"`
}

func (r *ReconstructionInput) Validate() error {
	if len(r.ScanKeys) == 0 {
		return fmt.Errorf("%w: at least one scan_key is required", domain.ErrInvalidArgument)
	}
	for _, k := range r.ScanKeys {
		if k == "" {
			return fmt.Errorf("%w: empty scan_key", domain.ErrInvalidArgument)
		}
	}
	return nil
}

type ReconstructionOutput struct {
	Scenegraph *SceneGraph `json:"scenegraph"`
	MeshKey    string      `json:"mesh_asset_key,omitempty"`
	Stats      struct {
		InputImages     int   `json:"input_images"`
		DetectedObjects int   `json:"detected_objects"`
		DurationMs      int64 `json:"duration_ms"`
	} `json:"stats"`
}

type ImageGenInput struct {
	GenType     string         `json:"gen_type"` // portrait | evidence_board | comparison
	Attributes  map[string]any `json:"attributes,omitempty"`
	Resolution  string         `json:"resolution"`
	StylePrompt string         `json:"style_prompt,omitempty"`
}

func (i *ImageGenInput) Validate() error {
	switch i.GenType {
	case "portrait", "evidence_board", "comparison":
	default:
		return fmt.Errorf("%w: gen_type %q", domain.ErrInvalidArgument, i.GenType)
	}
	switch i.Resolution {
	case "1k", "2k", "4k":
	default:
		return fmt.Errorf("%w: resolution must be 1k, 2k or 4k", domain.ErrInvalidArgument)
	}
	if i.GenType == "portrait" && len(i.Attributes) == 0 {
		return fmt.Errorf("%w: attributes required for portrait", domain.ErrInvalidArgument)
	}
	return nil
}

type ImageGenOutput struct {
	AssetKey     string `json:"asset_key"`
	ThumbnailKey string `json:"thumbnail_key,omitempty"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

type ReasoningInput struct {
	BranchID        string `json:"branch_id,omitempty"`
	ThinkingBudget  int    `json:"thinking_budget,omitempty"`
	MaxTrajectories int    `json:"max_trajectories,omitempty"`
}

func (r *ReasoningInput) Validate() error {
	if r.ThinkingBudget < 0 || r.ThinkingBudget > 24576 {
		return fmt.Errorf("%w: thinking_budget out of range", domain.ErrInvalidArgument)
	}
	if r.MaxTrajectories < 0 {
		return fmt.Errorf("%w: max_trajectories must be non-negative", domain.ErrInvalidArgument)
	}
	return nil
}

type ProfileInput struct {
	Statements []string `json:"statements"`
}

func (p *ProfileInput) Validate() error {
	if len(p.Statements) == 0 {
		return fmt.Errorf("%w: at least one statement is required", domain.ErrInvalidArgument)
	}
	return nil
}

type ProfileOutput struct {
	Attributes       map[string]any `json:"attributes"`
	PortraitAssetKey string         `json:"portrait_asset_key,omitempty"`
}

type ExportInput struct {
	Format   string `json:"format"` // pdf | html
	BranchID string `json:"branch_id,omitempty"`
}

func (e *ExportInput) Validate() error {
	if e.Format != "pdf" && e.Format != "html" {
		return fmt.Errorf("%w: format must be pdf or html", domain.ErrInvalidArgument)
	}
	return nil
}

type ReplayInput struct {
	TrajectoryID string `json:"trajectory_id"`
	Perspective  string `json:"perspective,omitempty"`
	FrameCount   int    `json:"frame_count,omitempty"`
}

func (r *ReplayInput) Validate() error {
	if r.TrajectoryID == "" {
		return fmt.Errorf("%w: trajectory_id is required", domain.ErrInvalidArgument)
	}
	switch r.Perspective {
	case "", "first_person", "third_person":
	default:
		return fmt.Errorf("%w: perspective %q", domain.ErrInvalidArgument, r.Perspective)
	}
	return nil
}

type Asset3DInput struct {
	ImageKey    string `json:"image_key"`
	WithTexture bool   `json:"with_texture"`
}

func (a *Asset3DInput) Validate() error {
	if a.ImageKey == "" {
		return fmt.Errorf("%w: image_key is required", domain.ErrInvalidArgument)
	}
	return nil
}

type SceneAnalysisInput struct {
	ImageKeys []string `json:"image_keys"`
	Query     string   `json:"query,omitempty"`
}

func (s *SceneAnalysisInput) Validate() error {
	if len(s.ImageKeys) == 0 {
		return fmt.Errorf("%w: at least one image_key is required", domain.ErrInvalidArgument)
	}
	return nil
}

type SceneAnalysisOutput struct {
	Scenegraph  *SceneGraph `json:"scenegraph,omitempty"`
	Description string      `json:"description"`
}
