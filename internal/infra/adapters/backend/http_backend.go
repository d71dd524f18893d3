package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain/model"
	"crime-scene-platform/internal/domain/ports/adapter"
)

var _ adapter.ProcessingBackend = (*HTTPBackend)(nil)

// HTTPBackend implements adapter.ProcessingBackend against the AI processing
// gateway's JSON API. Every call is a single POST carrying the case id and
// the typed input; long-running work is synchronous from this side, the queue
// above provides the asynchrony.
type HTTPBackend struct {
	base   string
	apiKey string
	client *http.Client
}

func NewHTTPBackend(baseURL, apiKey string, timeout time.Duration) (*HTTPBackend, error) {
	if baseURL == "" {
		return nil, errors.New("backend base url empty")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPBackend{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// post sends the request body and decodes the response into out. When out is
// a *json.RawMessage the body is kept verbatim.
func (b *HTTPBackend) post(ctx context.Context, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal backend request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend %s: http %d: %s", path, resp.StatusCode, snippet)
	}

	if raw, ok := out.(*json.RawMessage); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		*raw = data
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type caseRequest struct {
	CaseID uuid.UUID `json:"case_id"`
	Input  any       `json:"input"`
	Scene  any       `json:"scene,omitempty"`
}

func (b *HTTPBackend) Reconstruct(ctx context.Context, caseID uuid.UUID, in *model.ReconstructionInput) (*model.ReconstructionOutput, error) {
	var out model.ReconstructionOutput
	if err := b.post(ctx, "/v1/reconstruct", caseRequest{CaseID: caseID, Input: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) AnalyzeScene(ctx context.Context, caseID uuid.UUID, in *model.SceneAnalysisInput) (*model.SceneAnalysisOutput, error) {
	var out model.SceneAnalysisOutput
	if err := b.post(ctx, "/v1/scene-analysis", caseRequest{CaseID: caseID, Input: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) Reason(ctx context.Context, caseID uuid.UUID, scene *model.SceneGraph, in *model.ReasoningInput) (json.RawMessage, error) {
	var out json.RawMessage
	if err := b.post(ctx, "/v1/reason", caseRequest{CaseID: caseID, Input: in, Scene: scene}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *HTTPBackend) ExtractProfile(ctx context.Context, caseID uuid.UUID, in *model.ProfileInput, existing map[string]any) (*model.ProfileOutput, error) {
	req := struct {
		CaseID   uuid.UUID           `json:"case_id"`
		Input    *model.ProfileInput `json:"input"`
		Existing map[string]any      `json:"existing_attributes,omitempty"`
	}{CaseID: caseID, Input: in, Existing: existing}

	var out model.ProfileOutput
	if err := b.post(ctx, "/v1/profile", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) GenerateImage(ctx context.Context, caseID uuid.UUID, in *model.ImageGenInput) (*model.ImageGenOutput, error) {
	var out model.ImageGenOutput
	if err := b.post(ctx, "/v1/imagegen", caseRequest{CaseID: caseID, Input: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) GenerateAsset(ctx context.Context, caseID uuid.UUID, in *model.Asset3DInput) (json.RawMessage, error) {
	var out json.RawMessage
	if err := b.post(ctx, "/v1/asset3d", caseRequest{CaseID: caseID, Input: in}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *HTTPBackend) RenderReplay(ctx context.Context, caseID uuid.UUID, in *model.ReplayInput) (json.RawMessage, error) {
	var out json.RawMessage
	if err := b.post(ctx, "/v1/replay", caseRequest{CaseID: caseID, Input: in}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *HTTPBackend) ExportReport(ctx context.Context, caseID uuid.UUID, scene *model.SceneGraph, in *model.ExportInput) (json.RawMessage, error) {
	var out json.RawMessage
	if err := b.post(ctx, "/v1/export", caseRequest{CaseID: caseID, Input: in, Scene: scene}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
