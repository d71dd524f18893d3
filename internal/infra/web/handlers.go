package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
	"crime-scene-platform/internal/usecase"
)

// QueueInspector is the read-only slice of the queue the API exposes.
type QueueInspector interface {
	Len(ctx context.Context, t model.JobType) (int64, error)
	ProcessingLen(ctx context.Context, t model.JobType) (int64, error)
	DLQLen(ctx context.Context, t model.JobType) (int64, error)
}

// --- wire DTOs ---

type jobResponse struct {
	ID            uuid.UUID       `json:"id"`
	CaseID        uuid.UUID       `json:"case_id"`
	Type          model.JobType   `json:"type"`
	Status        model.JobStatus `json:"status"`
	Progress      int             `json:"progress"`
	Output        json.RawMessage `json:"output,omitempty"`
	Error         string          `json:"error,omitempty"`
	RetryCount    int             `json:"retry_count"`
	IdempotentHit bool            `json:"idempotent_replay,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toJobResponse(j *model.Job, replayed bool) jobResponse {
	return jobResponse{
		ID:            j.ID,
		CaseID:        j.CaseID,
		Type:          j.Type,
		Status:        j.Status,
		Progress:      j.Progress,
		Output:        j.Output,
		Error:         j.Error,
		RetryCount:    j.RetryCount,
		IdempotentHit: replayed,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

type commitResponse struct {
	ID             string           `json:"id"`
	CaseID         uuid.UUID        `json:"case_id"`
	ParentCommitID *string          `json:"parent_commit_id,omitempty"`
	BranchID       *uuid.UUID       `json:"branch_id,omitempty"`
	JobID          *uuid.UUID       `json:"job_id,omitempty"`
	Type           model.CommitType `json:"type"`
	Summary        string           `json:"summary"`
	Payload        json.RawMessage  `json:"payload,omitempty"`
	CreatedBy      *uuid.UUID       `json:"created_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

func toCommitResponse(c *model.Commit) commitResponse {
	return commitResponse{
		ID:             c.ID,
		CaseID:         c.CaseID,
		ParentCommitID: c.ParentCommitID,
		BranchID:       c.BranchID,
		JobID:          c.JobID,
		Type:           c.Type,
		Summary:        c.Summary,
		Payload:        c.Payload,
		CreatedBy:      c.CreatedBy,
		CreatedAt:      c.CreatedAt,
	}
}

type branchResponse struct {
	ID           uuid.UUID `json:"id"`
	CaseID       uuid.UUID `json:"case_id"`
	Name         string    `json:"name"`
	BaseCommitID string    `json:"base_commit_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func toBranchResponse(b *model.Branch) branchResponse {
	return branchResponse{
		ID:           b.ID,
		CaseID:       b.CaseID,
		Name:         b.Name,
		BaseCommitID: b.BaseCommitID,
		CreatedAt:    b.CreatedAt,
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrParentCommitNotFound),
		errors.Is(err, domain.ErrBaseCommitNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnsupportedJobType),
		errors.Is(err, domain.ErrSummaryTooLong):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateBranchName),
		errors.Is(err, domain.ErrJobNotCancelable),
		errors.Is(err, domain.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrBrokerUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func caseIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "caseID"))
}

// --- jobs ---

type submitJobRequest struct {
	Type           model.JobType   `json:"type"`
	Input          json.RawMessage `json:"input"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	job, replayed, err := s.jobUC.Submit(r.Context(), caseID, req.Type, req.Input, req.IdempotencyKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusAccepted
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, toJobResponse(job, replayed))
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return
	}
	job, err := s.jobUC.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job, false))
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return
	}
	if err := s.jobUC.Cancel(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	job, err := s.jobUC.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job, false))
}

// --- timeline ---

type appendCommitRequest struct {
	Type      model.CommitType `json:"type"`
	Summary   string           `json:"summary"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
	ParentID  *string          `json:"parent_commit_id,omitempty"`
	BranchID  *uuid.UUID       `json:"branch_id,omitempty"`
	CreatedBy *uuid.UUID       `json:"created_by,omitempty"`
}

func (s *Server) appendCommit(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	var req appendCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	commit, err := s.timelineUC.AppendCommit(r.Context(), usecase.AppendCommitParams{
		CaseID:    caseID,
		Type:      req.Type,
		Summary:   req.Summary,
		Payload:   req.Payload,
		ParentID:  req.ParentID,
		BranchID:  req.BranchID,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommitResponse(commit))
}

func (s *Server) getCommit(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	commit, err := s.timelineUC.GetCommit(r.Context(), caseID, chi.URLParam(r, "commitID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitResponse(commit))
}

func (s *Server) listTimeline(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "before must be RFC 3339"})
			return
		}
		before = &t
	}

	commits, err := s.timelineUC.ListTimeline(r.Context(), caseID, limit, before)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data := make([]commitResponse, 0, len(commits))
	for _, c := range commits {
		data = append(data, toCommitResponse(c))
	}

	// The cursor for the next page is the oldest commit on this one.
	var next *time.Time
	if len(commits) > 0 {
		next = &commits[len(commits)-1].CreatedAt
	}
	writeJSON(w, http.StatusOK, struct {
		Data       []commitResponse `json:"data"`
		NextBefore *time.Time       `json:"next_before,omitempty"`
	}{Data: data, NextBefore: next})
}

func (s *Server) diff(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from and to commit ids are required"})
		return
	}
	d, err := s.timelineUC.Diff(r.Context(), caseID, from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// --- branches ---

type createBranchRequest struct {
	Name         string `json:"name"`
	BaseCommitID string `json:"base_commit_id"`
}

func (s *Server) createBranch(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	var req createBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	branch, err := s.timelineUC.CreateBranch(r.Context(), caseID, req.Name, req.BaseCommitID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBranchResponse(branch))
}

func (s *Server) listBranches(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	branches, err := s.timelineUC.ListBranches(r.Context(), caseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data := make([]branchResponse, 0, len(branches))
	for _, b := range branches {
		data = append(data, toBranchResponse(b))
	}
	writeJSON(w, http.StatusOK, struct {
		Data []branchResponse `json:"data"`
	}{Data: data})
}

func (s *Server) mergeBranch(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	branchID, err := uuid.Parse(chi.URLParam(r, "branchID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch id"})
		return
	}
	commit, err := s.timelineUC.MergeBranch(r.Context(), caseID, branchID, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommitResponse(commit))
}

func (s *Server) switchBranch(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	branchID, err := uuid.Parse(chi.URLParam(r, "branchID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch id"})
		return
	}
	if err := s.snapshotUC.SwitchBranch(r.Context(), caseID, branchID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- snapshots ---

func (s *Server) getScene(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	snap, err := s.snapshotUC.GetScene(r.Context(), caseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		CaseID     uuid.UUID         `json:"case_id"`
		CommitID   string            `json:"commit_id"`
		Scenegraph *model.SceneGraph `json:"scenegraph"`
		UpdatedAt  time.Time         `json:"updated_at"`
	}{snap.CaseID, snap.CommitID, snap.Scenegraph, snap.UpdatedAt})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	prof, err := s.snapshotUC.GetProfile(r.Context(), caseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		CaseID           uuid.UUID      `json:"case_id"`
		CommitID         string         `json:"commit_id"`
		Attributes       map[string]any `json:"attributes"`
		PortraitAssetKey string         `json:"portrait_asset_key,omitempty"`
		UpdatedAt        time.Time      `json:"updated_at"`
	}{prof.CaseID, prof.CommitID, prof.Attributes, prof.PortraitAssetKey, prof.UpdatedAt})
}

func (s *Server) rebuildSnapshot(w http.ResponseWriter, r *http.Request) {
	caseID, err := caseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid case id"})
		return
	}
	if err := s.snapshotUC.Rebuild(r.Context(), caseID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- queues ---

type queueDepthEntry struct {
	Type       model.JobType `json:"type"`
	Main       int64         `json:"main"`
	Processing int64         `json:"processing"`
	DLQ        int64         `json:"dlq"`
}

func (s *Server) queueDepths(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := make([]queueDepthEntry, 0, len(model.AllJobTypes()))
	for _, t := range model.AllJobTypes() {
		entry := queueDepthEntry{Type: t}
		var err error
		if entry.Main, err = s.queues.Len(ctx, t); err != nil {
			s.writeError(w, err)
			return
		}
		if entry.Processing, err = s.queues.ProcessingLen(ctx, t); err != nil {
			s.writeError(w, err)
			return
		}
		if entry.DLQ, err = s.queues.DLQLen(ctx, t); err != nil {
			s.writeError(w, err)
			return
		}
		data = append(data, entry)
	}
	writeJSON(w, http.StatusOK, struct {
		Data []queueDepthEntry `json:"data"`
	}{Data: data})
}
