package model

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"crime-scene-platform/internal/domain"
)

// MaxSummaryLen bounds the human-readable commit summary.
const MaxSummaryLen = 500

type CommitType string

const (
	CommitTypeUploadScan           CommitType = "upload_scan"
	CommitTypeWitnessStatement     CommitType = "witness_statement"
	CommitTypeManualEdit           CommitType = "manual_edit"
	CommitTypeReconstructionUpdate CommitType = "reconstruction_update"
	CommitTypeSceneAnalysisUpdate  CommitType = "scene_analysis_update"
	CommitTypeProfileUpdate        CommitType = "profile_update"
	CommitTypeReasoningResult      CommitType = "reasoning_result"
	CommitTypeImageGenerated       CommitType = "image_generated"
	CommitTypeAssetGenerated       CommitType = "asset_generated"
	CommitTypeReplayGenerated      CommitType = "replay_generated"
	CommitTypeExportReport         CommitType = "export_report"
	CommitTypeBranchMerge          CommitType = "branch_merge"
)

func (t CommitType) IsValid() bool {
	switch t {
	case CommitTypeUploadScan, CommitTypeWitnessStatement, CommitTypeManualEdit,
		CommitTypeReconstructionUpdate, CommitTypeSceneAnalysisUpdate,
		CommitTypeProfileUpdate, CommitTypeReasoningResult,
		CommitTypeImageGenerated, CommitTypeAssetGenerated,
		CommitTypeReplayGenerated, CommitTypeExportReport, CommitTypeBranchMerge:
		return true
	}
	return false
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewCommitID returns a ULID. Commit ids sort by creation time, which keeps
// timeline listings stable, but causal order is always the parent chain.
func NewCommitID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// Commit is one immutable, parent-linked fact about a case. Commits are
// never updated or deleted.
type Commit struct {
	ID             string
	CaseID         uuid.UUID
	ParentCommitID *string    // nil only for the first commit of a case
	BranchID       *uuid.UUID // nil means main line
	JobID          *uuid.UUID // set for commits produced by a job; unique per job
	Type           CommitType
	Summary        string
	Payload        json.RawMessage
	CreatedBy      *uuid.UUID
	CreatedAt      time.Time
}

func NewCommit(caseID uuid.UUID, commitType CommitType, summary string, payload json.RawMessage) (*Commit, error) {
	if caseID == uuid.Nil {
		return nil, fmt.Errorf("%w: case id is required", domain.ErrInvalidArgument)
	}
	if !commitType.IsValid() {
		return nil, fmt.Errorf("%w: commit type %q", domain.ErrInvalidArgument, commitType)
	}
	if summary == "" {
		return nil, fmt.Errorf("%w: summary is required", domain.ErrInvalidArgument)
	}
	if len(summary) > MaxSummaryLen {
		return nil, domain.ErrSummaryTooLong
	}
	return &Commit{
		ID:        NewCommitID(),
		CaseID:    caseID,
		Type:      commitType,
		Summary:   summary,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (c *Commit) SetParent(parentID string) { c.ParentCommitID = &parentID }

func (c *Commit) SetBranch(branchID uuid.UUID) { c.BranchID = &branchID }

func (c *Commit) SetJob(jobID uuid.UUID) { c.JobID = &jobID }

// Branch is a named fork point. Its effective history is the shared prefix
// up to BaseCommitID plus every commit appended with this branch id.
type Branch struct {
	ID           uuid.UUID
	CaseID       uuid.UUID
	Name         string
	BaseCommitID string
	CreatedAt    time.Time
}

func NewBranch(caseID uuid.UUID, name, baseCommitID string) (*Branch, error) {
	if caseID == uuid.Nil {
		return nil, fmt.Errorf("%w: case id is required", domain.ErrInvalidArgument)
	}
	if name == "" || len(name) > 100 {
		return nil, fmt.Errorf("%w: branch name must be 1-100 chars", domain.ErrInvalidArgument)
	}
	if baseCommitID == "" {
		return nil, fmt.Errorf("%w: base commit id is required", domain.ErrInvalidArgument)
	}
	return &Branch{
		ID:           uuid.New(),
		CaseID:       caseID,
		Name:         name,
		BaseCommitID: baseCommitID,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
