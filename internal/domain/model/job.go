package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain"
)

type JobType string

const (
	JobTypeReconstruction JobType = "reconstruction"
	JobTypeImageGen       JobType = "imagegen"
	JobTypeReasoning      JobType = "reasoning"
	JobTypeProfile        JobType = "profile"
	JobTypeExport         JobType = "export"
	JobTypeReplay         JobType = "replay"
	JobTypeAsset3D        JobType = "asset3d"
	JobTypeSceneAnalysis  JobType = "scene_analysis"
)

// AllJobTypes lists every known job type; used by the recovery sweep and
// the queue depth collector.
func AllJobTypes() []JobType {
	return []JobType{
		JobTypeReconstruction, JobTypeImageGen, JobTypeReasoning,
		JobTypeProfile, JobTypeExport, JobTypeReplay,
		JobTypeAsset3D, JobTypeSceneAnalysis,
	}
}

func (t JobType) IsValid() bool {
	switch t {
	case JobTypeReconstruction, JobTypeImageGen, JobTypeReasoning,
		JobTypeProfile, JobTypeExport, JobTypeReplay,
		JobTypeAsset3D, JobTypeSceneAnalysis:
		return true
	}
	return false
}

type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusDone, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed || s == JobStatusCanceled
}

// Job is one unit of asynchronous work tied to a case. Terminal jobs are
// kept forever for audit; nothing ever deletes a job row.
type Job struct {
	ID             uuid.UUID
	CaseID         uuid.UUID
	Type           JobType
	Status         JobStatus
	Progress       int
	Input          json.RawMessage
	Output         json.RawMessage
	Error          string
	IdempotencyKey string
	RetryCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewJob(caseID uuid.UUID, jobType JobType, input json.RawMessage) (*Job, error) {
	if caseID == uuid.Nil {
		return nil, fmt.Errorf("%w: case id is required", domain.ErrInvalidArgument)
	}
	if !jobType.IsValid() {
		return nil, fmt.Errorf("%w: job type %q", domain.ErrInvalidArgument, jobType)
	}
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		CaseID:    caseID,
		Type:      jobType,
		Status:    JobStatusQueued,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MarkRunning moves queued -> running. Transitions only go forward;
// the single exception is the retry path handled by MarkRequeued.
func (j *Job) MarkRunning() error {
	if j.Status != JobStatusQueued {
		return fmt.Errorf("%w: %s -> running", domain.ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusRunning
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// SetProgress enforces monotonic non-decreasing progress while running.
func (j *Job) SetProgress(p int) error {
	if p < 0 || p > 100 {
		return fmt.Errorf("%w: progress %d out of range", domain.ErrInvalidArgument, p)
	}
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: progress only moves while running", domain.ErrInvalidTransition)
	}
	if p < j.Progress {
		return nil
	}
	j.Progress = p
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (j *Job) MarkDone(output json.RawMessage) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: %s -> done", domain.ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusDone
	j.Progress = 100
	j.Output = output
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (j *Job) MarkFailed(errMsg string) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: %s -> failed", domain.ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusFailed
	j.Error = errMsg
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkRequeued returns a failed attempt to the queue for another delivery.
// Retried messages keep their error text so operators can see the last cause.
func (j *Job) MarkRequeued(errMsg string) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: %s -> queued", domain.ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusQueued
	j.Progress = 0
	j.Error = errMsg
	j.RetryCount++
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCanceled is cooperative: an in-flight Process call is not interrupted,
// its result is simply never committed.
func (j *Job) MarkCanceled() error {
	if j.Status.IsTerminal() {
		return domain.ErrJobNotCancelable
	}
	j.Status = JobStatusCanceled
	j.UpdatedAt = time.Now().UTC()
	return nil
}
