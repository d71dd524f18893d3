package model

import (
	"time"

	"github.com/google/uuid"
)

// The platform stores scene graphs and suspect profiles as versioned
// payloads; it never interprets their forensic meaning. Only the identity
// and merge behavior of the nested collections matter here.

// SceneGraph is the materialized world state of a case.
type SceneGraph struct {
	Version  string         `json:"version"`
	Bounds   BoundingBox    `json:"bounds"`
	Objects  []SceneObject  `json:"objects"`
	Evidence []EvidenceCard `json:"evidence"`
}

func NewEmptySceneGraph() *SceneGraph {
	return &SceneGraph{
		Version:  "1",
		Objects:  []SceneObject{},
		Evidence: []EvidenceCard{},
	}
}

// SceneObject is an opaque entity in the scene, merged by ID.
type SceneObject struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Pose       Pose           `json:"pose"`
	State      string         `json:"state"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type Pose struct {
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"`
}

type BoundingBox struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// EvidenceCard is an opaque evidence record, merged by ID.
type EvidenceCard struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// SceneSnapshot is the cached projection of the commit chain for a case.
// It is always rebuildable from the log; CommitID records the head it was
// derived from.
type SceneSnapshot struct {
	CaseID     uuid.UUID
	CommitID   string
	Scenegraph *SceneGraph
	UpdatedAt  time.Time
}

// SuspectProfile is the second materialized view: merged suspect
// attributes plus the portrait asset produced by image generation.
type SuspectProfile struct {
	CaseID           uuid.UUID
	CommitID         string
	Attributes       map[string]any
	PortraitAssetKey string
	UpdatedAt        time.Time
}
