package usecase

import (
	"encoding/json"
	"fmt"

	"crime-scene-platform/internal/domain"
	"crime-scene-platform/internal/domain/model"
)

// The projector is the pure half of snapshot materialization: given a commit
// chain it folds every payload into a scene graph and a suspect profile.
// Replaying the same chain always yields the same result.

// scenePatch is the payload shape of commits that modify the scene graph.
// Result commits carry a full scenegraph; manual edits carry delta sets.
type scenePatch struct {
	Scenegraph        *model.SceneGraph    `json:"scenegraph,omitempty"`
	UpsertObjects     []model.SceneObject  `json:"upsert_objects,omitempty"`
	RemoveObjectIDs   []string             `json:"remove_object_ids,omitempty"`
	UpsertEvidence    []model.EvidenceCard `json:"upsert_evidence,omitempty"`
	RemoveEvidenceIDs []string             `json:"remove_evidence_ids,omitempty"`
}

// profilePatch is the payload shape of profile-affecting commits.
type profilePatch struct {
	Attributes       map[string]any `json:"attributes,omitempty"`
	PortraitAssetKey string         `json:"portrait_asset_key,omitempty"`
}

// projection is the folded state of a chain.
type projection struct {
	Scene            *model.SceneGraph
	Attributes       map[string]any
	PortraitAssetKey string
}

// replayChain folds commits oldest-first into a projection. The chain is
// expected to come from CommitRepository.Chain, which already guards against
// corruption; a duplicate id here is a hard error regardless.
func replayChain(commits []*model.Commit) (*projection, error) {
	p := &projection{
		Scene:      model.NewEmptySceneGraph(),
		Attributes: map[string]any{},
	}
	seen := make(map[string]struct{}, len(commits))
	for _, c := range commits {
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: commit %s seen twice", domain.ErrCommitChainCorrupt, c.ID)
		}
		seen[c.ID] = struct{}{}
		if err := applyCommit(p, c); err != nil {
			return nil, fmt.Errorf("apply commit %s: %w", c.ID, err)
		}
	}
	return p, nil
}

func applyCommit(p *projection, c *model.Commit) error {
	if len(c.Payload) == 0 {
		return nil
	}

	switch c.Type {
	case model.CommitTypeReconstructionUpdate, model.CommitTypeSceneAnalysisUpdate,
		model.CommitTypeManualEdit, model.CommitTypeBranchMerge:
		var patch scenePatch
		if err := json.Unmarshal(c.Payload, &patch); err != nil {
			return err
		}
		applyScenePatch(p.Scene, &patch)

	case model.CommitTypeProfileUpdate, model.CommitTypeReasoningResult:
		var patch profilePatch
		if err := json.Unmarshal(c.Payload, &patch); err != nil {
			return err
		}
		// Attribute-level last-writer-wins merge.
		for k, v := range patch.Attributes {
			p.Attributes[k] = v
		}
		if patch.PortraitAssetKey != "" {
			p.PortraitAssetKey = patch.PortraitAssetKey
		}

	case model.CommitTypeImageGenerated:
		var patch profilePatch
		if err := json.Unmarshal(c.Payload, &patch); err != nil {
			return err
		}
		if patch.PortraitAssetKey != "" {
			p.PortraitAssetKey = patch.PortraitAssetKey
		}

	default:
		// upload_scan, witness_statement, export_report, replay_generated,
		// asset_generated: recorded facts with no materialized effect.
	}
	return nil
}

// applyScenePatch merges a patch into the scene. A full scenegraph in the
// patch wins top-level fields last-writer style; objects and evidence are
// merged by id.
func applyScenePatch(scene *model.SceneGraph, patch *scenePatch) {
	if g := patch.Scenegraph; g != nil {
		if g.Version != "" {
			scene.Version = g.Version
		}
		scene.Bounds = g.Bounds
		for i := range g.Objects {
			upsertObject(scene, g.Objects[i])
		}
		for i := range g.Evidence {
			upsertEvidence(scene, g.Evidence[i])
		}
	}
	for i := range patch.UpsertObjects {
		upsertObject(scene, patch.UpsertObjects[i])
	}
	for _, id := range patch.RemoveObjectIDs {
		removeObject(scene, id)
	}
	for i := range patch.UpsertEvidence {
		upsertEvidence(scene, patch.UpsertEvidence[i])
	}
	for _, id := range patch.RemoveEvidenceIDs {
		removeEvidence(scene, id)
	}
}

func upsertObject(scene *model.SceneGraph, obj model.SceneObject) {
	for i := range scene.Objects {
		if scene.Objects[i].ID == obj.ID {
			scene.Objects[i] = obj
			return
		}
	}
	scene.Objects = append(scene.Objects, obj)
}

func removeObject(scene *model.SceneGraph, id string) {
	for i := range scene.Objects {
		if scene.Objects[i].ID == id {
			scene.Objects = append(scene.Objects[:i], scene.Objects[i+1:]...)
			return
		}
	}
}

func upsertEvidence(scene *model.SceneGraph, card model.EvidenceCard) {
	for i := range scene.Evidence {
		if scene.Evidence[i].ID == card.ID {
			scene.Evidence[i] = card
			return
		}
	}
	scene.Evidence = append(scene.Evidence, card)
}

func removeEvidence(scene *model.SceneGraph, id string) {
	for i := range scene.Evidence {
		if scene.Evidence[i].ID == id {
			scene.Evidence = append(scene.Evidence[:i], scene.Evidence[i+1:]...)
			return
		}
	}
}

// SceneDiff is the object/evidence delta between two projected commits.
type SceneDiff struct {
	FromCommitID       string               `json:"from_commit_id"`
	ToCommitID         string               `json:"to_commit_id"`
	AddedObjects       []model.SceneObject  `json:"added_objects"`
	ChangedObjects     []model.SceneObject  `json:"changed_objects"`
	RemovedObjectIDs   []string             `json:"removed_object_ids"`
	AddedEvidence      []model.EvidenceCard `json:"added_evidence"`
	RemovedEvidenceIDs []string             `json:"removed_evidence_ids"`
}

func diffScenes(from, to *model.SceneGraph) *SceneDiff {
	d := &SceneDiff{
		AddedObjects:       []model.SceneObject{},
		ChangedObjects:     []model.SceneObject{},
		RemovedObjectIDs:   []string{},
		AddedEvidence:      []model.EvidenceCard{},
		RemovedEvidenceIDs: []string{},
	}

	fromObjs := make(map[string]model.SceneObject, len(from.Objects))
	for _, o := range from.Objects {
		fromObjs[o.ID] = o
	}
	for _, o := range to.Objects {
		prev, ok := fromObjs[o.ID]
		switch {
		case !ok:
			d.AddedObjects = append(d.AddedObjects, o)
		case !objectsEqual(prev, o):
			d.ChangedObjects = append(d.ChangedObjects, o)
		}
		delete(fromObjs, o.ID)
	}
	for id := range fromObjs {
		d.RemovedObjectIDs = append(d.RemovedObjectIDs, id)
	}

	fromCards := make(map[string]model.EvidenceCard, len(from.Evidence))
	for _, e := range from.Evidence {
		fromCards[e.ID] = e
	}
	for _, e := range to.Evidence {
		if _, ok := fromCards[e.ID]; !ok {
			d.AddedEvidence = append(d.AddedEvidence, e)
		}
		delete(fromCards, e.ID)
	}
	for id := range fromCards {
		d.RemovedEvidenceIDs = append(d.RemovedEvidenceIDs, id)
	}
	return d
}

func objectsEqual(a, b model.SceneObject) bool {
	// Metadata is opaque; byte comparison of the JSON form is good enough for
	// a human-facing diff.
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}
