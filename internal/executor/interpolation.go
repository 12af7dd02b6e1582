package executor

import (
	"path/filepath"
	"strings"

	"github.com/jorge-barreto/conclave/internal/definition"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

// BuildContext assembles the InterpolationContext of spec.md §4.4 by
// walking def's variables plus st's persisted artifacts and feedback.
func BuildContext(def *workflow.Definition, st *workflow.State) *definition.Context {
	ctx := &definition.Context{
		Variables: def.Variables,
		Iteration: st.Iteration,
		Phase:     st.Phase,
		Phases:    map[string]definition.PhaseOutputs{},
	}

	for _, a := range st.Artifacts {
		phaseID, ok := attributeArtifact(def, a)
		if !ok {
			continue
		}
		out := ctx.Phases[phaseID]
		if out == nil {
			out = definition.PhaseOutputs{}
		}
		switch a.Type {
		case workflow.ArtifactPlan, workflow.ArtifactImplementation:
			out["artifact"] = a.File
		case workflow.ArtifactReview:
			out["reviews"] = filepath.Dir(a.File)
		case workflow.ArtifactVerification:
			out["verifications"] = filepath.Dir(a.File)
		case workflow.ArtifactTestResult:
			out["artifact"] = a.File
			out["test_results"] = filepath.Dir(a.File)
		}
		ctx.Phases[phaseID] = out
	}

	for _, f := range st.FeedbackHistory {
		phaseID, ok := phaseForReviewer(def, f.Reviewer)
		if !ok {
			continue
		}
		out := ctx.Phases[phaseID]
		if out == nil {
			out = definition.PhaseOutputs{}
		}
		out["reviews"] = filepath.Dir(f.FeedbackFile)
		ctx.Phases[phaseID] = out
	}

	return ctx
}

// attributeArtifact implements spec.md §4.4's artifact-to-phase
// attribution heuristic: path containment first (strongest signal,
// since the default templates embed the phase id in the path), then a
// type-driven fallback for definitions whose output paths don't.
func attributeArtifact(def *workflow.Definition, a workflow.ArtifactRecord) (string, bool) {
	for _, p := range def.Phases {
		if strings.Contains(a.File, "/"+p.ID+"/") || strings.Contains(a.File, `\`+p.ID+`\`) {
			return p.ID, true
		}
	}

	switch a.Type {
	case workflow.ArtifactTestResult:
		return workflow.PhaseTestingExec, true
	case workflow.ArtifactReview, workflow.ArtifactVerification:
		return phaseForReviewer(def, a.CreatedBy)
	case workflow.ArtifactImplementation:
		return workflow.PhaseImplementation, true
	case workflow.ArtifactPlan:
		switch {
		case strings.HasPrefix(a.CreatedBy, "plan-"):
			return workflow.PhasePlanning, true
		case strings.HasPrefix(a.CreatedBy, "test-"):
			return workflow.PhaseTestingSetup, true
		default:
			return workflow.PhaseImplementation, true
		}
	}
	return "", false
}

// phaseForReviewer finds whichever phase's reviewers or verifiers list
// includes name.
func phaseForReviewer(def *workflow.Definition, name string) (string, bool) {
	for _, p := range def.Phases {
		for _, r := range p.Reviewers {
			if r == name {
				return p.ID, true
			}
		}
		for _, v := range p.Verifiers {
			if v == name {
				return p.ID, true
			}
		}
	}
	return "", false
}
