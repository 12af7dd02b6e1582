// Package executor implements the Workflow Executor (C4): the phase
// state machine that consumes a workflow.Definition and the current
// workflow.State, decides the next step, fans out to the Agent
// Invocation Pipeline, records artifacts and feedback through the
// Workflow State Store, and transitions status.
package executor

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/spf13/afero"

	"github.com/jorge-barreto/conclave/internal/conclaveerr"
	"github.com/jorge-barreto/conclave/internal/definition"
	"github.com/jorge-barreto/conclave/internal/logging"
	"github.com/jorge-barreto/conclave/internal/pipeline"
	"github.com/jorge-barreto/conclave/internal/store"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

var log = logging.New("executor")

// Executor is the C4 Workflow Executor.
type Executor struct {
	Store    *store.Store
	Pipeline *pipeline.Pipeline
	Fs       afero.Fs
}

// New constructs an Executor.
func New(st *store.Store, pl *pipeline.Pipeline, fs afero.Fs) *Executor {
	return &Executor{Store: st, Pipeline: pl, Fs: fs}
}

// StepReport is a textual and structured account of one execute_step
// call, enough for the Operation Surface to render a response.
type StepReport struct {
	Message string
	State   *workflow.State
	NoOp    bool
}

// StartWorkflow creates state for id at def's first phase (spec.md §4.4
// "Start"). Fails if the definition has zero phases.
func (e *Executor) StartWorkflow(def *workflow.Definition, id, inputFile string) (*workflow.State, error) {
	if len(def.Phases) == 0 {
		return nil, conclaveerr.Workflow("missing", "workflow definition has no phases", map[string]any{"workflow_id": id})
	}
	st, err := e.Store.Create(id, def.Phases[0].ID)
	if err != nil {
		return nil, err
	}
	if inputFile == "" {
		return st, nil
	}
	return e.Store.Mutate(id, func(s *workflow.State) error {
		s.CurrentArtifact = inputFile
		return nil
	})
}

// ExecuteStep computes and performs the next transition purely from the
// current state and the matching phase definition (spec.md §4.4
// dispatch table).
func (e *Executor) ExecuteStep(ctx context.Context, def *workflow.Definition, id string) (*StepReport, error) {
	st, err := e.Store.Get(id)
	if err != nil {
		return nil, err
	}
	phase, ok := def.PhaseByID(st.Phase)
	if !ok {
		return nil, conclaveerr.Workflow("illegal",
			fmt.Sprintf("workflow is at phase %q, which is not defined in this workflow definition", st.Phase),
			map[string]any{"workflow_id": id, "phase": st.Phase})
	}

	switch phase.Type {
	case workflow.PhaseTypeIterative:
		return e.executeIterative(ctx, def, phase, st)
	case workflow.PhaseTypeTestExecution:
		return e.executeTestExecution(ctx, def, phase, st)
	default:
		return nil, conclaveerr.Workflow("illegal", fmt.Sprintf("unknown phase type %q", phase.Type), nil)
	}
}

func (e *Executor) executeIterative(ctx context.Context, def *workflow.Definition, phase workflow.Phase, st *workflow.State) (*StepReport, error) {
	switch st.Status {
	case workflow.StatusIdle, workflow.StatusWorking:
		return e.runCreator(ctx, def, phase, st)
	case workflow.StatusCheckpoint:
		return &StepReport{NoOp: true, State: st, Message: checkpointMessage(st)}, nil
	case workflow.StatusReviewing:
		return e.runReviewers(ctx, def, phase, st)
	case workflow.StatusVerifying:
		return e.runVerifiers(ctx, def, phase, st)
	case workflow.StatusComplete:
		return &StepReport{NoOp: true, State: st, Message: fmt.Sprintf("Phase %q is complete.", phase.ID)}, nil
	default:
		return &StepReport{NoOp: true, State: st, Message: fmt.Sprintf("No action defined for status %q.", st.Status)}, nil
	}
}

func checkpointMessage(st *workflow.State) string {
	if st.CheckpointMessage != "" {
		return st.CheckpointMessage
	}
	return fmt.Sprintf("Workflow %q is paused at a checkpoint (iteration %d).", st.WorkflowID, st.Iteration)
}

// advancePhase moves the workflow to the phase after currentPhaseID,
// resetting iteration to 1, or completes the workflow if currentPhaseID
// was the last phase.
func (e *Executor) advancePhase(def *workflow.Definition, currentPhaseID, id string) (*workflow.State, error) {
	idx := def.PhaseIndex(currentPhaseID)
	if idx < 0 || idx+1 >= len(def.Phases) {
		return e.Store.ApplyUpdate(id, store.Update{Status: workflow.StatusComplete})
	}
	next := def.Phases[idx+1]
	one := 1
	return e.Store.ApplyUpdate(id, store.Update{Phase: next.ID, Iteration: &one, Status: workflow.StatusWorking})
}

// latestArtifact returns the artifact with the highest CreatedAt among
// those matching filter, for the given iteration.
func latestArtifact(st *workflow.State, iteration int, filter func(workflow.ArtifactRecord) bool) (workflow.ArtifactRecord, bool) {
	var best workflow.ArtifactRecord
	found := false
	for _, a := range st.Artifacts {
		if a.Iteration != iteration || !filter(a) {
			continue
		}
		if !found || a.CreatedAt.After(best.CreatedAt) {
			best = a
			found = true
		}
	}
	return best, found
}

// unaddressedFeedback returns every FeedbackRecord for iteration that
// has not yet been addressed.
func unaddressedFeedback(st *workflow.State, iteration int) []workflow.FeedbackRecord {
	var out []workflow.FeedbackRecord
	for _, f := range st.FeedbackHistory {
		if f.Iteration == iteration && !f.Addressed {
			out = append(out, f)
		}
	}
	return out
}

// defaultArtifactPath builds "<output_dir>/<phase_id>/<phase_id>-v<iter>.md".
func defaultArtifactPath(outputDir, phaseID string, iteration int) string {
	return path.Join(outputDir, phaseID, fmt.Sprintf("%s-v%d.md", phaseID, iteration))
}

// resolveOutput interpolates phase.Outputs[key] against ctx if present,
// else falls back to def.
func resolveOutput(phase workflow.Phase, key, fallback string, ctx *definition.Context) string {
	if phase.Outputs != nil {
		if tmpl, ok := phase.Outputs[key]; ok && tmpl != "" {
			return definition.Interpolate(tmpl, ctx)
		}
	}
	return definition.Interpolate(fallback, ctx)
}

// existingContextFiles resolves phase.Context templates and keeps only
// the ones that currently exist on disk (spec.md §4.4 "Creator step").
func (e *Executor) existingContextFiles(phase workflow.Phase, ctx *definition.Context) []string {
	var out []string
	for _, tmpl := range phase.Context {
		resolved := definition.Interpolate(tmpl, ctx)
		if exists, err := afero.Exists(e.Fs, resolved); err == nil && exists {
			out = append(out, resolved)
		}
	}
	return out
}

func timestamp() string {
	return time.Now().UTC().Format("20060102T150405Z")
}
