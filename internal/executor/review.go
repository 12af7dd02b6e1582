package executor

import (
	"context"
	"fmt"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/jorge-barreto/conclave/internal/conclaveerr"
	"github.com/jorge-barreto/conclave/internal/pipeline"
	"github.com/jorge-barreto/conclave/internal/store"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

// runReviewers implements spec.md §4.4 "Review step": selects the
// latest artifact for the current iteration, fans reviewers out in
// parallel, records feedback, and transitions to verifying.
func (e *Executor) runReviewers(ctx context.Context, def *workflow.Definition, phase workflow.Phase, st *workflow.State) (*StepReport, error) {
	artifact, ok := latestArtifact(st, st.Iteration, func(workflow.ArtifactRecord) bool { return true })
	if !ok {
		return nil, conclaveerr.Workflow("missing",
			fmt.Sprintf("no artifact found for phase %q iteration %d to review", phase.ID, st.Iteration),
			map[string]any{"workflow_id": st.WorkflowID})
	}

	ictx := BuildContext(def, st)
	reviewsDir := resolveOutput(phase, "reviews", path.Join(def.OutputDir, phase.ID, "reviews"), ictx)

	type outcome struct {
		reviewer   string
		outputPath string
		res        pipeline.InvokeResult
	}
	outcomes := make([]outcome, len(phase.Reviewers))

	var g errgroup.Group
	for i, reviewer := range phase.Reviewers {
		i, reviewer := i, reviewer
		g.Go(func() error {
			outputPath := path.Join(reviewsDir, fmt.Sprintf("%s-v%d.md", reviewer, st.Iteration))
			prompt := fmt.Sprintf("Review the %s artifact at %s for workflow %q, iteration %d.", phase.ID, artifact.File, st.WorkflowID, st.Iteration)
			res, err := e.Pipeline.Invoke(ctx, pipeline.InvokeRequest{
				Agent: reviewer, UserPrompt: prompt, ContextFiles: []string{artifact.File},
				OutputPath: outputPath, WorkflowIDForLog: st.WorkflowID,
			})
			if err != nil {
				return err
			}
			outcomes[i] = outcome{reviewer: reviewer, outputPath: outputPath, res: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var recorded []string
	for _, o := range outcomes {
		if !o.res.Success {
			log.Warn("reviewer invocation failed", "reviewer", o.reviewer, "phase", phase.ID)
			continue
		}
		if _, err := e.Store.AddFeedback(st.WorkflowID, workflow.FeedbackRecord{
			Iteration: st.Iteration, Reviewer: o.reviewer, FeedbackFile: o.outputPath,
		}); err != nil {
			return nil, err
		}
		recorded = append(recorded, o.reviewer)
	}

	st2, err := e.Store.ApplyUpdate(st.WorkflowID, store.Update{Status: workflow.StatusVerifying})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Recorded feedback from %d of %d reviewers for %s iteration %d.", len(recorded), len(phase.Reviewers), phase.ID, st.Iteration)
	return &StepReport{State: st2, Message: msg}, nil
}
