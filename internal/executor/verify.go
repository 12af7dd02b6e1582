package executor

import (
	"context"
	"fmt"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/jorge-barreto/conclave/internal/conclaveerr"
	"github.com/jorge-barreto/conclave/internal/pipeline"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

// runVerifiers implements spec.md §4.4 "Verification step": selects the
// latest non-review artifact, pairs each verifier with its reviewer's
// feedback by position, fans out in parallel, records verification
// artifacts, then decides phase completion.
func (e *Executor) runVerifiers(ctx context.Context, def *workflow.Definition, phase workflow.Phase, st *workflow.State) (*StepReport, error) {
	artifact, ok := latestArtifact(st, st.Iteration, func(a workflow.ArtifactRecord) bool {
		return a.Type != workflow.ArtifactReview && a.Type != workflow.ArtifactVerification
	})
	if !ok {
		return nil, conclaveerr.Workflow("missing",
			fmt.Sprintf("no artifact found for phase %q iteration %d to verify", phase.ID, st.Iteration),
			map[string]any{"workflow_id": st.WorkflowID})
	}

	ictx := BuildContext(def, st)
	verificationsDir := resolveOutput(phase, "verifications", path.Join(def.OutputDir, phase.ID, "verifications"), ictx)

	type outcome struct {
		verifier   string
		reviewer   string
		feedback   *workflow.FeedbackRecord
		outputPath string
		res        pipeline.InvokeResult
	}
	outcomes := make([]outcome, len(phase.Verifiers))

	var g errgroup.Group
	for i, verifier := range phase.Verifiers {
		i, verifier := i, verifier
		var reviewer string
		if i < len(phase.Reviewers) {
			reviewer = phase.Reviewers[i]
		}
		var feedback *workflow.FeedbackRecord
		for j := range st.FeedbackHistory {
			f := st.FeedbackHistory[j]
			if f.Iteration == st.Iteration && f.Reviewer == reviewer && !f.Addressed {
				feedback = &f
				break
			}
		}

		g.Go(func() error {
			outputPath := path.Join(verificationsDir, fmt.Sprintf("%s-v%d.md", verifier, st.Iteration))
			contextFiles := []string{artifact.File}
			prompt := fmt.Sprintf("Verify the %s artifact at %s for workflow %q, iteration %d.", phase.ID, artifact.File, st.WorkflowID, st.Iteration)
			if feedback != nil {
				contextFiles = append(contextFiles, feedback.FeedbackFile)
				prompt = fmt.Sprintf("%s\n\nAudit reviewer %q's feedback at %s against the artifact.", prompt, reviewer, feedback.FeedbackFile)
			}
			res, err := e.Pipeline.Invoke(ctx, pipeline.InvokeRequest{
				Agent: verifier, UserPrompt: prompt, ContextFiles: contextFiles,
				OutputPath: outputPath, WorkflowIDForLog: st.WorkflowID,
			})
			if err != nil {
				return err
			}
			outcomes[i] = outcome{verifier: verifier, reviewer: reviewer, feedback: feedback, outputPath: outputPath, res: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	allSucceeded := true
	for _, o := range outcomes {
		if !o.res.Success {
			allSucceeded = false
			log.Warn("verifier invocation failed", "verifier", o.verifier, "phase", phase.ID)
			continue
		}
		if _, err := e.Store.AddArtifact(st.WorkflowID, workflow.ArtifactRecord{
			Iteration: st.Iteration, Type: workflow.ArtifactVerification, File: o.outputPath, CreatedBy: o.verifier,
		}); err != nil {
			return nil, err
		}
		if o.feedback != nil {
			if _, err := e.Store.MarkFeedbackAddressed(st.WorkflowID, st.Iteration, o.reviewer); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case phase.HasMaxIterations && st.Iteration >= phase.MaxIterations:
		log.Warn("forcing phase completion at max_iterations", "phase", phase.ID, "iteration", st.Iteration)
		st2, err := e.advancePhase(def, phase.ID, st.WorkflowID)
		if err != nil {
			return nil, err
		}
		return &StepReport{State: st2, Message: fmt.Sprintf("Phase %q reached max_iterations; advancing.", phase.ID)}, nil

	case allSucceeded && st.Iteration >= phase.MinIterations:
		st2, err := e.advancePhase(def, phase.ID, st.WorkflowID)
		if err != nil {
			return nil, err
		}
		return &StepReport{State: st2, Message: fmt.Sprintf("Phase %q verified and complete; advancing.", phase.ID)}, nil

	default:
		msg := fmt.Sprintf("Phase %s iteration %d verification complete. Choose continue, iterate, approve, or reject.", phase.ID, st.Iteration)
		st2, err := e.Store.PauseAtCheckpoint(st.WorkflowID, msg)
		if err != nil {
			return nil, err
		}
		return &StepReport{State: st2, Message: msg}, nil
	}
}
