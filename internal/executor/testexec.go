package executor

import (
	"context"
	"fmt"

	"github.com/jorge-barreto/conclave/internal/pipeline"
	"github.com/jorge-barreto/conclave/internal/store"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

// executeTestExecution implements spec.md §4.4 "Test-execution step".
func (e *Executor) executeTestExecution(ctx context.Context, def *workflow.Definition, phase workflow.Phase, st *workflow.State) (*StepReport, error) {
	switch st.Status {
	case workflow.StatusIdle, workflow.StatusWorking:
		if phase.HasMaxIterations && st.Iteration >= phase.MaxIterations {
			st2, err := e.Store.ApplyUpdate(st.WorkflowID, store.Update{Status: workflow.StatusComplete})
			if err != nil {
				return nil, err
			}
			return &StepReport{State: st2, Message: fmt.Sprintf("Phase %q reached max_iterations; workflow complete.", phase.ID)}, nil
		}
		return e.runTester(ctx, def, phase, st)

	case workflow.StatusVerifying:
		return e.runFixer(ctx, def, phase, st)

	case workflow.StatusCheckpoint:
		return &StepReport{NoOp: true, State: st, Message: checkpointMessage(st)}, nil

	case workflow.StatusComplete:
		return &StepReport{NoOp: true, State: st, Message: "Workflow is complete."}, nil

	default:
		return &StepReport{NoOp: true, State: st, Message: fmt.Sprintf("No action defined for status %q.", st.Status)}, nil
	}
}

func (e *Executor) runTester(ctx context.Context, def *workflow.Definition, phase workflow.Phase, st *workflow.State) (*StepReport, error) {
	ictx := BuildContext(def, st)
	outputPath := resolveOutput(phase, "artifact", defaultArtifactPath(def.OutputDir, phase.ID, st.Iteration), ictx)

	contextFiles := e.existingContextFiles(phase, ictx)
	if prev, ok := latestArtifact(st, st.Iteration-1, func(a workflow.ArtifactRecord) bool { return a.Type == workflow.ArtifactTestResult }); ok {
		contextFiles = append(contextFiles, prev.File)
	}

	prompt := fmt.Sprintf("Run the test suite for workflow %q, iteration %d, and report results.", st.WorkflowID, st.Iteration)

	res, err := e.Pipeline.Invoke(ctx, pipeline.InvokeRequest{
		Agent: phase.Tester, UserPrompt: prompt, ContextFiles: contextFiles,
		OutputPath: outputPath, WorkflowIDForLog: st.WorkflowID,
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		msg := fmt.Sprintf("Tester %q failed: %s", phase.Tester, errMessage(res))
		st2, err := e.Store.PauseAtCheckpoint(st.WorkflowID, msg)
		if err != nil {
			return nil, err
		}
		return &StepReport{State: st2, Message: msg}, nil
	}

	if _, err := e.Store.AddArtifact(st.WorkflowID, workflow.ArtifactRecord{
		Iteration: st.Iteration, Type: workflow.ArtifactTestResult, File: outputPath, CreatedBy: phase.Tester,
	}); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf(
		"Test run %d complete (%s). Choose approve (workflow complete), iterate (run fixer), or reject (abort).",
		st.Iteration, outputPath)
	st2, err := e.Store.PauseAtCheckpoint(st.WorkflowID, msg)
	if err != nil {
		return nil, err
	}
	return &StepReport{State: st2, Message: msg}, nil
}

func (e *Executor) runFixer(ctx context.Context, def *workflow.Definition, phase workflow.Phase, st *workflow.State) (*StepReport, error) {
	var contextFiles []string
	if tr, ok := latestArtifact(st, st.Iteration, func(a workflow.ArtifactRecord) bool { return a.Type == workflow.ArtifactTestResult }); ok {
		contextFiles = append(contextFiles, tr.File)
	}
	if impl, ok := latestArtifact(st, st.Iteration, func(a workflow.ArtifactRecord) bool {
		return a.Type == workflow.ArtifactImplementation || a.Type == workflow.ArtifactPlan
	}); ok {
		contextFiles = append(contextFiles, impl.File)
	}

	ictx := BuildContext(def, st)
	outputPath := resolveOutput(phase, "fixes", defaultArtifactPath(def.OutputDir, "fixes", st.Iteration), ictx)

	prompt := fmt.Sprintf("Fix the issues found in the test run for workflow %q, iteration %d.", st.WorkflowID, st.Iteration)

	res, err := e.Pipeline.Invoke(ctx, pipeline.InvokeRequest{
		Agent: phase.Fixer, UserPrompt: prompt, ContextFiles: contextFiles,
		OutputPath: outputPath, WorkflowIDForLog: st.WorkflowID,
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		msg := fmt.Sprintf("Fixer %q failed: %s", phase.Fixer, errMessage(res))
		st2, err := e.Store.PauseAtCheckpoint(st.WorkflowID, msg)
		if err != nil {
			return nil, err
		}
		return &StepReport{State: st2, Message: msg}, nil
	}

	if _, err := e.Store.AddArtifact(st.WorkflowID, workflow.ArtifactRecord{
		Iteration: st.Iteration, Type: workflow.ArtifactImplementation, File: outputPath, CreatedBy: phase.Fixer,
	}); err != nil {
		return nil, err
	}

	next := st.Iteration + 1
	st2, err := e.Store.ApplyUpdate(st.WorkflowID, store.Update{Iteration: &next, Status: workflow.StatusWorking})
	if err != nil {
		return nil, err
	}
	return &StepReport{State: st2, Message: fmt.Sprintf("Fix applied (%s); advancing to iteration %d.", outputPath, next)}, nil
}

func errMessage(res pipeline.InvokeResult) string {
	if res.Error != nil {
		return res.Error.Message
	}
	return "unknown error"
}
