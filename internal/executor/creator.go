package executor

import (
	"context"
	"fmt"

	"github.com/jorge-barreto/conclave/internal/definition"
	"github.com/jorge-barreto/conclave/internal/pipeline"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

// runCreator implements spec.md §4.4 "Creator step".
func (e *Executor) runCreator(ctx context.Context, def *workflow.Definition, phase workflow.Phase, st *workflow.State) (*StepReport, error) {
	ictx := BuildContext(def, st)
	outputPath := resolveOutput(phase, "artifact", defaultArtifactPath(def.OutputDir, phase.ID, st.Iteration), ictx)

	contextFiles := e.existingContextFiles(phase, ictx)
	for _, fb := range unaddressedFeedback(st, st.Iteration-1) {
		contextFiles = append(contextFiles, fb.FeedbackFile)
	}

	prompt := fmt.Sprintf("Produce the %q artifact for workflow %q, iteration %d.", phase.ID, st.WorkflowID, st.Iteration)

	_, runIdx, err := e.Store.RecordAgentRun(st.WorkflowID, workflow.AgentRunRecord{
		Agent: phase.Creator, Iteration: st.Iteration, ContextFiles: contextFiles, OutputFile: outputPath,
	})
	if err != nil {
		return nil, err
	}

	res, err := e.Pipeline.Invoke(ctx, pipeline.InvokeRequest{
		Agent: phase.Creator, UserPrompt: prompt, ContextFiles: contextFiles,
		OutputPath: outputPath, WorkflowIDForLog: st.WorkflowID,
	})
	if err != nil {
		return nil, err
	}

	errMsg := ""
	if res.Error != nil {
		errMsg = res.Error.Message
	}
	if _, err := e.Store.CompleteAgentRun(st.WorkflowID, runIdx, res.Success, errMsg); err != nil {
		return nil, err
	}

	if !res.Success {
		msg := fmt.Sprintf("Creator %q failed for phase %q: %s", phase.Creator, phase.ID, errMsg)
		st2, err := e.Store.PauseAtCheckpoint(st.WorkflowID, msg)
		if err != nil {
			return nil, err
		}
		return &StepReport{State: st2, Message: msg}, nil
	}

	if _, err := e.Store.AddArtifact(st.WorkflowID, workflow.ArtifactRecord{
		Iteration: st.Iteration, Type: workflow.ArtifactPlan, File: outputPath, CreatedBy: phase.Creator,
	}); err != nil {
		return nil, err
	}

	msg := phase.CheckpointMessage
	if msg == "" {
		msg = fmt.Sprintf("Review %s iteration %d (%s) and choose continue, iterate, approve, or reject.", phase.ID, st.Iteration, outputPath)
	} else {
		msg = definition.Interpolate(msg, ictx)
	}
	st3, err := e.Store.PauseAtCheckpoint(st.WorkflowID, msg)
	if err != nil {
		return nil, err
	}
	return &StepReport{State: st3, Message: msg}, nil
}
