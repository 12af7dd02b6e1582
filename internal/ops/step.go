package ops

import (
	"context"
	"fmt"

	"github.com/jorge-barreto/conclave/internal/definition"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

// StepArgs is the "step" operation's argument bag (spec.md §4.5).
type StepArgs struct {
	WorkflowID     string
	DefinitionFile string
}

// Step advances id by one transition. Short-circuits with a friendly
// message, without touching the Executor, when status is checkpoint,
// complete, or rejected.
func (o *Operations) Step(ctx context.Context, args StepArgs) Response {
	st, err := o.Store.Get(args.WorkflowID)
	if err != nil {
		return errorResponse(err)
	}

	switch st.Status {
	case workflow.StatusCheckpoint:
		msg := st.CheckpointMessage
		if msg == "" {
			msg = "paused at a checkpoint"
		}
		return text(fmt.Sprintf("Workflow %q is %s. Call continue/reject to proceed.", args.WorkflowID, msg))
	case workflow.StatusComplete:
		return text(fmt.Sprintf("Workflow %q is already complete.", args.WorkflowID))
	case workflow.StatusRejected:
		return text(fmt.Sprintf("Workflow %q was rejected and is not running.", args.WorkflowID))
	}

	def, err := o.LoadDefinitionFor(args.DefinitionFile)
	if err != nil {
		return errorResponse(err)
	}

	report, err := o.Executor.ExecuteStep(ctx, def, args.WorkflowID)
	if err != nil {
		return errorResponse(err)
	}
	return text(report.Message)
}

// LoadDefinitionFor resolves a definition from an explicit path, or
// falls back to the canonical default when none was given (spec.md
// §4.5: "later steps may reconstruct defaults"). Exported so other
// callers needing the same phase/definition context (e.g. the doctor
// command) don't duplicate this fallback.
func (o *Operations) LoadDefinitionFor(defFile string) (*workflow.Definition, error) {
	if defFile == "" {
		return definition.Default(), nil
	}
	r := definition.LoadFromFile(defFile)
	if !r.Success {
		return nil, fmt.Errorf("loading workflow definition: %s", r.Error)
	}
	return r.Definition, nil
}
