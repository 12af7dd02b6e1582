package ops

import (
	"context"
	"fmt"

	"github.com/jorge-barreto/conclave/internal/store"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

// ContinueArgs is the "continue" operation's argument bag (spec.md §4.5).
type ContinueArgs struct {
	WorkflowID     string
	Decision       string // continue | iterate | approve
	Feedback       string
	NextPhase      string
	DefinitionFile string
}

// Continue applies an operator decision to a workflow paused at a
// checkpoint (spec.md §4.5). See DESIGN.md for the post-creator
// checkpoint special case this adds on top of the store's literal
// decision table.
func (o *Operations) Continue(ctx context.Context, args ContinueArgs) Response {
	if err := validateDecision(args.Decision); err != nil {
		return errText(err.Error())
	}
	if args.Decision == workflow.DecisionIterate && args.Feedback == "" {
		return errText("feedback is required when decision=iterate")
	}
	if err := validateNextPhase(args.NextPhase); err != nil {
		return errText(err.Error())
	}

	before, err := o.Store.Get(args.WorkflowID)
	if err != nil {
		return errorResponse(err)
	}
	if before.Status != workflow.StatusCheckpoint {
		return errText(fmt.Sprintf("workflow %q is not at a checkpoint (status=%s)", args.WorkflowID, before.Status))
	}

	def, err := o.LoadDefinitionFor(args.DefinitionFile)
	if err != nil {
		return errorResponse(err)
	}
	phase, ok := def.PhaseByID(before.Phase)
	if !ok {
		return errText(fmt.Sprintf("phase %q is not defined in this workflow definition", before.Phase))
	}

	st, err := o.Store.RecordCheckpoint(args.WorkflowID, args.Decision, args.Feedback)
	if err != nil {
		return errorResponse(err)
	}

	switch {
	case args.Decision == workflow.DecisionContinue && phase.Type == workflow.PhaseTypeIterative && !before.HasFeedbackForIteration(before.Iteration):
		// The only iterative-phase checkpoint reachable with no feedback
		// recorded yet for this iteration is the one the creator step
		// just paused at; "continue" there means "go review it".
		st, err = o.Store.ApplyUpdate(args.WorkflowID, store.Update{Status: workflow.StatusReviewing})
		if err != nil {
			return errorResponse(err)
		}

	case args.Decision == workflow.DecisionIterate && phase.Type == workflow.PhaseTypeTestExecution:
		// spec.md §4.5 special case: revert the generic +1 iteration and
		// dispatch the fixer instead of the tester.
		reverted := st.Iteration - 1
		st, err = o.Store.ApplyUpdate(args.WorkflowID, store.Update{Iteration: &reverted, Status: workflow.StatusVerifying})
		if err != nil {
			return errorResponse(err)
		}

	case args.Decision == workflow.DecisionApprove && args.NextPhase != "":
		one := 1
		st, err = o.Store.ApplyUpdate(args.WorkflowID, store.Update{Phase: args.NextPhase, Iteration: &one, Status: workflow.StatusWorking})
		if err != nil {
			return errorResponse(err)
		}
	}

	return text(fmt.Sprintf(
		"Recorded decision %q for workflow %q; now at phase %q, iteration %d, status %q.",
		args.Decision, args.WorkflowID, st.Phase, st.Iteration, st.Status,
	))
}
