package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/jorge-barreto/conclave/internal/store"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

// RejectArgs is the "reject" operation's argument bag (spec.md §4.5).
type RejectArgs struct {
	WorkflowID      string
	Reason          string
	RequiredChanges []string
	RestartFrom     string
}

// Reject records a reject decision. If RestartFrom is given, resets
// phase/iteration/status to restart the workflow from that phase (or
// the current phase, if "current").
func (o *Operations) Reject(ctx context.Context, args RejectArgs) Response {
	if err := validateRejectReason(args.Reason); err != nil {
		return errText(err.Error())
	}
	if err := validateRestartFrom(args.RestartFrom); err != nil {
		return errText(err.Error())
	}

	before, err := o.Store.Get(args.WorkflowID)
	if err != nil {
		return errorResponse(err)
	}
	if before.Status != workflow.StatusCheckpoint {
		return errText(fmt.Sprintf("workflow %q is not at a checkpoint (status=%s)", args.WorkflowID, before.Status))
	}

	feedback := args.Reason
	if len(args.RequiredChanges) > 0 {
		var sb strings.Builder
		sb.WriteString(args.Reason)
		sb.WriteString("\n\nRequired changes:\n")
		for _, c := range args.RequiredChanges {
			sb.WriteString("- [ ] ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
		feedback = sb.String()
	}

	st, err := o.Store.RecordCheckpoint(args.WorkflowID, workflow.DecisionReject, feedback)
	if err != nil {
		return errorResponse(err)
	}

	if args.RestartFrom != "" {
		target := args.RestartFrom
		if target == workflow.RestartCurrent {
			target = before.Phase
		}
		one := 1
		st, err = o.Store.ApplyUpdate(args.WorkflowID, store.Update{Phase: target, Iteration: &one, Status: workflow.StatusIdle})
		if err != nil {
			return errorResponse(err)
		}
		return text(fmt.Sprintf("Rejected workflow %q; restarting from phase %q.", args.WorkflowID, target))
	}

	return text(fmt.Sprintf("Rejected workflow %q at phase %q, iteration %d.", args.WorkflowID, st.Phase, st.Iteration))
}
