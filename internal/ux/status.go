package ux

import (
	"fmt"

	"github.com/jorge-barreto/conclave/internal/workflow"
)

// RenderState prints a colored terminal summary of a workflow's state,
// generalizing the teacher's ticket-status display to conclave's
// phase/iteration/status model.
func RenderState(st *workflow.State) {
	fmt.Printf("%sWorkflow:%s  %s\n", Bold, Reset, st.WorkflowID)

	switch st.Status {
	case workflow.StatusComplete:
		fmt.Printf("%sState:%s     %s%scomplete%s\n", Bold, Reset, Green, Bold, Reset)
	case workflow.StatusRejected:
		fmt.Printf("%sState:%s     %s%srejected%s\n", Bold, Reset, Red, Bold, Reset)
	default:
		fmt.Printf("%sState:%s     %s, iteration %d — %s\n", Bold, Reset, st.Phase, st.Iteration, st.Status)
	}

	if st.Status == workflow.StatusCheckpoint && st.CheckpointMessage != "" {
		fmt.Printf("\n%sCheckpoint:%s %s%s%s\n", Bold, Reset, Yellow, st.CheckpointMessage, Reset)
	}

	if st.CurrentArtifact != "" {
		fmt.Printf("\n%sCurrent artifact:%s %s\n", Bold, Reset, st.CurrentArtifact)
	}

	fmt.Printf("\n%sArtifacts:%s\n", Bold, Reset)
	if len(st.Artifacts) == 0 {
		fmt.Printf("  %s(none)%s\n", Dim, Reset)
	}
	start := 0
	if len(st.Artifacts) > 5 {
		start = len(st.Artifacts) - 5
	}
	for _, a := range st.Artifacts[start:] {
		fmt.Printf("  %s%d%s  %-10s %s\n", Dim, a.Iteration, Reset, a.Type, a.File)
	}

	unaddressed := 0
	for _, f := range st.FeedbackHistory {
		if !f.Addressed {
			unaddressed++
		}
	}
	if unaddressed > 0 {
		fmt.Printf("\n%s%d unaddressed feedback item(s)%s\n", Yellow, unaddressed, Reset)
	}
	fmt.Println()
}
