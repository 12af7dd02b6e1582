// Package doctor renders a read-only diagnostic dump for an operator
// triaging a stuck or failed workflow — the context-gathering half of
// the teacher's AI-backed doctor command, repurposed without the model
// call: this package only assembles sections, it never spawns a
// subprocess.
package doctor

import (
	"fmt"
	"strings"

	"github.com/jorge-barreto/conclave/internal/workflow"
)

const maxFeedbackPreview = 5

// Report renders a diagnostic dump for st at phase def, covering the
// phase definition, the most recent agent run (and its error, if any),
// unaddressed feedback, and the current checkpoint message.
func Report(st *workflow.State, phase workflow.Phase) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Doctor: workflow %s\n\n", st.WorkflowID)
	fmt.Fprintf(&sb, "## Phase\n\nid=%s type=%s iteration=%d status=%s\n", phase.ID, phase.Type, st.Iteration, st.Status)
	if phase.Type == workflow.PhaseTypeIterative {
		fmt.Fprintf(&sb, "creator=%s reviewers=%v verifiers=%v\n", phase.Creator, phase.Reviewers, phase.Verifiers)
	} else {
		fmt.Fprintf(&sb, "tester=%s fixer=%s\n", phase.Tester, phase.Fixer)
	}
	if phase.HasMaxIterations {
		fmt.Fprintf(&sb, "min_iterations=%d max_iterations=%d\n", phase.MinIterations, phase.MaxIterations)
	}

	sb.WriteString("\n## Most recent agent run\n\n")
	if len(st.AgentRuns) == 0 {
		sb.WriteString("(none recorded)\n")
	} else {
		r := st.AgentRuns[len(st.AgentRuns)-1]
		fmt.Fprintf(&sb, "agent=%s iteration=%d output=%s\n", r.Agent, r.Iteration, r.OutputFile)
		switch {
		case r.Success == nil:
			sb.WriteString("status=running (never completed — process likely died mid-invocation)\n")
		case !*r.Success:
			fmt.Fprintf(&sb, "status=failed error=%s\n", r.Error)
		default:
			sb.WriteString("status=succeeded\n")
		}
	}

	sb.WriteString("\n## Unaddressed feedback\n\n")
	var unaddressed []workflow.FeedbackRecord
	for _, f := range st.FeedbackHistory {
		if !f.Addressed {
			unaddressed = append(unaddressed, f)
		}
	}
	if len(unaddressed) == 0 {
		sb.WriteString("(none)\n")
	}
	for i, f := range unaddressed {
		if i >= maxFeedbackPreview {
			fmt.Fprintf(&sb, "... and %d more\n", len(unaddressed)-maxFeedbackPreview)
			break
		}
		fmt.Fprintf(&sb, "- iteration %d, %s: %s\n", f.Iteration, f.Reviewer, f.FeedbackFile)
	}

	if st.Status == workflow.StatusCheckpoint {
		sb.WriteString("\n## Checkpoint\n\n")
		if st.CheckpointMessage != "" {
			sb.WriteString(st.CheckpointMessage)
			sb.WriteString("\n")
		}
		sb.WriteString("\nWorkflow is paused awaiting an operator decision. Run `conclave continue` or `conclave reject`.\n")
	}

	return sb.String()
}
