package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/jorge-barreto/conclave/internal/workflow"
)

// StatusArgs is the "status" operation's argument bag (spec.md §4.5).
type StatusArgs struct {
	WorkflowID string
	Verbose    bool
}

const (
	defaultArtifactCount   = 5
	defaultCheckpointCount = 3
	verboseAgentRunCount   = 10
)

// Status renders a Markdown report of the workflow's current state.
func (o *Operations) Status(ctx context.Context, args StatusArgs) Response {
	st, err := o.Store.Get(args.WorkflowID)
	if err != nil {
		return errorResponse(err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Workflow %s\n\n", st.WorkflowID)
	sb.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Phase | %s |\n", st.Phase)
	fmt.Fprintf(&sb, "| Iteration | %d |\n", st.Iteration)
	fmt.Fprintf(&sb, "| Status | %s |\n", st.Status)
	fmt.Fprintf(&sb, "| Created | %s |\n", st.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&sb, "| Updated | %s |\n", st.UpdatedAt.Format("2006-01-02T15:04:05Z"))

	if st.Status == workflow.StatusCheckpoint && st.CheckpointMessage != "" {
		sb.WriteString("\n## Checkpoint\n\n")
		sb.WriteString(st.CheckpointMessage)
		sb.WriteString("\n")
	}

	if st.CurrentArtifact != "" {
		fmt.Fprintf(&sb, "\n## Current artifact\n\n%s\n", st.CurrentArtifact)
	}

	sb.WriteString("\n## Artifacts\n\n")
	artifacts := st.Artifacts
	if !args.Verbose && len(artifacts) > defaultArtifactCount {
		artifacts = artifacts[len(artifacts)-defaultArtifactCount:]
	}
	if len(artifacts) == 0 {
		sb.WriteString("_none yet_\n")
	}
	for _, a := range artifacts {
		fmt.Fprintf(&sb, "- iteration %d, %s, by %s: %s\n", a.Iteration, a.Type, a.CreatedBy, a.File)
	}

	sb.WriteString("\n## Unaddressed feedback\n\n")
	var unaddressed []workflow.FeedbackRecord
	for _, f := range st.FeedbackHistory {
		if !f.Addressed {
			unaddressed = append(unaddressed, f)
		}
	}
	if len(unaddressed) == 0 {
		sb.WriteString("_none_\n")
	}
	for _, f := range unaddressed {
		fmt.Fprintf(&sb, "- iteration %d, %s: %s\n", f.Iteration, f.Reviewer, f.FeedbackFile)
	}

	sb.WriteString("\n## Checkpoints\n\n")
	checkpoints := st.CheckpointsPassed
	if !args.Verbose && len(checkpoints) > defaultCheckpointCount {
		checkpoints = checkpoints[len(checkpoints)-defaultCheckpointCount:]
	}
	if len(checkpoints) == 0 {
		sb.WriteString("_none yet_\n")
	}
	for _, c := range checkpoints {
		fmt.Fprintf(&sb, "- iteration %d: %s\n", c.Iteration, c.Decision)
	}

	if args.Verbose {
		sb.WriteString("\n## Full feedback history\n\n")
		if len(st.FeedbackHistory) == 0 {
			sb.WriteString("_none_\n")
		}
		for _, f := range st.FeedbackHistory {
			fmt.Fprintf(&sb, "- iteration %d, %s, addressed=%v: %s\n", f.Iteration, f.Reviewer, f.Addressed, f.FeedbackFile)
		}

		sb.WriteString("\n## Agent runs (last 10)\n\n")
		runs := st.AgentRuns
		if len(runs) > verboseAgentRunCount {
			runs = runs[len(runs)-verboseAgentRunCount:]
		}
		if len(runs) == 0 {
			sb.WriteString("_none_\n")
		}
		for _, r := range runs {
			status := "running"
			if r.Success != nil {
				if *r.Success {
					status = "success"
				} else {
					status = "failed: " + r.Error
				}
			}
			fmt.Fprintf(&sb, "- iteration %d, %s: %s\n", r.Iteration, r.Agent, status)
		}
	}

	return text(sb.String())
}
