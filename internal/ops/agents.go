package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/jorge-barreto/conclave/internal/pipeline"
)

// ListAgents renders every known agent definition.
func (o *Operations) ListAgents(ctx context.Context) Response {
	defs, err := o.Pipeline.Defs.ListAgents(ctx)
	if err != nil {
		return errorResponse(err)
	}
	if len(defs) == 0 {
		return text("No agent definitions found.")
	}
	var sb strings.Builder
	sb.WriteString("# Agents\n\n")
	for _, d := range defs {
		model := d.Model
		if model == "" {
			model = "(pipeline default)"
		}
		fmt.Fprintf(&sb, "- **%s** (%s): %s\n", d.Name, model, d.Description)
	}
	return text(sb.String())
}

// RunSingleAgentArgs is the "run-single-agent" operation's argument bag
// (spec.md §4.3, §6).
type RunSingleAgentArgs struct {
	Agent        string
	Prompt       string
	ContextFiles []string
	ContextGlobs []string
	ContextData  any
	Cwd          string
	ExtraArgs    []string
	Model        string
	SessionID    string
	AgentType    string
	OutputPath   string
}

// RunSingleAgent invokes one agent directly, per spec.md §4.3.
func (o *Operations) RunSingleAgent(ctx context.Context, args RunSingleAgentArgs) Response {
	if err := validateAgentName(args.Agent); err != nil {
		return errText(err.Error())
	}
	if err := validatePrompt(args.Prompt); err != nil {
		return errText(err.Error())
	}
	if err := validateCwd(args.Cwd); err != nil {
		return errText(err.Error())
	}
	if err := validateSessionID(args.SessionID); err != nil {
		return errText(err.Error())
	}
	if err := validateExtraArgs(args.ExtraArgs); err != nil {
		return errText(err.Error())
	}
	if err := validateContextFiles(args.ContextFiles); err != nil {
		return errText(err.Error())
	}
	if err := validateContextGlobs(args.ContextGlobs); err != nil {
		return errText(err.Error())
	}
	if err := validateContextData(args.ContextData); err != nil {
		return errText(err.Error())
	}
	if err := validateModel(args.Model); err != nil {
		return errText(err.Error())
	}

	contextFiles := append([]string{}, args.ContextFiles...)
	for _, pattern := range args.ContextGlobs {
		matches, err := afero.Glob(o.Fs, pattern)
		if err != nil {
			return errText(fmt.Sprintf("invalid context_globs pattern %q: %v", pattern, err))
		}
		contextFiles = append(contextFiles, matches...)
	}

	prompt := args.Prompt
	if args.ContextData != nil {
		encoded, _ := json.MarshalIndent(args.ContextData, "", "  ")
		prompt = fmt.Sprintf("# Additional context data\n```json\n%s\n```\n\n%s", encoded, prompt)
	}

	outPath := args.OutputPath
	if outPath == "" {
		outPath = fmt.Sprintf("%s/%s-%s.md", o.outputsDir(), args.Agent, timestamp())
	}

	res, err := o.Pipeline.Invoke(ctx, pipeline.InvokeRequest{
		Agent: args.Agent, UserPrompt: prompt, ContextFiles: contextFiles,
		OutputPath: outPath, Cwd: args.Cwd, ExtraArgs: args.ExtraArgs,
		ModelOverride: args.Model, SessionID: args.SessionID, AgentType: args.AgentType,
	})
	if err != nil {
		return errorResponse(err)
	}
	if !res.Success {
		msg := "agent invocation failed"
		if res.Error != nil {
			msg = res.Error.Message
		}
		return errText(msg)
	}
	if res.Warning != "" {
		return text(fmt.Sprintf("%s\n\n_warning: %s_", res.PrimaryField, res.Warning))
	}
	return text(res.PrimaryField)
}

// RunAgentsArgs is the "run-agents" operation's argument bag.
type RunAgentsArgs struct {
	Agents       []string
	Prompt       string
	ContextFiles []string
	OutDir       string
	Mode         pipeline.FanOutMode
}

// RunAgents fans a prompt out to multiple agents in parallel.
func (o *Operations) RunAgents(ctx context.Context, args RunAgentsArgs) Response {
	for _, a := range args.Agents {
		if err := validateAgentName(a); err != nil {
			return errText(err.Error())
		}
	}
	if err := validatePrompt(args.Prompt); err != nil {
		return errText(err.Error())
	}
	if err := validateContextFiles(args.ContextFiles); err != nil {
		return errText(err.Error())
	}

	outDir := args.OutDir
	if outDir == "" {
		outDir = o.outputsDir()
	}
	mode := args.Mode
	if mode == "" {
		mode = pipeline.BestEffort
	}

	outcomes, err := o.Pipeline.RunAgents(ctx, args.Agents, args.Prompt, args.ContextFiles, outDir, mode, timestamp())
	if err != nil {
		return errorResponse(err)
	}

	var sb strings.Builder
	sb.WriteString("# Run-agents results\n\n")
	for _, oc := range outcomes {
		status := "success"
		if !oc.Result.Success {
			status = "failed"
			if oc.Result.Error != nil {
				status = "failed: " + oc.Result.Error.Message
			}
		}
		fmt.Fprintf(&sb, "- **%s**: %s (%s)\n", oc.Agent, status, oc.OutputPath)
	}
	return text(sb.String())
}

// RunVerifiersArgs is the "run-verifiers" operation's argument bag.
type RunVerifiersArgs struct {
	Pairs               []pipeline.ReviewPair
	ArtifactFile        string
	ReviewerVerifierMap map[string]string
	OutDir              string
}

// RunVerifiers resolves each reviewer to its verifier and fans out
// verification invocations, per spec.md §4.3.
func (o *Operations) RunVerifiers(ctx context.Context, args RunVerifiersArgs) Response {
	if args.ArtifactFile == "" {
		return errText("artifact_file is required")
	}
	outDir := args.OutDir
	if outDir == "" {
		outDir = o.verificationsDir()
	}

	outcomes, err := o.Pipeline.RunVerifiers(ctx, args.Pairs, args.ArtifactFile, args.ReviewerVerifierMap, outDir, timestamp())
	if err != nil {
		return errorResponse(err)
	}

	var sb strings.Builder
	sb.WriteString("# Run-verifiers results\n\n")
	for _, oc := range outcomes {
		if oc.Skipped {
			fmt.Fprintf(&sb, "- **%s**: skipped (no verifier mapped)\n", oc.Reviewer)
			continue
		}
		status := "success"
		if !oc.Result.Success {
			status = "failed"
		}
		fmt.Fprintf(&sb, "- **%s** -> **%s**: %s, passed=%v, critical_issues=%d (%s)\n",
			oc.Reviewer, oc.Verifier, status, oc.Passed, oc.Issues, oc.OutputPath)
	}
	return text(sb.String())
}

func timestamp() string {
	return time.Now().UTC().Format("20060102T150405Z")
}
