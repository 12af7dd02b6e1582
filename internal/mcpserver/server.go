// Package mcpserver exposes the C5 Operation Surface (internal/ops) as
// MCP tools over github.com/mark3labs/mcp-go. It is a thin binding onto
// an already-complete operation surface, not a reimplementation of tool
// protocol internals — every handler here does argument extraction and
// then a single call into internal/ops.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jorge-barreto/conclave/internal/ops"
	"github.com/jorge-barreto/conclave/internal/pipeline"
)

// New builds the MCP server and registers the nine operations of
// spec.md §6 as tools.
func New(o *ops.Operations, version string) *server.MCPServer {
	s := server.NewMCPServer("conclave", version, server.WithToolCapabilities(false), server.WithRecovery())

	s.AddTool(mcp.NewTool("start",
		mcp.WithDescription("Start a new workflow from a definition file or the built-in default."),
		mcp.WithString("definition_file", mcp.Description("Path to a workflow definition YAML file")),
		mcp.WithBoolean("use_default", mcp.Description("Use the built-in default workflow definition")),
		mcp.WithString("workflow_id", mcp.Description("Workflow ID; auto-generated if omitted")),
		mcp.WithString("input_file", mcp.Description("Optional seed artifact attached as the workflow's initial input")),
	), handleStart(o))

	s.AddTool(mcp.NewTool("step",
		mcp.WithDescription("Advance a workflow by one transition (run the next creator/reviewer/verifier/tester/fixer)."),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithString("definition_file", mcp.Description("Definition file to use; defaults to the built-in default")),
	), handleStep(o))

	s.AddTool(mcp.NewTool("continue",
		mcp.WithDescription("Record an operator decision (continue, iterate, approve) at a paused checkpoint."),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithString("decision", mcp.Required(), mcp.Description("One of: continue, iterate, approve")),
		mcp.WithString("feedback", mcp.Description("Feedback text; required when decision=iterate")),
		mcp.WithString("next_phase", mcp.Description("Target phase when decision=approve and the workflow should jump phases")),
		mcp.WithString("definition_file", mcp.Description("Definition file to use; defaults to the built-in default")),
	), handleContinue(o))

	s.AddTool(mcp.NewTool("reject",
		mcp.WithDescription("Reject the current artifact at a checkpoint, optionally restarting from an earlier phase."),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithString("reason", mcp.Required(), mcp.Description("Rejection reason, at least 10 characters")),
		mcp.WithArray("required_changes", mcp.Description("Checklist of required changes")),
		mcp.WithString("restart_from", mcp.Description("Phase to restart from, or \"current\"")),
	), handleReject(o))

	s.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Render a status report for a workflow."),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithBoolean("verbose", mcp.Description("Include full feedback history and agent run log")),
	), handleStatus(o))

	s.AddTool(mcp.NewTool("list_agents",
		mcp.WithDescription("List all known agent definitions."),
	), handleListAgents(o))

	s.AddTool(mcp.NewTool("run_single_agent",
		mcp.WithDescription("Invoke a single agent directly, outside of any workflow."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Agent name")),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("User prompt")),
		mcp.WithArray("context_files", mcp.Description("Explicit file paths to attach as context")),
		mcp.WithArray("context_globs", mcp.Description("Glob patterns to expand into context files")),
		mcp.WithObject("context_data", mcp.Description("Structured data serialized and prepended to the prompt")),
		mcp.WithString("cwd", mcp.Description("Working directory for the agent process")),
		mcp.WithArray("extra_args", mcp.Description("Extra CLI args passed through to the agent runner")),
		mcp.WithString("model", mcp.Description("Model override")),
		mcp.WithString("session_id", mcp.Description("Session ID to thread prior history through")),
		mcp.WithString("agent_type", mcp.Description("Agent type override")),
		mcp.WithString("output_path", mcp.Description("Where to write the raw agent output")),
	), handleRunSingleAgent(o))

	s.AddTool(mcp.NewTool("run_agents",
		mcp.WithDescription("Fan a single prompt out to multiple agents in parallel."),
		mcp.WithArray("agents", mcp.Required(), mcp.Description("Agent names")),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("User prompt")),
		mcp.WithArray("context_files", mcp.Description("Context files attached to every invocation")),
		mcp.WithString("out_dir", mcp.Description("Output directory; defaults to the standard outputs directory")),
		mcp.WithString("mode", mcp.Description("fail-fast or best-effort; defaults to best-effort")),
	), handleRunAgents(o))

	s.AddTool(mcp.NewTool("run_verifiers",
		mcp.WithDescription("Resolve each reviewer to its verifier and fan out verification invocations against an artifact."),
		mcp.WithString("artifact_file", mcp.Required(), mcp.Description("Artifact being verified")),
		mcp.WithArray("pairs", mcp.Required(), mcp.Description("Array of {reviewer, review_file} objects")),
		mcp.WithObject("reviewer_verifier_map", mcp.Description("Override of the default reviewer->verifier map")),
		mcp.WithString("out_dir", mcp.Description("Output directory; defaults to the standard verifications directory")),
	), handleRunVerifiers(o))

	return s
}

func respond(r ops.Response) (*mcp.CallToolResult, error) {
	text := ""
	if len(r.Content) > 0 {
		text = r.Content[0].Text
	}
	if r.IsError {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func handleStart(o *ops.Operations) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return respond(o.Start(ctx, ops.StartArgs{
			DefinitionFile: req.GetString("definition_file", ""),
			UseDefault:     req.GetBool("use_default", false),
			WorkflowID:     req.GetString("workflow_id", ""),
			InputFile:      req.GetString("input_file", ""),
		}))
	}
}

func handleStep(o *ops.Operations) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return respond(o.Step(ctx, ops.StepArgs{
			WorkflowID:     req.GetString("workflow_id", ""),
			DefinitionFile: req.GetString("definition_file", ""),
		}))
	}
}

func handleContinue(o *ops.Operations) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return respond(o.Continue(ctx, ops.ContinueArgs{
			WorkflowID:     req.GetString("workflow_id", ""),
			Decision:       req.GetString("decision", ""),
			Feedback:       req.GetString("feedback", ""),
			NextPhase:      req.GetString("next_phase", ""),
			DefinitionFile: req.GetString("definition_file", ""),
		}))
	}
}

func handleReject(o *ops.Operations) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return respond(o.Reject(ctx, ops.RejectArgs{
			WorkflowID:      req.GetString("workflow_id", ""),
			Reason:          req.GetString("reason", ""),
			RequiredChanges: stringSliceArg(req, "required_changes"),
			RestartFrom:     req.GetString("restart_from", ""),
		}))
	}
}

func handleStatus(o *ops.Operations) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return respond(o.Status(ctx, ops.StatusArgs{
			WorkflowID: req.GetString("workflow_id", ""),
			Verbose:    req.GetBool("verbose", false),
		}))
	}
}

func handleListAgents(o *ops.Operations) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return respond(o.ListAgents(ctx))
	}
}

func handleRunSingleAgent(o *ops.Operations) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var contextData any
		if args := req.GetArguments(); args != nil {
			contextData = args["context_data"]
		}
		return respond(o.RunSingleAgent(ctx, ops.RunSingleAgentArgs{
			Agent:        req.GetString("agent", ""),
			Prompt:       req.GetString("prompt", ""),
			ContextFiles: stringSliceArg(req, "context_files"),
			ContextGlobs: stringSliceArg(req, "context_globs"),
			ContextData:  contextData,
			Cwd:          req.GetString("cwd", ""),
			ExtraArgs:    stringSliceArg(req, "extra_args"),
			Model:        req.GetString("model", ""),
			SessionID:    req.GetString("session_id", ""),
			AgentType:    req.GetString("agent_type", ""),
			OutputPath:   req.GetString("output_path", ""),
		}))
	}
}

func handleRunAgents(o *ops.Operations) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mode := pipeline.FanOutMode(req.GetString("mode", ""))
		return respond(o.RunAgents(ctx, ops.RunAgentsArgs{
			Agents:       stringSliceArg(req, "agents"),
			Prompt:       req.GetString("prompt", ""),
			ContextFiles: stringSliceArg(req, "context_files"),
			OutDir:       req.GetString("out_dir", ""),
			Mode:         mode,
		}))
	}
}

func handleRunVerifiers(o *ops.Operations) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pairs, err := reviewPairsArg(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var revMap map[string]string
		if args := req.GetArguments(); args != nil {
			if raw, ok := args["reviewer_verifier_map"].(map[string]any); ok {
				revMap = make(map[string]string, len(raw))
				for k, v := range raw {
					if s, ok := v.(string); ok {
						revMap[k] = s
					}
				}
			}
		}
		return respond(o.RunVerifiers(ctx, ops.RunVerifiersArgs{
			Pairs:               pairs,
			ArtifactFile:        req.GetString("artifact_file", ""),
			ReviewerVerifierMap: revMap,
			OutDir:              req.GetString("out_dir", ""),
		}))
	}
}

// stringSliceArg extracts a JSON array argument as []string, tolerating
// the []any shape the MCP JSON transport decodes arrays into.
func stringSliceArg(req mcp.CallToolRequest, key string) []string {
	args := req.GetArguments()
	if args == nil {
		return nil
	}
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// reviewPairsArg extracts the "pairs" array as []pipeline.ReviewPair,
// each entry shaped {reviewer, review_file}.
func reviewPairsArg(req mcp.CallToolRequest) ([]pipeline.ReviewPair, error) {
	args := req.GetArguments()
	if args == nil {
		return nil, fmt.Errorf("pairs is required")
	}
	raw, ok := args["pairs"].([]any)
	if !ok {
		return nil, fmt.Errorf("pairs must be an array of {reviewer, review_file} objects")
	}
	pairs := make([]pipeline.ReviewPair, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		reviewer, _ := m["reviewer"].(string)
		reviewFile, _ := m["review_file"].(string)
		pairs = append(pairs, pipeline.ReviewPair{Reviewer: reviewer, ReviewFile: reviewFile})
	}
	return pairs, nil
}
